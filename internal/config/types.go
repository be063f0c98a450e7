package config

import (
	"clipcast/internal/platform"
	"clipcast/internal/schedule"
)

// DefaultClipDuration is applied when an account does not set one.
// Short-form destinations cap at 60s; 57 leaves headroom for container muxing.
const DefaultClipDuration = 57

// AccountRecord is the persisted per-account state. The account name is the
// map key in PlatformConfig.Accounts, unique within its platform.
type AccountRecord struct {
	Active        bool `yaml:"active"`
	Authenticated bool `yaml:"authenticated"`

	// ClipDir is owned exclusively by this account; deleting the account
	// removes it. Generated clips live under ClipDir/clips.
	ClipDir string `yaml:"clip_folder"`

	// Publish metadata. Tags is comma-separated, split at publish time.
	Title       string `yaml:"title,omitempty"`
	Description string `yaml:"description,omitempty"`
	Tags        string `yaml:"tags,omitempty"`
	CategoryID  string `yaml:"category_id,omitempty"`

	ClipDuration int               `yaml:"clip_duration,omitempty"`
	Schedule     schedule.Schedule `yaml:"schedule,omitempty"`
}

// EffectiveClipDuration returns the configured clip length in seconds.
func (a AccountRecord) EffectiveClipDuration() int {
	if a.ClipDuration > 0 {
		return a.ClipDuration
	}
	return DefaultClipDuration
}

// Clone returns a deep copy safe to hand to other goroutines.
func (a AccountRecord) Clone() AccountRecord {
	cp := a
	if a.Schedule != nil {
		cp.Schedule = make(schedule.Schedule, len(a.Schedule))
		for day, times := range a.Schedule {
			cp.Schedule[day] = append([]string(nil), times...)
		}
	}
	return cp
}

// PlatformConfig is the persisted per-platform state.
type PlatformConfig struct {
	AutoUpload bool                     `yaml:"auto_upload"`
	Accounts   map[string]AccountRecord `yaml:"accounts"`
}

func (p *PlatformConfig) Clone() *PlatformConfig {
	if p == nil {
		return nil
	}
	cp := &PlatformConfig{
		AutoUpload: p.AutoUpload,
		Accounts:   make(map[string]AccountRecord, len(p.Accounts)),
	}
	for name, acc := range p.Accounts {
		cp.Accounts[name] = acc.Clone()
	}
	return cp
}

// Document is the whole persisted account/platform layout, keyed by platform
// name.
type Document map[string]*PlatformConfig

// Default returns a document with every supported platform present and empty.
func Default() Document {
	doc := make(Document, len(platform.All()))
	for _, p := range platform.All() {
		doc[string(p)] = &PlatformConfig{Accounts: map[string]AccountRecord{}}
	}
	return doc
}

func (d Document) Clone() Document {
	cp := make(Document, len(d))
	for name, pc := range d {
		cp[name] = pc.Clone()
	}
	return cp
}

// Platform returns the config block for p, creating it if absent.
func (d Document) Platform(p platform.Platform) *PlatformConfig {
	pc, ok := d[string(p)]
	if !ok || pc == nil {
		pc = &PlatformConfig{Accounts: map[string]AccountRecord{}}
		d[string(p)] = pc
	}
	if pc.Accounts == nil {
		pc.Accounts = map[string]AccountRecord{}
	}
	return pc
}
