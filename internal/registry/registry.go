package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"clipcast/internal/config"
	"clipcast/internal/platform"
	logx "clipcast/pkg/logx"
)

var (
	ErrDuplicateAccount = errors.New("account already exists")
	ErrNotFound         = errors.New("account not found")
)

// Registry owns all account state. Every mutation is persisted through the
// config store; every read goes to the committed document, so scheduler ticks
// always see the latest active/authenticated flags (never a cached copy).
//
// Serialization is per platform: a slow update on TikTok never blocks the
// YouTube scheduler's read pass.
type Registry struct {
	store *config.Store
	log   logx.Logger

	// baseDir anchors default clip directories for accounts added without an
	// explicit clip_folder.
	baseDir string

	// locks is populated once in New and never mutated afterwards, so lock()
	// can read it without synchronization.
	locks    map[platform.Platform]*sync.RWMutex
	fallback sync.RWMutex
}

func New(store *config.Store, baseDir string, log logx.Logger) *Registry {
	locks := make(map[platform.Platform]*sync.RWMutex, len(platform.All()))
	for _, p := range platform.All() {
		locks[p] = &sync.RWMutex{}
	}
	return &Registry{store: store, log: log, baseDir: baseDir, locks: locks}
}

func (r *Registry) lock(p platform.Platform) *sync.RWMutex {
	if l, ok := r.locks[p]; ok {
		return l
	}
	// Unknown platforms share one lock; they only appear via hand-edited
	// documents and never schedule.
	return &r.fallback
}

// Add registers a new account. The account's clip directory is created
// immediately so generation jobs have somewhere to write.
func (r *Registry) Add(p platform.Platform, name string, rec config.AccountRecord) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("account name is required")
	}
	l := r.lock(p)
	l.Lock()
	defer l.Unlock()

	err := r.store.Mutate(func(doc config.Document) error {
		pc := doc.Platform(p)
		if _, exists := pc.Accounts[name]; exists {
			return fmt.Errorf("%w: %s/%s", ErrDuplicateAccount, p, name)
		}
		if rec.ClipDir == "" {
			rec.ClipDir = filepath.Join(r.baseDir, string(p), name)
		}
		pc.Accounts[name] = rec
		return nil
	})
	if err != nil {
		return err
	}

	if mkErr := os.MkdirAll(filepath.Join(rec.ClipDir, "clips"), 0o755); mkErr != nil {
		r.log.Warn("clip directory not created",
			logx.String("platform", string(p)), logx.String("account", name), logx.Err(mkErr))
	}
	r.log.Info("account added", logx.String("platform", string(p)), logx.String("account", name))
	return nil
}

// Get returns a copy of the account record.
func (r *Registry) Get(p platform.Platform, name string) (config.AccountRecord, error) {
	l := r.lock(p)
	l.RLock()
	defer l.RUnlock()

	doc := r.store.Get()
	pc, ok := doc[string(p)]
	if !ok {
		return config.AccountRecord{}, fmt.Errorf("%w: %s/%s", ErrNotFound, p, name)
	}
	rec, ok := pc.Accounts[name]
	if !ok {
		return config.AccountRecord{}, fmt.Errorf("%w: %s/%s", ErrNotFound, p, name)
	}
	return rec, nil
}

// Account pairs a name with its record for listings.
type Account struct {
	Name   string
	Record config.AccountRecord
}

// List returns the platform's accounts sorted by name.
func (r *Registry) List(p platform.Platform) []Account {
	l := r.lock(p)
	l.RLock()
	defer l.RUnlock()

	doc := r.store.Get()
	pc, ok := doc[string(p)]
	if !ok {
		return nil
	}
	out := make([]Account, 0, len(pc.Accounts))
	for name, rec := range pc.Accounts {
		out = append(out, Account{Name: name, Record: rec})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Update applies fn to the stored record. fn sees the current record and
// mutates it in place.
func (r *Registry) Update(p platform.Platform, name string, fn func(rec *config.AccountRecord)) error {
	l := r.lock(p)
	l.Lock()
	defer l.Unlock()

	return r.store.Mutate(func(doc config.Document) error {
		pc := doc.Platform(p)
		rec, ok := pc.Accounts[name]
		if !ok {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, p, name)
		}
		fn(&rec)
		pc.Accounts[name] = rec
		return nil
	})
}

func (r *Registry) SetActive(p platform.Platform, name string, active bool) error {
	return r.Update(p, name, func(rec *config.AccountRecord) { rec.Active = active })
}

func (r *Registry) SetAuthenticated(p platform.Platform, name string, authed bool) error {
	return r.Update(p, name, func(rec *config.AccountRecord) { rec.Authenticated = authed })
}

// Remove deletes the registry entry and the account's clip directory. The
// directory is owned exclusively by the account, so removal is safe.
func (r *Registry) Remove(p platform.Platform, name string) error {
	l := r.lock(p)
	l.Lock()
	defer l.Unlock()

	var clipDir string
	err := r.store.Mutate(func(doc config.Document) error {
		pc := doc.Platform(p)
		rec, ok := pc.Accounts[name]
		if !ok {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, p, name)
		}
		clipDir = rec.ClipDir
		delete(pc.Accounts, name)
		return nil
	})
	if err != nil {
		return err
	}

	if clipDir != "" {
		if rmErr := os.RemoveAll(clipDir); rmErr != nil {
			r.log.Warn("clip directory not removed",
				logx.String("platform", string(p)), logx.String("account", name), logx.Err(rmErr))
		}
	}
	r.log.Info("account removed", logx.String("platform", string(p)), logx.String("account", name))
	return nil
}

// AutoUpload reports whether the platform's auto-upload toggle is on.
func (r *Registry) AutoUpload(p platform.Platform) bool {
	l := r.lock(p)
	l.RLock()
	defer l.RUnlock()

	doc := r.store.Get()
	pc, ok := doc[string(p)]
	return ok && pc.AutoUpload
}

// SetAutoUpload persists the platform's auto-upload toggle.
func (r *Registry) SetAutoUpload(p platform.Platform, enabled bool) error {
	l := r.lock(p)
	l.Lock()
	defer l.Unlock()

	return r.store.Mutate(func(doc config.Document) error {
		doc.Platform(p).AutoUpload = enabled
		return nil
	})
}
