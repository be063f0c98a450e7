package platform

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// PublishRequest carries one content unit and its metadata to the destination.
type PublishRequest struct {
	ClipPath    string
	Title       string
	Description string
	Tags        []string
	CategoryID  string
}

// PublishResult is the destination's acknowledgement.
type PublishResult struct {
	RemoteID string
}

// Adapter is the external capability performing actual authentication and
// publishing for a platform. Implementations own credential storage; the core
// only tracks the authenticated flag per account.
type Adapter interface {
	// Authenticate runs (or resumes) the auth flow for the named account.
	Authenticate(ctx context.Context, account string) (bool, error)

	// Refresh renews expiring credentials. False without error means the
	// account must re-authenticate interactively.
	Refresh(ctx context.Context, account string) (bool, error)

	// Publish uploads one clip. Implementations must not retry internally;
	// retry policy belongs to the caller.
	Publish(ctx context.Context, account string, req PublishRequest) (PublishResult, error)
}

var (
	ErrNoAdapter = errors.New("no adapter registered for platform")

	// ErrAuthExpired marks a publish failure caused by dead credentials.
	// Callers flip the account's authenticated flag off when they see it.
	ErrAuthExpired = errors.New("platform credentials expired")
)

// Adapters is a concurrency-safe adapter registry, injected into the upload
// executor so tests can swap in fakes.
type Adapters struct {
	mu sync.RWMutex
	m  map[Platform]Adapter
}

func NewAdapters() *Adapters {
	return &Adapters{m: make(map[Platform]Adapter)}
}

func (a *Adapters) Register(p Platform, ad Adapter) {
	a.mu.Lock()
	a.m[p] = ad
	a.mu.Unlock()
}

func (a *Adapters) Resolve(p Platform) (Adapter, error) {
	a.mu.RLock()
	ad, ok := a.m[p]
	a.mu.RUnlock()
	if !ok || ad == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, p)
	}
	return ad, nil
}
