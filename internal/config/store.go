package config

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	yaml "go.yaml.in/yaml/v3"

	logx "clipcast/pkg/logx"
)

// Store owns the persisted account document. Reads and writes go through it;
// Watch picks up external edits to the file (the daemon is not the only
// editor: operators hand-edit schedules).
type Store struct {
	path string

	mu  sync.RWMutex
	doc Document

	// writeMu serializes writers. Mutate's clone, apply, persist sequence
	// must be atomic against other mutations or the later Save overwrites
	// the earlier one's change.
	writeMu sync.Mutex

	// subsMu guards subscriber list and ensures we never send on a channel
	// that is concurrently being closed in Unsubscribe().
	subsMu sync.Mutex
	subs   []chan Document

	log logx.Logger

	// lastHash tracks the last committed content so editor-induced duplicate
	// write events don't republish an unchanged document.
	lastHash uint64
}

func NewStore(path string, log logx.Logger) *Store {
	return &Store{path: path, log: log}
}

func (s *Store) Path() string { return s.path }

// Parse reads and strictly decodes the document without committing it.
func (s *Store) Parse() (Document, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(strings.NewReader(string(b)))
	dec.KnownFields(true)
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if doc == nil {
		doc = Document{}
	}
	for name, pc := range doc {
		if pc == nil {
			doc[name] = &PlatformConfig{Accounts: map[string]AccountRecord{}}
		} else if pc.Accounts == nil {
			pc.Accounts = map[string]AccountRecord{}
		}
	}
	return doc, nil
}

// Load parses and commits the document. A missing file is not an error: the
// default document is committed (and not written until the first mutation).
// A malformed file is a ConfigError: the caller decides whether to fall back.
func (s *Store) Load() (Document, error) {
	doc, err := s.Parse()
	if os.IsNotExist(err) {
		doc = Default()
		err = nil
	}
	if err != nil {
		return nil, err
	}
	s.commit(doc)
	return doc.Clone(), nil
}

// LoadOrDefault is Load with the documented ConfigError fallback applied:
// malformed state is logged and replaced by defaults in memory. The broken
// file is left on disk for the operator.
func (s *Store) LoadOrDefault() Document {
	doc, err := s.Load()
	if err != nil {
		s.log.Error("account document unreadable; falling back to defaults",
			logx.String("path", s.path), logx.Err(err))
		doc = Default()
		s.commit(doc)
	}
	return doc
}

func (s *Store) commit(doc Document) {
	s.mu.Lock()
	s.doc = doc
	s.lastHash = hashDocument(doc)
	s.mu.Unlock()
}

// Get returns a deep copy of the current document.
func (s *Store) Get() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.doc == nil {
		return Default()
	}
	return s.doc.Clone()
}

// Save commits doc and writes it atomically (temp file + rename) so a crash
// mid-write never leaves a torn document.
func (s *Store) Save(doc Document) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.save(doc)
}

func (s *Store) save(doc Document) error {
	b, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".accounts-*.yaml")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	s.commit(doc.Clone())
	return nil
}

// Mutate applies fn to a copy of the current document and persists the
// result. The whole read-apply-write sequence holds the writer lock, so
// concurrent mutations never clone the same base and lose each other's
// changes. fn returning an error aborts without writing.
func (s *Store) Mutate(fn func(doc Document) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	cur := s.doc
	s.mu.RUnlock()
	if cur == nil {
		cur = Default()
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return err
	}
	return s.save(next)
}

func (s *Store) Subscribe(buffer int) chan Document {
	ch := make(chan Document, buffer)
	s.subsMu.Lock()
	s.subs = append(s.subs, ch)
	s.subsMu.Unlock()
	return ch
}

func (s *Store) Unsubscribe(ch chan Document) {
	if ch == nil {
		return
	}
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for i, sub := range s.subs {
		if sub == ch {
			last := len(s.subs) - 1
			s.subs[i] = s.subs[last]
			s.subs[last] = nil
			s.subs = s.subs[:last]
			close(ch)
			return
		}
	}
}

func (s *Store) publish(doc Document) {
	// Hold subsMu while sending to avoid send-on-closed panics.
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		if ch == nil {
			continue
		}
		select {
		case ch <- doc.Clone():
		default:
			// Drop one stale update, then best-effort deliver the latest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- doc.Clone():
			default:
			}
		}
	}
}

// Watch re-reads the document when the file changes on disk and publishes the
// result to subscribers. Events are debounced so editors that write in several
// steps trigger a single reload. Returns when ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	file := filepath.Base(s.path)

	const restartBackoff = time.Second

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, func() {
			doc, err := s.Parse()
			if err != nil {
				s.log.Warn("account document reload rejected",
					logx.String("path", s.path), logx.Err(err))
				return
			}

			h := hashDocument(doc)
			s.mu.RLock()
			unchanged := h != 0 && h == s.lastHash
			s.mu.RUnlock()
			if unchanged {
				return
			}

			s.commit(doc)
			s.publish(doc)
			s.log.Info("account document reloaded", logx.String("path", s.path))
		})
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		w, err := fsnotify.NewWatcher()
		if err == nil {
			err = w.Add(dir)
			if err != nil {
				_ = w.Close()
			}
		}
		if err != nil {
			s.log.Warn("account document watch unavailable; retrying",
				logx.String("dir", dir), logx.Err(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(restartBackoff):
				continue
			}
		}

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				// Compare by basename: atomic saves arrive as rename events
				// with temp-file siblings in the same directory.
				if strings.EqualFold(filepath.Base(ev.Name), file) {
					if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
						debounce()
					}
				}
			case werr, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if werr != nil {
					s.log.Warn("account document watch error", logx.Err(werr))
				}
			}
		}

		_ = w.Close()
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(restartBackoff):
		}
	}
}

func hashDocument(doc Document) uint64 {
	if doc == nil {
		return 0
	}
	b, err := yaml.Marshal(doc)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
