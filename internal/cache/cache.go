// Package cache is the in-memory request cache shared by the data services.
// Entries are addressed by a composite key (operation name plus parameters),
// carry a freshness timestamp, and are kept consistent with the backend only
// through explicit invalidation.
package cache

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

// Key identifies one cached result, e.g. {"tasks", "done"}.
type Key []string

func (k Key) String() string {
	return strings.Join(k, "/")
}

// HasPrefix reports whether every segment of prefix matches the start of k.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// id is the map key. Segments are joined with NUL so {"a/b"} and {"a","b"}
// never collide.
func (k Key) id() string {
	return strings.Join(k, "\x00")
}

type EntryState int

const (
	Missing EntryState = iota
	Fresh
	Stale
	Invalidated
)

func (s EntryState) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	case Invalidated:
		return "invalidated"
	default:
		return "missing"
	}
}

type entry struct {
	key         Key
	value       any
	updatedAt   time.Time
	staleTime   time.Duration
	invalidated bool
}

type fetchFunc func(context.Context) (any, error)

// Store holds cached results. Use New to construct one.
type Store struct {
	mu       sync.Mutex
	entries  map[string]*entry
	inflight map[string]Key
	gens     map[string]uint64
	group    singleflight.Group
	now      func() time.Time
	logger   *log.Logger
}

type Option func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		entries:  make(map[string]*entry),
		inflight: make(map[string]Key),
		gens:     make(map[string]uint64),
		now:      time.Now,
		logger:   log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch returns the value cached under key, calling fn when there is none or
// when it has been invalidated. A value older than staleTime is returned
// immediately while a single background fetch refreshes it. Concurrent calls
// for the same key share one in-flight fn call. Errors are never cached.
//
// Every caller receives the cached value itself. Callers must not modify it;
// services hand out copies.
//
// fn runs on a context detached from ctx: an in-flight request is never
// cancelled, a caller whose ctx ends simply stops waiting for it.
func Fetch[T any](ctx context.Context, s *Store, key Key, staleTime time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	erased := func(ctx context.Context) (any, error) {
		return fn(ctx)
	}

	s.mu.Lock()
	state := Missing
	var cached any
	if e, ok := s.entries[key.id()]; ok {
		state = s.stateLocked(e)
		cached = e.value
	}
	s.mu.Unlock()

	switch state {
	case Fresh:
		s.logger.Debug("cache hit", "key", key.String())
		if v, ok := cached.(T); ok {
			return v, nil
		}
	case Stale:
		if v, ok := cached.(T); ok {
			s.logger.Debug("cache stale, revalidating", "key", key.String())
			go func() {
				if res := <-s.start(ctx, key, staleTime, erased); res.Err != nil {
					s.logger.Debug("revalidation failed", "key", key.String(), "err", res.Err)
				}
			}()
			return v, nil
		}
	}

	s.logger.Debug("cache miss", "key", key.String(), "state", state.String())
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-s.start(ctx, key, staleTime, erased):
		if res.Err != nil {
			return zero, res.Err
		}
		v, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("cache: unexpected value type %T for key %s", res.Val, key)
		}
		return v, nil
	}
}

// start joins the in-flight fetch for key or starts a new one. Fetches are
// grouped per invalidation generation, so a read made after Invalidate never
// joins a request that started before it.
func (s *Store) start(ctx context.Context, key Key, staleTime time.Duration, fn fetchFunc) <-chan singleflight.Result {
	detached := context.WithoutCancel(ctx)
	id := key.id()

	s.mu.Lock()
	gen := s.gens[id]
	s.mu.Unlock()

	flight := fmt.Sprintf("%s#%d", id, gen)
	return s.group.DoChan(flight, func() (any, error) {
		s.mu.Lock()
		s.inflight[flight] = key
		s.mu.Unlock()

		v, err := fn(detached)

		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.inflight, flight)
		if err != nil {
			return nil, err
		}
		stale := s.gens[id] != gen
		if e, ok := s.entries[id]; ok && stale && !e.invalidated {
			// A newer fetch already stored a valid response.
			return v, nil
		}
		s.entries[id] = &entry{
			key:       key,
			value:     v,
			updatedAt: s.now(),
			staleTime: staleTime,
			// Invalidated while in flight: keep the response but make the
			// next read go back to the backend.
			invalidated: stale,
		}
		return v, nil
	})
}

// Set stores v under key as a fresh entry.
func (s *Store) Set(key Key, v any, staleTime time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key.id()] = &entry{
		key:       key,
		value:     v,
		updatedAt: s.now(),
		staleTime: staleTime,
	}
}

// Invalidate marks every entry whose key starts with prefix as invalidated,
// including fetches still in flight, and returns how many stored entries
// were affected.
func (s *Store) Invalidate(prefix Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, e := range s.entries {
		if e.key.HasPrefix(prefix) {
			e.invalidated = true
			s.gens[id]++
			n++
		}
	}
	for _, key := range s.inflight {
		if key.HasPrefix(prefix) {
			s.gens[key.id()]++
		}
	}

	s.logger.Debug("cache invalidated", "prefix", prefix.String(), "entries", n)
	return n
}

// State reports the freshness of the entry under key.
func (s *Store) State(key Key) EntryState {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key.id()]
	if !ok {
		return Missing
	}
	return s.stateLocked(e)
}

func (s *Store) stateLocked(e *entry) EntryState {
	if e.invalidated {
		return Invalidated
	}
	if s.now().Sub(e.updatedAt) >= e.staleTime {
		return Stale
	}
	return Fresh
}

// Peek returns the cached value without fetching.
func (s *Store) Peek(key Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key.id()]
	if !ok {
		return nil, false
	}
	return e.value, true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear drops every entry. Fetches in flight still store their results.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
}
