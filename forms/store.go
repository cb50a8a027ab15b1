package forms

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Store keeps the open form sessions of the process.
type Store struct {
	registry *Registry
	deps     Deps
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Controller
}

func NewStore(registry *Registry, deps Deps) *Store {
	return &Store{
		registry: registry,
		deps:     deps,
		now:      time.Now,
		sessions: make(map[string]*Controller),
	}
}

func (s *Store) Registry() *Registry { return s.registry }

// New builds a controller for formID without registering it, for one-shot
// submissions. Option lists are loaded before it is returned.
func (s *Store) New(ctx context.Context, formID string, prefill map[string]string) (*Controller, error) {
	schema, err := s.registry.Get(formID)
	if err != nil {
		return nil, err
	}
	c := NewController(schema, s.deps, prefill)
	c.now = s.now
	c.lastActive = s.now()
	if err := c.LoadOptions(ctx); err != nil {
		logrus.WithFields(logrus.Fields{
			"form":    formID,
			"session": c.ID(),
			"error":   err.Error(),
		}).Warn("form options could not be loaded")
	}
	return c, nil
}

// Open creates and registers a new session for formID.
func (s *Store) Open(ctx context.Context, formID string, prefill map[string]string) (*Controller, error) {
	c, err := s.New(ctx, formID, prefill)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.sessions[c.ID()] = c
	s.mu.Unlock()
	return c, nil
}

func (s *Store) Get(id string) (*Controller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return c, nil
}

// Close drops a session. An in-flight submission still completes.
func (s *Store) Close(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// Sweep removes sessions idle for longer than maxIdle, skipping those
// with a submission in flight. It returns how many were removed.
func (s *Store) Sweep(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, c := range s.sessions {
		if c.Submitting() || !c.LastActive().Before(cutoff) {
			continue
		}
		delete(s.sessions, id)
		removed++
	}
	return removed
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
