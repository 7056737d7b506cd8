package scan

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrSessionNotFound = errors.New("scan session not found")

const (
	DefaultSessionIdleTTL  = 2 * time.Hour
	DefaultCleanupInterval = time.Minute
)

// Session is one operator's scan screen.
type Session struct {
	ID        string
	Operator  string
	CreatedAt time.Time
	*Controller

	lastSeen time.Time
}

type RegistryOptions struct {
	Controller      Options
	IdleTTL         time.Duration
	CleanupInterval time.Duration
}

// Registry holds the live sessions and evicts the ones nobody touched for
// IdleTTL.
type Registry struct {
	validator Validator
	opts      RegistryOptions
	now       func() time.Time
	log       *logrus.Entry

	mu       sync.RWMutex
	sessions map[string]*Session

	stopCleanup chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func NewRegistry(v Validator, opts RegistryOptions, log *logrus.Entry) *Registry {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultSessionIdleTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	opts.Controller = opts.Controller.withDefaults()

	r := &Registry{
		validator:   v,
		opts:        opts,
		now:         opts.Controller.Now,
		log:         log.WithField("component", "scan_registry"),
		sessions:    make(map[string]*Session),
		stopCleanup: make(chan struct{}),
	}

	r.wg.Add(1)
	go r.cleanupLoop()

	return r
}

func (r *Registry) cleanupLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.evictIdle()
		case <-r.stopCleanup:
			return
		}
	}
}

func (r *Registry) evictIdle() int {
	cutoff := r.now().Add(-r.opts.IdleTTL)

	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if s.lastSeen.Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Close()
		r.log.WithFields(logrus.Fields{"session_id": s.ID, "operator": s.Operator}).Info("idle scan session evicted")
	}
	return len(expired)
}

func (r *Registry) Create(operator string) *Session {
	now := r.now()
	id := uuid.New().String()
	log := r.log.WithFields(logrus.Fields{"session_id": id, "operator": operator})
	s := &Session{
		ID:         id,
		Operator:   operator,
		CreatedAt:  now,
		Controller: NewController(r.validator, r.opts.Controller, log),
		lastSeen:   now,
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

// Get returns the session and marks it as used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.lastSeen = r.now()
	return s, nil
}

func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close stops the cleanup loop and closes every session.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stopCleanup) })
	r.wg.Wait()

	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
