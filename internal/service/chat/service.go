package chat

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sajang-ai/backend/internal/model/chat"
)

var (
	ErrSessionIDRequired = errors.New("session id is required")
	ErrSessionNotFound   = errors.New("session not found")
)

// Config tunes session retention.
type Config struct {
	TTL         time.Duration
	MaxSessions int
}

// Service is the in-process session store. Sessions expire after TTL of inactivity
// and, when MaxSessions is set, the least recently active session is evicted first.
type Service struct {
	ttl         time.Duration
	maxSessions int
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*list.Element
	// order keeps the most recently active session at the front.
	order *list.List
}

type entry struct {
	id         string
	turns      []chat.Turn
	lastActive time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces time.Now, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService bootstraps an empty session store.
func NewService(cfg Config, opts ...Option) *Service {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	s := &Service{
		ttl:         ttl,
		maxSessions: cfg.MaxSessions,
		now:         time.Now,
		sessions:    make(map[string]*list.Element),
		order:       list.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreate returns the session for id, creating it when absent. The bool is true
// when the session was created by this call. Either way the session is touched.
func (s *Service) GetOrCreate(_ context.Context, sessionID string) (chat.Session, bool, error) {
	if sessionID == "" {
		return chat.Session{}, false, ErrSessionIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if el, ok := s.sessions[sessionID]; ok {
		e := el.Value.(*entry)
		e.lastActive = now
		s.order.MoveToFront(el)
		return snapshot(e), false, nil
	}

	e := &entry{id: sessionID, turns: make([]chat.Turn, 0, 16), lastActive: now}
	s.sessions[sessionID] = s.order.PushFront(e)
	s.evictOverflowLocked()
	return snapshot(e), true, nil
}

// Append adds turns to the end of the session history.
func (s *Service) Append(_ context.Context, sessionID string, turns ...chat.Turn) error {
	if sessionID == "" {
		return ErrSessionIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	e := el.Value.(*entry)
	e.turns = append(e.turns, turns...)
	e.lastActive = s.now()
	s.order.MoveToFront(el)
	return nil
}

// History returns a copy of the most recent limit turns. A limit <= 0 returns all.
func (s *Service) History(_ context.Context, sessionID string, limit int) ([]chat.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	turns := el.Value.(*entry).turns
	start := 0
	if limit > 0 && len(turns) > limit {
		start = len(turns) - limit
	}

	copied := make([]chat.Turn, len(turns)-start)
	copy(copied, turns[start:])
	return copied, nil
}

// Len reports how many sessions are held.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes sessions idle for longer than the TTL and returns how many were dropped.
func (s *Service) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	// Walk from the least recently active end and stop at the first live session.
	for el := s.order.Back(); el != nil; {
		e := el.Value.(*entry)
		if now.Sub(e.lastActive) <= s.ttl {
			break
		}
		prev := el.Prev()
		s.order.Remove(el)
		delete(s.sessions, e.id)
		removed++
		el = prev
	}
	return removed
}

// Start runs Sweep every interval until ctx is cancelled.
func (s *Service) Start(ctx context.Context, interval time.Duration, logger logrus.FieldLogger) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		if logger != nil {
			logger.WithFields(logrus.Fields{"interval": interval, "ttl": s.ttl}).Info("session sweeper started")
		}
		for {
			select {
			case <-ticker.C:
				if removed := s.Sweep(s.now()); removed > 0 && logger != nil {
					logger.WithField("removed", removed).Info("expired sessions swept")
				}
			case <-ctx.Done():
				if logger != nil {
					logger.WithField("reason", ctx.Err()).Info("session sweeper stopped")
				}
				return
			}
		}
	}()
}

func (s *Service) evictOverflowLocked() {
	if s.maxSessions <= 0 {
		return
	}
	for len(s.sessions) > s.maxSessions {
		el := s.order.Back()
		if el == nil {
			return
		}
		s.order.Remove(el)
		delete(s.sessions, el.Value.(*entry).id)
	}
}

func snapshot(e *entry) chat.Session {
	turns := make([]chat.Turn, len(e.turns))
	copy(turns, e.turns)
	return chat.Session{ID: e.id, Turns: turns, LastActive: e.lastActive}
}
