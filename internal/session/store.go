// Package session holds per-user conversation state for the lifetime of the process.
package session

import (
	"log/slog"
	"slices"
	"sync"

	"mangabot/internal/domain"
)

// Store is an in-memory domain.SessionStore.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	logger   *slog.Logger
}

func NewStore(logger *slog.Logger) *Store {
	return &Store{
		sessions: make(map[string]domain.Session),
		logger:   logger,
	}
}

func (s *Store) Get(userKey string) (domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userKey]
	if !ok {
		return domain.Session{}, false
	}
	sess.Chapters = slices.Clone(sess.Chapters)
	return sess, true
}

// Set unconditionally replaces the user's session.
func (s *Store) Set(userKey string, sess domain.Session) {
	sess.Chapters = slices.Clone(sess.Chapters)

	s.mu.Lock()
	_, replaced := s.sessions[userKey]
	s.sessions[userKey] = sess
	s.mu.Unlock()

	s.logger.Debug("session stored",
		"user", userKey,
		"title", sess.Title,
		"chapters", len(sess.Chapters),
		"replaced", replaced,
	)
}

// Delete is a no-op for unknown users.
func (s *Store) Delete(userKey string) {
	s.mu.Lock()
	_, existed := s.sessions[userKey]
	delete(s.sessions, userKey)
	s.mu.Unlock()

	if existed {
		s.logger.Debug("session cleared", "user", userKey)
	}
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
