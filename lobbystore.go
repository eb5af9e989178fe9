package main

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LobbyStore is the in-process registry of named lobbies, bounded by
// max_lobbies.
type LobbyStore struct {
	mu         sync.RWMutex
	lobbies    map[string]*Lobby
	maxLobbies int
	logger     *logrus.Logger
}

func NewLobbyStore(maxLobbies int, logger *logrus.Logger) *LobbyStore {
	return &LobbyStore{
		lobbies:    make(map[string]*Lobby),
		maxLobbies: maxLobbies,
		logger:     logger,
	}
}

// Get returns the lobby by name, if it exists.
func (s *LobbyStore) Get(name string) (*Lobby, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lobbies[name]
	return l, ok
}

// GetOrCreate returns the existing lobby named name, or creates one with
// password if it doesn't exist and the store has room. ok is false when
// creation would exceed max_lobbies.
func (s *LobbyStore) GetOrCreate(name, password string) (lobby *Lobby, ok bool) {
	s.mu.RLock()
	if l, exists := s.lobbies[name]; exists {
		s.mu.RUnlock()
		return l, true
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, exists := s.lobbies[name]; exists {
		return l, true
	}
	if len(s.lobbies) >= s.maxLobbies {
		return nil, false
	}
	l := NewLobby(name, password)
	s.lobbies[name] = l
	s.logger.Infof("[lobby] created %q", name)
	return l, true
}

// Remove deletes a lobby from the store unconditionally.
func (s *LobbyStore) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lobbies, name)
}

// All returns a snapshot slice of every live lobby, for housekeeping sweeps
// and the admin API. The store lock is not held while callers act on the
// individual lobbies.
func (s *LobbyStore) All() []*Lobby {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Lobby, 0, len(s.lobbies))
	for _, l := range s.lobbies {
		out = append(out, l)
	}
	return out
}

// Count returns the number of live lobbies.
func (s *LobbyStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lobbies)
}

// Insert adds a lobby restored from disk at startup. Existing entries are
// not overwritten.
func (s *LobbyStore) Insert(l *Lobby) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.lobbies[l.Name]; !exists {
		s.lobbies[l.Name] = l
	}
}

// IdleLobbies returns lobbies with zero players whose last activity is
// older than idleTimeout.
func (s *LobbyStore) IdleLobbies(idleTimeout time.Duration) []*Lobby {
	now := time.Now()
	var idle []*Lobby
	for _, l := range s.All() {
		if l.PlayerCount() == 0 && now.Sub(l.LastActivity()) > idleTimeout {
			idle = append(idle, l)
		}
	}
	return idle
}
