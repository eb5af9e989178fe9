package main

import (
	"net/netip"
	"sync"
	"sync/atomic"
	"time"
)

// Player is a connected client identified by a monotonic 32-bit id and
// bound to the UDP address it handshook from.
type Player struct {
	ID          uint32
	Username    string
	Address     netip.AddrPort
	ConnectedAt time.Time

	mu              sync.RWMutex
	lobbyName       string
	lastSeen        time.Time
	lastPuppetState []byte
}

func newPlayer(id uint32, username string, addr netip.AddrPort) *Player {
	now := time.Now()
	return &Player{
		ID:          id,
		Username:    username,
		Address:     addr,
		ConnectedAt: now,
		lastSeen:    now,
	}
}

// LobbyName returns the lobby this player currently belongs to.
func (p *Player) LobbyName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lobbyName
}

// SetLobbyName updates the player's current lobby.
func (p *Player) SetLobbyName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lobbyName = name
}

// Touch bumps last_seen to now, extending the client-timeout window.
func (p *Player) Touch() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastSeen = time.Now()
}

// LastSeen returns the last-seen timestamp.
func (p *Player) LastSeen() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSeen
}

// SetPuppetState stores the opaque last-known puppet blob.
func (p *Player) SetPuppetState(state []byte) {
	cp := make([]byte, len(state))
	copy(cp, state)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPuppetState = cp
}

// PuppetState returns the last-known puppet blob, or nil if never set.
func (p *Player) PuppetState() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.lastPuppetState == nil {
		return nil
	}
	out := make([]byte, len(p.lastPuppetState))
	copy(out, p.lastPuppetState)
	return out
}

// PlayerRegistry maps player_id → Player and address → player_id. IDs are
// assigned monotonically starting at 1 and never reused.
type PlayerRegistry struct {
	mu     sync.RWMutex
	byID   map[uint32]*Player
	byAddr map[netip.AddrPort]uint32
	nextID atomic.Uint32
}

func NewPlayerRegistry() *PlayerRegistry {
	return &PlayerRegistry{
		byID:   make(map[uint32]*Player),
		byAddr: make(map[netip.AddrPort]uint32),
	}
}

// GetByAddr is the fast path used by every non-handshake handler.
func (r *PlayerRegistry) GetByAddr(addr netip.AddrPort) (*Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byAddr[addr]
	if !ok {
		return nil, false
	}
	p, ok := r.byID[id]
	return p, ok
}

func (r *PlayerRegistry) GetByID(id uint32) (*Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

// GetOrCreate returns the player already mapped to addr, or allocates the
// next id and records username.
func (r *PlayerRegistry) GetOrCreate(addr netip.AddrPort, username string) *Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byAddr[addr]; ok {
		if p, ok := r.byID[id]; ok {
			return p
		}
	}
	id := r.nextID.Add(1)
	p := newPlayer(id, username, addr)
	r.byID[id] = p
	r.byAddr[addr] = id
	return p
}

// Remove clears both maps for id.
func (r *PlayerRegistry) Remove(id uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	delete(r.byAddr, p.Address)
}

// TimedOut returns every player whose last_seen exceeds timeout, as a
// snapshot slice; callers remove entries afterward.
func (r *PlayerRegistry) TimedOut(timeout time.Duration) []*Player {
	now := time.Now()
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Player
	for _, p := range r.byID {
		if now.Sub(p.LastSeen()) > timeout {
			out = append(out, p)
		}
	}
	return out
}

// Count returns the number of registered players.
func (r *PlayerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
