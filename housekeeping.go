package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"lobbycoop/store"
)

// housekeepingInterval is the single cadence for player timeout, idle-lobby
// reclamation, and the periodic snapshot, run together on one tick.
const housekeepingInterval = 30 * time.Second

// Housekeeper runs the background loops that are independent of the receive
// path: player-timeout eviction, idle-lobby reclamation, and periodic disk
// snapshots.
type Housekeeper struct {
	lobbies     *LobbyStore
	players     *PlayerRegistry
	reliability *Reliability
	dispatcher  *Dispatcher
	store       *store.Store
	cfg         *Config
	logger      *logrus.Logger
}

func NewHousekeeper(lobbies *LobbyStore, players *PlayerRegistry, reliability *Reliability, dispatcher *Dispatcher, st *store.Store, cfg *Config, logger *logrus.Logger) *Housekeeper {
	return &Housekeeper{
		lobbies:     lobbies,
		players:     players,
		reliability: reliability,
		dispatcher:  dispatcher,
		store:       st,
		cfg:         cfg,
		logger:      logger,
	}
}

// Run blocks until ctx is canceled, ticking every housekeepingInterval.
func (h *Housekeeper) Run(ctx context.Context) {
	ticker := time.NewTicker(housekeepingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.evictTimedOutPlayers(now)
			h.reclaimIdleLobbies(now)
			h.snapshotAll()
		}
	}
}

// evictTimedOutPlayers removes any player whose last_seen is older than
// client_timeout_seconds from its lobby, the player map, and the address
// map, and tells its peers it left.
func (h *Housekeeper) evictTimedOutPlayers(now time.Time) {
	timeout := time.Duration(h.cfg.ClientTimeoutSeconds) * time.Second
	for _, p := range h.players.TimedOut(timeout) {
		lobbyName := p.LobbyName()
		if lobby, ok := h.lobbies.Get(lobbyName); ok {
			lobby.RemovePlayer(p.ID)
			h.dispatcher.broadcastToLobbyExcept(lobby, p.ID, TagPlayerDisconnected, EncodePresenceEvent(p.ID, p.Username), false)
		}
		h.players.Remove(p.ID)
		h.reliability.ForgetAddr(p.Address)
		h.logger.Infof("[housekeeping] player %d (%s) timed out", p.ID, p.Username)
	}
}

// reclaimIdleLobbies persists (if persistence is enabled) and then removes
// every lobby with zero players whose last_activity predates
// lobby_idle_timeout_seconds.
func (h *Housekeeper) reclaimIdleLobbies(now time.Time) {
	idleTimeout := time.Duration(h.cfg.LobbyIdleTimeoutSeconds) * time.Second
	for _, lobby := range h.lobbies.IdleLobbies(idleTimeout) {
		if h.cfg.EnablePersistence && h.store != nil {
			if err := h.store.Save(lobby.Name, lobby.Snapshot()); err != nil {
				h.logger.Warnf("[housekeeping] persist %q before reclaim: %v", lobby.Name, err)
			}
		}
		h.lobbies.Remove(lobby.Name)
		h.logger.Infof("[housekeeping] reclaimed idle lobby %q", lobby.Name)
	}
}

// snapshotAll persists every live lobby to disk on every housekeeping tick,
// independent of idle reclamation, so a crash never loses more than one
// housekeeping interval of progression.
func (h *Housekeeper) snapshotAll() {
	if !h.cfg.EnablePersistence || h.store == nil {
		return
	}

	for _, lobby := range h.lobbies.All() {
		if err := h.store.Save(lobby.Name, lobby.Snapshot()); err != nil {
			h.logger.Warnf("[housekeeping] snapshot %q: %v", lobby.Name, err)
		}
	}
}
