package main

import (
	"context"
	"net/netip"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"lobbycoop/store"
)

// Server wires together the transport, reliability layer, lobby/player
// state, dispatcher, persistence, housekeeping, and admin API. Run blocks
// until ctx is canceled.
type Server struct {
	cfg    *Config
	logger *logrus.Logger

	transport   *Transport
	reliability *Reliability
	lobbies     *LobbyStore
	players     *PlayerRegistry
	dispatcher  *Dispatcher
	store       *store.Store
	housekeeper *Housekeeper
	api         *APIServer
}

// NewServer binds the UDP socket and constructs every collaborator. The
// persistence directory is opened (and existing lobbies restored into the
// store) only when cfg.EnablePersistence is set.
func NewServer(cfg *Config, logger *logrus.Logger) (*Server, error) {
	addr := netip.AddrPortFrom(netip.IPv4Unspecified(), uint16(cfg.Port))
	transport, err := NewTransport(addr, logger)
	if err != nil {
		return nil, err
	}

	lobbies := NewLobbyStore(cfg.MaxLobbies, logger)
	players := NewPlayerRegistry()

	var st *store.Store
	if cfg.EnablePersistence {
		st, err = store.Open(cfg.PersistenceDir, logger)
		if err != nil {
			transport.Close()
			return nil, err
		}
		for name, snap := range st.LoadAll() {
			lobbies.Insert(NewLobbyFromSnapshot(snap))
			logger.Infof("[server] restored lobby %q from disk", name)
		}
	}

	reliability := NewReliability(transport.Send, logger)
	dispatcher := NewDispatcher(lobbies, players, reliability, transport.Send, cfg, logger)
	housekeeper := NewHousekeeper(lobbies, players, reliability, dispatcher, st, cfg, logger)
	api := NewAPIServer(lobbies, players, reliability, logger)

	metrics := NewGameMetrics(lobbies, players, reliability)
	prometheus.MustRegister(transport, metrics)

	return &Server{
		cfg:         cfg,
		logger:      logger,
		transport:   transport,
		reliability: reliability,
		lobbies:     lobbies,
		players:     players,
		dispatcher:  dispatcher,
		store:       st,
		housekeeper: housekeeper,
		api:         api,
	}, nil
}

// Run blocks until ctx is canceled. Cancellation stops the background loops
// (Run does not wait for them to return) and closes the socket; Run then
// persists every live lobby when persistence is enabled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Infof("[server] listening on udp %s", s.transport.LocalAddr())

	go s.housekeeper.Run(ctx)
	go s.reliability.RunResendLoop(ctx)
	go RunMetricsLog(ctx, s.lobbies, s.players, s.reliability, s.logger, 30*time.Second)
	go s.api.Run(ctx, s.cfg.AdminAddr)

	err := s.transport.Serve(ctx, s.dispatcher.Dispatch)

	if s.store != nil {
		s.logger.Info("[server] persisting all lobbies before shutdown")
		for _, lobby := range s.lobbies.All() {
			if saveErr := s.store.Save(lobby.Name, lobby.Snapshot()); saveErr != nil {
				s.logger.Warnf("[server] shutdown persist %q: %v", lobby.Name, saveErr)
			}
		}
		s.store.Close()
	}
	return err
}
