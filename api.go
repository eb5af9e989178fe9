package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// APIServer is the admin-facing HTTP surface: health, aggregate stats, a
// lobby listing, and a Prometheus scrape target. Read-only; the UDP
// protocol is the only write path into the server.
type APIServer struct {
	lobbies     *LobbyStore
	players     *PlayerRegistry
	reliability *Reliability
	echo        *echo.Echo
	logger      *logrus.Logger
	started     time.Time
}

func NewAPIServer(lobbies *LobbyStore, players *PlayerRegistry, reliability *Reliability, logger *logrus.Logger) *APIServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			logger.Infof("[api] %s %s %d", v.Method, v.URI, v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = jsonErrorHandler

	s := &APIServer{lobbies: lobbies, players: players, reliability: reliability, echo: e, logger: logger, started: time.Now()}
	s.registerRoutes()
	return s
}

func (s *APIServer) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/api/stats", s.handleStats)
	s.echo.GET("/api/lobbies", s.handleLobbies)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// Run starts the echo server on addr and blocks until ctx is canceled.
func (s *APIServer) Run(ctx context.Context, addr string) {
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			s.logger.Warnf("[api] server error: %v", err)
		}
	}()
	<-ctx.Done()
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutCtx); err != nil {
		s.logger.Warnf("[api] shutdown: %v", err)
	}
}

// HealthResponse is the payload for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *APIServer) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// StatsResponse is the payload for GET /api/stats.
type StatsResponse struct {
	Lobbies       int   `json:"lobbies"`
	Players       int   `json:"players"`
	PendingAcks   int   `json:"pending_acks"`
	UptimeSeconds int64 `json:"uptime_seconds"`
}

func (s *APIServer) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, StatsResponse{
		Lobbies:       s.lobbies.Count(),
		Players:       s.players.Count(),
		PendingAcks:   s.reliability.PendingCount(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	})
}

// LobbyResponse is an element of the GET /api/lobbies array.
type LobbyResponse struct {
	Name         string    `json:"name"`
	Players      int       `json:"players"`
	LastActivity time.Time `json:"last_activity"`
}

func (s *APIServer) handleLobbies(c echo.Context) error {
	lobbies := s.lobbies.All()
	resp := make([]LobbyResponse, 0, len(lobbies))
	for _, l := range lobbies {
		resp = append(resp, LobbyResponse{
			Name:         l.Name,
			Players:      l.PlayerCount(),
			LastActivity: l.LastActivity(),
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// jsonErrorHandler ensures all error responses have a consistent JSON body.
func jsonErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if !c.Response().Committed {
		if c.Request().Method == http.MethodHead {
			c.NoContent(code) //nolint:errcheck
		} else {
			c.JSON(code, map[string]string{"error": msg}) //nolint:errcheck
		}
	}
}
