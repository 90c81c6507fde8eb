// Package api provides the local control surface for the Veil daemon: a
// loopback REST API used by the CLI and any graphical shell.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/veilnet/veil/internal/driver"
	"github.com/veilnet/veil/internal/health"
	"github.com/veilnet/veil/internal/metrics"
	"github.com/veilnet/veil/internal/remote"
	"github.com/veilnet/veil/internal/version"
	"github.com/veilnet/veil/internal/vpn"
	"github.com/veilnet/veil/internal/wgcfg"
)

// Directory resolves server IDs into tunnel configs. *remote.Client
// implements it; deployments without a control plane run without one.
type Directory interface {
	FetchServers(ctx context.Context) ([]remote.Server, error)
	FetchConfig(ctx context.Context, serverID string) (*wgcfg.Config, error)
}

// Server is the control API.
type Server struct {
	manager   *vpn.Manager
	directory Directory
	checker   health.Checker
	metrics   *metrics.Metrics
	token     string
	log       *slog.Logger
}

// Config assembles a Server.
type Config struct {
	Manager   *vpn.Manager
	Directory Directory
	Checker   health.Checker
	Metrics   *metrics.Metrics
	Token     string
	Logger    *slog.Logger
}

// New creates the control API server.
func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		manager:   cfg.Manager,
		directory: cfg.Directory,
		checker:   cfg.Checker,
		metrics:   cfg.Metrics,
		token:     cfg.Token,
		log:       log,
	}
}

// Router returns the HTTP router for the API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	if s.token != "" {
		r.Use(s.authMiddleware)
	}

	r.Post("/api/v1/connect", s.handleConnect)
	r.Post("/api/v1/connect/config", s.handleConnectConfig)
	r.Post("/api/v1/disconnect", s.handleDisconnect)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/api/v1/stats", s.handleStats)
	r.Get("/api/v1/servers", s.handleServers)
	r.Get("/api/v1/health", s.handleHealth)
	r.Get("/api/v1/version", s.handleVersion)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	return r
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		if len(token) > 7 && token[:7] == "Bearer " {
			token = token[7:]
		}
		if token != s.token {
			s.writeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type connectRequest struct {
	ServerID string `json:"server_id"`
}

// handleConnect resolves a server ID through the directory and connects.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if s.directory == nil {
		s.writeError(w, http.StatusBadRequest, errors.New("no server directory configured"))
		return
	}

	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ServerID == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("server_id is required"))
		return
	}

	cfg, err := s.directory.FetchConfig(r.Context(), req.ServerID)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.connect(w, r, cfg)
}

// handleConnectConfig connects with a caller-supplied tunnel config.
func (s *Server) handleConnectConfig(w http.ResponseWriter, r *http.Request) {
	var cfg wgcfg.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := cfg.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.connect(w, r, &cfg)
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request, cfg *wgcfg.Config) {
	if err := s.manager.Connect(r.Context(), cfg); err != nil {
		if s.metrics != nil {
			s.metrics.ConnectFailures.Inc()
		}
		s.writeError(w, connectStatusCode(err), err)
		return
	}
	if s.metrics != nil {
		s.metrics.ConnectsTotal.Inc()
	}
	s.writeJSON(w, http.StatusOK, s.manager.Status())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Disconnect(r.Context()); err != nil {
		s.writeError(w, connectStatusCode(err), err)
		return
	}
	if s.metrics != nil {
		s.metrics.DisconnectsTotal.Inc()
	}
	s.writeJSON(w, http.StatusOK, s.manager.Status())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.manager.Status())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.manager.Stats())
}

func (s *Server) handleServers(w http.ResponseWriter, r *http.Request) {
	if s.directory == nil {
		s.writeError(w, http.StatusBadRequest, errors.New("no server directory configured"))
		return
	}
	servers, err := s.directory.FetchServers(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, http.StatusOK, servers)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	}
	if s.checker != nil && s.manager.Status().State == vpn.StateConnected {
		result := s.checker.Check(r.Context())
		response["tunnel"] = result
		if !result.Healthy {
			response["status"] = "degraded"
		}
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, version.Get())
}

// connectStatusCode maps the error taxonomy onto HTTP statuses: lifecycle
// guard violations are conflicts, malformed configs are bad requests,
// everything else is an internal failure.
func connectStatusCode(err error) int {
	var cfgErr *wgcfg.ConfigError
	switch {
	case errors.Is(err, vpn.ErrAlreadyConnected), errors.Is(err, vpn.ErrNotConnected):
		return http.StatusConflict
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest
	case errors.Is(err, driver.ErrPermissionDenied):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("response encoding failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
