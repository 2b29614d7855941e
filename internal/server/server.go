// Package server exposes the recommender over HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/cisec/aisac-logformat/internal/recommend"
	"github.com/cisec/aisac-logformat/pkg/protocol"
)

const maxBodyBytes = 16 << 20

// Config configures the HTTP service.
type Config struct {
	Listen         string
	APIToken       string
	AllowedOrigins []string
	CertFile       string
	KeyFile        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxBatchLines  int
	Version        string
	// Defaults are the options requests start from.
	Defaults recommend.Options
}

// Server serves recommendation requests.
type Server struct {
	cfg            Config
	rec            *recommend.Recommender
	gatherer       prometheus.Gatherer
	logger         zerolog.Logger
	upgrader       websocket.Upgrader
	allowedOrigins map[string]bool
}

// New creates a server. A nil gatherer disables /metrics.
func New(cfg Config, rec *recommend.Recommender, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	if cfg.MaxBatchLines <= 0 {
		cfg.MaxBatchLines = 1000
	}
	if cfg.Defaults == (recommend.Options{}) {
		cfg.Defaults = recommend.DefaultOptions()
	}

	origins := make(map[string]bool)
	for _, o := range cfg.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = true
		}
	}

	s := &Server{
		cfg:            cfg,
		rec:            rec,
		gatherer:       gatherer,
		logger:         logger.With().Str("component", "server").Logger(),
		allowedOrigins: origins,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/ws", s.handleWebSocket)
	if s.gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.apiAuthMiddleware)
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/recommend", s.handleRecommend).Methods("POST")
	api.HandleFunc("/recommend/batch", s.handleRecommendBatch).Methods("POST")
	api.HandleFunc("/formats", s.handleListFormats).Methods("GET")
	api.HandleFunc("/formats/{id}", s.handleGetFormat).Methods("GET")
	api.HandleFunc("/stats/groups", s.handleGroupStats).Methods("GET")
	api.HandleFunc("/stats/vendors", s.handleVendorStats).Methods("GET")
	api.HandleFunc("/reload", s.handleReload).Methods("POST")
	api.HandleFunc("/validate", s.handleValidate).Methods("GET")

	return router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		httpServer.Shutdown(shutdownCtx)
	}()

	var err error
	if s.cfg.CertFile != "" && s.cfg.KeyFile != "" {
		s.logger.Info().Str("listen", s.cfg.Listen).Msg("Starting HTTPS server")
		err = httpServer.ListenAndServeTLS(s.cfg.CertFile, s.cfg.KeyFile)
	} else {
		s.logger.Warn().Str("listen", s.cfg.Listen).Msg("Starting HTTP server (no TLS)")
		err = httpServer.ListenAndServe()
	}

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// checkOrigin accepts non-browser clients and browsers from allowed origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if s.allowedOrigins[origin] {
		return true
	}
	s.logger.Warn().Str("origin", origin).Msg("WebSocket connection rejected: origin not allowed")
	return false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, protocol.ErrorResponse{Error: msg})
}
