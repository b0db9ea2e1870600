package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/rickgao/coinboard/internal/api"
	"github.com/rickgao/coinboard/internal/catalog"
	"github.com/rickgao/coinboard/internal/model"
	"github.com/rickgao/coinboard/internal/session"
)

const maxBodySize = 1 << 16

// BoardService is the session surface served over HTTP.
type BoardService interface {
	Board() model.Board
	Health() session.Health
	OnSortChange(ctx context.Context, sortKey string) error
	OnSelect(ctx context.Context, code string) (model.Selection, error)
	Invalidate(sortKey string) bool
	InvalidateAll() int
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStream mounts a WebSocket handler at /ws.
func WithStream(h http.Handler) Option {
	return func(s *Server) {
		s.stream = h
	}
}

// WithMetrics mounts a metrics handler at path.
func WithMetrics(path string, h http.Handler) Option {
	return func(s *Server) {
		s.metricsPath = path
		s.metrics = h
	}
}

// WithAllowedOrigins restricts CORS origins. Empty allows any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.origins = append([]string(nil), origins...)
	}
}

// WithCommandTimeout bounds sort and select handling.
func WithCommandTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.commandTimeout = d
	}
}

// Server routes HTTP requests to a BoardService.
type Server struct {
	svc    BoardService
	router *mux.Router
	logger *slog.Logger

	stream         http.Handler
	metrics        http.Handler
	metricsPath    string
	origins        []string
	commandTimeout time.Duration
}

// NewServer creates a server for svc.
func NewServer(svc BoardService, opts ...Option) *Server {
	s := &Server{
		svc:            svc,
		router:         mux.NewRouter(),
		commandTimeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/board", s.handleBoard).Methods(http.MethodGet)
	v1.HandleFunc("/sort", s.handleSort).Methods(http.MethodPost)
	v1.HandleFunc("/select", s.handleSelect).Methods(http.MethodPost)
	v1.HandleFunc("/cache", s.handleInvalidateAll).Methods(http.MethodDelete)
	v1.HandleFunc("/cache/{key}", s.handleInvalidate).Methods(http.MethodDelete)

	if s.stream != nil {
		s.router.Handle("/ws", s.stream)
	}
	if s.metrics != nil && s.metricsPath != "" {
		s.router.Handle(s.metricsPath, s.metrics).Methods(http.MethodGet)
	}
}

// Handler returns the routed handler wrapped in CORS.
func (s *Server) Handler() http.Handler {
	opts := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}
	if len(s.origins) > 0 {
		opts.AllowedOrigins = s.origins
	}
	return cors.New(opts).Handler(s.router)
}

// ==============================
// Handlers
// ==============================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.svc.Health()
	if health.Status == session.StatusStopped {
		respondJSONStatus(w, http.StatusServiceUnavailable, health)
		return
	}
	respondJSON(w, health)
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.svc.Board())
}

func (s *Server) handleSort(w http.ResponseWriter, r *http.Request) {
	var req SortRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	key := strings.TrimSpace(req.Sort)

	ctx, cancel := context.WithTimeout(r.Context(), s.commandTimeout)
	defer cancel()

	if err := s.svc.OnSortChange(ctx, key); err != nil {
		s.logger.Warn("sort change failed", "sort", key, "err", err)
		status, msg := classify(err)
		respondError(w, status, msg, err.Error())
		return
	}
	respondJSON(w, SortResponse{Sort: key, Board: s.svc.Board()})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))

	ctx, cancel := context.WithTimeout(r.Context(), s.commandTimeout)
	defer cancel()

	sel, err := s.svc.OnSelect(ctx, code)
	if err != nil {
		status, msg := classify(err)
		respondError(w, status, msg, err.Error())
		return
	}
	respondJSON(w, sel)
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if key == DefaultSortAlias {
		key = ""
	}

	dropped := 0
	if s.svc.Invalidate(key) {
		dropped = 1
	}
	s.logger.Info("catalog cache invalidated", "sort", key, "dropped", dropped)
	respondJSON(w, InvalidateResponse{Sort: key, Dropped: dropped})
}

func (s *Server) handleInvalidateAll(w http.ResponseWriter, r *http.Request) {
	dropped := s.svc.InvalidateAll()
	s.logger.Info("catalog cache cleared", "dropped", dropped)
	respondJSON(w, InvalidateResponse{Dropped: dropped})
}

// ==============================
// Helpers
// ==============================

// classify maps a command error to an HTTP status.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrEmptyCode):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, session.ErrStopped), errors.Is(err, catalog.ErrClosed):
		return http.StatusServiceUnavailable, "session stopped"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "upstream timeout"
	case api.IsNetworkError(err), api.IsDataShapeError(err):
		return http.StatusBadGateway, "upstream error"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func respondJSON(w http.ResponseWriter, data any) {
	respondJSONStatus(w, http.StatusOK, data)
}

func respondJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, kind string, message string) {
	respondJSONStatus(w, status, ErrorResponse{Error: kind, Message: message})
}
