package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"go.uber.org/zap"

	"github.com/lazypower/mnemo/internal/engine"
	"github.com/lazypower/mnemo/internal/memory"
	"github.com/lazypower/mnemo/internal/metrics"
	"github.com/lazypower/mnemo/internal/snapshot"
)

// Server is the mnemo HTTP API server.
type Server struct {
	eng      *engine.Engine
	metrics  *metrics.Collector
	logger   *zap.Logger
	origins  []string
	router   chi.Router
	validate *validator.Validate
	version  string
	started  time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics exposes c on /metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithCORS allows cross-origin requests from origins.
func WithCORS(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// New creates a new Server over eng with the given version string.
func New(eng *engine.Engine, version string, opts ...Option) *Server {
	s := &Server{
		eng:      eng,
		logger:   zap.NewNop(),
		validate: newValidator(),
		version:  version,
		started:  time.Now(),
	}
	for _, o := range opts {
		o(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/memories", s.handleListMemories)
		r.Post("/memories", s.handleAddMemory)
		r.Get("/memories/{id}", s.handleGetMemory)
		r.Delete("/memories/{id}", s.handleRemoveMemory)

		r.Get("/recall", s.handleRecall)
		r.Post("/decay", s.handleDecay)
		r.Post("/reset", s.handleReset)

		r.Get("/snapshots", s.handleListSnapshots)
		r.Post("/snapshots", s.handleSaveSnapshot)
		r.Post("/snapshots/prune", s.handlePrune)
		r.Get("/snapshots/{name}", s.handleInspectSnapshot)
		r.Post("/snapshots/{name}/restore", s.handleRestore)

		r.Get("/history", s.handleHistory)
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	s.router = r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"records": s.eng.Len(),
		"params":  s.eng.Params(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// newValidator reports request fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

// decode reads a JSON body into v and validates it, answering 400 itself on
// failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			writeError(w, http.StatusBadRequest, err.Error())
			return false
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			if fe.Param() != "" {
				msgs = append(msgs, fmt.Sprintf("%s: must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			} else {
				msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
			}
		}
		writeError(w, http.StatusBadRequest, strings.Join(msgs, "; "))
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	var ioErr *snapshot.IOError
	switch {
	case errors.Is(err, memory.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, memory.ErrNotFound), errors.Is(err, snapshot.ErrNoSnapshots):
		return http.StatusNotFound
	case snapshot.IsCorruption(err):
		return http.StatusUnprocessableEntity
	case snapshot.IsCancelled(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrNoJournal):
		return http.StatusNotImplemented
	case errors.As(err, &ioErr) && ioErr.Op == "find":
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeError(w, status, err.Error())
}
