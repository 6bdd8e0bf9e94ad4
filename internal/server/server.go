// Package server exposes the recognition engine over HTTP and WebSocket.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/lucasvieira/soletra/internal/gesture"
	"github.com/lucasvieira/soletra/internal/ml"
	"github.com/lucasvieira/soletra/internal/recognition"
	"github.com/lucasvieira/soletra/internal/store"
)

// Config holds the server's collaborators.
type Config struct {
	Service   *recognition.Service
	Cache     *gesture.Cache
	Trainer   *ml.Trainer
	Store     store.Store
	StaticDir string
	Logger    *slog.Logger
}

// Server routes API requests to the recognition engine.
type Server struct {
	cfg      Config
	router   chi.Router
	validate *validator.Validate
	logger   *slog.Logger
	start    time.Time
}

// New creates a Server and wires its routes.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		router:   chi.NewRouter(),
		validate: validator.New(),
		logger:   logger,
		start:    time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.Recoverer)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/recognize", s.handleRecognize)
		r.Get("/stream", s.handleStream)

		r.Route("/gestures", func(r chi.Router) {
			r.Get("/", s.handleListGestures)
			r.Post("/", s.handleSaveGesture)
			r.Get("/export", s.handleExportGestures)
			r.Post("/import", s.handleImportGestures)
			r.Get("/{letter}", s.handleGetGesture)
			r.Delete("/{letter}", s.handleDeleteGesture)
		})

		r.Post("/cache/invalidate", s.handleInvalidateCache)
		r.Get("/sync", s.handleSyncInfo)

		r.Post("/train", s.handleTrainAll)
		r.Post("/train/{letter}", s.handleTrainLetter)
		r.Get("/models", s.handleModelStats)

		r.Post("/feedback", s.handleFeedback)
		r.Get("/stats", s.handleLetterStats)
	})

	if s.cfg.StaticDir != "" {
		s.router.Handle("/*", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// decodeBody decodes and validates a JSON request body.
func (s *Server) decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return s.validate.Struct(dst)
}
