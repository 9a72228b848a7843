package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/musubi-dev/musubi/pkg/service/realtime"
	"github.com/musubi-dev/musubi/pkg/usecase"
	"github.com/musubi-dev/musubi/pkg/utils/errutil"
	"github.com/musubi-dev/musubi/pkg/utils/logging"
)

const healthMessage = "Musubi Shared WebSocket Server"

// FilePreviewer reads files the executor would act on
type FilePreviewer interface {
	ReadFile(path string) (string, error)
	FileExists(path string) bool
}

type Server struct {
	router             *chi.Mux
	actionUC           *usecase.ActionUseCase
	realtime           *realtime.Router
	files              FilePreviewer
	slackSigningSecret string
	port               int
}

type Options func(*Server)

// WithFilePreview enables GET /api/files
func WithFilePreview(files FilePreviewer) Options {
	return func(s *Server) {
		s.files = files
	}
}

// WithSlackInteraction enables the Slack interaction hook guarded by signingSecret
func WithSlackInteraction(signingSecret string) Options {
	return func(s *Server) {
		s.slackSigningSecret = signingSecret
	}
}

// WithPort sets the port reported by the health endpoint
func WithPort(port int) Options {
	return func(s *Server) {
		s.port = port
	}
}

func New(actionUC *usecase.ActionUseCase, rt *realtime.Router, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router:   r,
		actionUC: actionUC,
		realtime: rt,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)
	r.Use(allowAllOrigins)

	r.Get("/", s.handleHealth)
	r.Get("/health", s.handleHealth)

	// Websocket room endpoint
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Route("/actions", func(r chi.Router) {
			r.Post("/", s.handleSubmitAction)
			r.Get("/", s.handleListActions)
			r.Post("/cleanup", s.handleCleanupActions)
			r.Route("/{actionID}", func(r chi.Router) {
				r.Get("/", s.handleGetAction)
				r.Post("/approve", s.handleApproveAction)
				r.Post("/reject", s.handleRejectAction)
				r.Post("/execute", s.handleExecuteAction)
			})
		})

		r.Post("/projects/{projectID}/events", s.handlePublishEvent)

		if s.files != nil {
			r.Get("/files", s.handlePreviewFile)
		}
	})

	// Slack interaction endpoint (if configured) - No auth required, uses signature verification
	if s.slackSigningSecret != "" {
		r.Route("/hooks/slack", func(r chi.Router) {
			r.Use(SlackSignatureMiddleware(s.slackSigningSecret))
			r.Post("/interaction", NewSlackInteractionHandler(actionUC).ServeHTTP)
		})
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status           string `json:"status"`
		Message          string `json:"message"`
		Port             int    `json:"port"`
		ConnectedClients int    `json:"connectedClients"`
	}

	writeJSON(r.Context(), w, http.StatusOK, response{
		Status:           "ok",
		Message:          healthMessage,
		Port:             s.port,
		ConnectedClients: s.realtime.ConnectedClients(),
	})
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		logger := logging.From(r.Context()).With("request_id", middleware.GetReqID(r.Context()))
		r = r.WithContext(logging.With(r.Context(), logger))

		defer func() {
			logger.Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// allowAllOrigins answers CORS preflights and allows any origin
func allowAllOrigins(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response with proper error handling
func writeJSON(ctx context.Context, w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		_ = errutil.Handle(ctx, err, "failed to encode JSON response")
	}
}
