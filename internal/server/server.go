package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"vendor-chat-backend/internal/chat"
	"vendor-chat-backend/internal/config"
	"vendor-chat-backend/internal/stream"
	"vendor-chat-backend/internal/types"
)

const maxBodyBytes = 1 << 20

// ChatHandler answers one chat turn onto a segment writer.
type ChatHandler interface {
	Handle(ctx context.Context, msgs []types.ChatMessage, w stream.Writer) error
}

type Deps struct {
	Chat   ChatHandler
	Logger zerolog.Logger
	// Collaborators names each optional backend and whether it is wired;
	// reported by the health route.
	Collaborators map[string]bool
	// Checks are probed on every health request; any failure reports
	// the service as degraded.
	Checks map[string]HealthChecker
}

// HealthChecker is satisfied by *db.DB.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type Server struct {
	router        *chi.Mux
	chat          ChatHandler
	cfg           config.Config
	logger        zerolog.Logger
	collaborators map[string]bool
	checks        map[string]HealthChecker
}

func NewServer(cfg config.Config, deps Deps) (*Server, error) {
	if deps.Chat == nil {
		return nil, fmt.Errorf("server: chat handler is required")
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(hlog.NewHandler(deps.Logger))
	r.Use(requestIDField)
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.AllowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", SessionHeader},
		ExposedHeaders:   []string{SessionHeader, stream.ProtocolHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s := &Server{
		router:        r,
		chat:          deps.Chat,
		cfg:           cfg,
		logger:        deps.Logger,
		collaborators: deps.Collaborators,
		checks:        deps.Checks,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Post("/api/chat", s.handleChat)
}

func (s *Server) Router() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := types.HealthResponse{Status: "ok", Collaborators: s.collaborators}
	code := http.StatusOK
	for name, c := range s.checks {
		if err := c.HealthCheck(ctx); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Str("check", name).Msg("health check failed")
			if resp.Errors == nil {
				resp.Errors = map[string]string{}
			}
			resp.Errors[name] = err.Error()
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// handleChat validates the body, then streams the reply as server-sent
// events. Once streaming has begun every failure is reported inside the
// stream, never as a status code.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req types.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	msgs, ok := req.Normalize()
	if !ok {
		s.writeError(w, http.StatusBadRequest, "messages is required")
		return
	}
	if _, ok := chat.LatestUserText(msgs); !ok {
		s.writeError(w, http.StatusBadRequest, "no user message with text")
		return
	}

	sid := getOrCreateSessionID(r, w)
	logger := hlog.FromRequest(r).With().Str("session_id", sid).Int("messages", len(msgs)).Logger()
	ctx := logger.WithContext(r.Context())

	sse, err := stream.NewSSE(ctx, w)
	if err != nil {
		logger.Error().Err(err).Msg("cannot stream response")
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	if err := s.chat.Handle(ctx, msgs, sse); err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			logger.Debug().Err(err).Msg("client went away mid-stream")
			return
		}
		logger.Warn().Err(err).Msg("chat stream ended early")
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg})
}

// requestIDField copies chi's request id onto the request logger.
func requestIDField(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("request_id", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}
