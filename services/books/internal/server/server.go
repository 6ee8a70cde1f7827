package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"favbooks/internal/usertoken"
	"favbooks/internal/util"
	"favbooks/services/books/internal/app"
)

// TokenVerifier authenticates the Authorization header of a request.
type TokenVerifier interface {
	Verify(ctx context.Context, authHeader string) (usertoken.Claims, error)
}

// RateLimiter admits or rejects a request for a key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) bool
	Window() time.Duration
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App      *app.App
	Verifier TokenVerifier
	// Limiter is optional; nil disables per-owner rate limiting.
	Limiter        RateLimiter
	AllowedOrigins []string
}

// Server exposes HTTP endpoints for the books service.
type Server struct {
	app            *app.App
	verifier       TokenVerifier
	limiter        RateLimiter
	allowedOrigins []string
	validate       *validator.Validate
	router         chi.Router
}

type ownerContextKey struct{}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server requires app")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("server requires token verifier")
	}
	s := &Server{
		app:            cfg.App,
		verifier:       cfg.Verifier,
		limiter:        cfg.Limiter,
		allowedOrigins: cfg.AllowedOrigins,
		validate:       newValidator(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(
		util.WithRequestLog("books",
			util.WithSecurityHeaders(
				util.WithCORS(s.allowedOrigins)(s.router))))
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(s.handleMethodNotAllowed)

	r.Get("/healthz", s.handleHealth)
	r.Route("/books", func(r chi.Router) {
		r.Use(s.withUser)
		if s.limiter != nil {
			r.Use(s.withRateLimit)
		}
		r.NotFound(s.handleNotFound)
		r.MethodNotAllowed(s.handleMethodNotAllowed)

		r.Get("/", s.handleListBooks)
		r.Post("/", s.handleCreateBook)
		r.Get("/{bookId}", s.handleGetBook)
		r.Patch("/{bookId}", s.handleUpdateBook)
		r.Delete("/{bookId}", s.handleDeleteBook)
		r.Post("/{bookId}/attachment", s.handleCreateAttachment)
	})
	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, codeNotFound, "not found")
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
}

// withUser verifies the bearer token and stores its subject as the owner id.
func (s *Server) withUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.verifier.Verify(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			logger := util.LoggerFromContext(r.Context())
			if errors.Is(err, usertoken.ErrKeySet) {
				logger.Error("signing keys unavailable", "err", err)
			} else {
				logger.Info("token rejected", "err", err)
			}
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			writeError(w, r, http.StatusUnauthorized, codeInvalidToken, "unauthorized")
			return
		}
		util.AnnotateRequest(r.Context(), "owner_id", claims.Subject)
		ctx := context.WithValue(r.Context(), ownerContextKey{}, claims.Subject)
		ctx = util.ContextWithLogger(ctx, util.LoggerFromContext(ctx).With("owner_id", claims.Subject))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter.Allow(r.Context(), "books|"+ownerID(r)) {
			next.ServeHTTP(w, r)
			return
		}
		retry := int(s.limiter.Window().Seconds())
		if retry < 1 {
			retry = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		writeError(w, r, http.StatusTooManyRequests, codeRateLimited, "too many requests")
	})
}

func ownerID(r *http.Request) string {
	id, _ := r.Context().Value(ownerContextKey{}).(string)
	return id
}
