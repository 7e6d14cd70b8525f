// Package http is the REST boundary of the session service, built on chi.
package http

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/auth"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/calls"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/services"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/storage"
)

type SessionManager interface {
	Register(ctx context.Context, req services.RegisterRequest) (*auth.TokenPair, error)
	Login(ctx context.Context, email, password, deviceID string) (*auth.TokenPair, error)
	Logout(ctx context.Context, accessToken, deviceID string) error
	Refresh(ctx context.Context, refreshToken, deviceID string) (*auth.TokenPair, error)
}

type Authenticator interface {
	Authenticate(ctx context.Context, authorization, deviceID string) (*auth.Claims, error)
}

type CallDirectory interface {
	SaveUpload(ctx context.Context, fileName, contentType string, r io.Reader) (*calls.UploadResult, error)
	Members(ctx context.Context) ([]calls.Member, error)
	FindByPhone(ctx context.Context, tel string) (*calls.Member, error)
	FindByID(ctx context.Context, id string) (*calls.Member, error)
	UpdateStatus(ctx context.Context, u calls.StatusUpdate) string
}

type ObjectStorage interface {
	Upload(ctx context.Context, fileName, contentType string, body io.Reader) (string, error)
	Download(ctx context.Context, key string) (*storage.Object, error)
	PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type Observer interface {
	ObserveHTTP(method, route string, status int)
}

// Server wires the handlers. Storage may be nil, in which case the storage
// routes answer 503.
type Server struct {
	sessions SessionManager
	authn    Authenticator
	calls    CallDirectory
	storage  ObjectStorage
	metrics  http.Handler
	observer Observer
	log      logging.Logger
}

func NewServer(sessions SessionManager, authn Authenticator, calls CallDirectory, storage ObjectStorage,
	observer Observer, metrics http.Handler, log logging.Logger) *Server {
	return &Server{
		sessions: sessions,
		authn:    authn,
		calls:    calls,
		storage:  storage,
		metrics:  metrics,
		observer: observer,
		log:      log.With("module", "http"),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/logout", s.handleLogout)
		r.With(s.authMiddleware).Get("/me", s.handleMe)
	})

	r.Route("/call", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/upload", s.handleCallUpload)
		r.Get("/", s.handleCallByPhone)
		r.Get("/members", s.handleMembers)
		r.Post("/status", s.handleCallStatus)
		r.Get("/{id}", s.handleCallByID)
	})

	r.Route("/storage", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/upload", s.handleStorageUpload)
		r.Post("/download", s.handleStorageDownload)
		r.Post("/presign", s.handleStoragePresign)
	})

	return r
}
