// Package httpapi exposes the account, group and history endpoints and the
// websocket entry point of the relay.
package httpapi

import (
	"net/http"
	"time"

	"github.com/HMasataka/chatrelay/internal/logging"
	"github.com/HMasataka/chatrelay/pkg/auth"
	"github.com/HMasataka/chatrelay/pkg/domain"
	"github.com/HMasataka/chatrelay/pkg/relay"
	"github.com/HMasataka/chatrelay/pkg/transport/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

// Deps are the collaborators of the HTTP surface.
type Deps struct {
	Users   domain.UserStore
	Groups  domain.GroupStore
	History domain.HistoryStore
	Hasher  *auth.PasswordHasher
	Issuer  *auth.TokenIssuer
	Hub     *relay.Hub

	// Metrics serves /metrics when set.
	Metrics http.Handler

	UploadDir     string
	CookieName    string
	TokenTTL      time.Duration
	AllowedOrigin string
	Conn          websocket.ConnOptions
	Logger        *logging.Logger
}

// Server is the HTTP front of the relay.
type Server struct {
	deps     Deps
	validate *validator.Validate
	sessions *websocket.Server
	logger   *logging.Logger
}

func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.CookieName == "" {
		deps.CookieName = "token"
	}

	s := &Server{
		deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   deps.Logger,
	}

	var origins []string
	if deps.AllowedOrigin != "" {
		origins = append(origins, deps.AllowedOrigin)
	}
	s.sessions = websocket.NewServer(s.serveSession,
		websocket.WithLogger(deps.Logger),
		websocket.WithAllowedOrigins(origins...),
		websocket.WithConnOptions(deps.Conn),
	)
	return s
}

// Routes returns the chi router serving every endpoint.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Get("/ws", s.sessions.ServeHTTP)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics)
	}
	r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.deps.UploadDir))))

	r.Get("/test", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, "test ok")
	})
	r.Post("/register", s.register)
	r.Post("/login", s.login)
	r.Post("/logout", s.logout)
	r.Get("/profile", s.profile)
	r.Get("/people", s.people)
	r.Get("/stats", s.stats)

	r.Group(func(r chi.Router) {
		r.Use(s.requireUser)
		r.Get("/groupchats", s.groupChats)
		r.Post("/groupchat", s.createGroupChat)
		r.Get("/messages/{id}", s.messages)
	})

	return r
}

func (s *Server) serveSession(r *http.Request, conn *websocket.Conn) {
	s.deps.Hub.Serve(r.Context(), auth.TokenFromRequest(r, s.deps.CookieName), conn)
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Hub.Stats())
}

// requestLogger logs one line per request through the relay logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		logger := s.logger.WithFields(map[string]any{
			"request_id": middleware.GetReqID(r.Context()),
		})
		next.ServeHTTP(ww, r.WithContext(logging.WithLogger(r.Context(), logger)))

		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

// cors admits credentialed requests from the configured client origin.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && origin == s.deps.AllowedOrigin {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
