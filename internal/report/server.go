package report

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	senderIDHeader   = "X-Sender-ID"
	senderNameHeader = "X-Sender-Name"
)

// Server handles HTTP requests from the chat front-end and admins
type Server struct {
	service   *Service
	basicAuth BasicAuth
	limiter   *senderLimiter
	mux       *http.ServeMux
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// RateLimit bounds report intake per sender. A zero Every disables limiting.
type RateLimit struct {
	Every time.Duration
	Burst int
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, basicAuth BasicAuth, limit RateLimit) *Server {
	return NewServerWithMux(service, basicAuth, limit, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, basicAuth BasicAuth, limit RateLimit, mux *http.ServeMux) *Server {
	s := &Server{
		service:   service,
		basicAuth: basicAuth,
		limiter:   newSenderLimiter(limit),
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="Wrap Tracker"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// requireSender rejects requests without a sender identity
func (s *Server) requireSender(next http.HandlerFunc) http.HandlerFunc {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(r.Header.Get(senderIDHeader)) == "" {
			jsonError(w, "Sender ID required", http.StatusBadRequest)
			return
		}
		next(w, r)
	})
}

// requireAdmin lets through only senders in admin mode
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.requireSender(func(w http.ResponseWriter, r *http.Request) {
		ok, err := s.service.IsAdmin(r.Header.Get(senderIDHeader))
		if err != nil {
			slog.Error("Error checking admin", "error", err)
			jsonError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if !ok {
			jsonError(w, "❌ Команда только для администратора.", http.StatusForbidden)
			return
		}
		next(w, r)
	})
}

// rateLimited applies the per-sender intake limit
func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return s.requireSender(func(w http.ResponseWriter, r *http.Request) {
		sender := r.Header.Get(senderIDHeader)
		if !s.limiter.Allow(sender) {
			slog.Warn("Rate limit exceeded", "user_id", sender)
			jsonError(w, "Too many reports, try again later", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	})
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	// Intake
	s.mux.HandleFunc("POST /api/users", s.requireSender(s.handleRegister))
	s.mux.HandleFunc("POST /api/admin/login", s.requireSender(s.handleLogin))
	s.mux.HandleFunc("POST /api/messages", s.rateLimited(s.handleSubmitMessage))
	s.mux.HandleFunc("POST /api/photos", s.rateLimited(s.handleUploadPhoto))

	// Admin reports
	s.mux.HandleFunc("GET /api/reports/text", s.requireAdmin(s.handleReportText))
	s.mux.HandleFunc("GET /api/reports/xlsx", s.requireAdmin(s.handleReportXLSX))
	s.mux.HandleFunc("GET /api/reports", s.requireAdmin(s.handleReportSummary))
	s.mux.HandleFunc("GET /api/photos/archive", s.requireAdmin(s.handlePhotoArchive))
	s.mux.HandleFunc("GET /api/photos/{id}/file", s.requireAdmin(s.handleGetPhotoFile))
	s.mux.HandleFunc("GET /api/photos", s.requireAdmin(s.handleListPhotos))
	s.mux.HandleFunc("GET /api/unrecognized", s.requireAdmin(s.handleUnrecognized))
	s.mux.HandleFunc("POST /api/catalog/reload", s.requireAdmin(s.handleReloadCatalog))
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	// Wrap the mux with CORS middleware to handle all requests including OPTIONS
	return http.ListenAndServe(addr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
			s.mux.ServeHTTP(w, r)
		})(w, r)
	}))
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// senderLimiter keeps one token bucket per sender
type senderLimiter struct {
	limit RateLimit

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newSenderLimiter(limit RateLimit) *senderLimiter {
	return &senderLimiter{limit: limit, limiters: make(map[string]*rate.Limiter)}
}

// Allow consumes a token from the sender's bucket
func (l *senderLimiter) Allow(sender string) bool {
	if l.limit.Every <= 0 {
		return true
	}

	l.mu.Lock()
	lim, ok := l.limiters[sender]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.limit.Every), max(l.limit.Burst, 1))
		l.limiters[sender] = lim
	}
	l.mu.Unlock()

	return lim.Allow()
}
