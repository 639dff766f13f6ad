package api

import (
	"errors"
	"log/slog"
	"net/http"

	"chatgate/internal/chat"
	"chatgate/internal/registry"
	"chatgate/internal/session"
)

// ServerConfig contains everything the HTTP server needs.
type ServerConfig struct {
	Logger       *slog.Logger
	Registry     *registry.Registry // Required
	Orchestrator *chat.Orchestrator // Required
	Store        *session.Store     // Required
	CORSOrigins  []string           // Allowed origins; "*" allows any
	RateBurst    int                // Per-IP burst size (0 = default 60)
}

// Server is the gateway's HTTP surface.
type Server struct {
	mux *http.ServeMux
}

// NewServer wires routes and the middleware stack.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("session store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mh := &modelsHandler{registry: cfg.Registry, logger: logger}
	ch := &chatHandler{orch: cfg.Orchestrator, logger: logger}
	sh := &sessionHandler{store: cfg.Store, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/models", mh.list)
	mux.HandleFunc("POST /api/chat", ch.stream)
	mux.HandleFunc("GET /api/chats", sh.list)
	mux.HandleFunc("POST /api/chats", sh.save)
	mux.HandleFunc("GET /api/chats/{id}", sh.get)
	mux.HandleFunc("DELETE /api/chats/{id}", sh.delete)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack, outermost first:
	//   Recovery -> Logging -> CORS -> RateLimit -> Routes
	// CORS sits before RateLimit so preflight OPTIONS always gets its headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health stays outside the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
