package server

import "net/http"

// setupRoutes configures all HTTP handlers
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/ws", s.corsMiddleware(s.handleWebSocket))
	s.mux.HandleFunc("/health", s.corsMiddleware(s.handleHealth))
	s.mux.HandleFunc("/api/wikis", s.corsMiddleware(s.handleWikis))   // List/create wikis (GET/POST)
	s.mux.HandleFunc("/api/wikis/", s.corsMiddleware(s.handleWiki))   // Individual wiki and logs (GET/DELETE)
	s.mux.HandleFunc("/api/models", s.corsMiddleware(s.handleModels)) // Union of available provider models (GET)
	s.mux.HandleFunc("/api/providers", s.corsMiddleware(s.handleProviders))
	s.mux.HandleFunc("/api/usage", s.corsMiddleware(s.handleUsage))
}

// corsMiddleware adds CORS headers using the configured allowed origins
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// originAllowed checks an Origin header against the configured allowlist.
// An empty allowlist permits everything, which suits local development.
func (s *Server) originAllowed(origin string) bool {
	allowed := s.cfg.Server.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}
