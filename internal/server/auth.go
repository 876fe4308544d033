package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// RequireToken protects the write endpoints (recording observations,
// changing or deleting experiments) with a bearer token. An empty token
// leaves them open.
func (s *Server) RequireToken(token string) {
	s.token = token
}

// authMiddleware checks for a valid token in the Authorization header or the
// token query param. Safe methods pass through.
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" || r.Method == http.MethodGet || r.Method == http.MethodHead {
			next(w, r)
			return
		}

		got := r.URL.Query().Get("token")
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			got = strings.TrimPrefix(h, "Bearer ")
		}

		if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="janus"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next(w, r)
	}
}
