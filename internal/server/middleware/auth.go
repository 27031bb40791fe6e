package middleware

import (
	"net/http"
	"strings"

	"github.com/keygate/keygate/internal/service"
)

// RequireSession guards the JSON admin API (stats, audit) with a bearer
// session token obtained from the session endpoint. The legacy key
// endpoints authorize differently (the shared secret travels in the request
// body), so they apply the gate in their handlers instead.
func RequireSession(authSvc *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeAuthError(w, http.StatusUnauthorized,
					"Authentication required. Obtain a session token first.")
				return
			}
			token := strings.TrimPrefix(header, "Bearer ")
			if err := authSvc.ValidateSession(r.Context(), token); err != nil {
				writeAuthError(w, http.StatusUnauthorized, "Invalid or expired session")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Constructed by hand to avoid an import cycle with the handler package.
	w.Write([]byte(`{"error":"` + message + `"}`))
}
