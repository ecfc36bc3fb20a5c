package adminapi

import (
	"net/http"
	"strings"
)

// cors returns a middleware that sets CORS headers and handles preflight requests.
// allowed may contain exact origins (e.g., http://localhost:3000) or "*" to allow all.
func cors(allowed []string) func(http.Handler) http.Handler {
	match := func(origin string) (string, bool) {
		if origin == "" {
			return "", false
		}
		for _, a := range allowed {
			a = strings.TrimSpace(a)
			if a == "*" || a == origin {
				return a, true
			}
		}
		return "", false
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ao, ok := match(r.Header.Get("Origin")); ok {
				w.Header().Set("Access-Control-Allow-Origin", ao)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-Id, X-Admin-Subject, X-Admin-Role")
				if ao != "*" {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				w.Header().Set("Access-Control-Max-Age", "86400")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
