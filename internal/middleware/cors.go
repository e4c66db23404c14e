// Package middleware holds the HTTP middleware placed in front of the MCP
// endpoint.
package middleware

import (
	"net/http"
	"strings"
)

const (
	allowMethods  = "GET, POST, OPTIONS"
	allowHeaders  = "Content-Type, Authorization, Mcp-Session-Id"
	exposeHeaders = "Mcp-Session-Id"
)

// CORS answers cross-origin requests from the configured origins. An
// origin of "*" allows any. Requests without an Origin header pass through
// untouched; requests from other origins are rejected with 403.
func CORS(origins []string, next http.Handler) http.Handler {
	allowAny := false
	allowed := make(map[string]bool, len(origins))
	for _, origin := range origins {
		if origin == "*" {
			allowAny = true
			continue
		}
		allowed[strings.TrimRight(origin, "/")] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		if !allowAny && !allowed[strings.TrimRight(origin, "/")] {
			http.Error(w, "forbidden: origin not allowed", http.StatusForbidden)
			return
		}

		h := w.Header()
		h.Add("Vary", "Origin")
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Expose-Headers", exposeHeaders)

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", allowMethods)
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
