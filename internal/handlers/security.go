package handlers

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/bookmarketapp/bookmarket/internal/observability"
)

const corsMaxAgeSeconds = 600

// SecurityHeaders sets baseline security headers for all responses.
func (h *Handlers) SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		headers.Set("Cross-Origin-Opener-Policy", "same-origin")
		headers.Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}

// CORS allows the configured browser origins to call the API and answers preflight requests.
// Requests from other origins pass through without CORS headers, so browsers block them.
func (h *Handlers) CORS(next http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(h.config.CORSAllowedOrigins))
	for _, origin := range h.config.CORSAllowedOrigins {
		if origin = normalizeOrigin(origin); origin != "" {
			allowed[origin] = struct{}{}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		headers := w.Header()
		headers.Add("Vary", "Origin")

		_, ok := allowed[normalizeOrigin(origin)]
		if origin == "" || !ok {
			if r.Method == http.MethodOptions && origin != "" {
				observability.MeterFromContext(r.Context()).Count("security.cors.rejected", 1)
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		headers.Set("Access-Control-Allow-Origin", origin)
		headers.Set("Access-Control-Allow-Credentials", "true")
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			headers.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			headers.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
			headers.Set("Access-Control-Max-Age", fmt.Sprint(corsMaxAgeSeconds))
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Recoverer turns a panicking handler into a 500 response.
func (h *Handlers) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger := h.loggerFromContext(r.Context())
			logger.Error("panic serving request", "panic", fmt.Sprint(rec), "stack", string(debug.Stack()))
			respondError(w, logger, http.StatusInternalServerError, kindInternal, "internal server error")
		}()

		next.ServeHTTP(w, r)
	})
}

func normalizeOrigin(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}
