package handlers

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/bookmarketapp/bookmarket/internal/auth"
	"github.com/bookmarketapp/bookmarket/internal/observability"
)

// RequireIdentity rejects requests without a valid bearer token and stores the caller in the context.
func (h *Handlers) RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := h.loggerFromContext(ctx)
		meter := observability.MeterFromContext(ctx)

		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			meter.Count("auth.rejected", 1, sentry.WithAttributes(attribute.String("reason", "missing_token")))
			respondError(w, logger, http.StatusUnauthorized, kindUnauthorized, "missing bearer token")
			return
		}

		principal, err := h.verifier.Verify(ctx, token)
		if err != nil {
			meter.Count("auth.rejected", 1, sentry.WithAttributes(attribute.String("reason", "invalid_token")))
			logger.Info("rejected identity token", "error", err)
			respondError(w, logger, http.StatusUnauthorized, kindUnauthorized, "invalid bearer token")
			return
		}

		ctx = auth.WithPrincipal(ctx, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin must run after RequireIdentity.
func (h *Handlers) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok || !h.config.IsAdmin(principal.Email) {
			logger := h.loggerFromContext(r.Context())
			logger.Warn("non-admin request to admin route", "email", principal.Email)
			respondError(w, logger, http.StatusForbidden, kindForbidden, "administrator access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func callerEmail(r *http.Request) string {
	principal, _ := auth.PrincipalFromContext(r.Context())
	return principal.Email
}
