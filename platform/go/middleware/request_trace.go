package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	platformauth "github.com/folio-erp/folio/platform/go/auth"
	platformlogging "github.com/folio-erp/folio/platform/go/logging"
	"github.com/folio-erp/folio/platform/go/requesttrace"
)

// RequestIDHeader echoes the request id so callers can quote it when an assignment needs reconciling.
const RequestIDHeader = "X-Request-Id"

// RequestTrace attaches the AuditInfo that ISBN audit entries are stamped with.
// It must run after the JWT middleware; requests without credentials are traced as anonymous.
func RequestTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		if requestID != "" {
			w.Header().Set(RequestIDHeader, requestID)
		}

		audit := requesttrace.Anonymous(requestID)
		if creds, ok := platformauth.UserFromContext(r.Context()); ok && creds != nil {
			var err error
			audit, err = requesttrace.FromCredentials(creds, requestID)
			if err != nil {
				platformlogging.FromRequest(r, zap.NewNop()).Warn("build audit info from credentials", zap.Error(err))
				WriteEnvelopeError(w, http.StatusUnauthorized, CodeUnauthenticated, "Authentication required")
				return
			}
		}

		ctx := requesttrace.IntoContext(r.Context(), audit)
		ctx = platformlogging.WithFields(ctx, audit.LogFields()...)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
