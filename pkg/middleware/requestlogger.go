package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Uebook/Luna-sub002/pkg/logger"
)

// RequestLogger stores a logger enriched with the request's correlation ID,
// owner and trace IDs in the context. Handlers fetch it with
// logger.FromContext. Mount it after RequestLogging, Tracing and Auth so all
// of those fields are already present.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
