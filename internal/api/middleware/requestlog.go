// Package middleware holds the gateway's HTTP middleware.
package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sixsideddice/lottie-gateway/internal/api/ctxkeys"
	"github.com/sixsideddice/lottie-gateway/internal/infra/logging"
)

// HeaderRequestID carries the correlation id in both directions.
const HeaderRequestID = "X-Request-ID"

const maxRequestIDLen = 128

// RequestLogger assigns a request id (the incoming X-Request-ID when present),
// echoes it on the response, stores a request-scoped logger in the context and
// logs each request once it completes.
func RequestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := requestID(r)
			w.Header().Set(HeaderRequestID, id)

			log := base.With(zap.String("request_id", id))
			ctx := ctxkeys.WithValue(r.Context(), ctxkeys.RequestID, id)
			ctx = logging.WithContext(ctx, log)

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				fields := []zap.Field{
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", status),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("latency", time.Since(start)),
				}
				if status >= http.StatusInternalServerError {
					log.Warn("request completed", fields...)
					return
				}
				log.Info("request completed", fields...)
			}()

			next.ServeHTTP(ww, r.WithContext(ctx))
		})
	}
}

func requestID(r *http.Request) string {
	if id := r.Header.Get(HeaderRequestID); id != "" && len(id) <= maxRequestIDLen {
		return id
	}
	return uuid.NewString()
}
