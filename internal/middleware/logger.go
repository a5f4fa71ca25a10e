package middleware

import (
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	chiMid "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/MoAbeds/agent-testx/internal/observability"
)

// InjectLogger stores logger on the request context for downstream handlers.
func InjectLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := observability.WithLogger(r.Context(), logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Logger emits one structured log line per request
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		rid := chiMid.GetReqID(ctx)
		logger := observability.FromContext(ctx).With(
			zap.String("request_id", rid),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			logger = logger.With(zap.String("trace_id", sc.TraceID().String()))
		}
		if ip := clientIP(r); ip != "" {
			logger = logger.With(zap.String("remote_ip", ip))
		}
		ctx = observability.WithLogger(ctx, logger)

		rw := NewResponseRecorder(w)
		next.ServeHTTP(rw, r.WithContext(ctx))

		fields := []zap.Field{
			zap.Int("status", rw.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.Int64("bytes", rw.BytesWritten()),
		}
		switch {
		case rw.Status() >= http.StatusInternalServerError:
			logger.Error("request", fields...)
		case rw.Status() >= http.StatusBadRequest:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	})
}

// Recoverer turns handler panics into a 500 and logs the stack.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				observability.FromContext(r.Context()).Error("panic recovered",
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	// RealIP has already rewritten RemoteAddr when running behind a proxy.
	host := strings.TrimSpace(r.RemoteAddr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
