package router

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

// RequestIDHeader carries the per-request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Version is reported by the health endpoint.
var Version = "dev"

type requestIDKey struct{}

// RequestIDFromContext returns the id assigned by RequestIDMiddleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// RequestIDMiddleware keeps an incoming X-Request-ID or assigns a snowflake id.
func RequestIDMiddleware(node *snowflake.Node) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > 128 {
				id = node.Generate().String()
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		})
	}
}

// LoggingMiddleware logs requests at debug level. Authorization headers and
// bodies are never logged.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"request_id", RequestIDFromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			w.Header().Set("Cache-Control", "no-store")
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none';")
			}
			// HSTS only over TLS
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Deps are the handlers and gate mounted by RegisterRoutes.
type Deps struct {
	Auth   *auth.Handler
	Users  *user.Handler
	Gate   *auth.Gate
	Node   *snowflake.Node
	Logger *zap.SugaredLogger
}

// RegisterRoutes mounts HTTP handlers on the standard library's http.ServeMux.
func RegisterRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		utilities.WriteJSON(w, http.StatusOK, map[string]string{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   Version,
		})
	})

	// sign-in
	mux.HandleFunc("POST /auth/send-otp", d.Auth.SendOTP)
	mux.HandleFunc("POST /auth/verify-otp", d.Auth.VerifyOTP)
	mux.HandleFunc("POST /register", d.Auth.Register)
	mux.HandleFunc("POST /login", d.Auth.Login)
	mux.HandleFunc("POST /admin/verify-2fa", d.Auth.VerifySecondFactor)
	mux.HandleFunc("POST /check-username", d.Auth.CheckUsername)

	// authenticated
	mux.Handle("GET /me", d.Gate.Middleware(http.HandlerFunc(d.Auth.Me)))

	// admin moderation
	admin := func(h http.HandlerFunc) http.Handler {
		return d.Gate.Middleware(d.Gate.RequireRoleMiddleware(entity.RoleAdmin)(h))
	}
	mux.Handle("GET /admin/users", admin(d.Users.List))
	mux.Handle("POST /admin/users/{uid}/ban", admin(d.Users.SetBanned))
	mux.Handle("DELETE /admin/users/{uid}", admin(d.Users.Delete))

	node := d.Node
	if node == nil {
		node = utilities.NewSnowflakeNode(1)
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return RequestIDMiddleware(node)(LoggingMiddleware(logger)(SecurityHeadersMiddleware()(mux)))
}
