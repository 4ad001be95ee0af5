package middleware

import (
	"net"
	"net/http"
	"time"
)

type logger interface {
	Info(msg string, args ...any)
}

// statusRecorder captures what the handler wrote so the request can be logged
// after it finished.
type statusRecorder struct {
	http.ResponseWriter

	status int
	size   int
}

func (w *statusRecorder) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.size += n
	return n, err
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.ResponseWriter.WriteHeader(statusCode)
	w.status = statusCode
}

// LoggerMiddleware logs one line per handled request: method, uri, remote
// host, status, response size and handling time.
func LoggerMiddleware(l logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			remote := r.RemoteAddr
			if host, _, err := net.SplitHostPort(remote); err == nil {
				remote = host
			}

			l.Info("Handled HTTP request",
				"method", r.Method,
				"uri", r.RequestURI,
				"remote", remote,
				"status", rec.status,
				"size", rec.size,
				"duration", time.Since(start),
			)
		})
	}
}
