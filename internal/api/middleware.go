package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// maxRequestIDLen bounds a client-supplied X-Request-ID before it is logged.
const maxRequestIDLen = 64

// pollPaths are hit by scrapers and watchdogs on a timer. Successful
// requests to them log at debug.
var pollPaths = map[string]bool{
	"/api/v1/health": true,
	"/metrics":       true,
}

// requestIDFrom returns the request ID stored by requestIDMiddleware.
func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// requestIDMiddleware keeps a usable X-Request-ID from the client or assigns
// a UUID, and echoes it in the response.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// validRequestID accepts short printable ASCII IDs.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

// loggingMiddleware logs each request with the frame's current mode.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"bytes", sw.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"mode", s.deps.State.Mode().String(),
			"request_id", requestIDFrom(r.Context()),
		}
		switch {
		case sw.status >= http.StatusInternalServerError:
			s.logger.Warn("http request", args...)
		case pollPaths[r.URL.Path] && sw.status < http.StatusBadRequest:
			s.logger.Debug("http request", args...)
		default:
			s.logger.Info("http request", args...)
		}
	})
}

// recoveryMiddleware turns a handler panic into a 500 error envelope.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("panic in status handler",
					"panic", p,
					"path", r.URL.Path,
					"request_id", requestIDFrom(r.Context()),
				)
				s.writeError(w, r, http.StatusInternalServerError, codeInternal, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// statusWriter records the status code and body size.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
