package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Timeout bounds every request by the given duration. When the deadline
// fires before the handler has written anything, the client gets a 504
// with the same JSON error shape the API handlers use. The handler
// goroutine keeps running until its context cancellation propagates, but
// any output it produces after the timeout response is discarded.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	log := slog.Default().With("component", "http-timeout")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			done := make(chan struct{})
			dw := &deadlineWriter{inner: w}
			go func() {
				defer close(done)
				next.ServeHTTP(dw, r.WithContext(ctx))
			}()

			select {
			case <-done:
			case <-ctx.Done():
				if dw.timeout() {
					log.Warn("request deadline exceeded",
						"method", r.Method,
						"path", r.URL.Path,
						"request_id", GetRequestID(ctx),
						"timeout", timeout,
					)
				}
			}
		})
	}
}

// deadlineWriter serializes the race between the handler's first write
// and the timeout response. Whichever side writes first owns the
// connection; the loser's output is dropped.
type deadlineWriter struct {
	inner    http.ResponseWriter
	mu       sync.Mutex
	written  bool
	timedOut bool
}

func (dw *deadlineWriter) Header() http.Header {
	return dw.inner.Header()
}

func (dw *deadlineWriter) WriteHeader(code int) {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	if dw.timedOut {
		return
	}
	dw.written = true
	dw.inner.WriteHeader(code)
}

func (dw *deadlineWriter) Write(b []byte) (int, error) {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	if dw.timedOut {
		return len(b), nil
	}
	dw.written = true
	return dw.inner.Write(b)
}

// timeout sends the 504 response unless the handler already wrote one.
// It reports whether the timeout response was sent.
func (dw *deadlineWriter) timeout() bool {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	if dw.written {
		return false
	}
	dw.timedOut = true
	dw.inner.Header().Set("Content-Type", "application/json")
	dw.inner.WriteHeader(http.StatusGatewayTimeout)
	json.NewEncoder(dw.inner).Encode(map[string]string{"error": "request timeout"})
	return true
}
