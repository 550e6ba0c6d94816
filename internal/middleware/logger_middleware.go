package middleware

import (
	"bufio"
	"context"
	"log"
	"net"
	"net/http"
	"time"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	userID     string
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

const recorderKey contextKey = "recorder"

// recordUser lets the auth middleware, which runs on a derived request,
// report the caller back to the request logger.
func recordUser(ctx context.Context, userID string) {
	if rw, ok := ctx.Value(recorderKey).(*responseWriter); ok {
		rw.userID = userID
	}
}

func LoggerMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
				userID:         "anonymous",
			}

			ctx := context.WithValue(r.Context(), recorderKey, rw)
			next.ServeHTTP(rw, r.WithContext(ctx))

			log.Printf("[%s] %s %s - Status: %d - Duration: %v - User: %s",
				r.Method,
				r.URL.Path,
				r.RemoteAddr,
				rw.statusCode,
				time.Since(start),
				rw.userID,
			)
		})
	}
}
