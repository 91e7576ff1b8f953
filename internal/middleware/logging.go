package middleware

import (
	"log"
	"net/http"
	"time"
)

// Logging writes one access-log line per request with the status code
// captured from the handler chain.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(ww, r)

		log.Printf("[%s] %s %s %d %s (rid=%s)",
			r.Method, r.URL.Path, r.RemoteAddr, ww.status,
			time.Since(start), GetRequestID(r.Context()))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
