package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"truemarket-api/pkg/apierror"
)

// Recovery turns handler panics into 500 responses instead of dropped
// connections. The stack trace goes to the log with the request id.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[Recovery] panic on %s %s (rid=%s): %v\n%s",
					r.Method, r.URL.Path, GetRequestID(r.Context()), err, debug.Stack())

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write(apierror.InternalError("").ToJSON())
			}
		}()

		next.ServeHTTP(w, r)
	})
}
