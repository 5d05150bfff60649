package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"capcall/pkg/requestcontext"
)

// RequestTime pins one trusted timestamp to the request so every precondition
// an operation checks sees the same instant, and tags the request with an ID
// for log correlation.
func RequestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		ctx = requestcontext.WithRequestID(ctx, uuid.NewString())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
