package server

import (
	"fmt"
	"net/http"

	"datachat-backend/internal/auth"
	"datachat-backend/internal/metrics"
	"datachat-backend/internal/types"
)

// rateLimit guards the lighter endpoints; the chat endpoint is charged
// inside the pipeline instead so its state machine sees the decision.
func (s *Server) rateLimit(endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := s.limiter.Check(r.Context(), auth.ClientID(r.Context()), endpoint)
			if err != nil {
				s.writeError(w, http.StatusInternalServerError, "rate limit check failed")
				return
			}
			if !decision.Allowed {
				metrics.ThrottledRequests.Inc()
				retry := int(decision.RetryAfter.Seconds())
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retry))
				s.writeJSON(w, http.StatusTooManyRequests, types.ChatResponse{
					Status:     "error",
					Error:      "Too many requests. Please slow down and try again.",
					RetryAfter: retry,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
