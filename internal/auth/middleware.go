package auth

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type contextKey string

const clientContextKey contextKey = "client"

// Identify resolves a client identity for every request. A valid Bearer
// session token wins; otherwise the client IP is used, honoring proxy
// headers. Invalid tokens fall back to the IP rather than rejecting, since
// sessions here exist for rate accounting, not authorization.
func Identify(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := ""
			authHeader := r.Header.Get("Authorization")
			if authHeader != "" {
				parts := strings.Split(authHeader, " ")
				if len(parts) == 2 && parts[0] == "Bearer" {
					if claims, err := ValidateToken(parts[1], jwtSecret); err == nil {
						clientID = claims.ClientID
					}
				}
			}
			if clientID == "" {
				clientID = clientIP(r)
			}
			ctx := context.WithValue(r.Context(), clientContextKey, clientID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientID returns the identity resolved by Identify, or "" if the
// middleware did not run.
func ClientID(ctx context.Context) string {
	id, _ := ctx.Value(clientContextKey).(string)
	return id
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
