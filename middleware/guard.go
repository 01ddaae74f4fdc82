package middleware

import (
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"

	authcore "github.com/stratushr/authcore"
	"github.com/stratushr/authcore/admission"
	"github.com/stratushr/authcore/rbac"
)

// Guard returns middleware that verifies the bearer access credential and
// injects the resulting identity into the request context. Handlers read
// it back with [authcore.IdentityFromContext].
func Guard(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			id, err := engine.Authenticate(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(authcore.WithIdentity(r.Context(), id)))
		})
	}
}

// RequireRole rejects identities below the required role. Must run after
// [Guard].
func RequireRole(engine *authcore.Engine, required rbac.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := authcore.IdentityFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			err := engine.Authorize(r.Context(), id, authcore.Target{}, authcore.MinimumRole(required))
			if err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Admit returns middleware that charges each request against the client
// IP's window budget for purpose. Denied requests get 429 with a
// Retry-After header when the window's remaining time is known.
func Admit(engine *authcore.Engine, purpose admission.Purpose) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := authcore.WithClientIP(r.Context(), clientIP(r))

			if err := engine.Admit(ctx, "", purpose); err != nil {
				var denied *admission.DeniedError
				if errors.As(err, &denied) && denied.RetryAfter > 0 {
					seconds := int64(denied.RetryAfter.Seconds())
					if seconds < 1 {
						seconds = 1
					}
					w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
				}
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

// clientIP strips the port from RemoteAddr; proxies terminating TLS should
// rewrite RemoteAddr before this middleware runs.
func clientIP(r *http.Request) string {
	addrPort, err := netip.ParseAddrPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return addrPort.Addr().String()
}
