package router

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nyumbani/service-rentpay/service/business"
)

// PrincipalHeaderMiddleware trusts identity headers set by the upstream
// gateway after it has verified the caller's token. This service never sees
// raw credentials. Requests without an identity header pass through with no
// principal and the handlers answer 401.
func PrincipalHeaderMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get("X-User-Id")
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			principal := business.Principal{
				ID:               userID,
				Name:             r.Header.Get("X-User-Name"),
				Role:             r.Header.Get("X-User-Role"),
				LinkedPropertyID: r.Header.Get("X-Property-Id"),
			}
			ctx := business.PrincipalToContext(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
