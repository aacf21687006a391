package auth

import (
	"net/http"
	"strings"

	apperrors "github.com/chainsafe/treasury-api/pkg/app/errors"
	apphttp "github.com/chainsafe/treasury-api/pkg/app/http"
)

// HeaderPrincipal names the development fallback header.
const HeaderPrincipal = "X-Principal"

// Middleware resolves the acting principal and stores it in the request
// context. A Bearer token is always honoured when a validator is configured;
// the X-Principal header is honoured only when allowHeader is set. Requests
// with no resolvable principal are rejected.
func Middleware(validator *JWTValidator, allowHeader bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if header := r.Header.Get("Authorization"); header != "" && validator != nil && validator.IsConfigured() {
				token := strings.TrimPrefix(header, "Bearer ")
				if token == header {
					apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(nil, "malformed authorization header"))
					return
				}

				claims, err := validator.ValidateToken(token)
				if err != nil {
					apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(err, "invalid token"))
					return
				}

				subject, err := Subject(claims)
				if err != nil {
					apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(err, "invalid token"))
					return
				}

				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), subject)))
				return
			}

			if allowHeader {
				if principal := r.Header.Get(HeaderPrincipal); principal != "" {
					next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
					return
				}
			}

			apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(nil, "missing credentials"))
		})
	}
}
