package middleware

import (
	"net/http"
	"strings"

	"consultation-booking/pkg/response"
)

// RequireAdmin rejects tokens whose subject is no longer a configured operator.
// Tokens stay valid across restarts, so rotating ADMIN_EMAIL locks old ones out.
func RequireAdmin(allowedEmails ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			email, ok := GetAdminEmailFromContext(r.Context())
			if !ok {
				response.Unauthorized(w, "Operator information not found")
				return
			}

			allowed := false
			for _, allowedEmail := range allowedEmails {
				if strings.EqualFold(email, allowedEmail) {
					allowed = true
					break
				}
			}

			if !allowed {
				response.Forbidden(w, "You don't have permission to access this resource")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
