package middleware

import (
	"net/http"

	"github.com/frahmantamala/expense-approvals/internal"
	"github.com/frahmantamala/expense-approvals/pkg/logger"
)

// UserContext tags the request logger with the authenticated user. It must run
// after the auth middleware.
func UserContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if u, ok := internal.UserFromContext(ctx); ok {
			ctx = logger.With(ctx, "user_id", u.ID, "company_id", u.CompanyID, "role", u.Role)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
