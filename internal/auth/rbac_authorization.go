package auth

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/expense-approvals/internal"
	coreuser "github.com/frahmantamala/expense-approvals/internal/core/user"
	"github.com/frahmantamala/expense-approvals/internal/transport"
)

// RBACAuthorization gates routes on the member's role. It only answers "may
// this role call the endpoint"; who may decide on a given expense is the
// approval resolver's business.
type RBACAuthorization struct {
	*transport.BaseHandler
	logger *slog.Logger
}

func NewRBACAuthorization(logger *slog.Logger) *RBACAuthorization {
	return &RBACAuthorization{
		BaseHandler: transport.NewBaseHandler(logger),
		logger:      logger,
	}
}

func (ra *RBACAuthorization) RequireRoles(roles ...coreuser.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			member, ok := internal.UserFromContext(r.Context())
			if !ok {
				ra.logger.Warn("authorization check failed: user not found in context")
				ra.WriteAppError(w, internal.ErrInvalidToken)
				return
			}

			if !member.HasRole(roles...) {
				ra.logger.WarnContext(r.Context(), "access denied: insufficient role",
					"user_id", member.ID,
					"role", member.Role,
					"required_roles", roles)
				ra.WriteAppError(w, internal.ErrInsufficientRole)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (ra *RBACAuthorization) RequireAdmin() func(http.Handler) http.Handler {
	return ra.RequireRoles(coreuser.RoleAdmin)
}

// RequireApprover admits the roles that can appear on an approval route.
func (ra *RBACAuthorization) RequireApprover() func(http.Handler) http.Handler {
	return ra.RequireRoles(coreuser.RoleAdmin, coreuser.RoleManager)
}
