package rest

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/expense-approvals/internal/auth"
	"github.com/frahmantamala/expense-approvals/internal/category"
	"github.com/frahmantamala/expense-approvals/internal/expense"
	"github.com/frahmantamala/expense-approvals/internal/flow"
	"github.com/frahmantamala/expense-approvals/internal/transport/middleware"
	"github.com/frahmantamala/expense-approvals/internal/transport/swagger"
	"github.com/frahmantamala/expense-approvals/internal/user"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

// Handlers bundles everything the router mounts. Nil handlers leave their
// routes out.
type Handlers struct {
	Health      *HealthHandler
	Auth        *auth.Handler
	RBAC        *auth.RBACAuthorization
	ExpenseACL  *auth.ExpenseScope
	Users       *user.Handler
	Categories  *category.Handler
	Flows       *flow.Handler
	Expenses    *expense.Handler
	OpenAPIPath string
	Origins     string
}

func RegisterAllRoutes(router *chi.Mux, h Handlers, logger *slog.Logger) {
	router.Use(middleware.CORS(h.Origins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	if h.OpenAPIPath != "" {
		router.Get("/openapi.yml", swagger.SpecHandler(h.OpenAPIPath))
		router.Handle("/swagger/*", swagger.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		if h.Health != nil {
			r.Get("/health", h.Health.Health)
			r.Get("/ping", h.Health.Ping)
		}

		if h.Auth == nil {
			return
		}

		r.Route("/auth", func(sr chi.Router) {
			sr.Post("/login", h.Auth.Login)
			sr.Post("/signup", h.Auth.Signup)
			sr.Post("/refresh", h.Auth.RefreshToken)
			sr.Post("/forgot-password", h.Auth.ForgotPassword)
			sr.With(h.Auth.AuthMiddleware, middleware.UserContext).Post("/change-password", h.Auth.ChangePassword)
		})

		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)
			pr.Use(middleware.UserContext)

			if h.Categories != nil {
				pr.Get("/categories", h.Categories.GetCategories)
			}

			if h.Users != nil {
				pr.Get("/users/me", h.Users.GetCurrentUser)
				pr.Group(func(ar chi.Router) {
					ar.Use(h.RBAC.RequireAdmin())
					ar.Get("/users", h.Users.ListUsers)
					ar.Post("/users", h.Users.CreateUser)
					ar.Patch("/users/{id}", h.Users.UpdateUser)
					ar.Post("/users/{id}/send-password", h.Users.SendPassword)
				})
			}

			if h.Flows != nil {
				pr.Get("/flows/default", h.Flows.GetDefault)
				pr.With(h.RBAC.RequireAdmin()).Put("/flows/default", h.Flows.SaveDefault)
			}

			if h.Expenses != nil {
				pr.Route("/expenses", func(er chi.Router) {
					er.Post("/", h.Expenses.SubmitExpense)
					er.Get("/mine", h.Expenses.ListMine)
					er.With(h.expenseScope("id")).Get("/{id}", h.Expenses.GetExpense)
					er.With(h.expenseScope("id")).Get("/{id}/approvers", h.Expenses.GetApprovers)
				})

				pr.Route("/approvals", func(ar chi.Router) {
					ar.Use(h.RBAC.RequireApprover())
					ar.Get("/queue", h.Expenses.ApprovalQueue)
					ar.With(h.expenseScope("expenseID")).Post("/{expenseID}", h.Expenses.Decide)
				})
			}
		})
	})
}

func (h Handlers) expenseScope(param string) func(http.Handler) http.Handler {
	if h.ExpenseACL == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return h.ExpenseACL.Require(param)
}
