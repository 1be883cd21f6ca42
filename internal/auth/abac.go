package auth

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/frahmantamala/expense-approvals/internal"
	"github.com/frahmantamala/expense-approvals/internal/transport"
	"github.com/go-chi/chi"
	"github.com/jmoiron/sqlx"
)

var ErrForbidden = errors.New("forbidden")

// ExpenseScope is an attribute check on the company boundary: a member only
// ever sees expenses of their own company. Finer rules (owner, route
// membership) live in the expense service.
type ExpenseScope struct {
	*transport.BaseHandler
	db *sqlx.DB
}

func NewExpenseScope(base *transport.BaseHandler, db *sqlx.DB) *ExpenseScope {
	return &ExpenseScope{BaseHandler: base, db: db}
}

type expenseAttributes struct {
	CompanyID  int64 `db:"company_id"`
	EmployeeID int64 `db:"employee_id"`
}

func (s *ExpenseScope) attributes(r *http.Request, id int64) (*expenseAttributes, error) {
	var attrs expenseAttributes
	query := s.db.Rebind("SELECT company_id, employee_id FROM expenses WHERE id = ?")
	if err := s.db.GetContext(r.Context(), &attrs, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	return &attrs, nil
}

// Require builds a middleware that checks the expense named by the URL
// parameter belongs to the caller's company. Foreign and missing expenses
// both answer 404.
func (s *ExpenseScope) Require(param string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			member, ok := internal.UserFromContext(r.Context())
			if !ok {
				s.WriteAppError(w, internal.ErrInvalidToken)
				return
			}

			id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
			if err != nil || id <= 0 {
				s.WriteAppError(w, internal.NewValidationFieldError(param, param+" must be a positive integer", internal.ErrCodeValidationFailed))
				return
			}

			attrs, err := s.attributes(r, id)
			if errors.Is(err, ErrForbidden) || (err == nil && attrs.CompanyID != member.CompanyID) {
				s.Logger.Warn("expense outside caller company", "expense_id", id, "user_id", member.ID)
				s.WriteAppError(w, internal.ErrExpenseNotFound)
				return
			}
			if err != nil {
				s.HandleServiceError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
