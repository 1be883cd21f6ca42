package expense

import (
	"context"
	"errors"
	"net/http"

	"github.com/frahmantamala/expense-approvals/internal"
	"github.com/frahmantamala/expense-approvals/internal/approval"
	"github.com/frahmantamala/expense-approvals/internal/category"
	coreuser "github.com/frahmantamala/expense-approvals/internal/core/user"
	"github.com/frahmantamala/expense-approvals/internal/transport"
)

type ServiceAPI interface {
	SubmitExpense(ctx context.Context, employee *coreuser.Member, dto SubmitExpenseDTO) (*Detail, error)
	RecordDecision(ctx context.Context, expenseID, approverID int64, decision approval.Decision, comment string) (*approval.State, error)
	GetEligibleApprovers(ctx context.Context, expenseID int64) ([]int64, error)
	GetExpense(ctx context.Context, viewer *coreuser.Member, id int64) (*Detail, error)
	ListMine(ctx context.Context, employeeID int64, limit, offset int) ([]*Expense, error)
	ApprovalQueue(ctx context.Context, approver *coreuser.Member) ([]*ApprovalTask, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

// SubmitExpense handles POST /expenses
func (h *Handler) SubmitExpense(w http.ResponseWriter, r *http.Request) {
	member, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrInvalidToken)
		return
	}

	var dto SubmitExpenseDTO
	if appErr := h.DecodeJSON(r, &dto); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}
	dto.Normalize()
	if appErr := dto.Validate(); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	detail, err := h.Service.SubmitExpense(r.Context(), member, dto)
	if err != nil {
		h.Logger.Error("SubmitExpense: failed to submit expense", "user_id", member.ID, "error", err)
		h.writeError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, detail)
}

// ListMine handles GET /expenses/mine
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	member, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrInvalidToken)
		return
	}

	limit := h.QueryInt(r, "limit", defaultListLimit)
	offset := h.QueryInt(r, "offset", 0)
	expenses, err := h.Service.ListMine(r.Context(), member.ID, limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ExpensesResponse{Expenses: expenses, Limit: limit, Offset: offset})
}

// GetExpense handles GET /expenses/{id}
func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	member, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrInvalidToken)
		return
	}
	id, appErr := h.PathID(r, "id")
	if appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	detail, err := h.Service.GetExpense(r.Context(), member, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, detail)
}

// GetApprovers handles GET /expenses/{id}/approvers
func (h *Handler) GetApprovers(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.PathID(r, "id")
	if appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	eligible, err := h.Service.GetEligibleApprovers(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ApproversResponse{ExpenseID: id, EligibleApprovers: eligible})
}

// ApprovalQueue handles GET /approvals/queue
func (h *Handler) ApprovalQueue(w http.ResponseWriter, r *http.Request) {
	member, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrInvalidToken)
		return
	}

	tasks, err := h.Service.ApprovalQueue(r.Context(), member)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, QueueResponse{Tasks: tasks})
}

// Decide handles POST /approvals/{expenseID}
func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	member, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrInvalidToken)
		return
	}
	expenseID, appErr := h.PathID(r, "expenseID")
	if appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	var dto DecisionDTO
	if appErr := h.DecodeJSON(r, &dto); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}
	dto.Normalize()
	if appErr := dto.Validate(); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	state, err := h.Service.RecordDecision(r.Context(), expenseID, member.ID, approval.Decision(dto.Decision), dto.Comment)
	if err != nil {
		h.Logger.Warn("Decide: decision refused", "expense_id", expenseID, "user_id", member.ID, "error", err)
		h.writeError(w, err)
		return
	}

	eligible := approval.EligibleApprovers(state)
	if eligible == nil {
		eligible = []int64{}
	}
	h.WriteJSON(w, http.StatusOK, DecisionResponse{
		ExpenseID:         expenseID,
		Status:            state.Status,
		StepIndex:         state.StepIndex,
		EligibleApprovers: eligible,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.WriteAppError(w, toAppError(err))
}

func toAppError(err error) *internal.AppError {
	switch {
	case errors.Is(err, ErrExpenseNotFound):
		return internal.ErrExpenseNotFound
	case errors.Is(err, ErrUnauthorizedAccess):
		return internal.ErrUnauthorizedAccess
	case errors.Is(err, ErrConcurrentUpdate):
		return internal.NewConflictError(err.Error(), internal.ErrCodeConcurrentUpdate)
	case errors.Is(err, category.ErrCategoryNotFound):
		return internal.NewValidationFieldError("category", "unknown category", internal.ErrCodeInvalidCategory)
	case errors.Is(err, approval.ErrNotEligible):
		return internal.NewForbiddenError("it is not your turn to decide on this expense", internal.ErrCodeNotEligible)
	case errors.Is(err, approval.ErrUnknownApprover):
		return internal.NewForbiddenError("you are not an approver of this expense", internal.ErrCodeUnknownApprover)
	case errors.Is(err, approval.ErrAlreadyDecided):
		return internal.NewConflictError("you already decided on this expense", internal.ErrCodeAlreadyDecided)
	case errors.Is(err, approval.ErrAlreadyResolved):
		return internal.NewConflictError("expense is already resolved", internal.ErrCodeAlreadyResolved)
	case errors.Is(err, approval.ErrInvalidDecision):
		return internal.NewValidationError(err.Error(), internal.ErrCodeInvalidDecision)
	case errors.Is(err, approval.ErrInvalidConfig):
		return internal.NewValidationError(err.Error(), internal.ErrCodeInvalidFlowConfig)
	case errors.Is(err, approval.ErrNoApprovers):
		return internal.NewUnprocessableError("no approver is available for this expense", internal.ErrCodeNoApprovers)
	}
	if appErr, ok := internal.IsAppError(err); ok {
		return appErr
	}
	return internal.NewInternalError("internal server error", err)
}
