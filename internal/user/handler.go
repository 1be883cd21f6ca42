package user

import (
	"context"
	"errors"
	"net/http"

	"github.com/frahmantamala/expense-approvals/internal"
	coreuser "github.com/frahmantamala/expense-approvals/internal/core/user"
	"github.com/frahmantamala/expense-approvals/internal/transport"
)

type ServiceAPI interface {
	Me(ctx context.Context, id int64) (*MeResponse, error)
	ListUsers(ctx context.Context, companyID int64) ([]*User, error)
	CreateUser(ctx context.Context, admin *coreuser.Member, dto CreateUserDTO) (*CreateUserResponse, error)
	UpdateUser(ctx context.Context, admin *coreuser.Member, id int64, dto UpdateUserDTO) (*User, error)
	SendPassword(ctx context.Context, admin *coreuser.Member, id int64) (bool, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, svc ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     svc,
	}
}

// GetCurrentUser handles GET /users/me
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	member, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.Logger.Error("GetCurrentUser: user not found in context")
		h.WriteAppError(w, internal.ErrInvalidToken)
		return
	}

	me, err := h.Service.Me(r.Context(), member.ID)
	if err != nil {
		h.Logger.Error("GetCurrentUser: service Me failed", "user_id", member.ID, "error", err)
		h.writeError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, me)
}

// ListUsers handles GET /users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	admin, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrInvalidToken)
		return
	}

	users, err := h.Service.ListUsers(r.Context(), admin.CompanyID)
	if err != nil {
		h.Logger.Error("ListUsers: failed to list users", "company_id", admin.CompanyID, "error", err)
		h.writeError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, UsersResponse{Users: users})
}

// CreateUser handles POST /users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	admin, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrInvalidToken)
		return
	}

	var dto CreateUserDTO
	if appErr := h.DecodeJSON(r, &dto); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}
	dto.Normalize()
	if appErr := dto.Validate(); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	resp, err := h.Service.CreateUser(r.Context(), admin, dto)
	if err != nil {
		h.Logger.Error("CreateUser: failed to create user", "email", dto.Email, "error", err)
		h.writeError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, resp)
}

// UpdateUser handles PATCH /users/{id}
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	admin, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrInvalidToken)
		return
	}
	id, appErr := h.PathID(r, "id")
	if appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	var dto UpdateUserDTO
	if appErr := h.DecodeJSON(r, &dto); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}
	dto.Normalize()
	if appErr := dto.Validate(); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	u, err := h.Service.UpdateUser(r.Context(), admin, id, dto)
	if err != nil {
		h.Logger.Error("UpdateUser: failed to update user", "user_id", id, "error", err)
		h.writeError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u)
}

// SendPassword handles POST /users/{id}/send-password
func (h *Handler) SendPassword(w http.ResponseWriter, r *http.Request) {
	admin, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrInvalidToken)
		return
	}
	id, appErr := h.PathID(r, "id")
	if appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	sent, err := h.Service.SendPassword(r.Context(), admin, id)
	if err != nil {
		h.Logger.Error("SendPassword: failed to issue password", "user_id", id, "error", err)
		h.writeError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, SendPasswordResponse{EmailSent: sent})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		h.WriteAppError(w, internal.ErrUserNotFound)
	case errors.Is(err, ErrCompanyNotFound):
		h.WriteAppError(w, internal.NewNotFoundError("Company not found", internal.ErrCodeUserNotFound))
	case errors.Is(err, ErrEmailTaken):
		h.WriteAppError(w, internal.NewConflictError(err.Error(), internal.ErrCodeEmailTaken))
	case errors.Is(err, ErrInvalidManager):
		h.WriteAppError(w, internal.NewValidationFieldError("manager_id", err.Error(), internal.ErrCodeInvalidManager))
	case errors.Is(err, ErrInvalidRole):
		h.WriteAppError(w, internal.NewValidationFieldError("role", err.Error(), internal.ErrCodeInvalidRole))
	default:
		h.HandleServiceError(w, err)
	}
}
