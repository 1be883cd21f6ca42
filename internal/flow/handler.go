package flow

import (
	"context"
	"errors"
	"net/http"

	"github.com/frahmantamala/expense-approvals/internal"
	"github.com/frahmantamala/expense-approvals/internal/approval"
	coreuser "github.com/frahmantamala/expense-approvals/internal/core/user"
	"github.com/frahmantamala/expense-approvals/internal/transport"
)

type ServiceAPI interface {
	GetDefault(ctx context.Context, companyID int64) (*Flow, error)
	SaveDefault(ctx context.Context, admin *coreuser.Member, dto SaveFlowDTO) (*Flow, error)
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

// GetDefault handles GET /flows/default
func (h *Handler) GetDefault(w http.ResponseWriter, r *http.Request) {
	member, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrInvalidToken)
		return
	}

	f, err := h.Service.GetDefault(r.Context(), member.CompanyID)
	if err != nil {
		h.Logger.Error("GetDefault: failed to load flow", "company_id", member.CompanyID, "error", err)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, f)
}

// SaveDefault handles PUT /flows/default
func (h *Handler) SaveDefault(w http.ResponseWriter, r *http.Request) {
	admin, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrInvalidToken)
		return
	}

	var dto SaveFlowDTO
	if appErr := h.DecodeJSON(r, &dto); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}
	dto.Normalize()
	if appErr := dto.Validate(); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	f, err := h.Service.SaveDefault(r.Context(), admin, dto)
	switch {
	case err == nil:
		h.WriteJSON(w, http.StatusOK, f)
	case errors.Is(err, approval.ErrInvalidConfig), errors.Is(err, ErrApproverNotInCompany):
		h.WriteAppError(w, internal.NewValidationError(err.Error(), internal.ErrCodeInvalidFlowConfig))
	default:
		h.Logger.Error("SaveDefault: failed to save flow", "company_id", admin.CompanyID, "error", err)
		h.HandleServiceError(w, err)
	}
}
