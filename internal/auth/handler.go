package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/frahmantamala/expense-approvals/internal"
	coreuser "github.com/frahmantamala/expense-approvals/internal/core/user"
	"github.com/frahmantamala/expense-approvals/internal/transport"
	"github.com/frahmantamala/expense-approvals/internal/user"
	"github.com/frahmantamala/expense-approvals/pkg/logger"
)

type ServiceAPI interface {
	Authenticate(ctx context.Context, dto LoginDTO) (*LoginResponse, error)
	Signup(ctx context.Context, dto SignupDTO) (*LoginResponse, error)
	RefreshTokens(ctx context.Context, refreshToken string) (AuthTokens, error)
	ValidateAccessToken(tokenString string) (*Claims, error)
	Authorize(ctx context.Context, claims *Claims) (*coreuser.Member, error)
	ForgotPassword(ctx context.Context, dto ForgotPasswordDTO) error
	ChangePassword(ctx context.Context, userID int64, dto ChangePasswordDTO) error
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

// Login handles POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var dto LoginDTO
	if appErr := h.DecodeJSON(r, &dto); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}
	dto.Normalize()
	if appErr := dto.Validate(); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	resp, err := h.Service.Authenticate(r.Context(), dto)
	if err != nil {
		h.Logger.Warn("authentication failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

// Signup handles POST /auth/signup
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var dto SignupDTO
	if appErr := h.DecodeJSON(r, &dto); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}
	dto.Normalize()
	if appErr := dto.Validate(); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	resp, err := h.Service.Signup(r.Context(), dto)
	if err != nil {
		h.Logger.Error("signup failed", "email", dto.Email, "error", err)
		h.writeError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, resp)
}

// RefreshToken handles POST /auth/refresh
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var dto RefreshTokenDTO
	if appErr := h.DecodeJSON(r, &dto); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}
	if appErr := dto.Validate(); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	tokens, err := h.Service.RefreshTokens(r.Context(), dto.RefreshToken)
	if err != nil {
		h.Logger.Warn("token refresh failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, tokens)
}

// ForgotPassword handles POST /auth/forgot-password. It always answers 202
// so the endpoint cannot be used to probe for accounts.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var dto ForgotPasswordDTO
	if appErr := h.DecodeJSON(r, &dto); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}
	if appErr := dto.Validate(); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	if err := h.Service.ForgotPassword(r.Context(), dto); err != nil {
		h.Logger.Error("forgot password failed", "error", err)
	}
	w.WriteHeader(http.StatusAccepted)
}

// ChangePassword handles POST /auth/change-password
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	member, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrInvalidToken)
		return
	}

	var dto ChangePasswordDTO
	if appErr := h.DecodeJSON(r, &dto); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}
	if appErr := dto.Validate(); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	if err := h.Service.ChangePassword(r.Context(), member.ID, dto); err != nil {
		h.Logger.Warn("change password failed", "user_id", member.ID, "error", err)
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AuthMiddleware resolves the bearer token to a member and stores it in the
// request context.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.WriteAppError(w, internal.NewUnauthorizedError("missing authorization token", internal.ErrCodeInvalidToken))
			return
		}

		claims, err := h.Service.ValidateAccessToken(token)
		if err != nil {
			logger.From(r.Context()).Warn("auth middleware: token validation failed", "error", err)
			h.writeError(w, err)
			return
		}

		member, err := h.Service.Authorize(r.Context(), claims)
		if err != nil {
			logger.From(r.Context()).Warn("auth middleware: member lookup failed", "user_id", claims.UserID, "error", err)
			h.writeError(w, err)
			return
		}

		ctx := internal.ContextWithUser(r.Context(), member)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		h.WriteAppError(w, internal.ErrInvalidCredentials)
	case errors.Is(err, ErrUserInactive):
		h.WriteAppError(w, internal.ErrUserInactive)
	case errors.Is(err, ErrTokenExpired):
		h.WriteAppError(w, internal.ErrTokenExpired)
	case errors.Is(err, ErrInvalidToken):
		h.WriteAppError(w, internal.ErrInvalidToken)
	case errors.Is(err, ErrPasswordMismatch):
		h.WriteAppError(w, internal.NewValidationFieldError("current_password", err.Error(), internal.ErrCodePasswordMismatch))
	case errors.Is(err, ErrUnsupportedCurrency):
		h.WriteAppError(w, internal.NewValidationFieldError("currency", err.Error(), internal.ErrCodeInvalidCurrency))
	case errors.Is(err, user.ErrEmailTaken):
		h.WriteAppError(w, internal.NewConflictError(err.Error(), internal.ErrCodeEmailTaken))
	default:
		h.HandleServiceError(w, err)
	}
}
