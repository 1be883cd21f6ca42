package user

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/frahmantamala/expense-approvals/internal"
	"github.com/frahmantamala/expense-approvals/internal/core/common/validation"
	coreuser "github.com/frahmantamala/expense-approvals/internal/core/user"
)

var assignableRoles = []string{string(coreuser.RoleManager), string(coreuser.RoleEmployee)}

type CreateUserDTO struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	ManagerID *int64 `json:"manager_id,omitempty"`
}

func (dto *CreateUserDTO) Normalize() {
	dto.Name = strings.TrimSpace(dto.Name)
	dto.Email = strings.ToLower(strings.TrimSpace(dto.Email))
	dto.Role = strings.ToLower(strings.TrimSpace(dto.Role))
}

func (dto CreateUserDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("name", dto.Name).Required().MaxLength(120)
	v.Field("email", dto.Email).Required().Email().MaxLength(254)
	v.Field("role", dto.Role).Required().OneOf(assignableRoles, internal.ErrCodeInvalidRole)
	return v.Validate()
}

// OptionalID tells an absent JSON field apart from an explicit null.
type OptionalID struct {
	Set   bool
	Value *int64
}

func (o *OptionalID) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v int64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

type UpdateUserDTO struct {
	Name      *string    `json:"name,omitempty"`
	Role      *string    `json:"role,omitempty"`
	ManagerID OptionalID `json:"manager_id"`
}

func (dto *UpdateUserDTO) Normalize() {
	if dto.Name != nil {
		n := strings.TrimSpace(*dto.Name)
		dto.Name = &n
	}
	if dto.Role != nil {
		r := strings.ToLower(strings.TrimSpace(*dto.Role))
		dto.Role = &r
	}
}

func (dto UpdateUserDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	if dto.Name != nil {
		v.Field("name", *dto.Name).Required().MaxLength(120)
	}
	if dto.Role != nil {
		v.Field("role", *dto.Role).Required().OneOf(assignableRoles, internal.ErrCodeInvalidRole)
	}
	return v.Validate()
}

type CreateUserResponse struct {
	ID        int64 `json:"id"`
	EmailSent bool  `json:"email_sent"`
	User      *User `json:"user"`
}

type SendPasswordResponse struct {
	EmailSent bool `json:"email_sent"`
}

type UsersResponse struct {
	Users []*User `json:"users"`
}

type MeResponse struct {
	User    *User             `json:"user"`
	Company *coreuser.Company `json:"company"`
}
