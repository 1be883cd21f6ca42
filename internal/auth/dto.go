package auth

import (
	"strings"

	"github.com/frahmantamala/expense-approvals/internal"
	"github.com/frahmantamala/expense-approvals/internal/core/common/validation"
)

const minPasswordLength = 8

// LoginDTO is the transport shape used by the HTTP handler to accept login requests.
type LoginDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (d *LoginDTO) Normalize() {
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
}

func (d LoginDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("email", d.Email).Required()
	v.Field("password", d.Password).Required()
	return v.Validate()
}

// RefreshTokenDTO for refresh token requests
type RefreshTokenDTO struct {
	RefreshToken string `json:"refresh_token"`
}

func (d RefreshTokenDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("refresh_token", d.RefreshToken).Required()
	return v.Validate()
}

// SignupDTO creates a company together with its first admin.
type SignupDTO struct {
	CompanyName string `json:"company_name"`
	Country     string `json:"country"`
	Currency    string `json:"currency"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

func (d *SignupDTO) Normalize() {
	d.CompanyName = strings.TrimSpace(d.CompanyName)
	d.Country = strings.ToUpper(strings.TrimSpace(d.Country))
	d.Currency = strings.ToUpper(strings.TrimSpace(d.Currency))
	d.Name = strings.TrimSpace(d.Name)
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
}

func (d SignupDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("company_name", d.CompanyName).Required().MaxLength(160)
	v.Field("country", d.Country).Required().MaxLength(64)
	v.Field("currency", d.Currency).Required().MinLength(3).MaxLength(3)
	v.Field("name", d.Name).Required().MaxLength(120)
	v.Field("email", d.Email).Required().Email()
	v.Field("password", d.Password).Required().MinLength(minPasswordLength)
	return v.Validate()
}

type ForgotPasswordDTO struct {
	Email string `json:"email"`
}

func (d ForgotPasswordDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("email", strings.TrimSpace(d.Email)).Required().Email()
	return v.Validate()
}

type ChangePasswordDTO struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (d ChangePasswordDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("current_password", d.CurrentPassword).Required()
	v.Field("new_password", d.NewPassword).Required().MinLength(minPasswordLength)
	return v.Validate()
}
