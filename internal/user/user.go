package user

import (
	"errors"
	"fmt"
	"time"

	companyDatamodel "github.com/frahmantamala/expense-approvals/internal/core/datamodel/company"
	userDatamodel "github.com/frahmantamala/expense-approvals/internal/core/datamodel/user"
	coreuser "github.com/frahmantamala/expense-approvals/internal/core/user"
)

type User struct {
	ID            int64         `json:"id"`
	CompanyID     int64         `json:"company_id"`
	Email         string        `json:"email"`
	Name          string        `json:"name"`
	Role          coreuser.Role `json:"role"`
	ManagerID     *int64        `json:"manager_id"`
	IsActive      bool          `json:"is_active"`
	ResetRequired bool          `json:"reset_required"`
	PasswordHash  string        `json:"-"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

var (
	ErrNotFound        = errors.New("user not found")
	ErrCompanyNotFound = errors.New("company not found")
	ErrEmailTaken      = errors.New("email is already registered")
	ErrInvalidManager  = errors.New("manager must be an active manager or admin of the same company")
	ErrInvalidRole     = errors.New("role change is not allowed")
	ErrApproverInUse   = fmt.Errorf("%w: user still has direct reports, a place in the approval flow or pending approvals", ErrInvalidRole)
)

func (u *User) Member() *coreuser.Member {
	return &coreuser.Member{
		ID:        u.ID,
		CompanyID: u.CompanyID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		ManagerID: u.ManagerID,
		IsActive:  u.IsActive,
	}
}

func (u *User) CanManage() bool {
	return u.IsActive && (u.Role == coreuser.RoleManager || u.Role == coreuser.RoleAdmin)
}

func ToDataModel(u *User) *userDatamodel.User {
	return &userDatamodel.User{
		ID:            u.ID,
		CompanyID:     u.CompanyID,
		Email:         u.Email,
		Name:          u.Name,
		PasswordHash:  u.PasswordHash,
		Role:          string(u.Role),
		ManagerID:     u.ManagerID,
		IsActive:      u.IsActive,
		ResetRequired: u.ResetRequired,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

func FromDataModel(u *userDatamodel.User) *User {
	return &User{
		ID:            u.ID,
		CompanyID:     u.CompanyID,
		Email:         u.Email,
		Name:          u.Name,
		PasswordHash:  u.PasswordHash,
		Role:          coreuser.Role(u.Role),
		ManagerID:     u.ManagerID,
		IsActive:      u.IsActive,
		ResetRequired: u.ResetRequired,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

func CompanyFromDataModel(c *companyDatamodel.Company) *coreuser.Company {
	return &coreuser.Company{
		ID:       c.ID,
		Name:     c.Name,
		Country:  c.Country,
		Currency: c.Currency,
	}
}
