package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/frahmantamala/expense-approvals/internal/approval"
	companyDatamodel "github.com/frahmantamala/expense-approvals/internal/core/datamodel/company"
	expenseDatamodel "github.com/frahmantamala/expense-approvals/internal/core/datamodel/expense"
	flowDatamodel "github.com/frahmantamala/expense-approvals/internal/core/datamodel/flow"
	userDatamodel "github.com/frahmantamala/expense-approvals/internal/core/datamodel/user"
	coreuser "github.com/frahmantamala/expense-approvals/internal/core/user"
	"github.com/frahmantamala/expense-approvals/internal/user"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) user.RepositoryAPI {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	var u userDatamodel.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, user.ErrNotFound
		}
		return nil, err
	}
	return user.FromDataModel(&u), nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	var u userDatamodel.User
	err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, user.ErrNotFound
		}
		return nil, err
	}
	return user.FromDataModel(&u), nil
}

func (r *UserRepository) ListByCompany(ctx context.Context, companyID int64) ([]*user.User, error) {
	var rows []*userDatamodel.User
	err := r.db.WithContext(ctx).Where("company_id = ?", companyID).Order("id ASC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	users := make([]*user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, user.FromDataModel(row))
	}
	return users, nil
}

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	row := user.ToDataModel(u)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	u.ID = row.ID
	u.CreatedAt = row.CreatedAt
	u.UpdatedAt = row.UpdatedAt
	return nil
}

func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	row := user.ToDataModel(u)
	err := r.db.WithContext(ctx).Model(row).
		Select("name", "role", "manager_id", "is_active", "updated_at").
		Updates(row).Error
	if err != nil {
		return err
	}
	u.UpdatedAt = row.UpdatedAt
	return nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, hash string, resetRequired bool) error {
	res := r.db.WithContext(ctx).Model(&userDatamodel.User{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"password_hash":  hash,
			"reset_required": resetRequired,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (r *UserRepository) GetCompany(ctx context.Context, companyID int64) (*coreuser.Company, error) {
	var c companyDatamodel.Company
	if err := r.db.WithContext(ctx).First(&c, companyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, user.ErrCompanyNotFound
		}
		return nil, err
	}
	return user.CompanyFromDataModel(&c), nil
}

// HasApproverDuties reports whether userID manages anyone, sits in the saved
// flow or is on the route of a waiting expense.
func (r *UserRepository) HasApproverDuties(ctx context.Context, companyID, userID int64) (bool, error) {
	db := r.db.WithContext(ctx)

	var reports int64
	err := db.Model(&userDatamodel.User{}).
		Where("company_id = ? AND manager_id = ?", companyID, userID).
		Count(&reports).Error
	if err != nil {
		return false, err
	}
	if reports > 0 {
		return true, nil
	}

	var f flowDatamodel.ApprovalFlow
	err = db.Where("company_id = ?", companyID).First(&f).Error
	switch {
	case err == nil:
		if f.SpecificApproverID != nil && *f.SpecificApproverID == userID {
			return true, nil
		}
		if onRoute(f.Approvers, userID) {
			return true, nil
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return false, err
	}

	var waiting []*expenseDatamodel.ExpenseApproval
	err = db.Select("expense_id", "route").
		Where("company_id = ? AND status = ?", companyID, string(approval.StatusWaiting)).
		Find(&waiting).Error
	if err != nil {
		return false, err
	}
	for _, row := range waiting {
		if onRoute(row.Route, userID) {
			return true, nil
		}
	}
	return false, nil
}

func onRoute(route []approval.Approver, userID int64) bool {
	for _, a := range route {
		if a.UserID == userID {
			return true
		}
	}
	return false
}
