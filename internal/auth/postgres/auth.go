package postgres

import (
	"context"

	"github.com/frahmantamala/expense-approvals/internal/auth"
	companyDatamodel "github.com/frahmantamala/expense-approvals/internal/core/datamodel/company"
	coreuser "github.com/frahmantamala/expense-approvals/internal/core/user"
	"github.com/frahmantamala/expense-approvals/internal/user"
	userPostgres "github.com/frahmantamala/expense-approvals/internal/user/postgres"
	"gorm.io/gorm"
)

// Repository reads users through the user repository and owns the signup
// transaction.
type Repository struct {
	user.RepositoryAPI
	db *gorm.DB
}

func NewRepository(db *gorm.DB) auth.RepositoryAPI {
	return &Repository{
		RepositoryAPI: userPostgres.NewUserRepository(db),
		db:            db,
	}
}

func (r *Repository) CreateCompanyWithAdmin(ctx context.Context, company *coreuser.Company, admin *user.User) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c := &companyDatamodel.Company{
			Name:     company.Name,
			Country:  company.Country,
			Currency: company.Currency,
		}
		if err := tx.Create(c).Error; err != nil {
			return err
		}

		admin.CompanyID = c.ID
		row := user.ToDataModel(admin)
		if err := tx.Create(row).Error; err != nil {
			return err
		}

		company.ID = c.ID
		admin.ID = row.ID
		admin.CreatedAt = row.CreatedAt
		admin.UpdatedAt = row.UpdatedAt
		return nil
	})
}
