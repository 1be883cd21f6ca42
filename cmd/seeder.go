package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/frahmantamala/expense-approvals/internal/approval"
	"github.com/frahmantamala/expense-approvals/internal/category"
	categoryPostgres "github.com/frahmantamala/expense-approvals/internal/category/postgres"
	companyDatamodel "github.com/frahmantamala/expense-approvals/internal/core/datamodel/company"
	flowDatamodel "github.com/frahmantamala/expense-approvals/internal/core/datamodel/flow"
	userDatamodel "github.com/frahmantamala/expense-approvals/internal/core/datamodel/user"
	coreuser "github.com/frahmantamala/expense-approvals/internal/core/user"
	"github.com/frahmantamala/expense-approvals/pkg/logger"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	seedCompanyName = "Hack Co"
	seedPassword    = "password"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed a demo company with an admin, a manager, an employee, the default categories and an approval flow.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		lg := logger.Init(cfg.Logging.Level, cfg.Logging.Format)

		db, err := initDB(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}
		defer db.Close()
		gdb, err := initGorm(db)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		created, err := category.NewService(categoryPostgres.NewCategoryRepository(gdb), lg).EnsureDefaults(ctx)
		if err != nil {
			return fmt.Errorf("failed to seed categories: %w", err)
		}
		lg.Info("seeded expense categories", "created", created)

		hash, err := bcrypt.GenerateFromPassword([]byte(seedPassword), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		return gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			company := companyDatamodel.Company{Name: seedCompanyName, Country: "IN", Currency: "INR"}
			if err := tx.Where("name = ?", company.Name).FirstOrCreate(&company).Error; err != nil {
				return fmt.Errorf("failed to seed company: %w", err)
			}

			admin, err := seedUser(tx, company.ID, "admin@hackco.test", "Asha Admin", coreuser.RoleAdmin, nil, string(hash))
			if err != nil {
				return err
			}
			manager, err := seedUser(tx, company.ID, "manager@hackco.test", "Mira Manager", coreuser.RoleManager, nil, string(hash))
			if err != nil {
				return err
			}
			employee, err := seedUser(tx, company.ID, "employee@hackco.test", "Ravi Employee", coreuser.RoleEmployee, &manager.ID, string(hash))
			if err != nil {
				return err
			}

			var existing flowDatamodel.ApprovalFlow
			err = tx.Where("company_id = ?", company.ID).First(&existing).Error
			switch {
			case err == nil:
				lg.Info("approval flow already exists", "company_id", company.ID)
			case errors.Is(err, gorm.ErrRecordNotFound):
				f := flowDatamodel.ApprovalFlow{
					CompanyID:       company.ID,
					Name:            "Default",
					Description:     "Manager first, then the admin",
					IsManagerFirst:  true,
					SequenceEnabled: true,
					Approvers:       []approval.Approver{{UserID: admin.ID, Required: true}},
					RejectionPolicy: string(approval.RejectionVeto),
					UpdatedBy:       &admin.ID,
				}
				if err := tx.Create(&f).Error; err != nil {
					return fmt.Errorf("failed to seed approval flow: %w", err)
				}
			default:
				return err
			}

			lg.Info("seeded demo company",
				"company", company.Name,
				"admin", admin.Email,
				"manager", manager.Email,
				"employee", employee.Email,
				"password", seedPassword)
			return nil
		})
	},
}

func seedUser(tx *gorm.DB, companyID int64, email, name string, role coreuser.Role, managerID *int64, hash string) (*userDatamodel.User, error) {
	u := userDatamodel.User{
		CompanyID:    companyID,
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         string(role),
		ManagerID:    managerID,
		IsActive:     true,
	}
	if err := tx.Where("email = ?", email).FirstOrCreate(&u).Error; err != nil {
		return nil, fmt.Errorf("failed to seed user %s: %w", email, err)
	}
	return &u, nil
}
