package postgres

import (
	"context"
	"errors"

	flowDatamodel "github.com/frahmantamala/expense-approvals/internal/core/datamodel/flow"
	"github.com/frahmantamala/expense-approvals/internal/flow"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FlowRepository struct {
	db *gorm.DB
}

func NewFlowRepository(db *gorm.DB) flow.RepositoryAPI {
	return &FlowRepository{db: db}
}

func (r *FlowRepository) GetByCompany(ctx context.Context, companyID int64) (*flow.Flow, error) {
	var row flowDatamodel.ApprovalFlow
	err := r.db.WithContext(ctx).Where("company_id = ?", companyID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return flow.FromDataModel(&row), nil
}

// Upsert keeps one row per company.
func (r *FlowRepository) Upsert(ctx context.Context, f *flow.Flow) error {
	row := flow.ToDataModel(f)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "company_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "description", "is_manager_first", "sequence_enabled", "approvers",
			"percent_threshold", "specific_approver_id", "rejection_policy", "updated_by", "updated_at",
		}),
	}).Create(row).Error
	if err != nil {
		return err
	}
	f.UpdatedAt = row.UpdatedAt
	return nil
}
