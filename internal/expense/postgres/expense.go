package postgres

import (
	"context"
	"errors"

	"github.com/frahmantamala/expense-approvals/internal/approval"
	expenseDatamodel "github.com/frahmantamala/expense-approvals/internal/core/datamodel/expense"
	"github.com/frahmantamala/expense-approvals/internal/expense"
	"gorm.io/gorm"
)

type ExpenseRepository struct {
	db *gorm.DB
}

func NewExpenseRepository(db *gorm.DB) expense.Repository {
	return &ExpenseRepository{db: db}
}

func (r *ExpenseRepository) Create(ctx context.Context, e *expense.Expense, s *approval.State) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := expense.ToDataModel(e)
		if err := tx.Create(row).Error; err != nil {
			return err
		}

		s.ExpenseID = row.ID
		if err := tx.Create(expense.ApprovalToDataModel(row.CompanyID, s)).Error; err != nil {
			return err
		}

		e.ID = row.ID
		e.CreatedAt = row.CreatedAt
		e.UpdatedAt = row.UpdatedAt
		return nil
	})
}

func (r *ExpenseRepository) GetByID(ctx context.Context, id int64) (*expense.Expense, error) {
	var row expenseDatamodel.Expense
	if err := r.db.WithContext(ctx).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, expense.ErrExpenseNotFound
		}
		return nil, err
	}
	return expense.FromDataModel(&row), nil
}

func (r *ExpenseRepository) GetApproval(ctx context.Context, expenseID int64) (*approval.State, error) {
	var row expenseDatamodel.ExpenseApproval
	if err := r.db.WithContext(ctx).Where("expense_id = ?", expenseID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, expense.ErrExpenseNotFound
		}
		return nil, err
	}
	return expense.ApprovalFromDataModel(&row), nil
}

// CompareAndSwapApproval writes the approval row guarded by its version and
// mirrors the outcome onto the expense row in the same transaction.
func (r *ExpenseRepository) CompareAndSwapApproval(ctx context.Context, s *approval.State, expectedVersion int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := expense.ApprovalToDataModel(0, s)
		res := tx.Model(row).
			Where("version = ?", expectedVersion).
			Select("step_index", "decisions", "decision_order", "status", "version", "resolved_at", "updated_at").
			Updates(row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return expense.ErrVersionConflict
		}

		return tx.Model(&expenseDatamodel.Expense{ID: s.ExpenseID}).
			Select("status", "resolved_at", "updated_at").
			Updates(&expenseDatamodel.Expense{
				Status:     string(s.Status),
				ResolvedAt: s.ResolvedAt,
			}).Error
	})
}

func (r *ExpenseRepository) ListByEmployee(ctx context.Context, employeeID int64, limit, offset int) ([]*expense.Expense, error) {
	var rows []*expenseDatamodel.Expense
	err := r.db.WithContext(ctx).
		Where("employee_id = ?", employeeID).
		Order("submitted_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return expense.FromDataModelSlice(rows), nil
}

func (r *ExpenseRepository) ListWaitingByCompany(ctx context.Context, companyID int64) ([]*expense.Record, error) {
	var approvals []*expenseDatamodel.ExpenseApproval
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND status = ?", companyID, string(approval.StatusWaiting)).
		Order("expense_id ASC").
		Find(&approvals).Error
	if err != nil || len(approvals) == 0 {
		return nil, err
	}

	ids := make([]int64, len(approvals))
	for i, a := range approvals {
		ids[i] = a.ExpenseID
	}
	var rows []*expenseDatamodel.Expense
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[int64]*expenseDatamodel.Expense, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	records := make([]*expense.Record, 0, len(approvals))
	for _, a := range approvals {
		row, ok := byID[a.ExpenseID]
		if !ok {
			continue
		}
		records = append(records, &expense.Record{
			Expense: expense.FromDataModel(row),
			State:   expense.ApprovalFromDataModel(a),
		})
	}
	return records, nil
}
