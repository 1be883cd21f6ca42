package expense

import (
	"time"

	"github.com/frahmantamala/expense-approvals/internal/approval"
	"github.com/shopspring/decimal"
)

type Expense struct {
	ID                      int64           `gorm:"primaryKey"`
	CompanyID               int64           `gorm:"column:company_id;not null;index"`
	EmployeeID              int64           `gorm:"column:employee_id;not null;index"`
	Description             string          `gorm:"column:description;not null"`
	Category                string          `gorm:"column:category;not null"`
	SpendDate               time.Time       `gorm:"column:spend_date"`
	PaidBy                  string          `gorm:"column:paid_by"`
	Remarks                 string          `gorm:"column:remarks"`
	Amount                  decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency                string          `gorm:"column:currency;not null"`
	AmountCompanyCcy        decimal.Decimal `gorm:"column:amount_company_ccy;type:numeric(14,2);not null"`
	CompanyCurrency         string          `gorm:"column:company_currency;not null"`
	ConversionRate          decimal.Decimal `gorm:"column:conversion_rate;type:numeric(20,8);not null"`
	LowConfidenceConversion bool            `gorm:"column:low_confidence_conversion"`
	Status                  string          `gorm:"column:status;not null;index"`
	SubmittedAt             time.Time       `gorm:"column:submitted_at"`
	ResolvedAt              *time.Time      `gorm:"column:resolved_at"`
	CreatedAt               time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Expense) TableName() string {
	return "expenses"
}

// ExpenseApproval is the approval record of one expense. Version guards every
// update so that concurrent writers cannot overwrite each other.
type ExpenseApproval struct {
	ExpenseID     int64                             `gorm:"column:expense_id;primaryKey;autoIncrement:false"`
	CompanyID     int64                             `gorm:"column:company_id;not null;index"`
	EmployeeID    int64                             `gorm:"column:employee_id;not null"`
	ManagerID     *int64                            `gorm:"column:manager_id"`
	Flow          approval.FlowConfig               `gorm:"column:flow_snapshot;type:text;serializer:json"`
	Route         []approval.Approver               `gorm:"column:route;type:text;serializer:json"`
	StepIndex     int                               `gorm:"column:step_index"`
	Decisions     map[int64]approval.DecisionRecord `gorm:"column:decisions;type:text;serializer:json"`
	DecisionOrder []int64                           `gorm:"column:decision_order;type:text;serializer:json"`
	Status        string                            `gorm:"column:status;not null;index"`
	Version       int64                             `gorm:"column:version;not null"`
	ResolvedAt    *time.Time                        `gorm:"column:resolved_at"`
	CreatedAt     time.Time                         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                         `gorm:"column:updated_at;autoUpdateTime"`
}

func (ExpenseApproval) TableName() string {
	return "expense_approvals"
}
