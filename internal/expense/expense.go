package expense

import (
	"errors"
	"time"

	"github.com/frahmantamala/expense-approvals/internal/approval"
	expenseDatamodel "github.com/frahmantamala/expense-approvals/internal/core/datamodel/expense"
	"github.com/shopspring/decimal"
)

type Expense struct {
	ID                      int64           `json:"id"`
	CompanyID               int64           `json:"company_id"`
	EmployeeID              int64           `json:"employee_id"`
	Description             string          `json:"description"`
	Category                string          `json:"category"`
	SpendDate               time.Time       `json:"spend_date"`
	PaidBy                  string          `json:"paid_by"`
	Remarks                 string          `json:"remarks"`
	Amount                  decimal.Decimal `json:"amount"`
	Currency                string          `json:"currency"`
	AmountCompanyCcy        decimal.Decimal `json:"amount_company_ccy"`
	CompanyCurrency         string          `json:"company_currency"`
	ConversionRate          decimal.Decimal `json:"conversion_rate"`
	LowConfidenceConversion bool            `json:"low_confidence_conversion"`
	Status                  approval.Status `json:"status"`
	SubmittedAt             time.Time       `json:"submitted_at"`
	ResolvedAt              *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

// Record pairs an expense with its approval state.
type Record struct {
	Expense *Expense
	State   *approval.State
}

const TimelineSubmitted = "submitted"

type TimelineEvent struct {
	At       time.Time `json:"at"`
	ByUserID int64     `json:"by_user_id"`
	Decision string    `json:"decision"`
	Comment  string    `json:"comment"`
}

// Detail is the expense as shown on its own page.
type Detail struct {
	*Expense
	Route             []approval.Approver `json:"route"`
	StepIndex         int                 `json:"step_index"`
	EligibleApprovers []int64             `json:"eligible_approvers"`
	Timeline          []TimelineEvent     `json:"timeline"`
}

// ApprovalTask is one row of an approver's queue.
type ApprovalTask struct {
	ExpenseID         int64           `json:"expense_id"`
	StepOrder         int             `json:"step_order"`
	Decision          string          `json:"decision"`
	Comment           string          `json:"comment"`
	CreatedAt         time.Time       `json:"created_at"`
	Description       string          `json:"description"`
	Category          string          `json:"category"`
	Amount            decimal.Decimal `json:"amount"`
	SubmittedCurrency string          `json:"submitted_currency"`
	AmountCompanyCcy  decimal.Decimal `json:"amount_company_ccy"`
	CompanyCurrency   string          `json:"company_currency"`
	OwnerID           int64           `json:"owner_id"`
	OwnerName         string          `json:"owner_name"`
	// Override marks tasks the caller sees only as the flow's specific approver.
	Override bool `json:"override"`
}

// Domain errors
var (
	ErrExpenseNotFound    = errors.New("expense not found")
	ErrUnauthorizedAccess = errors.New("unauthorized access to expense")
	ErrVersionConflict    = errors.New("approval record changed concurrently")
	ErrConcurrentUpdate   = errors.New("expense is being decided concurrently, retry")
	ErrEmployeeNotFound   = errors.New("employee not found")
)

// BuildTimeline lists the submission followed by every decision in the order
// it was recorded.
func BuildTimeline(e *Expense, s *approval.State) []TimelineEvent {
	timeline := make([]TimelineEvent, 0, len(s.DecisionOrder)+1)
	timeline = append(timeline, TimelineEvent{
		At:       e.SubmittedAt,
		ByUserID: e.EmployeeID,
		Decision: TimelineSubmitted,
		Comment:  e.Remarks,
	})
	for _, id := range s.DecisionOrder {
		rec := s.Decisions[id]
		timeline = append(timeline, TimelineEvent{
			At:       rec.At,
			ByUserID: id,
			Decision: string(rec.Decision),
			Comment:  rec.Comment,
		})
	}
	return timeline
}

func NewDetail(e *Expense, s *approval.State) *Detail {
	eligible := approval.EligibleApprovers(s)
	if eligible == nil {
		eligible = []int64{}
	}
	return &Detail{
		Expense:           e,
		Route:             s.Route,
		StepIndex:         s.StepIndex,
		EligibleApprovers: eligible,
		Timeline:          BuildTimeline(e, s),
	}
}

func ToDataModel(e *Expense) *expenseDatamodel.Expense {
	return &expenseDatamodel.Expense{
		ID:                      e.ID,
		CompanyID:               e.CompanyID,
		EmployeeID:              e.EmployeeID,
		Description:             e.Description,
		Category:                e.Category,
		SpendDate:               e.SpendDate,
		PaidBy:                  e.PaidBy,
		Remarks:                 e.Remarks,
		Amount:                  e.Amount,
		Currency:                e.Currency,
		AmountCompanyCcy:        e.AmountCompanyCcy,
		CompanyCurrency:         e.CompanyCurrency,
		ConversionRate:          e.ConversionRate,
		LowConfidenceConversion: e.LowConfidenceConversion,
		Status:                  string(e.Status),
		SubmittedAt:             e.SubmittedAt,
		ResolvedAt:              e.ResolvedAt,
		CreatedAt:               e.CreatedAt,
		UpdatedAt:               e.UpdatedAt,
	}
}

func FromDataModel(e *expenseDatamodel.Expense) *Expense {
	return &Expense{
		ID:                      e.ID,
		CompanyID:               e.CompanyID,
		EmployeeID:              e.EmployeeID,
		Description:             e.Description,
		Category:                e.Category,
		SpendDate:               e.SpendDate,
		PaidBy:                  e.PaidBy,
		Remarks:                 e.Remarks,
		Amount:                  e.Amount,
		Currency:                e.Currency,
		AmountCompanyCcy:        e.AmountCompanyCcy,
		CompanyCurrency:         e.CompanyCurrency,
		ConversionRate:          e.ConversionRate,
		LowConfidenceConversion: e.LowConfidenceConversion,
		Status:                  approval.Status(e.Status),
		SubmittedAt:             e.SubmittedAt,
		ResolvedAt:              e.ResolvedAt,
		CreatedAt:               e.CreatedAt,
		UpdatedAt:               e.UpdatedAt,
	}
}

func FromDataModelSlice(expenses []*expenseDatamodel.Expense) []*Expense {
	result := make([]*Expense, len(expenses))
	for i, e := range expenses {
		result[i] = FromDataModel(e)
	}
	return result
}

func ApprovalToDataModel(companyID int64, s *approval.State) *expenseDatamodel.ExpenseApproval {
	return &expenseDatamodel.ExpenseApproval{
		ExpenseID:     s.ExpenseID,
		CompanyID:     companyID,
		EmployeeID:    s.EmployeeID,
		ManagerID:     s.ManagerID,
		Flow:          s.Flow,
		Route:         s.Route,
		StepIndex:     s.StepIndex,
		Decisions:     s.Decisions,
		DecisionOrder: s.DecisionOrder,
		Status:        string(s.Status),
		Version:       s.Version,
		ResolvedAt:    s.ResolvedAt,
	}
}

func ApprovalFromDataModel(a *expenseDatamodel.ExpenseApproval) *approval.State {
	decisions := a.Decisions
	if decisions == nil {
		decisions = make(map[int64]approval.DecisionRecord)
	}
	return &approval.State{
		ExpenseID:     a.ExpenseID,
		EmployeeID:    a.EmployeeID,
		ManagerID:     a.ManagerID,
		Flow:          a.Flow,
		Route:         a.Route,
		StepIndex:     a.StepIndex,
		Decisions:     decisions,
		DecisionOrder: a.DecisionOrder,
		Status:        approval.Status(a.Status),
		Version:       a.Version,
		ResolvedAt:    a.ResolvedAt,
	}
}
