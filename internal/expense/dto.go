package expense

import (
	"strings"
	"time"

	"github.com/frahmantamala/expense-approvals/internal"
	"github.com/frahmantamala/expense-approvals/internal/approval"
	"github.com/frahmantamala/expense-approvals/internal/core/common/validation"
	"github.com/shopspring/decimal"
)

const spendDateLayout = "2006-01-02"

var maxAmount = decimal.RequireFromString("999999999999.99")

// SubmitExpenseDTO represents the request payload for submitting an expense
type SubmitExpenseDTO struct {
	Description string          `json:"description"`
	Category    string          `json:"category"`
	SpendDate   string          `json:"spend_date"`
	PaidBy      string          `json:"paid_by"`
	Remarks     string          `json:"remarks"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
}

func (dto *SubmitExpenseDTO) Normalize() {
	dto.Description = strings.TrimSpace(dto.Description)
	dto.Category = strings.TrimSpace(dto.Category)
	dto.SpendDate = strings.TrimSpace(dto.SpendDate)
	dto.PaidBy = strings.TrimSpace(dto.PaidBy)
	dto.Remarks = strings.TrimSpace(dto.Remarks)
	dto.Currency = strings.ToUpper(strings.TrimSpace(dto.Currency))
}

// ParsedSpendDate accepts a plain date or an RFC 3339 timestamp.
func (dto SubmitExpenseDTO) ParsedSpendDate() (time.Time, error) {
	if t, err := time.Parse(spendDateLayout, dto.SpendDate); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, dto.SpendDate)
}

func (dto SubmitExpenseDTO) Validate() *internal.AppError {
	v := validation.NewValidator()

	v.Field("description", dto.Description).Required().MaxLength(500)
	v.Field("category", dto.Category).Required().MaxLength(100)
	v.Field("paid_by", dto.PaidBy).MaxLength(100)
	v.Field("remarks", dto.Remarks).MaxLength(1000)
	v.Field("amount", dto.Amount).
		Required().
		Positive(internal.ErrCodeInvalidAmount).
		MaxDecimal(maxAmount, internal.ErrCodeAmountTooHigh).
		Custom(func(value interface{}) *internal.AppError {
			if d := value.(decimal.Decimal); !d.Equal(d.Round(2)) {
				return internal.NewValidationFieldError("amount", "amount must have at most 2 decimal places", internal.ErrCodeInvalidAmount)
			}
			return nil
		})
	v.Field("currency", dto.Currency).Required().Custom(func(value interface{}) *internal.AppError {
		code := value.(string)
		if len(code) != 3 || strings.ToUpper(code) != code || strings.Trim(code, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") != "" {
			return internal.NewValidationFieldError("currency", "currency must be a 3-letter ISO code", internal.ErrCodeInvalidCurrency)
		}
		return nil
	})
	v.Field("spend_date", dto.SpendDate).Required().Custom(func(value interface{}) *internal.AppError {
		t, err := dto.ParsedSpendDate()
		if err != nil {
			return internal.NewValidationFieldError("spend_date", "spend_date must be a YYYY-MM-DD date", internal.ErrCodeInvalidDate)
		}
		if t.After(time.Now()) {
			return internal.NewValidationFieldError("spend_date", "spend_date cannot be in the future", internal.ErrCodeInvalidDate)
		}
		return nil
	})

	return v.Validate()
}

// DecisionDTO is the body of POST /approvals/{expenseID}.
type DecisionDTO struct {
	Decision string `json:"decision"`
	Comment  string `json:"comment"`
}

func (dto *DecisionDTO) Normalize() {
	dto.Decision = strings.ToLower(strings.TrimSpace(dto.Decision))
	dto.Comment = strings.TrimSpace(dto.Comment)
}

func (dto DecisionDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("decision", dto.Decision).
		Required().
		OneOf([]string{string(approval.DecisionApproved), string(approval.DecisionRejected)}, internal.ErrCodeInvalidDecision)
	v.Field("comment", dto.Comment).MaxLength(1000)
	return v.Validate()
}

type ExpensesResponse struct {
	Expenses []*Expense `json:"expenses"`
	Limit    int        `json:"limit"`
	Offset   int        `json:"offset"`
}

type QueueResponse struct {
	Tasks []*ApprovalTask `json:"tasks"`
}

type ApproversResponse struct {
	ExpenseID         int64   `json:"expense_id"`
	EligibleApprovers []int64 `json:"eligible_approvers"`
}

type DecisionResponse struct {
	ExpenseID         int64           `json:"expense_id"`
	Status            approval.Status `json:"status"`
	StepIndex         int             `json:"step_index"`
	EligibleApprovers []int64         `json:"eligible_approvers"`
}
