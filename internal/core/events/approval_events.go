package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeExpenseSubmitted    = "expense.submitted"
	EventTypeExpenseStepAdvanced = "expense.step_advanced"
	EventTypeExpenseApproved     = "expense.approved"
	EventTypeExpenseRejected     = "expense.rejected"
)

// ExpenseEvent describes a change in an expense's approval. Recipients are the
// users who should hear about it: the approvers who just became eligible for
// submitted and step_advanced, the employee for approved and rejected.
type ExpenseEvent struct {
	BaseEvent
	ExpenseID   int64   `json:"expense_id"`
	CompanyID   int64   `json:"company_id"`
	EmployeeID  int64   `json:"employee_id"`
	ActorID     int64   `json:"actor_id,omitempty"`
	Recipients  []int64 `json:"recipients"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Amount      string  `json:"amount"`
	Currency    string  `json:"currency"`
	Comment     string  `json:"comment,omitempty"`
}

func NewExpenseEvent(eventType string, e ExpenseEvent) *ExpenseEvent {
	e.BaseEvent = BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"expense_id":  e.ExpenseID,
			"company_id":  e.CompanyID,
			"employee_id": e.EmployeeID,
			"actor_id":    e.ActorID,
			"recipients":  e.Recipients,
			"amount":      e.Amount,
			"currency":    e.Currency,
		},
	}
	return &e
}

const EventTypeUserPasswordIssued = "user.password_issued"

// Password issue reasons.
const (
	PasswordReasonCreated = "created"
	PasswordReasonResent  = "resent"
	PasswordReasonForgot  = "forgot"
)

// UserPasswordIssuedEvent carries a freshly generated temporary password to the
// mailer. It is never logged as a whole.
type UserPasswordIssuedEvent struct {
	BaseEvent
	UserID            int64  `json:"user_id"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	TemporaryPassword string `json:"-"`
	Reason            string `json:"reason"`
}

func NewUserPasswordIssuedEvent(userID int64, email, name, tempPassword, reason string) *UserPasswordIssuedEvent {
	return &UserPasswordIssuedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeUserPasswordIssued,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"user_id": userID,
				"reason":  reason,
			},
		},
		UserID:            userID,
		Email:             email,
		Name:              name,
		TemporaryPassword: tempPassword,
		Reason:            reason,
	}
}
