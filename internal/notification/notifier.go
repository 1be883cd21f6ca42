// Package notification turns domain events into mails and delivers them from a
// worker pool.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/frahmantamala/expense-approvals/internal/core/events"
	coreuser "github.com/frahmantamala/expense-approvals/internal/core/user"
)

type Directory interface {
	GetMember(ctx context.Context, id int64) (*coreuser.Member, error)
}

type Outbox interface {
	Enqueue(m Mail) error
}

type Notifier struct {
	outbox     Outbox
	directory  Directory
	translator *Translator
	baseURL    string
	logger     *slog.Logger
}

func NewNotifier(outbox Outbox, directory Directory, translator *Translator, baseURL string, logger *slog.Logger) *Notifier {
	return &Notifier{
		outbox:     outbox,
		directory:  directory,
		translator: translator,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

// Register subscribes the notifier to every event it mails about.
func (n *Notifier) Register(bus *events.EventBus) {
	for _, t := range []string{
		events.EventTypeExpenseSubmitted,
		events.EventTypeExpenseStepAdvanced,
		events.EventTypeExpenseApproved,
		events.EventTypeExpenseRejected,
	} {
		bus.Subscribe(t, n.HandleExpenseEvent)
	}
	bus.Subscribe(events.EventTypeUserPasswordIssued, n.HandlePasswordIssued)
}

func (n *Notifier) HandleExpenseEvent(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.ExpenseEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	key := strings.TrimPrefix(e.EventType(), "expense.")
	owner := n.nameOf(ctx, e.EmployeeID)

	var failed int
	for _, id := range e.Recipients {
		recipient, err := n.directory.GetMember(ctx, id)
		if err != nil || !recipient.IsActive || recipient.Email == "" {
			n.logger.Warn("skipping notification recipient", "user_id", id, "expense_id", e.ExpenseID)
			continue
		}

		data := map[string]any{
			"Name":        recipient.Name,
			"Owner":       owner,
			"ExpenseID":   e.ExpenseID,
			"Description": e.Description,
			"Category":    e.Category,
			"Amount":      e.Amount,
			"Currency":    e.Currency,
			"Comment":     e.Comment,
			"Link":        fmt.Sprintf("%s/expenses/%d", n.baseURL, e.ExpenseID),
		}
		mail := Mail{
			To:      recipient.Email,
			Subject: n.translator.T("expense."+key+".subject", data),
			Body:    n.translator.T("expense."+key+".body", data),
			Kind:    e.EventType(),
		}
		if err := n.outbox.Enqueue(mail); err != nil {
			failed++
			n.logger.Error("failed to queue expense mail", "user_id", id, "expense_id", e.ExpenseID, "error", err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d expense mails not queued", failed, len(e.Recipients))
	}
	return nil
}

func (n *Notifier) HandlePasswordIssued(_ context.Context, event events.Event) error {
	e, ok := event.(*events.UserPasswordIssuedEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	reason := e.Reason
	switch reason {
	case events.PasswordReasonCreated, events.PasswordReasonResent, events.PasswordReasonForgot:
	default:
		reason = events.PasswordReasonResent
	}

	data := map[string]any{
		"Name":     e.Name,
		"Email":    e.Email,
		"Password": e.TemporaryPassword,
		"Link":     n.baseURL + "/login",
	}
	return n.outbox.Enqueue(Mail{
		To:      e.Email,
		Subject: n.translator.T("password."+reason+".subject", data),
		Body:    n.translator.T("password."+reason+".body", data),
		Kind:    e.EventType(),
	})
}

func (n *Notifier) nameOf(ctx context.Context, id int64) string {
	if m, err := n.directory.GetMember(ctx, id); err == nil && m.Name != "" {
		return m.Name
	}
	return "An employee"
}
