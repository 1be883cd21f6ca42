package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/frahmantamala/expense-approvals/internal/core/events"
	"github.com/frahmantamala/expense-approvals/internal/user"
	userPostgres "github.com/frahmantamala/expense-approvals/internal/user/postgres"
	"github.com/frahmantamala/expense-approvals/pkg/logger"
	"github.com/spf13/cobra"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Publish approval events through the notifier to check mail templates and delivery`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish a test event",
	Long: `Publish a test event to the event bus with the notifier attached.
Supported types: expense.submitted, expense.step_advanced, expense.approved,
expense.rejected, user.password_issued`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return publishTestEvent(cmd.Context(), args[0])
	},
}

var (
	eventExpenseID  int64
	eventEmployeeID int64
	eventRecipients []int64
	eventComment    string
	eventEmail      string
	eventName       string
)

func buildTestEvent(eventType string) (events.Event, error) {
	switch eventType {
	case events.EventTypeExpenseSubmitted,
		events.EventTypeExpenseStepAdvanced,
		events.EventTypeExpenseApproved,
		events.EventTypeExpenseRejected:
		return events.NewExpenseEvent(eventType, events.ExpenseEvent{
			ExpenseID:   eventExpenseID,
			EmployeeID:  eventEmployeeID,
			Recipients:  eventRecipients,
			Description: "Test expense",
			Category:    "Miscellaneous",
			Amount:      "100.00",
			Currency:    "INR",
			Comment:     eventComment,
		}), nil
	case events.EventTypeUserPasswordIssued:
		if eventEmail == "" {
			return nil, fmt.Errorf("--email is required for %s", eventType)
		}
		return events.NewUserPasswordIssuedEvent(0, eventEmail, eventName, "test-password", events.PasswordReasonResent), nil
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
}

func publishTestEvent(ctx context.Context, eventType string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	evt, err := buildTestEvent(eventType)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.Init(cfg.Logging.Level, cfg.Logging.Format)

	db, err := initDB(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	gdb, err := initGorm(db)
	if err != nil {
		return err
	}

	bus := events.NewEventBus(lg)
	directory := user.NewService(userPostgres.NewUserRepository(gdb), bus, cfg.Security.BCryptCost, lg)
	mailer, err := initNotifications(cfg, directory, bus, lg)
	if err != nil {
		return err
	}

	lg.Info("publishing test event", "event_type", eventType, "event_id", evt.EventID())
	publishErr := bus.PublishSync(ctx, evt)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := mailer.Shutdown(shutdownCtx); err != nil {
		lg.Error("mailer shutdown error", "error", err)
	}
	if publishErr != nil {
		return publishErr
	}

	lg.Info("test event published successfully")
	return nil
}

func init() {
	publishEventCmd.Flags().Int64Var(&eventExpenseID, "expense-id", 1, "expense id carried by expense events")
	publishEventCmd.Flags().Int64Var(&eventEmployeeID, "employee-id", 0, "owner of the expense")
	publishEventCmd.Flags().Int64SliceVar(&eventRecipients, "recipient", nil, "user ids to notify (repeatable)")
	publishEventCmd.Flags().StringVar(&eventComment, "comment", "", "decision comment")
	publishEventCmd.Flags().StringVar(&eventEmail, "email", "", "recipient address for user.password_issued")
	publishEventCmd.Flags().StringVar(&eventName, "name", "", "recipient name for user.password_issued")

	eventCmd.AddCommand(publishEventCmd)

	rootCmd.AddCommand(eventCmd)
}
