package internal_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"testing"

	"github.com/frahmantamala/expense-approvals/internal"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestInternal(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Internal Suite")
}

func setenv(key, value string) {
	Expect(os.Setenv(key, value)).To(Succeed())
	DeferCleanup(os.Unsetenv, key)
}

func validConfig() *internal.Config {
	cfg := internal.LoadConfigFromEnv()
	cfg.Database.Source = "postgres://localhost/expense_approvals"
	cfg.Security.AccessTokenSecret = "access-secret-access-secret-0123"
	cfg.Security.RefreshTokenSecret = "refresh-secret-refresh-secret-01"
	return cfg
}

var _ = Describe("Config", func() {
	It("accepts a complete configuration", func() {
		Expect(validConfig().Validate()).To(Succeed())
	})

	It("reads currency rates and mail settings from the environment", func() {
		setenv("CURRENCY_RATES", "inr=1, usd = 83 ,bogus")
		setenv("MAIL_SENDER", "smtp")
		setenv("SMTP_HOST", "mail.internal")
		setenv("APPROVAL_COMMIT_RETRIES", "5")

		cfg := internal.LoadConfigFromEnv()
		Expect(cfg.Currency.Rates).To(Equal(map[string]string{"INR": "1", "USD": "83"}))
		Expect(cfg.Notification.Sender).To(Equal("smtp"))
		Expect(cfg.Notification.SMTP.Host).To(Equal("mail.internal"))
		Expect(cfg.Approval.CommitRetries).To(Equal(5))
	})

	It("collects every invalid section", func() {
		cfg := validConfig()
		cfg.Database.Source = ""
		cfg.Security.RefreshTokenSecret = cfg.Security.AccessTokenSecret
		cfg.Logging.Level = "verbose"

		err := cfg.Validate()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("database config: source is required"))
		Expect(err.Error()).To(ContainSubstring("secrets must differ"))
		Expect(err.Error()).To(ContainSubstring(`unknown level "verbose"`))
	})

	It("requires an smtp host for the smtp sender", func() {
		cfg := validConfig()
		cfg.Notification.Sender = "smtp"
		cfg.Notification.SMTP.Host = ""
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("smtp.host is required")))

		cfg.Notification.Sender = "pigeon"
		Expect(cfg.Validate()).To(MatchError(ContainSubstring(`unknown sender "pigeon"`)))
	})
})

var _ = Describe("AppError", func() {
	It("renders the error envelope", func() {
		status, body := internal.ErrExpenseNotFound.ToHTTPResponse()
		Expect(status).To(Equal(http.StatusNotFound))

		raw, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(raw)).To(MatchJSON(`{"error":{"type":"NOT_FOUND","code":"EXPENSE_NOT_FOUND","message":"Expense not found"}}`))
	})

	It("is found through wrapping and keeps sentinels untouched", func() {
		cause := errors.New("db down")
		wrapped := fmt.Errorf("loading: %w", internal.ErrUserNotFound.WithCause(cause))

		appErr, ok := internal.IsAppError(wrapped)
		Expect(ok).To(BeTrue())
		Expect(appErr.Code).To(Equal(internal.ErrCodeUserNotFound))
		Expect(errors.Is(wrapped, cause)).To(BeTrue())
		Expect(internal.ErrUserNotFound.Cause).To(BeNil())
	})

	It("reports the first field failure as its message", func() {
		err := internal.NewValidationError("Validation failed", internal.ErrCodeValidationFailed).
			WithDetails(internal.ValidationErrors{Errors: []internal.ValidationError{
				{Field: "amount", Message: "amount must be positive"},
				{Field: "currency", Message: "currency is required"},
			}})
		Expect(err.Error()).To(Equal("amount must be positive"))
		Expect(err.GetDetailedMessage()).To(Equal("amount must be positive; currency is required"))
	})
})
