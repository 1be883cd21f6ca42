package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"testing"

	"github.com/frahmantamala/expense-approvals/internal/auth"
	authPostgres "github.com/frahmantamala/expense-approvals/internal/auth/postgres"
	"github.com/frahmantamala/expense-approvals/internal/category"
	categoryPostgres "github.com/frahmantamala/expense-approvals/internal/category/postgres"
	categoryDatamodel "github.com/frahmantamala/expense-approvals/internal/core/datamodel/category"
	companyDatamodel "github.com/frahmantamala/expense-approvals/internal/core/datamodel/company"
	expenseDatamodel "github.com/frahmantamala/expense-approvals/internal/core/datamodel/expense"
	flowDatamodel "github.com/frahmantamala/expense-approvals/internal/core/datamodel/flow"
	userDatamodel "github.com/frahmantamala/expense-approvals/internal/core/datamodel/user"
	"github.com/frahmantamala/expense-approvals/internal/core/events"
	"github.com/frahmantamala/expense-approvals/internal/currency"
	"github.com/frahmantamala/expense-approvals/internal/expense"
	expensePostgres "github.com/frahmantamala/expense-approvals/internal/expense/postgres"
	"github.com/frahmantamala/expense-approvals/internal/flow"
	flowPostgres "github.com/frahmantamala/expense-approvals/internal/flow/postgres"
	"github.com/frahmantamala/expense-approvals/internal/transport"
	"github.com/frahmantamala/expense-approvals/internal/transport/rest"
	"github.com/frahmantamala/expense-approvals/internal/user"
	userPostgres "github.com/frahmantamala/expense-approvals/internal/user/postgres"
	"github.com/go-chi/chi"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestRest(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "REST Suite")
}

type passwordInbox struct {
	mu        sync.Mutex
	passwords map[string]string
}

func (p *passwordInbox) handle(_ context.Context, e events.Event) error {
	evt := e.(*events.UserPasswordIssuedEvent)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.passwords[evt.Email] = evt.TemporaryPassword
	return nil
}

func (p *passwordInbox) get(email string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.passwords[email]
}

var _ = Describe("API routes", func() {
	var (
		router *chi.Mux
		bus    *events.EventBus
		inbox  *passwordInbox
	)

	BeforeEach(func() {
		ctx := context.Background()
		slogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

		gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())
		sqlDB, err := gdb.DB()
		Expect(err).NotTo(HaveOccurred())
		sqlDB.SetMaxOpenConns(1)
		Expect(gdb.AutoMigrate(
			&companyDatamodel.Company{},
			&userDatamodel.User{},
			&categoryDatamodel.ExpenseCategory{},
			&flowDatamodel.ApprovalFlow{},
			&expenseDatamodel.Expense{},
			&expenseDatamodel.ExpenseApproval{},
		)).To(Succeed())
		xdb := sqlx.NewDb(sqlDB, "sqlite3")

		bus = events.NewEventBus(slogger)
		inbox = &passwordInbox{passwords: map[string]string{}}
		bus.Subscribe(events.EventTypeUserPasswordIssued, inbox.handle)

		converter := currency.NewConverter(currency.RateTable{
			"INR": decimal.NewFromInt(1),
			"USD": decimal.NewFromInt(85),
		})
		userService := user.NewService(userPostgres.NewUserRepository(gdb), bus, bcrypt.MinCost, slogger)
		authService := auth.NewService(
			authPostgres.NewRepository(gdb),
			auth.NewJWTTokenGenerator("access-secret-access-secret-0123", "refresh-secret-refresh-secret-01", 0, 0),
			userService,
			converter,
			bcrypt.MinCost,
			slogger,
		)
		categoryService := category.NewService(categoryPostgres.NewCategoryRepository(gdb), slogger)
		_, err = categoryService.EnsureDefaults(ctx)
		Expect(err).NotTo(HaveOccurred())
		flowService := flow.NewService(flowPostgres.NewFlowRepository(gdb), userService, slogger)
		expenseService := expense.NewService(expense.Dependencies{
			Repo:       expensePostgres.NewExpenseRepository(gdb),
			Directory:  userService,
			Flows:      flowService,
			Categories: categoryService,
			Converter:  converter,
			Publisher:  bus,
		}, slogger)

		base := transport.NewBaseHandler(slogger)
		router = chi.NewRouter()
		rest.RegisterAllRoutes(router, rest.Handlers{
			Health:     rest.NewHealthHandler(base, xdb),
			Auth:       auth.NewHandler(base, authService),
			RBAC:       auth.NewRBACAuthorization(slogger),
			ExpenseACL: auth.NewExpenseScope(base, xdb),
			Users:      user.NewHandler(base, userService),
			Categories: category.NewHandler(base, categoryService),
			Flows:      flow.NewHandler(base, flowService),
			Expenses:   expense.NewHandler(base, expenseService),
			Origins:    "*",
		}, slogger)
	})

	AfterEach(func() {
		bus.Wait()
	})

	call := func(method, path, token string, body interface{}) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, "/api/v1"+path, &buf)
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	decode := func(w *httptest.ResponseRecorder, dst interface{}) {
		Expect(json.Unmarshal(w.Body.Bytes(), dst)).To(Succeed(), w.Body.String())
	}

	login := func(email, password string) auth.LoginResponse {
		w := call(http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": password})
		Expect(w.Code).To(Equal(http.StatusOK), w.Body.String())
		var resp auth.LoginResponse
		decode(w, &resp)
		return resp
	}

	createUser := func(token string, body map[string]interface{}) int64 {
		w := call(http.MethodPost, "/users", token, body)
		Expect(w.Code).To(Equal(http.StatusCreated), w.Body.String())
		var resp user.CreateUserResponse
		decode(w, &resp)
		bus.Wait()
		return resp.ID
	}

	It("answers health and ping without a token", func() {
		Expect(call(http.MethodGet, "/ping", "", nil).Code).To(Equal(http.StatusOK))

		w := call(http.MethodGet, "/health", "", nil)
		Expect(w.Code).To(Equal(http.StatusOK))
		var health rest.HealthResponse
		decode(w, &health)
		Expect(health.Status).To(Equal(rest.HealthHealthy))
		Expect(health.Components).To(HaveKey("database"))
	})

	It("requires a token for protected routes", func() {
		w := call(http.MethodGet, "/expenses/mine", "", nil)
		Expect(w.Code).To(Equal(http.StatusUnauthorized))
	})

	It("runs an expense through a manager-first flow end to end", func() {
		By("signing up a company")
		w := call(http.MethodPost, "/auth/signup", "", map[string]string{
			"company_name": "Hack Co",
			"country":      "in",
			"currency":     "inr",
			"name":         "Asha",
			"email":        "asha@hack.co",
			"password":     "supersecret",
		})
		Expect(w.Code).To(Equal(http.StatusCreated), w.Body.String())
		var signup auth.LoginResponse
		decode(w, &signup)
		adminToken := signup.AccessToken
		adminID := signup.User.ID
		Expect(signup.Company.Currency).To(Equal("INR"))

		By("adding a manager and an employee")
		managerID := createUser(adminToken, map[string]interface{}{"name": "Mira", "email": "mira@hack.co", "role": "manager"})
		createUser(adminToken, map[string]interface{}{"name": "Ravi", "email": "ravi@hack.co", "role": "employee", "manager_id": managerID})

		employee := login("ravi@hack.co", inbox.get("ravi@hack.co"))
		Expect(employee.ResetRequired).To(BeTrue())
		manager := login("mira@hack.co", inbox.get("mira@hack.co"))

		Expect(call(http.MethodGet, "/users", employee.AccessToken, nil).Code).To(Equal(http.StatusForbidden))

		By("saving a flow where the admin approves after the manager")
		w = call(http.MethodPut, "/flows/default", adminToken, map[string]interface{}{
			"is_manager_first": true,
			"sequence_enabled": true,
			"approvers":        []map[string]interface{}{{"user_id": adminID, "required": true}},
		})
		Expect(w.Code).To(Equal(http.StatusOK), w.Body.String())
		Expect(call(http.MethodPut, "/flows/default", manager.AccessToken, map[string]interface{}{}).Code).To(Equal(http.StatusForbidden))

		By("submitting an expense in a foreign currency")
		w = call(http.MethodPost, "/expenses", employee.AccessToken, map[string]interface{}{
			"description": "Conference ticket",
			"category":    "travel",
			"spend_date":  "2024-05-10",
			"amount":      "10",
			"currency":    "USD",
		})
		Expect(w.Code).To(Equal(http.StatusCreated), w.Body.String())
		var submitted struct {
			ID                int64           `json:"id"`
			Category          string          `json:"category"`
			AmountCompanyCcy  decimal.Decimal `json:"amount_company_ccy"`
			EligibleApprovers []int64         `json:"eligible_approvers"`
		}
		decode(w, &submitted)
		Expect(submitted.Category).To(Equal("Travel"))
		Expect(submitted.AmountCompanyCcy.Equal(decimal.NewFromInt(850))).To(BeTrue())
		Expect(submitted.EligibleApprovers).To(Equal([]int64{managerID}))
		decisionPath := "/approvals/" + strconv.FormatInt(submitted.ID, 10)

		By("letting the manager decide first")
		Expect(call(http.MethodPost, decisionPath, employee.AccessToken, map[string]string{"decision": "approved"}).Code).
			To(Equal(http.StatusForbidden))

		w = call(http.MethodPost, decisionPath, adminToken, map[string]string{"decision": "approved"})
		Expect(w.Code).To(Equal(http.StatusForbidden))

		w = call(http.MethodGet, "/approvals/queue", manager.AccessToken, nil)
		Expect(w.Code).To(Equal(http.StatusOK))
		var queue expense.QueueResponse
		decode(w, &queue)
		Expect(queue.Tasks).To(HaveLen(1))
		Expect(queue.Tasks[0].OwnerName).To(Equal("Ravi"))

		w = call(http.MethodPost, decisionPath, manager.AccessToken, map[string]string{"decision": "approved", "comment": "fine"})
		Expect(w.Code).To(Equal(http.StatusOK), w.Body.String())

		By("finishing with the admin")
		w = call(http.MethodPost, decisionPath, adminToken, map[string]string{"decision": "approved"})
		Expect(w.Code).To(Equal(http.StatusOK), w.Body.String())
		var decided expense.DecisionResponse
		decode(w, &decided)
		Expect(string(decided.Status)).To(Equal("approved"))

		w = call(http.MethodGet, "/expenses/"+strconv.FormatInt(submitted.ID, 10), employee.AccessToken, nil)
		Expect(w.Code).To(Equal(http.StatusOK))
		var detail struct {
			Status   string                  `json:"status"`
			Timeline []expense.TimelineEvent `json:"timeline"`
		}
		decode(w, &detail)
		Expect(detail.Status).To(Equal("approved"))
		Expect(detail.Timeline).To(HaveLen(3))
		Expect(detail.Timeline[1].ByUserID).To(Equal(managerID))

		Expect(call(http.MethodGet, "/expenses/999", employee.AccessToken, nil).Code).To(Equal(http.StatusNotFound))
	})

	It("keeps a manager in the role while an expense waits on them", func() {
		w := call(http.MethodPost, "/auth/signup", "", map[string]string{
			"company_name": "Hack Co",
			"country":      "IN",
			"currency":     "INR",
			"name":         "Asha",
			"email":        "asha@hack.co",
			"password":     "supersecret",
		})
		Expect(w.Code).To(Equal(http.StatusCreated), w.Body.String())
		var signup auth.LoginResponse
		decode(w, &signup)
		adminToken := signup.AccessToken

		managerID := createUser(adminToken, map[string]interface{}{"name": "Mira", "email": "mira@hack.co", "role": "manager"})
		employeeID := createUser(adminToken, map[string]interface{}{"name": "Ravi", "email": "ravi@hack.co", "role": "employee", "manager_id": managerID})
		employee := login("ravi@hack.co", inbox.get("ravi@hack.co"))
		manager := login("mira@hack.co", inbox.get("mira@hack.co"))

		w = call(http.MethodPost, "/expenses", employee.AccessToken, map[string]interface{}{
			"description": "Team lunch",
			"category":    "food",
			"spend_date":  "2024-05-10",
			"amount":      "1200",
			"currency":    "INR",
		})
		Expect(w.Code).To(Equal(http.StatusCreated), w.Body.String())
		var submitted struct {
			ID                int64   `json:"id"`
			EligibleApprovers []int64 `json:"eligible_approvers"`
		}
		decode(w, &submitted)
		Expect(submitted.EligibleApprovers).To(Equal([]int64{managerID}))

		managerPath := "/users/" + strconv.FormatInt(managerID, 10)
		w = call(http.MethodPatch, managerPath, adminToken, map[string]string{"role": "employee"})
		Expect(w.Code).To(Equal(http.StatusBadRequest), w.Body.String())
		var failure struct {
			Error struct {
				Details struct {
					Errors []struct {
						Field string `json:"field"`
						Code  string `json:"code"`
					} `json:"errors"`
				} `json:"details"`
			} `json:"error"`
		}
		decode(w, &failure)
		Expect(failure.Error.Details.Errors).To(HaveLen(1))
		Expect(failure.Error.Details.Errors[0].Field).To(Equal("role"))
		Expect(failure.Error.Details.Errors[0].Code).To(Equal("INVALID_ROLE"))

		w = call(http.MethodPost, "/approvals/"+strconv.FormatInt(submitted.ID, 10), manager.AccessToken, map[string]string{"decision": "approved"})
		Expect(w.Code).To(Equal(http.StatusOK), w.Body.String())
		var decided expense.DecisionResponse
		decode(w, &decided)
		Expect(string(decided.Status)).To(Equal("approved"))

		By("releasing the manager once nobody reports to them")
		Expect(call(http.MethodPatch, managerPath, adminToken, map[string]string{"role": "employee"}).Code).
			To(Equal(http.StatusBadRequest))
		w = call(http.MethodPatch, "/users/"+strconv.FormatInt(employeeID, 10), adminToken, map[string]interface{}{"manager_id": nil})
		Expect(w.Code).To(Equal(http.StatusOK), w.Body.String())
		w = call(http.MethodPatch, managerPath, adminToken, map[string]string{"role": "employee"})
		Expect(w.Code).To(Equal(http.StatusOK), w.Body.String())
	})
})
