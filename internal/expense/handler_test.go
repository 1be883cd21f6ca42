package expense_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/frahmantamala/expense-approvals/internal"
	"github.com/frahmantamala/expense-approvals/internal/approval"
	coreuser "github.com/frahmantamala/expense-approvals/internal/core/user"
	"github.com/frahmantamala/expense-approvals/internal/currency"
	"github.com/frahmantamala/expense-approvals/internal/expense"
	"github.com/frahmantamala/expense-approvals/internal/transport"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

var _ = Describe("Expense Handler", func() {
	var (
		router *chi.Mux
		caller *coreuser.Member
		repo   *MockRepository
		dir    *mockDirectory
	)

	BeforeEach(func() {
		slogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		repo = NewMockRepository()
		dir = &mockDirectory{
			members: map[int64]*coreuser.Member{
				2:  member(2, 1, coreuser.RoleManager, nil),
				3:  member(3, 1, coreuser.RoleManager, nil),
				10: member(10, 1, coreuser.RoleEmployee, int64Ptr(2)),
			},
			companies: map[int64]*coreuser.Company{
				1: {ID: 1, Name: "Hack Co", Country: "IN", Currency: "INR"},
			},
		}
		service := expense.NewService(expense.Dependencies{
			Repo:      repo,
			Directory: dir,
			Flows: mockFlows{1: {
				IsManagerFirst:  true,
				SequenceEnabled: true,
				Approvers:       []approval.Approver{{UserID: 3}},
			}},
			Categories: mockCategories{},
			Converter:  currency.NewConverter(currency.RateTable{"INR": decimal.NewFromInt(1)}),
			Publisher:  &recordingPublisher{},
		}, slogger)
		handler := expense.NewHandler(transport.NewBaseHandler(slogger), service)

		caller = dir.members[10]
		router = chi.NewRouter()
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(internal.ContextWithUser(r.Context(), caller)))
			})
		})
		router.Post("/expenses", handler.SubmitExpense)
		router.Get("/expenses/mine", handler.ListMine)
		router.Get("/expenses/{id}", handler.GetExpense)
		router.Get("/expenses/{id}/approvers", handler.GetApprovers)
		router.Get("/approvals/queue", handler.ApprovalQueue)
		router.Post("/approvals/{expenseID}", handler.Decide)
	})

	do := func(method, path string, body interface{}) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	errorCode := func(w *httptest.ResponseRecorder) string {
		var body errorBody
		Expect(json.Unmarshal(w.Body.Bytes(), &body)).To(Succeed())
		return body.Error.Code
	}

	submit := func() int64 {
		w := do(http.MethodPost, "/expenses", map[string]interface{}{
			"description": "Taxi to airport",
			"category":    "Travel",
			"spend_date":  "2024-03-02",
			"amount":      "640.00",
			"currency":    "inr",
		})
		Expect(w.Code).To(Equal(http.StatusCreated))
		var detail struct {
			ID                int64   `json:"id"`
			Status            string  `json:"status"`
			EligibleApprovers []int64 `json:"eligible_approvers"`
		}
		Expect(json.Unmarshal(w.Body.Bytes(), &detail)).To(Succeed())
		Expect(detail.Status).To(Equal("waiting"))
		Expect(detail.EligibleApprovers).To(Equal([]int64{2}))
		return detail.ID
	}

	It("submits an expense and lists it", func() {
		id := submit()

		w := do(http.MethodGet, "/expenses/mine", nil)
		Expect(w.Code).To(Equal(http.StatusOK))
		var list expense.ExpensesResponse
		Expect(json.Unmarshal(w.Body.Bytes(), &list)).To(Succeed())
		Expect(list.Expenses).To(HaveLen(1))
		Expect(list.Expenses[0].ID).To(Equal(id))
		Expect(list.Expenses[0].Currency).To(Equal("INR"))
	})

	It("rejects invalid submissions with field codes", func() {
		w := do(http.MethodPost, "/expenses", map[string]interface{}{
			"description": "Taxi",
			"category":    "Travel",
			"spend_date":  "2999-01-01",
			"amount":      "-5",
			"currency":    "INR",
		})
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(w.Body.String()).To(ContainSubstring(string(internal.ErrCodeInvalidAmount)))
		Expect(w.Body.String()).To(ContainSubstring(string(internal.ErrCodeInvalidDate)))
	})

	It("maps unknown categories to a validation error", func() {
		w := do(http.MethodPost, "/expenses", map[string]interface{}{
			"description": "Yacht",
			"category":    "Yachts",
			"spend_date":  "2024-03-02",
			"amount":      "10",
			"currency":    "INR",
		})
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("walks the approval through the decision endpoint", func() {
		id := submit()
		path := "/approvals/" + jsonID(id)

		caller = dir.members[3]
		w := do(http.MethodPost, path, map[string]string{"decision": "approved"})
		Expect(w.Code).To(Equal(http.StatusForbidden))
		Expect(errorCode(w)).To(Equal(string(internal.ErrCodeNotEligible)))

		caller = dir.members[2]
		w = do(http.MethodGet, "/approvals/queue", nil)
		Expect(w.Code).To(Equal(http.StatusOK))
		var queue expense.QueueResponse
		Expect(json.Unmarshal(w.Body.Bytes(), &queue)).To(Succeed())
		Expect(queue.Tasks).To(HaveLen(1))

		w = do(http.MethodPost, path, map[string]string{"decision": "Approved", "comment": "ok"})
		Expect(w.Code).To(Equal(http.StatusOK))
		var resp expense.DecisionResponse
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Status).To(Equal(approval.StatusWaiting))
		Expect(resp.EligibleApprovers).To(Equal([]int64{3}))

		w = do(http.MethodPost, path, map[string]string{"decision": "approved"})
		Expect(w.Code).To(Equal(http.StatusConflict))
		Expect(errorCode(w)).To(Equal(string(internal.ErrCodeAlreadyDecided)))

		caller = dir.members[3]
		w = do(http.MethodPost, path, map[string]string{"decision": "approved"})
		Expect(w.Code).To(Equal(http.StatusOK))

		w = do(http.MethodGet, "/expenses/"+jsonID(id)+"/approvers", nil)
		Expect(w.Code).To(Equal(http.StatusOK))
		var approvers expense.ApproversResponse
		Expect(json.Unmarshal(w.Body.Bytes(), &approvers)).To(Succeed())
		Expect(approvers.EligibleApprovers).To(BeEmpty())
	})

	It("refuses decisions other than approved or rejected", func() {
		id := submit()
		caller = dir.members[2]
		w := do(http.MethodPost, "/approvals/"+jsonID(id), map[string]string{"decision": "maybe"})
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(w.Body.String()).To(ContainSubstring(string(internal.ErrCodeInvalidDecision)))
	})

	It("answers 404 for unknown expenses and 400 for bad ids", func() {
		w := do(http.MethodGet, "/expenses/999", nil)
		Expect(w.Code).To(Equal(http.StatusNotFound))

		w = do(http.MethodGet, "/expenses/abc", nil)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})
})

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
