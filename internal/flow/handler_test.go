package flow_test

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
	"github.com/frahmantamala/expense-approvals/internal/flow"
	"github.com/frahmantamala/expense-approvals/internal/transport"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Flow Handler", func() {
	var (
		repo    *mockRepository
		handler *flow.Handler
		admin   *coreuser.Member
	)

	BeforeEach(func() {
		repo = &mockRepository{flows: map[int64]*flow.Flow{}}
		directory := mockDirectory{
			1: {ID: 1, CompanyID: 1, Role: coreuser.RoleAdmin, IsActive: true},
			2: {ID: 2, CompanyID: 1, Role: coreuser.RoleManager, IsActive: true},
			3: {ID: 3, CompanyID: 1, Role: coreuser.RoleManager, IsActive: true},
		}
		slogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service := flow.NewService(repo, directory, slogger)
		handler = flow.NewHandler(transport.NewBaseHandler(slogger), service)
		admin = &coreuser.Member{ID: 1, CompanyID: 1, Role: coreuser.RoleAdmin}
	})

	put := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/flows/default", bytes.NewBufferString(body))
		req = req.WithContext(internal.ContextWithUser(req.Context(), admin))
		w := httptest.NewRecorder()
		handler.SaveDefault(w, req)
		return w
	}

	It("saves and reads back the flow", func() {
		w := put(`{"name":"Two step","sequence_enabled":true,"approvers":[{"user_id":2},{"user_id":3}],"rejection_policy":"VETO"}`)
		Expect(w.Code).To(Equal(http.StatusOK))

		req := httptest.NewRequest(http.MethodGet, "/flows/default", nil)
		req = req.WithContext(internal.ContextWithUser(req.Context(), admin))
		rec := httptest.NewRecorder()
		handler.GetDefault(rec, req)
		Expect(rec.Code).To(Equal(http.StatusOK))

		var f flow.Flow
		Expect(json.Unmarshal(rec.Body.Bytes(), &f)).To(Succeed())
		Expect(f.Name).To(Equal("Two step"))
		Expect(f.Config.Approvers).To(HaveLen(2))
		Expect(f.Config.RejectionPolicy).To(Equal(approval.RejectionVeto))
	})

	It("answers 400 with INVALID_FLOW_CONFIG", func() {
		w := put(`{"approvers":[{"user_id":2},{"user_id":2}]}`)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(w.Body.String()).To(ContainSubstring("INVALID_FLOW_CONFIG"))
	})

	It("refuses an override approver missing from the approvers", func() {
		w := put(`{"is_manager_first":true,"approvers":[{"user_id":2}],"specific_approver_id":3}`)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(w.Body.String()).To(ContainSubstring("INVALID_FLOW_CONFIG"))
		Expect(repo.flows).To(BeEmpty())
	})

	It("requires an authenticated user", func() {
		rec := httptest.NewRecorder()
		handler.GetDefault(rec, httptest.NewRequest(http.MethodGet, "/flows/default", nil))
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})
})
