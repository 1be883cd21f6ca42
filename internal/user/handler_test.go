package user_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/frahmantamala/expense-approvals/internal"
	companyDatamodel "github.com/frahmantamala/expense-approvals/internal/core/datamodel/company"
	expenseDatamodel "github.com/frahmantamala/expense-approvals/internal/core/datamodel/expense"
	flowDatamodel "github.com/frahmantamala/expense-approvals/internal/core/datamodel/flow"
	userDatamodel "github.com/frahmantamala/expense-approvals/internal/core/datamodel/user"
	coreuser "github.com/frahmantamala/expense-approvals/internal/core/user"
	"github.com/frahmantamala/expense-approvals/internal/transport"
	"github.com/frahmantamala/expense-approvals/internal/user"
	userPostgres "github.com/frahmantamala/expense-approvals/internal/user/postgres"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var _ = Describe("User Handler Integration", func() {
	var (
		router    *chi.Mux
		publisher *recordingPublisher
		admin     *coreuser.Member
	)

	BeforeEach(func() {
		slogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(db.AutoMigrate(
			&companyDatamodel.Company{},
			&userDatamodel.User{},
			&flowDatamodel.ApprovalFlow{},
			&expenseDatamodel.ExpenseApproval{},
		)).To(Succeed())

		Expect(db.Create(&companyDatamodel.Company{ID: 1, Name: "Hack Co", Country: "IN", Currency: "INR"}).Error).To(Succeed())
		Expect(db.Create(&userDatamodel.User{ID: 1, CompanyID: 1, Email: "admin@hack.co", Name: "Admin", PasswordHash: "x", Role: "admin", IsActive: true}).Error).To(Succeed())
		Expect(db.Create(&userDatamodel.User{ID: 2, CompanyID: 1, Email: "mira@hack.co", Name: "Mira", PasswordHash: "x", Role: "manager", IsActive: true}).Error).To(Succeed())

		publisher = &recordingPublisher{}
		service := user.NewService(userPostgres.NewUserRepository(db), publisher, bcrypt.MinCost, slogger)
		handler := user.NewHandler(transport.NewBaseHandler(slogger), service)

		admin = &coreuser.Member{ID: 1, CompanyID: 1, Role: coreuser.RoleAdmin}
		router = chi.NewRouter()
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(internal.ContextWithUser(r.Context(), admin)))
			})
		})
		router.Get("/users/me", handler.GetCurrentUser)
		router.Get("/users", handler.ListUsers)
		router.Post("/users", handler.CreateUser)
		router.Patch("/users/{id}", handler.UpdateUser)
		router.Post("/users/{id}/send-password", handler.SendPassword)
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

	It("returns the current user with the company", func() {
		w := do(http.MethodGet, "/users/me", nil)
		Expect(w.Code).To(Equal(http.StatusOK))

		var me user.MeResponse
		Expect(json.Unmarshal(w.Body.Bytes(), &me)).To(Succeed())
		Expect(me.User.Email).To(Equal("admin@hack.co"))
		Expect(me.Company.Currency).To(Equal("INR"))
	})

	It("creates a user and then lists it", func() {
		w := do(http.MethodPost, "/users", map[string]interface{}{
			"name": "Eli", "email": " Eli@Hack.co ", "role": "employee", "manager_id": 2,
		})
		Expect(w.Code).To(Equal(http.StatusCreated))

		var created user.CreateUserResponse
		Expect(json.Unmarshal(w.Body.Bytes(), &created)).To(Succeed())
		Expect(created.EmailSent).To(BeTrue())
		Expect(created.User.Email).To(Equal("eli@hack.co"))
		Expect(w.Body.String()).NotTo(ContainSubstring("password"))

		w = do(http.MethodGet, "/users", nil)
		var list user.UsersResponse
		Expect(json.Unmarshal(w.Body.Bytes(), &list)).To(Succeed())
		Expect(list.Users).To(HaveLen(3))
	})

	It("rejects an admin role on creation", func() {
		w := do(http.MethodPost, "/users", map[string]interface{}{"name": "X", "email": "x@hack.co", "role": "admin"})
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(w.Body.String()).To(ContainSubstring("INVALID_ROLE"))
	})

	It("reports a taken email as a conflict", func() {
		w := do(http.MethodPost, "/users", map[string]interface{}{"name": "X", "email": "mira@hack.co", "role": "employee"})
		Expect(w.Code).To(Equal(http.StatusConflict))
	})

	It("clears the manager with an explicit null", func() {
		w := do(http.MethodPost, "/users", map[string]interface{}{"name": "Eli", "email": "eli@hack.co", "role": "employee", "manager_id": 2})
		var created user.CreateUserResponse
		Expect(json.Unmarshal(w.Body.Bytes(), &created)).To(Succeed())

		req := httptest.NewRequest(http.MethodPatch, "/users/"+jsonNumber(created.ID), bytes.NewBufferString(`{"manager_id": null}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusOK))

		var updated user.User
		Expect(json.Unmarshal(rec.Body.Bytes(), &updated)).To(Succeed())
		Expect(updated.ManagerID).To(BeNil())
	})

	It("refuses to demote a manager who still has reports", func() {
		w := do(http.MethodPost, "/users", map[string]interface{}{"name": "Eli", "email": "eli@hack.co", "role": "employee", "manager_id": 2})
		Expect(w.Code).To(Equal(http.StatusCreated))

		w = do(http.MethodPatch, "/users/2", map[string]interface{}{"role": "employee"})
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(w.Body.String()).To(ContainSubstring("INVALID_ROLE"))

		w = do(http.MethodGet, "/users", nil)
		var list user.UsersResponse
		Expect(json.Unmarshal(w.Body.Bytes(), &list)).To(Succeed())
		for _, u := range list.Users {
			if u.ID == 2 {
				Expect(u.Role).To(Equal(coreuser.RoleManager))
			}
		}
	})

	It("returns not found for an unknown user", func() {
		w := do(http.MethodPost, "/users/404/send-password", nil)
		Expect(w.Code).To(Equal(http.StatusNotFound))
	})

	It("validates the path id", func() {
		w := do(http.MethodPatch, "/users/abc", map[string]interface{}{"name": "x"})
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})
})

func jsonNumber(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
