package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/frahmantamala/expense-approvals/internal"
	coreuser "github.com/frahmantamala/expense-approvals/internal/core/user"
	"github.com/frahmantamala/expense-approvals/internal/transport"
	"github.com/go-chi/chi"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
)

var _ = ginkgo.Describe("Auth HTTP", func() {
	var (
		slogger  *slog.Logger
		mockRepo *mockRepository
		tokenGen *JWTTokenGenerator
		handler  *Handler
		rbac     *RBACAuthorization
	)

	ginkgo.BeforeEach(func() {
		slogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		mockRepo = newMockRepository()
		tokenGen = NewJWTTokenGenerator("access-secret-access-secret-access", "refresh-secret-refresh-secret-refr", time.Minute, time.Hour)
		svc := NewService(mockRepo, tokenGen, &mockPasswordIssuer{}, knownCurrencies{"INR": true}, bcrypt.MinCost, slogger)
		handler = NewHandler(transport.NewBaseHandler(slogger), svc)
		rbac = NewRBACAuthorization(slogger)
	})

	bearer := func(id int64) string {
		token, err := tokenGen.GenerateAccessToken(mockRepo.users[id])
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		return "Bearer " + token
	}

	ginkgo.Describe("Login", func() {
		ginkgo.It("should answer 200 with tokens", func() {
			body := bytes.NewBufferString(`{"email":" USER@example.com ","password":"correct_password"}`)
			w := httptest.NewRecorder()
			handler.Login(w, httptest.NewRequest(http.MethodPost, "/auth/login", body))

			gomega.Expect(w.Code).To(gomega.Equal(http.StatusOK))
			var resp LoginResponse
			gomega.Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp.AccessToken).ToNot(gomega.BeEmpty())
			gomega.Expect(w.Body.String()).ToNot(gomega.ContainSubstring("password_hash"))
		})

		ginkgo.It("should answer 401 for bad credentials", func() {
			body := bytes.NewBufferString(`{"email":"user@example.com","password":"nope"}`)
			w := httptest.NewRecorder()
			handler.Login(w, httptest.NewRequest(http.MethodPost, "/auth/login", body))

			gomega.Expect(w.Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(w.Body.String()).To(gomega.ContainSubstring("INVALID_CREDENTIALS"))
		})

		ginkgo.It("should answer 400 for unknown fields", func() {
			body := bytes.NewBufferString(`{"email":"user@example.com","password":"x","remember":true}`)
			w := httptest.NewRecorder()
			handler.Login(w, httptest.NewRequest(http.MethodPost, "/auth/login", body))
			gomega.Expect(w.Code).To(gomega.Equal(http.StatusBadRequest))
		})
	})

	ginkgo.It("should always accept forgot password requests", func() {
		w := httptest.NewRecorder()
		handler.ForgotPassword(w, httptest.NewRequest(http.MethodPost, "/auth/forgot-password", bytes.NewBufferString(`{"email":"ghost@example.com"}`)))
		gomega.Expect(w.Code).To(gomega.Equal(http.StatusAccepted))
	})

	ginkgo.Describe("middleware chain", func() {
		var router *chi.Mux

		ginkgo.BeforeEach(func() {
			router = chi.NewRouter()
			router.Use(handler.AuthMiddleware)
			router.Get("/me", func(w http.ResponseWriter, r *http.Request) {
				member, _ := internal.UserFromContext(r.Context())
				handler.WriteJSON(w, http.StatusOK, member)
			})
			router.With(rbac.RequireAdmin()).Get("/admin", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
		})

		serve := func(path, authHeader string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			if authHeader != "" {
				req.Header.Set("Authorization", authHeader)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			return w
		}

		ginkgo.It("should put the member in the context", func() {
			w := serve("/me", bearer(1))
			gomega.Expect(w.Code).To(gomega.Equal(http.StatusOK))

			var member coreuser.Member
			gomega.Expect(json.Unmarshal(w.Body.Bytes(), &member)).To(gomega.Succeed())
			gomega.Expect(member.ID).To(gomega.Equal(int64(1)))
			gomega.Expect(member.CompanyID).To(gomega.Equal(int64(1)))
		})

		ginkgo.It("should answer 401 without a token", func() {
			gomega.Expect(serve("/me", "").Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(serve("/me", "Bearer garbage").Code).To(gomega.Equal(http.StatusUnauthorized))
		})

		ginkgo.It("should answer 403 for an inactive member", func() {
			gomega.Expect(serve("/me", bearer(3)).Code).To(gomega.Equal(http.StatusForbidden))
		})

		ginkgo.It("should gate admin routes on role", func() {
			gomega.Expect(serve("/admin", bearer(1)).Code).To(gomega.Equal(http.StatusForbidden))
			gomega.Expect(serve("/admin", bearer(2)).Code).To(gomega.Equal(http.StatusNoContent))
		})
	})

	ginkgo.Describe("ExpenseScope", func() {
		var (
			db     *sqlx.DB
			router *chi.Mux
			caller *coreuser.Member
		)

		ginkgo.BeforeEach(func() {
			var err error
			db, err = sqlx.Connect("sqlite3", ":memory:")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			db.SetMaxOpenConns(1)
			_, err = db.Exec(`CREATE TABLE expenses (id INTEGER PRIMARY KEY, company_id INTEGER NOT NULL, employee_id INTEGER NOT NULL)`)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			_, err = db.Exec(`INSERT INTO expenses (id, company_id, employee_id) VALUES (1, 1, 7), (2, 2, 8)`)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			caller = &coreuser.Member{ID: 7, CompanyID: 1, Role: coreuser.RoleEmployee}
			scope := NewExpenseScope(transport.NewBaseHandler(slogger), db)
			router = chi.NewRouter()
			router.Use(func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					next.ServeHTTP(w, r.WithContext(internal.ContextWithUser(r.Context(), caller)))
				})
			})
			router.With(scope.Require("id")).Get("/expenses/{id}", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
		})

		ginkgo.AfterEach(func() {
			gomega.Expect(db.Close()).To(gomega.Succeed())
		})

		get := func(path string) int {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil).WithContext(context.Background()))
			return w.Code
		}

		ginkgo.It("should pass expenses of the caller's company", func() {
			gomega.Expect(get("/expenses/1")).To(gomega.Equal(http.StatusNoContent))
		})

		ginkgo.It("should hide foreign and missing expenses", func() {
			gomega.Expect(get("/expenses/2")).To(gomega.Equal(http.StatusNotFound))
			gomega.Expect(get("/expenses/99")).To(gomega.Equal(http.StatusNotFound))
		})

		ginkgo.It("should reject malformed ids", func() {
			gomega.Expect(get("/expenses/abc")).To(gomega.Equal(http.StatusBadRequest))
		})
	})
})
