package category_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/frahmantamala/expense-approvals/internal/category"
	categoryPostgres "github.com/frahmantamala/expense-approvals/internal/category/postgres"
	categoryDatamodel "github.com/frahmantamala/expense-approvals/internal/core/datamodel/category"
	"github.com/frahmantamala/expense-approvals/internal/transport"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var _ = Describe("Category Handler Integration", func() {
	var (
		db      *gorm.DB
		repo    category.RepositoryAPI
		service *category.Service
		handler *category.Handler
		slogger *slog.Logger
	)

	BeforeEach(func() {
		var err error
		ctx := context.Background()
		slogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(db.AutoMigrate(&categoryDatamodel.ExpenseCategory{})).To(Succeed())

		repo = categoryPostgres.NewCategoryRepository(db)
		service = category.NewService(repo, slogger)
		handler = category.NewHandler(transport.NewBaseHandler(slogger), service)

		_, err = service.EnsureDefaults(ctx)
		Expect(err).NotTo(HaveOccurred())

		software, err := repo.GetByName(ctx, "Software")
		Expect(err).NotTo(HaveOccurred())
		software.IsActive = false
		Expect(repo.Update(ctx, software)).To(Succeed())
	})

	It("should list active categories in display order", func() {
		req := httptest.NewRequest(http.MethodGet, "/categories", nil)
		w := httptest.NewRecorder()

		handler.GetCategories(w, req)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Header().Get("Content-Type")).To(ContainSubstring("application/json"))

		var response category.CategoriesResponse
		Expect(json.NewDecoder(w.Body).Decode(&response)).To(Succeed())

		names := make([]string, len(response.Categories))
		for i, cat := range response.Categories {
			names[i] = cat.Name
			Expect(cat.Description).NotTo(BeEmpty())
		}
		Expect(names).To(Equal([]string{"Food", "Travel", "Hotel", "Fuel", "Supplies", "Other"}))
	})
})
