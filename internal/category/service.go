package category

import (
	"context"
	"log/slog"
	"strings"

	categoryDatamodel "github.com/frahmantamala/expense-approvals/internal/core/datamodel/category"
)

type RepositoryAPI interface {
	GetAll(ctx context.Context) ([]*categoryDatamodel.ExpenseCategory, error)
	GetByName(ctx context.Context, name string) (*categoryDatamodel.ExpenseCategory, error)
	Create(ctx context.Context, category *categoryDatamodel.ExpenseCategory) error
	Update(ctx context.Context, category *categoryDatamodel.ExpenseCategory) error
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// GetAllCategories returns active categories in display order.
func (s *Service) GetAllCategories(ctx context.Context) ([]CategoryResponse, error) {
	dataCategories, err := s.repo.GetAll(ctx)
	if err != nil {
		s.logger.Error("failed to get categories from repository", "error", err)
		return nil, err
	}

	responses := make([]CategoryResponse, 0, len(dataCategories))
	for _, dataCategory := range dataCategories {
		if dataCategory.IsActive {
			responses = append(responses, FromDataModel(dataCategory).ToResponse())
		}
	}

	s.logger.Debug("retrieved categories", "count", len(responses))
	return responses, nil
}

// Resolve finds an active category by name, ignoring case, and returns it with
// its stored spelling.
func (s *Service) Resolve(ctx context.Context, name string) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrCategoryNotFound
	}
	dataCategory, err := s.repo.GetByName(ctx, name)
	if err != nil {
		s.logger.Error("failed to look up category", "name", name, "error", err)
		return nil, err
	}
	if dataCategory == nil || !dataCategory.IsActive {
		return nil, ErrCategoryNotFound
	}
	return FromDataModel(dataCategory), nil
}

// EnsureDefaults creates any missing default category and reactivates
// defaults that were switched off. It never touches custom categories.
func (s *Service) EnsureDefaults(ctx context.Context) (created int, err error) {
	for i, def := range Defaults {
		existing, err := s.repo.GetByName(ctx, def.Name)
		if err != nil {
			return created, err
		}
		if existing != nil {
			if !existing.IsActive {
				existing.IsActive = true
				if err := s.repo.Update(ctx, existing); err != nil {
					return created, err
				}
			}
			continue
		}

		c := def
		c.IsActive = true
		c.SortOrder = i + 1
		if err := s.repo.Create(ctx, ToDataModel(&c)); err != nil {
			return created, err
		}
		created++
	}
	s.logger.Info("default categories ensured", "created", created)
	return created, nil
}
