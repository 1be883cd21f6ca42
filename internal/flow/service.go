package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/expense-approvals/internal/approval"
	coreuser "github.com/frahmantamala/expense-approvals/internal/core/user"
	"github.com/frahmantamala/expense-approvals/internal/user"
)

type RepositoryAPI interface {
	// GetByCompany returns nil, nil when the company has no saved flow.
	GetByCompany(ctx context.Context, companyID int64) (*Flow, error)
	Upsert(ctx context.Context, f *Flow) error
}

type Directory interface {
	GetMember(ctx context.Context, id int64) (*coreuser.Member, error)
}

type Service struct {
	repo      RepositoryAPI
	directory Directory
	logger    *slog.Logger
}

func NewService(repo RepositoryAPI, directory Directory, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		directory: directory,
		logger:    logger,
	}
}

func (s *Service) GetDefault(ctx context.Context, companyID int64) (*Flow, error) {
	f, err := s.repo.GetByCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load flow: %w", err)
	}
	if f == nil {
		return Default(companyID), nil
	}
	return f, nil
}

// ActiveFlow returns the configuration new submissions snapshot.
func (s *Service) ActiveFlow(ctx context.Context, companyID int64) (approval.FlowConfig, error) {
	f, err := s.GetDefault(ctx, companyID)
	if err != nil {
		return approval.FlowConfig{}, err
	}
	return f.Config.Clone(), nil
}

// SaveDefault replaces the company's flow. Expenses already submitted keep
// the snapshot they were created with.
func (s *Service) SaveDefault(ctx context.Context, admin *coreuser.Member, dto SaveFlowDTO) (*Flow, error) {
	cfg := dto.Config()
	if err := approval.Validate(cfg); err != nil {
		return nil, err
	}

	// Validate guarantees the specific approver is one of these.
	for _, a := range cfg.Approvers {
		if err := s.checkMember(ctx, admin.CompanyID, a.UserID); err != nil {
			return nil, err
		}
	}

	f := &Flow{
		CompanyID:   admin.CompanyID,
		Name:        dto.Name,
		Description: dto.Description,
		Config:      cfg,
		UpdatedBy:   &admin.ID,
	}
	if err := s.repo.Upsert(ctx, f); err != nil {
		return nil, fmt.Errorf("failed to save flow: %w", err)
	}
	f.Saved = true
	s.logger.Info("approval flow saved",
		"company_id", f.CompanyID,
		"approvers", len(cfg.Approvers),
		"sequenced", cfg.SequenceEnabled,
		"by", admin.ID)
	return f, nil
}

func (s *Service) checkMember(ctx context.Context, companyID, id int64) error {
	m, err := s.directory.GetMember(ctx, id)
	if errors.Is(err, user.ErrNotFound) {
		return fmt.Errorf("%w: user %d", ErrApproverNotInCompany, id)
	}
	if err != nil {
		return err
	}
	if m.CompanyID != companyID || !m.IsActive {
		return fmt.Errorf("%w: user %d", ErrApproverNotInCompany, id)
	}
	if !m.HasRole(coreuser.RoleManager, coreuser.RoleAdmin) {
		return fmt.Errorf("%w: user %d cannot approve expenses", ErrApproverNotInCompany, id)
	}
	return nil
}
