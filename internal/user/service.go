package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/expense-approvals/internal/core/events"
	coreuser "github.com/frahmantamala/expense-approvals/internal/core/user"
)

type RepositoryAPI interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListByCompany(ctx context.Context, companyID int64) ([]*User, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, id int64, hash string, resetRequired bool) error
	GetCompany(ctx context.Context, companyID int64) (*coreuser.Company, error)
	HasApproverDuties(ctx context.Context, companyID, userID int64) (bool, error)
}

type Service struct {
	repo       RepositoryAPI
	publisher  events.Publisher
	bcryptCost int
	logger     *slog.Logger
}

func NewService(repo RepositoryAPI, publisher events.Publisher, bcryptCost int, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		publisher:  publisher,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

func (s *Service) GetByID(ctx context.Context, id int64) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return u, nil
}

// GetMember is the directory lookup used by the expense service.
func (s *Service) GetMember(ctx context.Context, id int64) (*coreuser.Member, error) {
	u, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return u.Member(), nil
}

func (s *Service) GetCompany(ctx context.Context, companyID int64) (*coreuser.Company, error) {
	c, err := s.repo.GetCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return c, nil
}

func (s *Service) Me(ctx context.Context, id int64) (*MeResponse, error) {
	u, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c, err := s.GetCompany(ctx, u.CompanyID)
	if err != nil {
		return nil, err
	}
	return &MeResponse{User: u, Company: c}, nil
}

func (s *Service) ListUsers(ctx context.Context, companyID int64) ([]*User, error) {
	users, err := s.repo.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// CreateUser adds a manager or employee to the admin's company and mails a
// temporary password. A mail failure does not undo the creation.
func (s *Service) CreateUser(ctx context.Context, admin *coreuser.Member, dto CreateUserDTO) (*CreateUserResponse, error) {
	existing, err := s.repo.GetByEmail(ctx, dto.Email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	if dto.ManagerID != nil {
		if err := s.checkManager(ctx, admin.CompanyID, 0, *dto.ManagerID); err != nil {
			return nil, err
		}
	}

	password, err := GenerateTemporaryPassword()
	if err != nil {
		return nil, fmt.Errorf("failed to generate password: %w", err)
	}
	hash, err := HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &User{
		CompanyID:     admin.CompanyID,
		Email:         dto.Email,
		Name:          dto.Name,
		Role:          coreuser.Role(dto.Role),
		ManagerID:     dto.ManagerID,
		IsActive:      true,
		ResetRequired: true,
		PasswordHash:  hash,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.logger.Info("user created", "user_id", u.ID, "company_id", u.CompanyID, "role", u.Role, "by", admin.ID)

	sent := s.issuePassword(ctx, u, password, events.PasswordReasonCreated)
	return &CreateUserResponse{ID: u.ID, EmailSent: sent, User: u}, nil
}

func (s *Service) UpdateUser(ctx context.Context, admin *coreuser.Member, id int64, dto UpdateUserDTO) (*User, error) {
	u, err := s.companyUser(ctx, admin.CompanyID, id)
	if err != nil {
		return nil, err
	}

	if dto.Name != nil {
		u.Name = *dto.Name
	}
	if dto.Role != nil {
		role := coreuser.Role(*dto.Role)
		if u.Role == coreuser.RoleAdmin {
			return nil, ErrInvalidRole
		}
		if u.Role == coreuser.RoleManager && role == coreuser.RoleEmployee {
			if err := s.checkDemotion(ctx, u); err != nil {
				return nil, err
			}
		}
		u.Role = role
	}
	if dto.ManagerID.Set {
		if dto.ManagerID.Value != nil {
			if err := s.checkManager(ctx, admin.CompanyID, u.ID, *dto.ManagerID.Value); err != nil {
				return nil, err
			}
		}
		u.ManagerID = dto.ManagerID.Value
	}

	if err := s.repo.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	s.logger.Info("user updated", "user_id", u.ID, "by", admin.ID)
	return u, nil
}

// SendPassword replaces the user's password with a fresh temporary one and mails it.
func (s *Service) SendPassword(ctx context.Context, admin *coreuser.Member, id int64) (bool, error) {
	u, err := s.companyUser(ctx, admin.CompanyID, id)
	if err != nil {
		return false, err
	}
	password, err := s.resetPassword(ctx, u)
	if err != nil {
		return false, err
	}
	return s.issuePassword(ctx, u, password, events.PasswordReasonResent), nil
}

// ForgotPassword behaves like SendPassword for a self-service request. Unknown
// and inactive addresses are reported as sent.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		s.logger.Info("forgot password for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up email: %w", err)
	}
	if !u.IsActive {
		return nil
	}
	password, err := s.resetPassword(ctx, u)
	if err != nil {
		return err
	}
	s.issuePassword(ctx, u, password, events.PasswordReasonForgot)
	return nil
}

func (s *Service) resetPassword(ctx context.Context, u *User) (string, error) {
	password, err := GenerateTemporaryPassword()
	if err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	hash, err := HashPassword(password, s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, u.ID, hash, true); err != nil {
		return "", fmt.Errorf("failed to store password: %w", err)
	}
	u.PasswordHash = hash
	u.ResetRequired = true
	return password, nil
}

func (s *Service) issuePassword(ctx context.Context, u *User, password, reason string) bool {
	if s.publisher == nil {
		return false
	}
	evt := events.NewUserPasswordIssuedEvent(u.ID, u.Email, u.Name, password, reason)
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Error("failed to publish password event", "user_id", u.ID, "error", err)
		return false
	}
	return true
}

func (s *Service) companyUser(ctx context.Context, companyID, id int64) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.CompanyID != companyID {
		return nil, ErrNotFound
	}
	return u, nil
}

// checkDemotion keeps a manager in place while anyone still depends on them
// to decide an expense.
func (s *Service) checkDemotion(ctx context.Context, u *User) error {
	busy, err := s.repo.HasApproverDuties(ctx, u.CompanyID, u.ID)
	if err != nil {
		return fmt.Errorf("failed to check approver duties: %w", err)
	}
	if busy {
		return ErrApproverInUse
	}
	return nil
}

// checkManager rejects managers outside the company, non-manager roles,
// self-assignment and reporting cycles.
func (s *Service) checkManager(ctx context.Context, companyID, userID, managerID int64) error {
	if managerID == userID {
		return ErrInvalidManager
	}
	m, err := s.repo.GetByID(ctx, managerID)
	if errors.Is(err, ErrNotFound) {
		return ErrInvalidManager
	}
	if err != nil {
		return err
	}
	if m.CompanyID != companyID || !m.CanManage() {
		return ErrInvalidManager
	}
	if userID == 0 {
		return nil
	}

	seen := map[int64]bool{userID: true}
	for next := m.ManagerID; next != nil; {
		if seen[*next] {
			return ErrInvalidManager
		}
		seen[*next] = true
		up, err := s.repo.GetByID(ctx, *next)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		next = up.ManagerID
	}
	return nil
}
