package expense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/expense-approvals/internal/approval"
	"github.com/frahmantamala/expense-approvals/internal/category"
	"github.com/frahmantamala/expense-approvals/internal/core/events"
	coreuser "github.com/frahmantamala/expense-approvals/internal/core/user"
	"github.com/frahmantamala/expense-approvals/internal/currency"
	"github.com/shopspring/decimal"
)

const (
	defaultListLimit     = 20
	maxListLimit         = 100
	defaultCommitRetries = 3
)

// Repository interface defines the data access methods for expenses
type Repository interface {
	// Create stores the expense and its approval state in one transaction and
	// sets both ids.
	Create(ctx context.Context, e *Expense, s *approval.State) error
	GetByID(ctx context.Context, id int64) (*Expense, error)
	GetApproval(ctx context.Context, expenseID int64) (*approval.State, error)
	// CompareAndSwapApproval persists s only if the stored version still equals
	// expectedVersion, and returns ErrVersionConflict otherwise.
	CompareAndSwapApproval(ctx context.Context, s *approval.State, expectedVersion int64) error
	ListByEmployee(ctx context.Context, employeeID int64, limit, offset int) ([]*Expense, error)
	ListWaitingByCompany(ctx context.Context, companyID int64) ([]*Record, error)
}

// Directory answers who a user is and who they report to.
type Directory interface {
	GetMember(ctx context.Context, id int64) (*coreuser.Member, error)
	GetCompany(ctx context.Context, companyID int64) (*coreuser.Company, error)
}

type FlowProvider interface {
	ActiveFlow(ctx context.Context, companyID int64) (approval.FlowConfig, error)
}

type CategoryResolver interface {
	Resolve(ctx context.Context, name string) (*category.Category, error)
}

type CurrencyConverter interface {
	Convert(amount decimal.Decimal, from, to string) currency.Conversion
}

type Dependencies struct {
	Repo          Repository
	Directory     Directory
	Flows         FlowProvider
	Categories    CategoryResolver
	Converter     CurrencyConverter
	Publisher     events.Publisher
	CommitRetries int
}

// Service handles expense business logic
type Service struct {
	repo          Repository
	directory     Directory
	flows         FlowProvider
	categories    CategoryResolver
	converter     CurrencyConverter
	publisher     events.Publisher
	commitRetries int
	locks         *keyedMutex
	now           func() time.Time
	logger        *slog.Logger
}

// NewService creates a new expense service
func NewService(deps Dependencies, logger *slog.Logger) *Service {
	retries := deps.CommitRetries
	if retries <= 0 {
		retries = defaultCommitRetries
	}
	return &Service{
		repo:          deps.Repo,
		directory:     deps.Directory,
		flows:         deps.Flows,
		categories:    deps.Categories,
		converter:     deps.Converter,
		publisher:     deps.Publisher,
		commitRetries: retries,
		locks:         newKeyedMutex(),
		now:           time.Now,
		logger:        logger,
	}
}

// SubmitExpense stores a new expense together with a snapshot of the
// company's active flow and notifies the first approvers.
func (s *Service) SubmitExpense(ctx context.Context, employee *coreuser.Member, dto SubmitExpenseDTO) (*Detail, error) {
	cat, err := s.categories.Resolve(ctx, dto.Category)
	if err != nil {
		return nil, err
	}
	spendDate, err := dto.ParsedSpendDate()
	if err != nil {
		return nil, fmt.Errorf("invalid spend date: %w", err)
	}

	company, err := s.directory.GetCompany(ctx, employee.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load company: %w", err)
	}

	flow, err := s.flows.ActiveFlow(ctx, employee.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load approval flow: %w", err)
	}
	flow = s.scopeFlow(ctx, employee.CompanyID, flow)

	managerID := s.managerOf(ctx, employee)
	state, err := approval.NewState(0, employee.ID, managerID, flow)
	if err != nil {
		s.logger.Warn("expense has no approvers", "employee_id", employee.ID, "company_id", employee.CompanyID)
		return nil, err
	}

	amount := dto.Amount.Round(currency.Places)
	conv := s.converter.Convert(amount, dto.Currency, company.Currency)
	if conv.LowConfidence {
		s.logger.Warn("currency conversion used identity rate",
			"from", dto.Currency, "to", company.Currency, "employee_id", employee.ID)
	}

	now := s.now().UTC()
	e := &Expense{
		CompanyID:               employee.CompanyID,
		EmployeeID:              employee.ID,
		Description:             dto.Description,
		Category:                cat.Name,
		SpendDate:               spendDate,
		PaidBy:                  dto.PaidBy,
		Remarks:                 dto.Remarks,
		Amount:                  amount,
		Currency:                dto.Currency,
		AmountCompanyCcy:        conv.Amount,
		CompanyCurrency:         company.Currency,
		ConversionRate:          conv.Rate,
		LowConfidenceConversion: conv.LowConfidence,
		Status:                  approval.StatusWaiting,
		SubmittedAt:             now,
	}

	if err := s.repo.Create(ctx, e, state); err != nil {
		s.logger.Error("failed to create expense", "error", err, "employee_id", employee.ID)
		return nil, err
	}

	s.logger.Info("expense submitted",
		"expense_id", e.ID,
		"employee_id", employee.ID,
		"amount", e.Amount.String(),
		"currency", e.Currency,
		"route_length", len(state.Route))

	s.publish(ctx, events.EventTypeExpenseSubmitted, e, employee.ID, approval.EligibleApprovers(state), "")
	return NewDetail(e, state), nil
}

// scopeFlow drops configured approvers that are not active members of the
// company. A flow saved earlier may reference users that left since.
func (s *Service) scopeFlow(ctx context.Context, companyID int64, flow approval.FlowConfig) approval.FlowConfig {
	kept := flow.Approvers[:0:0]
	for _, a := range flow.Approvers {
		if s.isActiveMember(ctx, companyID, a.UserID) {
			kept = append(kept, a)
			continue
		}
		s.logger.Warn("dropping approver outside company", "approver_id", a.UserID, "company_id", companyID)
	}
	flow.Approvers = kept

	if flow.SpecificApproverID != nil && !s.isActiveMember(ctx, companyID, *flow.SpecificApproverID) {
		s.logger.Warn("dropping specific approver outside company", "approver_id", *flow.SpecificApproverID, "company_id", companyID)
		flow.SpecificApproverID = nil
	}
	return flow
}

func (s *Service) managerOf(ctx context.Context, employee *coreuser.Member) *int64 {
	if employee.ManagerID == nil {
		return nil
	}
	if !s.isActiveMember(ctx, employee.CompanyID, *employee.ManagerID) {
		s.logger.Warn("ignoring manager outside company", "employee_id", employee.ID, "manager_id", *employee.ManagerID)
		return nil
	}
	id := *employee.ManagerID
	return &id
}

func (s *Service) isActiveMember(ctx context.Context, companyID, id int64) bool {
	m, err := s.directory.GetMember(ctx, id)
	if err != nil {
		return false
	}
	return m.IsActive && m.CompanyID == companyID
}

// RecordDecision applies one approver's decision. Calls for the same expense
// are serialized in this process; across processes the version check decides
// and the loser re-evaluates against the fresh state.
func (s *Service) RecordDecision(ctx context.Context, expenseID, approverID int64, decision approval.Decision, comment string) (*approval.State, error) {
	unlock := s.locks.Lock(expenseID)
	defer unlock()

	for attempt := 0; attempt < s.commitRetries; attempt++ {
		current, err := s.repo.GetApproval(ctx, expenseID)
		if err != nil {
			return nil, err
		}

		next, err := approval.RecordDecision(current, approverID, decision, comment, s.now().UTC())
		if err != nil {
			return nil, err
		}
		next.Version = current.Version + 1

		err = s.repo.CompareAndSwapApproval(ctx, next, current.Version)
		if errors.Is(err, ErrVersionConflict) {
			s.logger.Warn("approval version conflict, retrying",
				"expense_id", expenseID, "approver_id", approverID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			s.logger.Error("failed to store decision", "error", err, "expense_id", expenseID)
			return nil, err
		}

		s.logger.Info("decision recorded",
			"expense_id", expenseID,
			"approver_id", approverID,
			"decision", decision,
			"status", next.Status,
			"step_index", next.StepIndex)

		s.announce(ctx, current, next, approverID, comment)
		return next, nil
	}

	return nil, ErrConcurrentUpdate
}

// announce publishes the outcome of a committed decision. Failures are logged
// by publish and never undo the commit.
func (s *Service) announce(ctx context.Context, before, after *approval.State, actorID int64, comment string) {
	e, err := s.repo.GetByID(ctx, after.ExpenseID)
	if err != nil {
		s.logger.Error("failed to load expense for notification", "expense_id", after.ExpenseID, "error", err)
		return
	}

	switch after.Status {
	case approval.StatusApproved:
		s.publish(ctx, events.EventTypeExpenseApproved, e, actorID, []int64{e.EmployeeID}, comment)
	case approval.StatusRejected:
		s.publish(ctx, events.EventTypeExpenseRejected, e, actorID, []int64{e.EmployeeID}, comment)
	default:
		if fresh := newlyEligible(before, after); len(fresh) > 0 {
			s.publish(ctx, events.EventTypeExpenseStepAdvanced, e, actorID, fresh, comment)
		}
	}
}

func newlyEligible(before, after *approval.State) []int64 {
	prev := make(map[int64]bool)
	for _, id := range approval.EligibleApprovers(before) {
		prev[id] = true
	}
	var out []int64
	for _, id := range approval.EligibleApprovers(after) {
		if !prev[id] {
			out = append(out, id)
		}
	}
	return out
}

func (s *Service) publish(ctx context.Context, eventType string, e *Expense, actorID int64, recipients []int64, comment string) {
	if s.publisher == nil {
		return
	}
	evt := events.NewExpenseEvent(eventType, events.ExpenseEvent{
		ExpenseID:   e.ID,
		CompanyID:   e.CompanyID,
		EmployeeID:  e.EmployeeID,
		ActorID:     actorID,
		Recipients:  recipients,
		Description: e.Description,
		Category:    e.Category,
		Amount:      e.AmountCompanyCcy.StringFixed(currency.Places),
		Currency:    e.CompanyCurrency,
		Comment:     comment,
	})
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Error("failed to publish expense event", "type", eventType, "expense_id", e.ID, "error", err)
	}
}

// GetEligibleApprovers reads the current state without taking the lock.
func (s *Service) GetEligibleApprovers(ctx context.Context, expenseID int64) ([]int64, error) {
	state, err := s.repo.GetApproval(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	eligible := approval.EligibleApprovers(state)
	if eligible == nil {
		eligible = []int64{}
	}
	return eligible, nil
}

// GetExpense returns the detail view. The owner, company admins and anyone on
// the route may see it.
func (s *Service) GetExpense(ctx context.Context, viewer *coreuser.Member, id int64) (*Detail, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.CompanyID != viewer.CompanyID {
		return nil, ErrExpenseNotFound
	}

	state, err := s.repo.GetApproval(ctx, id)
	if err != nil {
		return nil, err
	}

	allowed := e.EmployeeID == viewer.ID ||
		viewer.HasRole(coreuser.RoleAdmin) ||
		state.OnRoute(viewer.ID) ||
		state.IsSpecificApprover(viewer.ID)
	if !allowed {
		s.logger.Warn("unauthorized access to expense", "expense_id", id, "user_id", viewer.ID)
		return nil, ErrUnauthorizedAccess
	}
	return NewDetail(e, state), nil
}

// ListMine lists the employee's own expenses, newest first.
func (s *Service) ListMine(ctx context.Context, employeeID int64, limit, offset int) ([]*Expense, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	expenses, err := s.repo.ListByEmployee(ctx, employeeID, limit, offset)
	if err != nil {
		s.logger.Error("failed to get user expenses", "error", err, "user_id", employeeID)
		return nil, err
	}
	return expenses, nil
}

// ApprovalQueue lists waiting expenses the approver may decide on now.
func (s *Service) ApprovalQueue(ctx context.Context, approver *coreuser.Member) ([]*ApprovalTask, error) {
	records, err := s.repo.ListWaitingByCompany(ctx, approver.CompanyID)
	if err != nil {
		s.logger.Error("failed to list waiting expenses", "error", err, "company_id", approver.CompanyID)
		return nil, err
	}

	names := make(map[int64]string)
	tasks := make([]*ApprovalTask, 0)
	for _, rec := range records {
		st := rec.State
		if !approval.CanDecide(st, approver.ID, approval.DecisionApproved) {
			continue
		}

		owner, ok := names[rec.Expense.EmployeeID]
		if !ok {
			owner = "Employee"
			if m, err := s.directory.GetMember(ctx, rec.Expense.EmployeeID); err == nil {
				owner = m.Name
			}
			names[rec.Expense.EmployeeID] = owner
		}

		tasks = append(tasks, &ApprovalTask{
			ExpenseID:         rec.Expense.ID,
			StepOrder:         stepOrder(st, approver.ID),
			Decision:          string(approval.DecisionPending),
			CreatedAt:         rec.Expense.SubmittedAt,
			Description:       rec.Expense.Description,
			Category:          rec.Expense.Category,
			Amount:            rec.Expense.Amount,
			SubmittedCurrency: rec.Expense.Currency,
			AmountCompanyCcy:  rec.Expense.AmountCompanyCcy,
			CompanyCurrency:   rec.Expense.CompanyCurrency,
			OwnerID:           rec.Expense.EmployeeID,
			OwnerName:         owner,
			Override:          !isEligible(st, approver.ID),
		})
	}
	return tasks, nil
}

func stepOrder(s *approval.State, userID int64) int {
	for i, a := range s.Route {
		if a.UserID == userID {
			return i + 1
		}
	}
	return 0
}

func isEligible(s *approval.State, userID int64) bool {
	for _, id := range approval.EligibleApprovers(s) {
		if id == userID {
			return true
		}
	}
	return false
}
