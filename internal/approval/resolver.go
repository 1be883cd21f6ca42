package approval

import (
	"fmt"
	"time"
)

// Validate checks a flow before it is saved as a company's default.
func Validate(cfg FlowConfig) error {
	if cfg.PercentThreshold != nil {
		if t := *cfg.PercentThreshold; t < 1 || t > 100 {
			return fmt.Errorf("%w: percent threshold %d is outside 1..100", ErrInvalidConfig, t)
		}
	}
	// The manager counts as the approver list of a manager-first flow.
	if len(cfg.Approvers) == 0 && !cfg.IsManagerFirst {
		return fmt.Errorf("%w: flow has no approvers and does not route to the manager", ErrInvalidConfig)
	}

	seen := make(map[int64]struct{}, len(cfg.Approvers))
	for _, a := range cfg.Approvers {
		if a.UserID <= 0 {
			return fmt.Errorf("%w: approver id %d is not valid", ErrInvalidConfig, a.UserID)
		}
		if _, dup := seen[a.UserID]; dup {
			return fmt.Errorf("%w: approver %d is listed twice", ErrInvalidConfig, a.UserID)
		}
		seen[a.UserID] = struct{}{}
	}

	if cfg.SpecificApproverID != nil {
		id := *cfg.SpecificApproverID
		if id <= 0 {
			return fmt.Errorf("%w: specific approver id %d is not valid", ErrInvalidConfig, id)
		}
		if _, listed := seen[id]; !listed {
			return fmt.Errorf("%w: specific approver %d is not among the approvers", ErrInvalidConfig, id)
		}
	}

	switch cfg.RejectionPolicy {
	case "", RejectionVeto, RejectionExclude:
	default:
		return fmt.Errorf("%w: unknown rejection policy %q", ErrInvalidConfig, cfg.RejectionPolicy)
	}
	return nil
}

// NewState snapshots the flow for a freshly submitted expense and builds its route.
// The submitter never approves their own expense, so they are left off the route.
func NewState(expenseID, employeeID int64, managerID *int64, flow FlowConfig) (*State, error) {
	snapshot := flow.Clone()
	route := buildRoute(snapshot, employeeID, managerID)
	if len(route) == 0 {
		return nil, ErrNoApprovers
	}

	var mgr *int64
	if managerID != nil {
		v := *managerID
		mgr = &v
	}

	return &State{
		ExpenseID:  expenseID,
		EmployeeID: employeeID,
		ManagerID:  mgr,
		Flow:       snapshot,
		Route:      route,
		Decisions:  make(map[int64]DecisionRecord),
		Status:     StatusWaiting,
	}, nil
}

func buildRoute(flow FlowConfig, employeeID int64, managerID *int64) []Approver {
	route := make([]Approver, 0, len(flow.Approvers)+1)

	if flow.IsManagerFirst && managerID != nil && *managerID != employeeID {
		head := Approver{UserID: *managerID, Required: true}
		for _, a := range flow.Approvers {
			if a.UserID == *managerID {
				head.Required = a.Required
				break
			}
		}
		route = append(route, head)
	}

	for _, a := range flow.Approvers {
		if a.UserID == employeeID {
			continue
		}
		if len(route) > 0 && route[0].UserID == a.UserID {
			continue
		}
		route = append(route, a)
	}
	return route
}

// EligibleApprovers returns who may decide right now, in route order.
func EligibleApprovers(s *State) []int64 {
	if s.Status.IsTerminal() {
		return nil
	}

	if s.Flow.SequenceEnabled {
		if s.StepIndex < len(s.Route) {
			return []int64{s.Route[s.StepIndex].UserID}
		}
		return nil
	}

	if s.managerGateOpen() {
		return []int64{s.Route[0].UserID}
	}

	out := make([]int64, 0, len(s.Route))
	for _, a := range s.Route {
		if !s.HasDecided(a.UserID) {
			out = append(out, a.UserID)
		}
	}
	return out
}

// CanDecide reports whether approverID could record decision right now without error.
func CanDecide(s *State, approverID int64, decision Decision) bool {
	if s.Status.IsTerminal() || !s.OnRoute(approverID) || s.HasDecided(approverID) {
		return false
	}
	if decision == DecisionApproved && s.IsSpecificApprover(approverID) {
		return true
	}
	for _, id := range EligibleApprovers(s) {
		if id == approverID {
			return true
		}
	}
	return false
}

// RecordDecision applies one approver decision and returns the next state.
// The input state is left untouched; on error no change is made at all.
func RecordDecision(s *State, approverID int64, decision Decision, comment string, at time.Time) (*State, error) {
	if s.Status.IsTerminal() {
		return nil, ErrAlreadyResolved
	}
	if decision != DecisionApproved && decision != DecisionRejected {
		return nil, ErrInvalidDecision
	}
	idx := s.routeIndex(approverID)
	if idx < 0 {
		return nil, ErrUnknownApprover
	}
	if s.HasDecided(approverID) {
		return nil, ErrAlreadyDecided
	}
	if !CanDecide(s, approverID, decision) {
		return nil, ErrNotEligible
	}

	next := s.Clone()
	next.Decisions[approverID] = DecisionRecord{Decision: decision, At: at, Comment: comment}
	next.DecisionOrder = append(next.DecisionOrder, approverID)
	next.evaluate(next.Route[idx], decision, at)
	return next, nil
}

func (s *State) evaluate(approver Approver, decision Decision, at time.Time) {
	switch {
	case decision == DecisionRejected && approver.Required:
		s.resolve(StatusRejected, at)
	case decision == DecisionApproved && s.IsSpecificApprover(approver.UserID):
		s.resolve(StatusApproved, at)
	case s.Flow.PercentThreshold != nil:
		s.evaluateThreshold(decision, at)
	case s.Flow.SequenceEnabled:
		s.evaluateSequence(decision, at)
	default:
		s.evaluateAll(at)
	}
}

func (s *State) evaluateThreshold(decision Decision, at time.Time) {
	approved, pending, total := s.tally()
	threshold := *s.Flow.PercentThreshold

	if total > 0 && approved*100 >= threshold*total {
		s.resolve(StatusApproved, at)
		return
	}
	if total == 0 || (approved+pending)*100 < threshold*total {
		s.resolve(StatusRejected, at)
		return
	}
	if s.Flow.SequenceEnabled {
		s.evaluateSequence(decision, at)
	}
}

func (s *State) evaluateSequence(decision Decision, at time.Time) {
	if decision == DecisionRejected {
		s.resolve(StatusRejected, at)
		return
	}
	s.StepIndex++
	if s.StepIndex >= len(s.Route) {
		s.resolve(StatusApproved, at)
	}
}

func (s *State) evaluateAll(at time.Time) {
	approved, rejected := 0, 0
	for _, a := range s.Route {
		switch s.DecisionOf(a.UserID) {
		case DecisionApproved:
			approved++
		case DecisionRejected:
			rejected++
		}
	}

	if s.Flow.policy() == RejectionVeto {
		switch {
		case rejected > 0:
			s.resolve(StatusRejected, at)
		case approved == len(s.Route):
			s.resolve(StatusApproved, at)
		}
		return
	}

	if approved+rejected < len(s.Route) {
		return
	}
	if approved > 0 {
		s.resolve(StatusApproved, at)
	} else {
		s.resolve(StatusRejected, at)
	}
}

// managerGateOpen reports whether a manager-first flow still waits on the
// manager at the head of the route.
func (s *State) managerGateOpen() bool {
	if !s.Flow.IsManagerFirst || s.ManagerID == nil || len(s.Route) == 0 {
		return false
	}
	head := s.Route[0].UserID
	return head == *s.ManagerID && !s.HasDecided(head)
}

// tally counts approvals, undecided approvers and the percent denominator.
func (s *State) tally() (approved, pending, total int) {
	exclude := s.Flow.policy() == RejectionExclude
	for _, a := range s.Route {
		switch s.DecisionOf(a.UserID) {
		case DecisionApproved:
			approved++
		case DecisionRejected:
			if exclude && !a.Required {
				continue
			}
		default:
			pending++
		}
		total++
	}
	return approved, pending, total
}

func (s *State) resolve(status Status, at time.Time) {
	s.Status = status
	t := at
	s.ResolvedAt = &t
}
