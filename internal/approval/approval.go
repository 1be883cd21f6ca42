// Package approval holds the approval-flow configuration model and the resolver
// that turns a flow snapshot plus recorded decisions into an expense outcome.
//
// The package is pure: it performs no I/O and never mutates a State in place.
// Persistence, locking and notifications belong to the callers.
package approval

import (
	"time"
)

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// IsTerminal reports whether no further decisions can change the status.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// RejectionPolicy controls how a rejection by a non-required approver is treated
// when the flow is not sequenced.
type RejectionPolicy string

const (
	// RejectionVeto makes any rejection terminal.
	RejectionVeto RejectionPolicy = "veto"
	// RejectionExclude drops non-required rejectors from the percent denominator
	// and lets the remaining approvers carry the expense.
	RejectionExclude RejectionPolicy = "exclude"
)

type Approver struct {
	UserID   int64 `json:"user_id"`
	Required bool  `json:"required"`
}

// FlowConfig is the approval flow a company configures. Each expense keeps its
// own copy taken at submission time.
type FlowConfig struct {
	IsManagerFirst     bool            `json:"is_manager_first"`
	SequenceEnabled    bool            `json:"sequence_enabled"`
	Approvers          []Approver      `json:"approvers"`
	PercentThreshold   *int            `json:"percent_threshold,omitempty"`
	SpecificApproverID *int64          `json:"specific_approver_id,omitempty"`
	RejectionPolicy    RejectionPolicy `json:"rejection_policy,omitempty"`
}

func (f FlowConfig) policy() RejectionPolicy {
	if f.RejectionPolicy == RejectionExclude {
		return RejectionExclude
	}
	return RejectionVeto
}

// Clone returns a deep copy so snapshots never share slices or pointers with
// the live configuration.
func (f FlowConfig) Clone() FlowConfig {
	out := f
	out.Approvers = append([]Approver(nil), f.Approvers...)
	if f.PercentThreshold != nil {
		v := *f.PercentThreshold
		out.PercentThreshold = &v
	}
	if f.SpecificApproverID != nil {
		v := *f.SpecificApproverID
		out.SpecificApproverID = &v
	}
	return out
}

type DecisionRecord struct {
	Decision Decision  `json:"decision"`
	At       time.Time `json:"at"`
	Comment  string    `json:"comment,omitempty"`
}

// State is the per-expense approval record.
type State struct {
	ExpenseID  int64
	EmployeeID int64
	ManagerID  *int64

	Flow  FlowConfig
	Route []Approver

	StepIndex     int
	Decisions     map[int64]DecisionRecord
	DecisionOrder []int64

	Status     Status
	Version    int64
	ResolvedAt *time.Time
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	out := *s
	out.Flow = s.Flow.Clone()
	out.Route = append([]Approver(nil), s.Route...)
	out.DecisionOrder = append([]int64(nil), s.DecisionOrder...)
	out.Decisions = make(map[int64]DecisionRecord, len(s.Decisions))
	for k, v := range s.Decisions {
		out.Decisions[k] = v
	}
	if s.ManagerID != nil {
		v := *s.ManagerID
		out.ManagerID = &v
	}
	if s.ResolvedAt != nil {
		v := *s.ResolvedAt
		out.ResolvedAt = &v
	}
	return &out
}

// OnRoute reports whether userID is one of the approvers of this expense.
func (s *State) OnRoute(userID int64) bool {
	return s.routeIndex(userID) >= 0
}

// HasDecided reports whether userID already recorded a decision.
func (s *State) HasDecided(userID int64) bool {
	_, ok := s.Decisions[userID]
	return ok
}

// DecisionOf returns the decision recorded for userID, or pending.
func (s *State) DecisionOf(userID int64) Decision {
	if rec, ok := s.Decisions[userID]; ok {
		return rec.Decision
	}
	return DecisionPending
}

// IsSpecificApprover reports whether userID holds the hybrid override.
func (s *State) IsSpecificApprover(userID int64) bool {
	return s.Flow.SpecificApproverID != nil && *s.Flow.SpecificApproverID == userID
}

func (s *State) routeIndex(userID int64) int {
	for i, a := range s.Route {
		if a.UserID == userID {
			return i
		}
	}
	return -1
}
