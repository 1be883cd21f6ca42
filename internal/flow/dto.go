package flow

import (
	"strings"

	"github.com/frahmantamala/expense-approvals/internal"
	"github.com/frahmantamala/expense-approvals/internal/approval"
	"github.com/frahmantamala/expense-approvals/internal/core/common/validation"
)

// SaveFlowDTO is the body of PUT /flows/default.
type SaveFlowDTO struct {
	Name               string              `json:"name"`
	Description        string              `json:"description"`
	IsManagerFirst     bool                `json:"is_manager_first"`
	SequenceEnabled    bool                `json:"sequence_enabled"`
	Approvers          []approval.Approver `json:"approvers"`
	PercentThreshold   *int                `json:"percent_threshold"`
	SpecificApproverID *int64              `json:"specific_approver_id"`
	RejectionPolicy    string              `json:"rejection_policy"`
}

func (d *SaveFlowDTO) Normalize() {
	d.Name = strings.TrimSpace(d.Name)
	d.Description = strings.TrimSpace(d.Description)
	d.RejectionPolicy = strings.ToLower(strings.TrimSpace(d.RejectionPolicy))
	if d.Name == "" {
		d.Name = DefaultName
	}
	if d.Approvers == nil {
		d.Approvers = []approval.Approver{}
	}
}

// Validate checks the envelope; flow semantics are checked by approval.Validate.
func (d SaveFlowDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("name", d.Name).MaxLength(120)
	v.Field("description", d.Description).MaxLength(500)
	return v.Validate()
}

func (d SaveFlowDTO) Config() approval.FlowConfig {
	return approval.FlowConfig{
		IsManagerFirst:     d.IsManagerFirst,
		SequenceEnabled:    d.SequenceEnabled,
		Approvers:          d.Approvers,
		PercentThreshold:   d.PercentThreshold,
		SpecificApproverID: d.SpecificApproverID,
		RejectionPolicy:    approval.RejectionPolicy(d.RejectionPolicy),
	}
}
