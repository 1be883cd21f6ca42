package flow

import (
	"errors"
	"time"

	"github.com/frahmantamala/expense-approvals/internal/approval"
	flowDatamodel "github.com/frahmantamala/expense-approvals/internal/core/datamodel/flow"
)

const DefaultName = "Default approval flow"

var ErrApproverNotInCompany = errors.New("approver must be an active manager or admin of the company")

// Flow is a company's default approval flow as stored.
type Flow struct {
	ID          int64               `json:"id,omitempty"`
	CompanyID   int64               `json:"company_id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Config      approval.FlowConfig `json:"config"`
	UpdatedBy   *int64              `json:"updated_by,omitempty"`
	UpdatedAt   time.Time           `json:"updated_at,omitempty"`
	// Saved is false for the built-in default of a company that never saved one.
	Saved bool `json:"saved"`
}

// Default is used for companies that never saved a flow: the manager decides
// first and alone.
func Default(companyID int64) *Flow {
	return &Flow{
		CompanyID: companyID,
		Name:      DefaultName,
		Config: approval.FlowConfig{
			IsManagerFirst:  true,
			SequenceEnabled: true,
			Approvers:       []approval.Approver{},
			RejectionPolicy: approval.RejectionVeto,
		},
	}
}

func ToDataModel(f *Flow) *flowDatamodel.ApprovalFlow {
	policy := f.Config.RejectionPolicy
	if policy == "" {
		policy = approval.RejectionVeto
	}
	return &flowDatamodel.ApprovalFlow{
		ID:                 f.ID,
		CompanyID:          f.CompanyID,
		Name:               f.Name,
		Description:        f.Description,
		IsManagerFirst:     f.Config.IsManagerFirst,
		SequenceEnabled:    f.Config.SequenceEnabled,
		Approvers:          f.Config.Approvers,
		PercentThreshold:   f.Config.PercentThreshold,
		SpecificApproverID: f.Config.SpecificApproverID,
		RejectionPolicy:    string(policy),
		UpdatedBy:          f.UpdatedBy,
		UpdatedAt:          f.UpdatedAt,
	}
}

func FromDataModel(d *flowDatamodel.ApprovalFlow) *Flow {
	approvers := d.Approvers
	if approvers == nil {
		approvers = []approval.Approver{}
	}
	return &Flow{
		ID:          d.ID,
		CompanyID:   d.CompanyID,
		Name:        d.Name,
		Description: d.Description,
		Config: approval.FlowConfig{
			IsManagerFirst:     d.IsManagerFirst,
			SequenceEnabled:    d.SequenceEnabled,
			Approvers:          approvers,
			PercentThreshold:   d.PercentThreshold,
			SpecificApproverID: d.SpecificApproverID,
			RejectionPolicy:    approval.RejectionPolicy(d.RejectionPolicy),
		},
		UpdatedBy: d.UpdatedBy,
		UpdatedAt: d.UpdatedAt,
		Saved:     true,
	}
}
