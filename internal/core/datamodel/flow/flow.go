package flow

import (
	"time"

	"github.com/frahmantamala/expense-approvals/internal/approval"
)

// ApprovalFlow is the company's default flow. Approvers are stored as a JSON array.
type ApprovalFlow struct {
	ID                 int64               `gorm:"primaryKey"`
	CompanyID          int64               `gorm:"column:company_id;uniqueIndex;not null"`
	Name               string              `gorm:"column:name;not null"`
	Description        string              `gorm:"column:description"`
	IsManagerFirst     bool                `gorm:"column:is_manager_first"`
	SequenceEnabled    bool                `gorm:"column:sequence_enabled"`
	Approvers          []approval.Approver `gorm:"column:approvers;type:text;serializer:json"`
	PercentThreshold   *int                `gorm:"column:percent_threshold"`
	SpecificApproverID *int64              `gorm:"column:specific_approver_id"`
	RejectionPolicy    string              `gorm:"column:rejection_policy;not null"`
	UpdatedBy          *int64              `gorm:"column:updated_by"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (ApprovalFlow) TableName() string {
	return "approval_flows"
}
