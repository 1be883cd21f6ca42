package approval

import "errors"

var (
	ErrNotEligible     = errors.New("approver is not eligible to decide at this step")
	ErrAlreadyDecided  = errors.New("approver already decided on this expense")
	ErrAlreadyResolved = errors.New("expense approval is already resolved")
	ErrUnknownApprover = errors.New("user is not an approver of this expense")
	ErrInvalidConfig   = errors.New("invalid approval flow configuration")
	ErrNoApprovers     = errors.New("approval flow resolves to no approvers")
	ErrInvalidDecision = errors.New("decision must be approved or rejected")
)
