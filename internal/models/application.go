package models

import "time"

// ApplicationStatus enumerates the lifecycle states of a citizen application.
type ApplicationStatus string

const (
	StatusSubmitted  ApplicationStatus = "SUBMITTED"
	StatusAssigned   ApplicationStatus = "ASSIGNED"
	StatusInProgress ApplicationStatus = "IN_PROGRESS"
	StatusApproved   ApplicationStatus = "APPROVED"
	StatusRejected   ApplicationStatus = "REJECTED"
	// StatusAutoApproved is reached only through the deadline sweeper.
	StatusAutoApproved ApplicationStatus = "AUTO_APPROVED"
	// StatusAutoApprovedVerified is the auto-approval variant used when the
	// document-scan collaborator already verified the attached document.
	StatusAutoApprovedVerified ApplicationStatus = "AUTO_APPROVED_VERIFIED"
)

// IsTerminal reports whether the status ends the current lifecycle round.
// Terminal applications can only move again through an escalation reopen.
func (s ApplicationStatus) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusAutoApproved, StatusAutoApprovedVerified:
		return true
	default:
		return false
	}
}

// IsValid reports whether the status is one of the enumerated values.
func (s ApplicationStatus) IsValid() bool {
	switch s {
	case StatusSubmitted, StatusAssigned, StatusInProgress,
		StatusApproved, StatusRejected, StatusAutoApproved, StatusAutoApprovedVerified:
		return true
	default:
		return false
	}
}

// Priority orders applications by urgency and selects the SLA window.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityNormal Priority = "NORMAL"
)

// Application represents one citizen service request.
type Application struct {
	ID                   string            `db:"id" json:"id"`
	TrackingCode         string            `db:"tracking_code" json:"tracking_code"`
	Department           string            `db:"department" json:"department"`
	SubDepartment        *string           `db:"sub_department" json:"sub_department,omitempty"`
	Description          string            `db:"description" json:"description"`
	Status               ApplicationStatus `db:"status" json:"status"`
	Priority             Priority          `db:"priority" json:"priority"`
	Remarks              *string           `db:"remarks" json:"remarks,omitempty"`
	CitizenID            string            `db:"citizen_id" json:"citizen_id"`
	OfficialID           *string           `db:"official_id" json:"official_id,omitempty"`
	DocumentVerified     bool              `db:"document_verified" json:"document_verified"`
	IsSolved             bool              `db:"is_solved" json:"is_solved"`
	EscalationLevel      int               `db:"escalation_level" json:"escalation_level"`
	SubmittedAt          time.Time         `db:"submitted_at" json:"submitted_at"`
	AssignedAt           *time.Time        `db:"assigned_at" json:"assigned_at,omitempty"`
	ApprovedAt           *time.Time        `db:"approved_at" json:"approved_at,omitempty"`
	AutoApprovalDeadline time.Time         `db:"auto_approval_deadline" json:"auto_approval_deadline"`
	UpdatedAt            time.Time         `db:"updated_at" json:"updated_at"`
}

// UnassignedCursor restarts a FIFO listing of applications awaiting an
// official. The zero value starts from the oldest submission.
type UnassignedCursor struct {
	AfterSubmittedAt *time.Time
	AfterID          string
	Limit            int
}
