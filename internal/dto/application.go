package dto

import (
	"time"

	"github.com/ayushichauhan770/civicseva-api/internal/models"
)

// SubmitApplicationRequest is the citizen-facing submission payload.
type SubmitApplicationRequest struct {
	Department       string  `json:"department" validate:"required"`
	SubDepartment    *string `json:"sub_department,omitempty"`
	Description      string  `json:"description" validate:"required,min=10"`
	Priority         string  `json:"priority" validate:"omitempty,priority"`
	DocumentVerified bool    `json:"document_verified"`
}

// TransitionRequest asks for a status change on an application.
type TransitionRequest struct {
	Status  string  `json:"status" validate:"required"`
	Comment *string `json:"comment,omitempty"`
}

// FeedbackRequest carries a citizen verdict on a terminal application.
type FeedbackRequest struct {
	IsSolved bool    `json:"is_solved"`
	Rating   int     `json:"rating" validate:"required,min=1,max=5"`
	Comment  *string `json:"comment,omitempty"`
}

// FeedbackEligibility tells the UI whether the feedback prompt should show.
type FeedbackEligibility struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

// UnassignedQuery restarts a FIFO page of applications awaiting acceptance.
type UnassignedQuery struct {
	AfterSubmittedAt *time.Time `form:"after_submitted_at" time_format:"2006-01-02T15:04:05Z07:00"`
	AfterID          string     `form:"after_id"`
	Limit            int        `form:"limit"`
}

// ApplicationResponse is the outward view of an application.
type ApplicationResponse struct {
	ID                   string                   `json:"id"`
	TrackingCode         string                   `json:"tracking_code"`
	Department           string                   `json:"department"`
	SubDepartment        *string                  `json:"sub_department,omitempty"`
	Description          string                   `json:"description"`
	Status               models.ApplicationStatus `json:"status"`
	Priority             models.Priority          `json:"priority"`
	Remarks              *string                  `json:"remarks,omitempty"`
	CitizenID            string                   `json:"citizen_id"`
	OfficialID           *string                  `json:"official_id,omitempty"`
	IsSolved             bool                     `json:"is_solved"`
	EscalationLevel      int                      `json:"escalation_level"`
	SubmittedAt          time.Time                `json:"submitted_at"`
	AssignedAt           *time.Time               `json:"assigned_at,omitempty"`
	ApprovedAt           *time.Time               `json:"approved_at,omitempty"`
	AutoApprovalDeadline time.Time                `json:"auto_approval_deadline"`
}

// FromApplication maps the model to its response shape.
func FromApplication(app *models.Application) *ApplicationResponse {
	if app == nil {
		return nil
	}
	return &ApplicationResponse{
		ID:                   app.ID,
		TrackingCode:         app.TrackingCode,
		Department:           app.Department,
		SubDepartment:        app.SubDepartment,
		Description:          app.Description,
		Status:               app.Status,
		Priority:             app.Priority,
		Remarks:              app.Remarks,
		CitizenID:            app.CitizenID,
		OfficialID:           app.OfficialID,
		IsSolved:             app.IsSolved,
		EscalationLevel:      app.EscalationLevel,
		SubmittedAt:          app.SubmittedAt,
		AssignedAt:           app.AssignedAt,
		ApprovedAt:           app.ApprovedAt,
		AutoApprovalDeadline: app.AutoApprovalDeadline,
	}
}
