package models

import "time"

// NotificationType classifies user-facing notification events.
type NotificationType string

const (
	NotificationApproval           NotificationType = "APPROVAL"
	NotificationDelay              NotificationType = "DELAY"
	NotificationAssignment         NotificationType = "ASSIGNMENT"
	NotificationFeedback           NotificationType = "FEEDBACK"
	NotificationInvestigationAlert NotificationType = "INVESTIGATION_ALERT"
	NotificationSuspension         NotificationType = "SUSPENSION"
)

// Notification is a user-addressed event record. Rows are created by the
// emitter in the same transaction as the status change that caused them
// and mutated only when the recipient marks them read.
type Notification struct {
	ID            string           `db:"id" json:"id"`
	UserID        string           `db:"user_id" json:"user_id"`
	Type          NotificationType `db:"type" json:"type"`
	Title         string           `db:"title" json:"title"`
	Message       string           `db:"message" json:"message"`
	Read          bool             `db:"read" json:"read"`
	ApplicationID *string          `db:"application_id" json:"application_id,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
}
