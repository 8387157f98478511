package service

import (
	"fmt"

	"github.com/ayushichauhan770/civicseva-api/internal/models"
)

// Notification templates are pure derivations from a transition: no state,
// no side effects, so every mapping stays independently testable.

func assignmentNotification(app *models.Application) models.Notification {
	return models.Notification{
		UserID:        app.CitizenID,
		Type:          models.NotificationAssignment,
		Title:         "Application assigned",
		Message:       fmt.Sprintf("Your application %s has been assigned to an official.", app.TrackingCode),
		ApplicationID: &app.ID,
	}
}

func approvalNotification(app *models.Application) models.Notification {
	return models.Notification{
		UserID:        app.CitizenID,
		Type:          models.NotificationApproval,
		Title:         "Application approved",
		Message:       fmt.Sprintf("Your application %s has been approved.", app.TrackingCode),
		ApplicationID: &app.ID,
	}
}

// delayedApprovalNotification flags an approval that was forced by the
// SLA deadline rather than an official's action.
func delayedApprovalNotification(app *models.Application) models.Notification {
	return models.Notification{
		UserID:        app.CitizenID,
		Type:          models.NotificationApproval,
		Title:         "Application auto-approved after SLA delay",
		Message:       fmt.Sprintf("Your application %s was not resolved within the service window and has been automatically approved.", app.TrackingCode),
		ApplicationID: &app.ID,
	}
}

// officialDelayNotification warns the assigned official that their
// application slipped past the deadline.
func officialDelayNotification(app *models.Application, officialID string) models.Notification {
	return models.Notification{
		UserID:        officialID,
		Type:          models.NotificationDelay,
		Title:         "Application exceeded SLA",
		Message:       fmt.Sprintf("Application %s passed its auto-approval deadline and was closed by the system.", app.TrackingCode),
		ApplicationID: &app.ID,
	}
}

// rejectionNotification uses the feedback channel, prompting the citizen
// to respond to the rejection.
func rejectionNotification(app *models.Application) models.Notification {
	return models.Notification{
		UserID:        app.CitizenID,
		Type:          models.NotificationFeedback,
		Title:         "Application rejected",
		Message:       fmt.Sprintf("Your application %s has been rejected. You can share feedback on the outcome.", app.TrackingCode),
		ApplicationID: &app.ID,
	}
}

func investigationAlerts(app *models.Application, level int, adminIDs []string) []models.Notification {
	alerts := make([]models.Notification, 0, len(adminIDs))
	for _, adminID := range adminIDs {
		alerts = append(alerts, models.Notification{
			UserID:        adminID,
			Type:          models.NotificationInvestigationAlert,
			Title:         "Repeated escalation",
			Message:       fmt.Sprintf("Application %s reached escalation level %d and may need oversight.", app.TrackingCode, level),
			ApplicationID: &app.ID,
		})
	}
	return alerts
}

func suspensionNotification(userID, reason string) models.Notification {
	message := "Your account has been suspended."
	if reason != "" {
		message = fmt.Sprintf("Your account has been suspended: %s", reason)
	}
	return models.Notification{
		UserID:  userID,
		Type:    models.NotificationSuspension,
		Title:   "Account suspended",
		Message: message,
	}
}
