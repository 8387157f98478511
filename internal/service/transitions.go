package service

import "github.com/ayushichauhan770/civicseva-api/internal/models"

// transitionEdges is the authoritative table of actor-driven status
// edges. Assignment (SUBMITTED -> ASSIGNED), the deadline-forced
// auto-approval and the escalation reopen are tagged operations with
// their own entry points and are deliberately absent here.
var transitionEdges = map[models.ApplicationStatus][]models.ApplicationStatus{
	models.StatusAssigned: {
		models.StatusInProgress,
		// Fast-track: an official may close directly from ASSIGNED.
		models.StatusApproved,
		models.StatusRejected,
	},
	models.StatusInProgress: {
		models.StatusApproved,
		models.StatusRejected,
	},
}

// CanTransition reports whether an official may move an application from
// one status to another.
func CanTransition(from, to models.ApplicationStatus) bool {
	for _, allowed := range transitionEdges[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// autoApproveTarget selects the auto-approval variant. Applications whose
// document passed the external verification scan land in the documented
// variant.
func autoApproveTarget(app *models.Application) models.ApplicationStatus {
	if app.DocumentVerified {
		return models.StatusAutoApprovedVerified
	}
	return models.StatusAutoApproved
}
