package models

import "time"

// Feedback captures a citizen's verdict on a terminal application. An
// application accumulates one row per escalation cycle, so feedback is
// deliberately not unique per application.
type Feedback struct {
	ID            string    `db:"id" json:"id"`
	ApplicationID string    `db:"application_id" json:"application_id"`
	CitizenID     string    `db:"citizen_id" json:"citizen_id"`
	OfficialID    *string   `db:"official_id" json:"official_id,omitempty"`
	IsSolved      bool      `db:"is_solved" json:"is_solved"`
	Rating        int       `db:"rating" json:"rating"`
	Comment       *string   `db:"comment" json:"comment,omitempty"`
	Verified      bool      `db:"verified" json:"verified"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
