package models

import "time"

// SystemActorID attributes history rows written by the deadline sweeper.
const SystemActorID = "system"

// ApplicationHistory is an append-only audit trail entry. One row is
// written for every status transition and never mutated or deleted.
type ApplicationHistory struct {
	ID            string            `db:"id" json:"id"`
	ApplicationID string            `db:"application_id" json:"application_id"`
	Status        ApplicationStatus `db:"status" json:"status"`
	Comment       *string           `db:"comment" json:"comment,omitempty"`
	ActorID       string            `db:"actor_id" json:"actor_id"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
}
