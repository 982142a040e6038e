package models

import (
	"time"
)

// TempSubmission holds one in-progress submission between workflow steps,
// keyed by its session token. Payload is the versioned JSON encoding of the
// submission; the row is deleted as soon as the submission is archived.
type TempSubmission struct {
	SID         string    `json:"sid" gorm:"primaryKey;size:32"`
	Payload     []byte    `json:"-" gorm:"type:bytea;not null"`
	LastUpdated time.Time `json:"last_updated"`
}
