package models

import (
	"time"
)

// RemoteServer is one configured SWORD deposit target.
//
// Engine selects the protocol specialization used to talk to the server,
// e.g. "arxiv". ServiceDocument caches the parsed service document as JSON;
// it is refreshed whenever LastUpdated is older than UpdateFrequency allows.
type RemoteServer struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name     string `json:"name" gorm:"uniqueIndex;not null"`
	Engine   string `json:"engine" gorm:"not null"`
	Username string `json:"username"`
	Password string `json:"-"`
	Email    string `json:"email"`

	// UpdateFrequency is a duration string such as "1w3d", matching (\d+[wdhms])+.
	UpdateFrequency string `json:"update_frequency"`

	ServiceDocument []byte     `json:"-" gorm:"type:bytea"`
	LastUpdated     *time.Time `json:"last_updated,omitempty"`
}
