package models

import (
	"time"
)

// ArchivedSubmission is the permanent record of one completed deposit.
// Rows are append-only; only Status and StatusUpdated change afterwards,
// when the remote server is polled on demand.
type ArchivedSubmission struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID   uint `json:"user_id" gorm:"index"`
	RecordID uint `json:"record_id" gorm:"index:idx_record_server"`
	ServerID uint `json:"server_id" gorm:"index:idx_record_server"`

	AlternateURL string    `json:"alternate_url"`
	EditURL      string    `json:"edit_url"`
	Submitted    time.Time `json:"submitted"`

	Status        string     `json:"status,omitempty"`
	StatusUpdated *time.Time `json:"status_updated,omitempty"`
}
