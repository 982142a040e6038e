package models

import (
	"time"
)

// Record is a bibliographic record as seen by the deposit client: the MARC
// field data serialized as JSON plus the last modification timestamp. The
// record store itself is maintained elsewhere; this client only reads it.
type Record struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	Fields     []byte    `json:"-" gorm:"type:bytea;not null"`
	ModifiedAt time.Time `json:"modified_at"`
}

// RecordFile is one file attached to a record. S3Key locates the content in
// object storage; Extension carries the leading dot (".pdf").
type RecordFile struct {
	ID       uint `json:"id" gorm:"primaryKey"`
	RecordID uint `json:"record_id" gorm:"index"`

	Name      string `json:"name"`
	S3Key     string `json:"s3_key"`
	URL       string `json:"url"`
	Checksum  string `json:"checksum"`
	Size      int64  `json:"size"`
	MIME      string `json:"mime"`
	Extension string `json:"extension"`
}
