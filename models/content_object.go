package models

import "time"

// ContentObject repräsentiert ein hochgeladenes Artefakt (PDF oder Bild) in S3.
type ContentObject struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	Hash        string `json:"hash" gorm:"uniqueIndex;size:80;not null"`
	Kind        string `json:"kind" gorm:"size:16;index"` // pdf, image
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	S3Key       string `json:"s3_key" gorm:"column:s3_key"`
	S3Link      string `json:"s3_link" gorm:"column:s3_link"`
}

// TableName gibt explizit den Tabellennamen an.
func (ContentObject) TableName() string {
	return "content_objects"
}
