package model

import "time"

// Media is the metadata of the single attachment a message may carry.
type Media struct {
	ID             string    `json:"id" gorm:"column:id;primaryKey;type:text"`
	OrganizationID string    `json:"organization_id" gorm:"column:organization_id;type:text;not null;index"`
	MessageID      string    `json:"message_id" gorm:"column:message_id;type:text;not null;uniqueIndex:ux_media_message_id"`
	MediaID        string    `json:"media_id,omitempty" gorm:"column:media_id;type:text"`
	Type           string    `json:"type" gorm:"column:type;type:text"`
	MimeType       string    `json:"mime_type" gorm:"column:mime_type;type:text"`
	SHA256         string    `json:"sha256,omitempty" gorm:"column:sha256;type:text"`
	Filename       string    `json:"filename,omitempty" gorm:"column:filename;type:text"`
	LocalPath      string    `json:"-" gorm:"column:local_path;type:text"`
	Size           int64     `json:"size,omitempty" gorm:"column:size"`
	CreatedAt      time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (Media) TableName() string {
	return "media"
}
