package model

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookLog is the append-only audit copy of one webhook entry as received.
type WebhookLog struct {
	ID             string         `json:"id" gorm:"column:id;primaryKey;type:text"`
	OrganizationID *string        `json:"organization_id,omitempty" gorm:"column:organization_id;type:text;index"`
	EntryID        string         `json:"entry_id" gorm:"column:entry_id;type:text;index"`
	Object         string         `json:"object" gorm:"column:object;type:text"`
	RequestID      string         `json:"request_id,omitempty" gorm:"column:request_id;type:text"`
	Payload        datatypes.JSON `json:"payload" gorm:"column:payload;type:jsonb"`
	ReceivedAt     time.Time      `json:"received_at" gorm:"column:received_at;not null;index"`
}

// TableName specifies the table name for GORM.
func (WebhookLog) TableName() string {
	return "webhook_logs"
}
