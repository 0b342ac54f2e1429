package model

import "time"

// Contact is an external chat participant, unique per (organization, external id).
type Contact struct {
	ID             string    `json:"id" gorm:"column:id;primaryKey;type:text"`
	OrganizationID string    `json:"organization_id" gorm:"column:organization_id;type:text;not null;uniqueIndex:ux_contacts_org_external,priority:1"`
	ExternalID     string    `json:"external_id" gorm:"column:external_id;type:text;not null;uniqueIndex:ux_contacts_org_external,priority:2"`
	Phone          string    `json:"phone" gorm:"column:phone;type:text"`
	Name           string    `json:"name" gorm:"column:name;type:text"`
	CreatedAt      time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Contact) TableName() string {
	return "contacts"
}
