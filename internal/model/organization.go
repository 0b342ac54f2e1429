package model

import "time"

// Organization is the tenant boundary. It owns exactly one WhatsApp Business
// phone number and the credentials used to talk to the Cloud API for it.
type Organization struct {
	ID                string    `json:"id" gorm:"column:id;primaryKey;type:text"`
	Name              string    `json:"name" gorm:"column:name;type:text"`
	PhoneNumberID     string    `json:"phone_number_id" gorm:"column:phone_number_id;type:text;uniqueIndex:ux_organizations_phone_number_id"`
	BusinessAccountID string    `json:"business_account_id,omitempty" gorm:"column:business_account_id;type:text"`
	AccessToken       string    `json:"-" gorm:"column:access_token;type:text"`
	WebhookSecret     string    `json:"-" gorm:"column:webhook_secret;type:text"`
	VerifyToken       string    `json:"-" gorm:"column:verify_token;type:text;index"`
	CreatedAt         time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Organization) TableName() string {
	return "organizations"
}
