package models

import (
	"time"

	"gorm.io/gorm"
)

// Device is one registered push target. A user may hold several rows
// (phone plus tablet); a token is globally unique and re-registration
// upserts on it. Rows are never deleted on delivery failure, only
// flipped inactive, so the registration history stays auditable.
type Device struct {
	gorm.Model
	Token      string    `gorm:"not null;uniqueIndex" json:"token"`
	UserID     string    `gorm:"not null;index" json:"userId"`
	DeviceOS   string    `gorm:"type:varchar(20)" json:"deviceOs,omitempty"`
	AppVersion string    `gorm:"type:varchar(20)" json:"appVersion,omitempty"`
	IsActive   bool      `gorm:"default:true;index" json:"isActive"`
	LastUsedAt time.Time `json:"lastUsedAt"`
}

// DeviceRegistration is the request body for registering a device token.
type DeviceRegistration struct {
	UserID     string `json:"userId"`
	Token      string `json:"token"`
	DeviceOS   string `json:"deviceOs,omitempty"`
	AppVersion string `json:"appVersion,omitempty"`
}
