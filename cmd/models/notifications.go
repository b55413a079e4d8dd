package models

import (
	"time"

	"gorm.io/gorm"
)

// Notification is the durable per-recipient record of a dispatched
// notification. It is written once per recipient on every dispatch,
// whether or not the user had any device to push to, and is what the
// app reads back on the notifications screen.
//
// SentAt and DeliveredAt are set together when the gateway accepted at
// least one of the user's tokens; there is no separate delivery-receipt
// step, so "delivered" here means "accepted by the push gateway".
// FailedAt is set only when every token for the user errored.
type Notification struct {
	gorm.Model
	UserID        string     `gorm:"not null;index" json:"userId"`
	Type          string     `gorm:"type:varchar(50);not null" json:"type"`
	Title         string     `json:"title"`
	Body          string     `json:"body"`
	Data          string     `gorm:"type:text" json:"data,omitempty"` // JSON-encoded payload data
	Priority      string     `gorm:"type:varchar(20)" json:"priority"`
	Read          bool       `gorm:"default:false;index" json:"read"`
	SentAt        *time.Time `json:"sentAt,omitempty"`
	DeliveredAt   *time.Time `json:"deliveredAt,omitempty"`
	FailedAt      *time.Time `json:"failedAt,omitempty"`
	FailureReason string     `json:"failureReason,omitempty"`
	RetryCount    int        `gorm:"default:0" json:"retryCount"`
}

// NotificationPreferences holds one row of per-category opt-outs for a
// user. A user with no row is treated as opted in to everything.
// VerificationAlerts and RevocationAlerts are informational only: the
// two critical types are delivered regardless of what they say.
//
// The flags carry no column defaults on purpose: an explicit false
// must survive the insert, and absent rows are defaulted in code.
type NotificationPreferences struct {
	gorm.Model
	UserID             string `gorm:"not null;uniqueIndex" json:"userId"`
	RideRequests       bool   `json:"rideRequests"`
	RideStatus         bool   `json:"rideStatus"`
	EventUpdates       bool   `json:"eventUpdates"`
	DDRequestUpdates   bool   `json:"ddRequestUpdates"`
	SessionReminders   bool   `json:"sessionReminders"`
	VerificationAlerts bool   `json:"verificationAlerts"`
	RevocationAlerts   bool   `json:"revocationAlerts"`
}

// DispatchRequest is the inbound request to run the delivery pipeline.
// Exactly one of UserID or GroupID must be set.
type DispatchRequest struct {
	Type    string                 `json:"type"`
	UserID  string                 `json:"userId,omitempty"`
	GroupID string                 `json:"groupId,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// DispatchSummary is the definitive outcome returned to the caller,
// including under partial delivery failure.
type DispatchSummary struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Recipients int    `json:"recipients"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
}
