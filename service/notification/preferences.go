package notification

import (
	"github.com/nkansahrexford/saferide-server/cmd/models"
	"github.com/nkansahrexford/saferide-server/cmd/utils"
	"gorm.io/gorm"
)

// categoryForType maps a notification type onto the preference flag
// that governs it. Critical types appear here for completeness but are
// never consulted; the filter bypasses them before mapping.
var categoryForType = map[string]func(p models.NotificationPreferences) bool{
	TypeRideRequest:         func(p models.NotificationPreferences) bool { return p.RideRequests },
	TypeRideAccepted:        func(p models.NotificationPreferences) bool { return p.RideStatus },
	TypeRidePickedUp:        func(p models.NotificationPreferences) bool { return p.RideStatus },
	TypeRideCancelled:       func(p models.NotificationPreferences) bool { return p.RideStatus },
	TypeEventActive:         func(p models.NotificationPreferences) bool { return p.EventUpdates },
	TypeEventCancelled:      func(p models.NotificationPreferences) bool { return p.EventUpdates },
	TypeDDRequestApproved:   func(p models.NotificationPreferences) bool { return p.DDRequestUpdates },
	TypeDDRequestRejected:   func(p models.NotificationPreferences) bool { return p.DDRequestUpdates },
	TypeDDRequestCreated:    func(p models.NotificationPreferences) bool { return p.DDRequestUpdates },
	TypeDDAssigned:          func(p models.NotificationPreferences) bool { return p.DDRequestUpdates },
	TypeSessionStarted:      func(p models.NotificationPreferences) bool { return p.SessionReminders },
	TypeSessionReminder:     func(p models.NotificationPreferences) bool { return p.SessionReminders },
	TypeVerificationFailure: func(p models.NotificationPreferences) bool { return p.VerificationAlerts },
	TypeStatusRevoked:       func(p models.NotificationPreferences) bool { return p.RevocationAlerts },
}

// PreferenceFilter narrows a recipient set using stored per-user
// opt-outs.
type PreferenceFilter struct {
	db *gorm.DB
}

func NewPreferenceFilter(db *gorm.DB) *PreferenceFilter {
	return &PreferenceFilter{db: db}
}

// Filter drops recipients who opted out of the type's category.
// Critical types pass through untouched regardless of stored values.
// The filter fails open: an unmapped type, a missing preference row,
// or a preference-store error all keep recipients in the set. Losing a
// notification to a store outage is worse than over-sending one.
func (f *PreferenceFilter) Filter(userIDs []string, notificationType string) []string {
	if len(userIDs) == 0 || IsCritical(notificationType) {
		return userIDs
	}

	enabled, ok := categoryForType[notificationType]
	if !ok {
		utils.Logger.Warnf("No preference category mapped for type %s, sending to all", notificationType)
		return userIDs
	}

	var rows []models.NotificationPreferences
	if err := f.db.Where("user_id IN ?", userIDs).Find(&rows).Error; err != nil {
		utils.Logger.Errorf("Error loading notification preferences, sending to all: %v", err)
		return userIDs
	}

	byUser := make(map[string]models.NotificationPreferences, len(rows))
	for _, row := range rows {
		byUser[row.UserID] = row
	}

	filtered := make([]string, 0, len(userIDs))
	for _, userID := range userIDs {
		row, found := byUser[userID]
		// No stored row means the user never opted out of anything.
		if !found || enabled(row) {
			filtered = append(filtered, userID)
		}
	}
	return filtered
}
