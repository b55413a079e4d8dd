package push

import (
	"github.com/nkansahrexford/saferide-server/cmd/models"
	"github.com/nkansahrexford/saferide-server/cmd/utils"
	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"gorm.io/gorm"
)

// RetireDeadTokens deactivates device rows whose tickets came back
// DeviceNotRegistered. Every other error reason is left alone: a
// transient gateway failure must not cost the user their registration.
// Returns the number of tokens retired.
func RetireDeadTokens(db *gorm.DB, tickets []Ticket) int {
	retired := 0
	for _, ticket := range tickets {
		if ticket.Status != TicketError || ticket.Details != expo.ErrorDeviceNotRegistered {
			continue
		}

		result := db.Model(&models.Device{}).
			Where("token = ?", ticket.Token).
			Update("is_active", false)
		if result.Error != nil {
			utils.Logger.Errorf("Error retiring token %s: %v", ticket.Token, result.Error)
			continue
		}
		if result.RowsAffected > 0 {
			utils.Logger.Infof("Retired unregistered device token %s", ticket.Token)
			retired++
		}
	}
	return retired
}
