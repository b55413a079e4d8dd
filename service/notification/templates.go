package notification

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nkansahrexford/saferide-server/service/push"
)

// Notification types understood by the pipeline. New behavior is added
// by registering a template, never by special-casing call sites.
const (
	TypeRideRequest         = "ride-request"
	TypeRideAccepted        = "ride-accepted"
	TypeRidePickedUp        = "ride-picked-up"
	TypeRideCancelled       = "ride-cancelled"
	TypeVerificationFailure = "verification-failure"
	TypeStatusRevoked       = "status-revoked"
	TypeSessionStarted      = "session-started"
	TypeSessionReminder     = "session-reminder"
	TypeDDRequestApproved   = "dd-request-approved"
	TypeDDRequestRejected   = "dd-request-rejected"
	TypeEventActive         = "event-active"
	TypeEventCancelled      = "event-cancelled"
	TypeDDAssigned          = "dd-assigned"
	TypeDDRequestCreated    = "dd-request-created"
)

var ErrUnknownTemplate = errors.New("no template registered for notification type")

// Template renders one notification type. Builders are total: a field
// missing from the event data degrades to a readable placeholder so a
// slightly incomplete event still produces a usable notification.
type Template struct {
	Priority string
	Sound    string
	Title    func(data map[string]interface{}) string
	Body     func(data map[string]interface{}) string
	Data     func(data map[string]interface{}) map[string]string
}

// criticalTypes bypass user notification preferences entirely.
var criticalTypes = map[string]bool{
	TypeVerificationFailure: true,
	TypeStatusRevoked:       true,
}

func IsCritical(notificationType string) bool {
	return criticalTypes[notificationType]
}

// Lookup returns the template for a type, or ErrUnknownTemplate.
func Lookup(notificationType string) (Template, error) {
	template, ok := registry[notificationType]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, notificationType)
	}
	return template, nil
}

// BuildPayload renders the outbound payload for a type. An unknown
// type is a hard stop for the whole request; no partial delivery
// happens with a missing payload.
func BuildPayload(notificationType string, data map[string]interface{}) (push.Payload, error) {
	template, err := Lookup(notificationType)
	if err != nil {
		return push.Payload{}, err
	}
	return push.Payload{
		Title:    template.Title(data),
		Body:     template.Body(data),
		Data:     template.Data(data),
		Priority: template.Priority,
		Sound:    template.Sound,
	}, nil
}

// field reads a string out of the event data, falling back to a
// placeholder when the field is absent or empty.
func field(data map[string]interface{}, key, fallback string) string {
	value, ok := data[key]
	if !ok || value == nil {
		return fallback
	}
	s := fmt.Sprintf("%v", value)
	if s == "" {
		return fallback
	}
	return s
}

// navigate builds the outbound data bag. Every payload carries a
// screen plus JSON-encoded params so the app can route a tapped
// notification without the server knowing anything about navigation.
func navigate(screen string, data map[string]interface{}, keys ...string) map[string]string {
	params := make(map[string]interface{})
	for _, key := range keys {
		if value, ok := data[key]; ok {
			params[key] = value
		}
	}
	encoded, _ := json.Marshal(params)
	return map[string]string{
		"screen": screen,
		"params": string(encoded),
	}
}

var registry = map[string]Template{
	TypeRideRequest: {
		Priority: push.PriorityHigh,
		Sound:    push.SoundDefault,
		Title: func(data map[string]interface{}) string {
			return "🚗 New Ride Request"
		},
		Body: func(data map[string]interface{}) string {
			return fmt.Sprintf("%s needs a ride from %s",
				field(data, "riderName", "A rider"),
				field(data, "pickupLocation", "their location"))
		},
		Data: func(data map[string]interface{}) map[string]string {
			return navigate("RideRequests", data, "rideId", "eventId")
		},
	},
	TypeRideAccepted: {
		Priority: push.PriorityHigh,
		Sound:    push.SoundDefault,
		Title: func(data map[string]interface{}) string {
			return "✅ Ride Accepted"
		},
		Body: func(data map[string]interface{}) string {
			return fmt.Sprintf("%s is on the way to %s",
				field(data, "driverName", "A driver"),
				field(data, "pickupLocation", "your location"))
		},
		Data: func(data map[string]interface{}) map[string]string {
			return navigate("MyRide", data, "rideId")
		},
	},
	TypeRidePickedUp: {
		Priority: push.PriorityNormal,
		Sound:    push.SoundDefault,
		Title: func(data map[string]interface{}) string {
			return "🚗 Ride Update"
		},
		Body: func(data map[string]interface{}) string {
			return fmt.Sprintf("%s has picked up %s",
				field(data, "driverName", "Your driver"),
				field(data, "riderName", "their rider"))
		},
		Data: func(data map[string]interface{}) map[string]string {
			return navigate("MyRide", data, "rideId")
		},
	},
	TypeRideCancelled: {
		Priority: push.PriorityNormal,
		Sound:    push.SoundDefault,
		Title: func(data map[string]interface{}) string {
			return "❌ Ride Cancelled"
		},
		Body: func(data map[string]interface{}) string {
			return fmt.Sprintf("%s cancelled their ride request",
				field(data, "riderName", "A rider"))
		},
		Data: func(data map[string]interface{}) map[string]string {
			return navigate("RideRequests", data, "rideId", "eventId")
		},
	},
	TypeVerificationFailure: {
		Priority: push.PriorityCritical,
		Sound:    push.SoundCritical,
		Title: func(data map[string]interface{}) string {
			return "🚨 Verification Failed"
		},
		Body: func(data map[string]interface{}) string {
			return fmt.Sprintf("%s failed a sobriety verification at %s",
				field(data, "driverName", "A designated driver"),
				field(data, "eventName", "an event"))
		},
		Data: func(data map[string]interface{}) map[string]string {
			return navigate("EventSessions", data, "eventId", "sessionId", "driverId")
		},
	},
	TypeStatusRevoked: {
		Priority: push.PriorityCritical,
		Sound:    push.SoundCritical,
		Title: func(data map[string]interface{}) string {
			return "🚨 Driver Status Revoked"
		},
		Body: func(data map[string]interface{}) string {
			return fmt.Sprintf("Your designated driver status for %s has been revoked",
				field(data, "eventName", "an event"))
		},
		Data: func(data map[string]interface{}) map[string]string {
			return navigate("EventDetail", data, "eventId")
		},
	},
	TypeSessionStarted: {
		Priority: push.PriorityNormal,
		Sound:    push.SoundDefault,
		Title: func(data map[string]interface{}) string {
			return "🍻 Session Started"
		},
		Body: func(data map[string]interface{}) string {
			return fmt.Sprintf("Your driving session for %s has started. Stay safe!",
				field(data, "eventName", "an event"))
		},
		Data: func(data map[string]interface{}) map[string]string {
			return navigate("SessionDetail", data, "sessionId", "eventId")
		},
	},
	TypeSessionReminder: {
		Priority: push.PriorityHigh,
		Sound:    push.SoundDefault,
		Title: func(data map[string]interface{}) string {
			return "⏰ Verification Due"
		},
		Body: func(data map[string]interface{}) string {
			return fmt.Sprintf("Time for your verification check for %s",
				field(data, "eventName", "an event"))
		},
		Data: func(data map[string]interface{}) map[string]string {
			return navigate("SessionDetail", data, "sessionId", "eventId")
		},
	},
	TypeDDRequestApproved: {
		Priority: push.PriorityNormal,
		Sound:    push.SoundDefault,
		Title: func(data map[string]interface{}) string {
			return "✅ DD Request Approved"
		},
		Body: func(data map[string]interface{}) string {
			return fmt.Sprintf("Your designated driver request for %s was approved",
				field(data, "eventName", "an event"))
		},
		Data: func(data map[string]interface{}) map[string]string {
			return navigate("EventDetail", data, "eventId", "requestId")
		},
	},
	TypeDDRequestRejected: {
		Priority: push.PriorityNormal,
		Sound:    push.SoundDefault,
		Title: func(data map[string]interface{}) string {
			return "DD Request Update"
		},
		Body: func(data map[string]interface{}) string {
			return fmt.Sprintf("Your designated driver request for %s was not approved",
				field(data, "eventName", "an event"))
		},
		Data: func(data map[string]interface{}) map[string]string {
			return navigate("EventDetail", data, "eventId", "requestId")
		},
	},
	TypeEventActive: {
		Priority: push.PriorityNormal,
		Sound:    push.SoundDefault,
		Title: func(data map[string]interface{}) string {
			return "📅 Event Started"
		},
		Body: func(data map[string]interface{}) string {
			return fmt.Sprintf("%s is now active", field(data, "eventName", "An event"))
		},
		Data: func(data map[string]interface{}) map[string]string {
			return navigate("EventDetail", data, "eventId")
		},
	},
	TypeEventCancelled: {
		Priority: push.PriorityNormal,
		Sound:    push.SoundDefault,
		Title: func(data map[string]interface{}) string {
			return "📅 Event Cancelled"
		},
		Body: func(data map[string]interface{}) string {
			return fmt.Sprintf("%s has been cancelled", field(data, "eventName", "An event"))
		},
		Data: func(data map[string]interface{}) map[string]string {
			return navigate("Events", data, "eventId")
		},
	},
	TypeDDAssigned: {
		Priority: push.PriorityHigh,
		Sound:    push.SoundDefault,
		Title: func(data map[string]interface{}) string {
			return "🚗 You're a Designated Driver"
		},
		Body: func(data map[string]interface{}) string {
			return fmt.Sprintf("You've been assigned as a designated driver for %s",
				field(data, "eventName", "an event"))
		},
		Data: func(data map[string]interface{}) map[string]string {
			return navigate("EventDetail", data, "eventId")
		},
	},
	TypeDDRequestCreated: {
		Priority: push.PriorityNormal,
		Sound:    push.SoundDefault,
		Title: func(data map[string]interface{}) string {
			return "🙋 New DD Volunteer"
		},
		Body: func(data map[string]interface{}) string {
			return fmt.Sprintf("%s volunteered to drive for %s",
				field(data, "memberName", "A member"),
				field(data, "eventName", "an event"))
		},
		Data: func(data map[string]interface{}) map[string]string {
			return navigate("DDRequests", data, "requestId", "eventId")
		},
	},
}
