package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nkansahrexford/saferide-server/cmd/models"
	"github.com/nkansahrexford/saferide-server/service/push"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type expoMessage struct {
	To    []string          `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
}

// expoFake plays the push gateway. tickets maps a token to the ticket
// it should get; unmapped tokens get an ok ticket.
type expoFake struct {
	mu      sync.Mutex
	batches [][]expoMessage
	tickets map[string]map[string]interface{}
}

func (g *expoFake) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var messages []expoMessage
		if err := json.NewDecoder(r.Body).Decode(&messages); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		g.mu.Lock()
		g.batches = append(g.batches, messages)
		g.mu.Unlock()

		data := make([]map[string]interface{}, len(messages))
		for i, msg := range messages {
			if ticket, ok := g.tickets[msg.To[0]]; ok {
				data[i] = ticket
			} else {
				data[i] = map[string]interface{}{"status": "ok", "id": "ticket-" + strconv.Itoa(i)}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
	}
}

func (g *expoFake) requests() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.batches)
}

func deadTicket() map[string]interface{} {
	return map[string]interface{}{
		"status":  "error",
		"message": "device no longer registered",
		"details": map[string]string{"error": "DeviceNotRegistered"},
	}
}

func setupPipeline(t *testing.T) (*gorm.DB, *Dispatcher, *expoFake) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	err = db.AutoMigrate(
		&models.User{},
		&models.Device{},
		&models.Notification{},
		&models.NotificationPreferences{},
	)
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	gateway := &expoFake{tickets: map[string]map[string]interface{}{}}
	server := httptest.NewServer(gateway.handler())
	t.Cleanup(server.Close)

	client := push.NewClient(push.Config{
		GatewayHost:  server.URL,
		BatchTimeout: 2 * time.Second,
		RetryBackoff: time.Millisecond,
	})
	return db, NewDispatcher(db, client), gateway
}

func registerDevice(t *testing.T, db *gorm.DB, userID, token string) {
	t.Helper()
	device := models.Device{Token: token, UserID: userID, IsActive: true, LastUsedAt: time.Now()}
	assert.NoError(t, db.Create(&device).Error)
}

func notificationRows(t *testing.T, db *gorm.DB) []models.Notification {
	t.Helper()
	var rows []models.Notification
	assert.NoError(t, db.Order("id").Find(&rows).Error)
	return rows
}

func TestDispatchUnknownTypeWritesNothing(t *testing.T) {
	db, dispatcher, gateway := setupPipeline(t)

	_, err := dispatcher.Dispatch(context.Background(), models.DispatchRequest{
		Type: "carrier-pigeon", UserID: "1",
	})

	assert.ErrorIs(t, err, ErrUnknownTemplate)
	assert.Empty(t, notificationRows(t, db))
	assert.Zero(t, gateway.requests())
}

func TestDispatchZeroTokensStillRecords(t *testing.T) {
	db, dispatcher, gateway := setupPipeline(t)

	summary, err := dispatcher.Dispatch(context.Background(), models.DispatchRequest{
		Type:   TypeRideRequest,
		UserID: "7",
		Data:   map[string]interface{}{"riderName": "Alex", "pickupLocation": "Lot A"},
	})

	assert.NoError(t, err)
	assert.True(t, summary.Success)
	assert.Equal(t, 1, summary.Recipients)
	assert.Zero(t, summary.Sent)
	assert.Zero(t, summary.Failed)
	assert.Zero(t, gateway.requests())

	rows := notificationRows(t, db)
	assert.Len(t, rows, 1)
	assert.Equal(t, "7", rows[0].UserID)
	assert.Equal(t, "Alex needs a ride from Lot A", rows[0].Body)
	assert.False(t, rows[0].Read)
	assert.Nil(t, rows[0].SentAt)
	assert.Nil(t, rows[0].DeliveredAt)
	assert.Nil(t, rows[0].FailedAt)
}

func TestDispatchDeliversToAllDevices(t *testing.T) {
	db, dispatcher, gateway := setupPipeline(t)
	registerDevice(t, db, "7", "ExponentPushToken[phone]")
	registerDevice(t, db, "7", "ExponentPushToken[tablet]")

	summary, err := dispatcher.Dispatch(context.Background(), models.DispatchRequest{
		Type:   TypeRideRequest,
		UserID: "7",
		Data:   map[string]interface{}{"riderName": "Alex", "pickupLocation": "Lot A"},
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, 1, gateway.requests())
	assert.Len(t, gateway.batches[0], 2)
	assert.Equal(t, "🚗 New Ride Request", gateway.batches[0][0].Title)
	assert.Equal(t, "RideRequests", gateway.batches[0][0].Data["screen"])

	rows := notificationRows(t, db)
	assert.Len(t, rows, 1)
	assert.NotNil(t, rows[0].SentAt)
	assert.NotNil(t, rows[0].DeliveredAt)
	assert.Nil(t, rows[0].FailedAt)
}

func TestDispatchAllTokensFailed(t *testing.T) {
	db, dispatcher, gateway := setupPipeline(t)
	registerDevice(t, db, "7", "ExponentPushToken[phone]")
	gateway.tickets["ExponentPushToken[phone]"] = map[string]interface{}{
		"status":  "error",
		"message": "message rate exceeded",
		"details": map[string]string{"error": "MessageRateExceeded"},
	}

	summary, err := dispatcher.Dispatch(context.Background(), models.DispatchRequest{
		Type: TypeRideRequest, UserID: "7",
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.Sent)

	rows := notificationRows(t, db)
	assert.Len(t, rows, 1)
	assert.Nil(t, rows[0].SentAt)
	assert.NotNil(t, rows[0].FailedAt)
	assert.Equal(t, "message rate exceeded", rows[0].FailureReason)

	// A transient error must not retire the token.
	var device models.Device
	assert.NoError(t, db.Where("token = ?", "ExponentPushToken[phone]").First(&device).Error)
	assert.True(t, device.IsActive)
}

func TestDispatchRetiresUnregisteredToken(t *testing.T) {
	db, dispatcher, gateway := setupPipeline(t)
	registerDevice(t, db, "7", "ExponentPushToken[gone]")
	gateway.tickets["ExponentPushToken[gone]"] = deadTicket()

	_, err := dispatcher.Dispatch(context.Background(), models.DispatchRequest{
		Type: TypeRideRequest, UserID: "7",
	})
	assert.NoError(t, err)

	var device models.Device
	assert.NoError(t, db.Where("token = ?", "ExponentPushToken[gone]").First(&device).Error)
	assert.False(t, device.IsActive)

	// The retired token is excluded from the next dispatch entirely.
	summary, err := dispatcher.Dispatch(context.Background(), models.DispatchRequest{
		Type: TypeRideRequest, UserID: "7",
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, gateway.requests())
	assert.Zero(t, summary.Sent)

	rows := notificationRows(t, db)
	assert.Len(t, rows, 2)
	assert.Nil(t, rows[1].SentAt)
	assert.Nil(t, rows[1].FailedAt)
}

func TestDispatchPartialDeliveryCountsAsSent(t *testing.T) {
	db, dispatcher, gateway := setupPipeline(t)
	registerDevice(t, db, "7", "ExponentPushToken[gone]")
	registerDevice(t, db, "7", "ExponentPushToken[alive]")
	gateway.tickets["ExponentPushToken[gone]"] = deadTicket()

	summary, err := dispatcher.Dispatch(context.Background(), models.DispatchRequest{
		Type: TypeRideRequest, UserID: "7",
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
	assert.Zero(t, summary.Failed)

	rows := notificationRows(t, db)
	assert.Len(t, rows, 1)
	assert.NotNil(t, rows[0].SentAt)
	assert.Nil(t, rows[0].FailedAt)

	var device models.Device
	assert.NoError(t, db.Where("token = ?", "ExponentPushToken[gone]").First(&device).Error)
	assert.False(t, device.IsActive)
}

func TestDispatchGroupTarget(t *testing.T) {
	db, dispatcher, gateway := setupPipeline(t)

	admin := models.User{FullName: "Admin", Email: "admin@example.com", Role: models.RoleAdmin, GroupID: groupRef(3)}
	member := models.User{FullName: "Member", Email: "member@example.com", Role: models.RoleMember, GroupID: groupRef(3)}
	assert.NoError(t, db.Create(&admin).Error)
	assert.NoError(t, db.Create(&member).Error)

	adminID := strconv.FormatUint(uint64(admin.ID), 10)
	registerDevice(t, db, adminID, "ExponentPushToken[admin]")

	summary, err := dispatcher.Dispatch(context.Background(), models.DispatchRequest{
		Type:    TypeVerificationFailure,
		GroupID: "3",
		Data:    map[string]interface{}{"driverName": "Jordan", "eventName": "Spring Formal"},
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Recipients)
	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, 1, gateway.requests())

	rows := notificationRows(t, db)
	assert.Len(t, rows, 1)
	assert.Equal(t, adminID, rows[0].UserID)
}

func TestDispatchEmptyGroupIsNoOp(t *testing.T) {
	db, dispatcher, gateway := setupPipeline(t)

	summary, err := dispatcher.Dispatch(context.Background(), models.DispatchRequest{
		Type:    TypeVerificationFailure,
		GroupID: "3",
	})

	assert.NoError(t, err)
	assert.True(t, summary.Success)
	assert.Zero(t, summary.Recipients)
	assert.Zero(t, summary.Sent)
	assert.Empty(t, notificationRows(t, db))
	assert.Zero(t, gateway.requests())
}

func TestDispatchCriticalBypassesOptOut(t *testing.T) {
	db, dispatcher, gateway := setupPipeline(t)
	registerDevice(t, db, "7", "ExponentPushToken[phone]")
	prefs := models.NotificationPreferences{UserID: "7", VerificationAlerts: false}
	assert.NoError(t, db.Create(&prefs).Error)

	summary, err := dispatcher.Dispatch(context.Background(), models.DispatchRequest{
		Type:   TypeVerificationFailure,
		UserID: "7",
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Recipients)
	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, 1, gateway.requests())
}

func TestDispatchRespectsOptOut(t *testing.T) {
	db, dispatcher, gateway := setupPipeline(t)
	registerDevice(t, db, "7", "ExponentPushToken[phone]")
	prefs := defaultPreferences("7")
	prefs.RideRequests = false
	assert.NoError(t, db.Create(&prefs).Error)

	summary, err := dispatcher.Dispatch(context.Background(), models.DispatchRequest{
		Type:   TypeRideRequest,
		UserID: "7",
	})

	assert.NoError(t, err)
	assert.True(t, summary.Success)
	assert.Zero(t, summary.Recipients)
	assert.Empty(t, notificationRows(t, db))
	assert.Zero(t, gateway.requests())
}
