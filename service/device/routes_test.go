package device

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
	"github.com/nkansahrexford/saferide-server/cmd/models"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupDeviceRouter(t *testing.T) (*gorm.DB, *mux.Router) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.AutoMigrate(&models.Device{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	router := mux.NewRouter()
	NewHandler(db).RegisterRoutes(router)
	return db, router
}

func authToken(t *testing.T, userID string) string {
	t.Helper()
	t.Setenv("SECRET_KEY", "test-secret")
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	assert.NoError(t, err)
	return signed
}

func postJSON(t *testing.T, router *mux.Router, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	encoded, err := json.Marshal(body)
	assert.NoError(t, err)
	req, err := http.NewRequest("POST", path, bytes.NewBuffer(encoded))
	assert.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRegisterDeviceUpsertsOnToken(t *testing.T) {
	db, router := setupDeviceRouter(t)

	registration := models.DeviceRegistration{
		UserID:     "7",
		Token:      "ExponentPushToken[phone]",
		DeviceOS:   "ios",
		AppVersion: "1.0.0",
	}
	w := postJSON(t, router, "/devices", registration)
	assert.Equal(t, http.StatusOK, w.Code)

	// Same token again with new metadata must update in place.
	registration.AppVersion = "1.1.0"
	w = postJSON(t, router, "/devices", registration)
	assert.Equal(t, http.StatusOK, w.Code)

	var devices []models.Device
	assert.NoError(t, db.Find(&devices).Error)
	assert.Len(t, devices, 1)
	assert.Equal(t, "1.1.0", devices[0].AppVersion)
	assert.True(t, devices[0].IsActive)
}

func TestRegisterDeviceReactivatesRetiredToken(t *testing.T) {
	db, router := setupDeviceRouter(t)

	device := models.Device{Token: "ExponentPushToken[phone]", UserID: "7", IsActive: true, LastUsedAt: time.Now()}
	assert.NoError(t, db.Create(&device).Error)
	assert.NoError(t, db.Model(&device).Update("is_active", false).Error)

	w := postJSON(t, router, "/devices", models.DeviceRegistration{
		UserID: "7",
		Token:  "ExponentPushToken[phone]",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var reloaded models.Device
	assert.NoError(t, db.Where("token = ?", device.Token).First(&reloaded).Error)
	assert.True(t, reloaded.IsActive)
}

func TestRegisterDeviceRejectsBadToken(t *testing.T) {
	_, router := setupDeviceRouter(t)

	w := postJSON(t, router, "/devices", models.DeviceRegistration{
		UserID: "7",
		Token:  "not-a-push-token",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterDeviceRequiresFields(t *testing.T) {
	_, router := setupDeviceRouter(t)

	w := postJSON(t, router, "/devices", models.DeviceRegistration{Token: "ExponentPushToken[x]"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeactivateDevice(t *testing.T) {
	db, router := setupDeviceRouter(t)

	device := models.Device{Token: "ExponentPushToken[phone]", UserID: "7", IsActive: true, LastUsedAt: time.Now()}
	assert.NoError(t, db.Create(&device).Error)

	req, err := http.NewRequest("DELETE", "/devices/"+device.Token, nil)
	assert.NoError(t, err)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var reloaded models.Device
	assert.NoError(t, db.Where("token = ?", device.Token).First(&reloaded).Error)
	assert.False(t, reloaded.IsActive)
}

func TestDeactivateUnknownDevice(t *testing.T) {
	_, router := setupDeviceRouter(t)

	req, err := http.NewRequest("DELETE", "/devices/ExponentPushToken[nope]", nil)
	assert.NoError(t, err)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetUserDevicesRequiresAuth(t *testing.T) {
	db, router := setupDeviceRouter(t)

	device := models.Device{Token: "ExponentPushToken[phone]", UserID: "7", IsActive: true, LastUsedAt: time.Now()}
	assert.NoError(t, db.Create(&device).Error)

	req, err := http.NewRequest("GET", "/users/7/devices", nil)
	assert.NoError(t, err)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req.Header.Set("Authorization", "Bearer "+authToken(t, "7"))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var devices []models.Device
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &devices))
	assert.Len(t, devices, 1)
}
