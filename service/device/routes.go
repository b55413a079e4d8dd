package device

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/nkansahrexford/saferide-server/cmd/models"
	"github.com/nkansahrexford/saferide-server/cmd/utils"
	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Handler handles device token registration
type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// RegisterRoutes registers all device routes
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/devices", h.RegisterDevice).Methods("POST")
	router.HandleFunc("/devices/{token}", h.DeactivateDevice).Methods("DELETE")
	router.HandleFunc("/users/{userId}/devices", utils.AuthMiddleware(h.GetUserDevices)).Methods("GET")
}

// RegisterDevice registers a device token for push notifications.
// The token is the conflict key: re-registering a known token updates
// the existing row (and reactivates it) instead of duplicating it.
func (h *Handler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req models.DeviceRegistration
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.UserID == "" || req.Token == "" {
		http.Error(w, "UserID and token are required", http.StatusBadRequest)
		return
	}

	if _, err := expo.NewExponentPushToken(req.Token); err != nil {
		http.Error(w, "Invalid Expo push token format", http.StatusBadRequest)
		return
	}

	device := models.Device{
		Token:      req.Token,
		UserID:     req.UserID,
		DeviceOS:   req.DeviceOS,
		AppVersion: req.AppVersion,
		IsActive:   true,
		LastUsedAt: time.Now(),
	}

	if err := h.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id", "device_os", "app_version", "is_active", "last_used_at", "updated_at",
		}),
	}).Create(&device).Error; err != nil {
		utils.Logger.Errorf("Error registering device: %v", err)
		http.Error(w, "Error registering device", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Device registered successfully",
		"device":  device,
	})
}

// GetUserDevices gets all devices for a specific user
func (h *Handler) GetUserDevices(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID := vars["userId"]

	if userID == "" {
		http.Error(w, "User ID is required", http.StatusBadRequest)
		return
	}

	var devices []models.Device
	if err := h.db.Where("user_id = ?", userID).Find(&devices).Error; err != nil {
		http.Error(w, "Error retrieving devices", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(devices)
}

// DeactivateDevice retires a device token. The row is kept for audit;
// it just stops receiving pushes.
func (h *Handler) DeactivateDevice(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	token := vars["token"]

	result := h.db.Model(&models.Device{}).
		Where("token = ?", token).
		Update("is_active", false)
	if result.Error != nil {
		http.Error(w, "Error deactivating device", http.StatusInternalServerError)
		return
	}

	if result.RowsAffected == 0 {
		http.Error(w, "Device not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Device deactivated successfully",
	})
}
