package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/nkansahrexford/saferide-server/cmd/models"
	"github.com/nkansahrexford/saferide-server/cmd/utils"
	"github.com/nkansahrexford/saferide-server/service/push"
	"gorm.io/gorm"
)

// Handler handles notification operations
type Handler struct {
	db         *gorm.DB
	dispatcher *Dispatcher
}

// NewHandler creates a new notification handler
func NewHandler(db *gorm.DB, pushClient *push.Client) *Handler {
	return &Handler{
		db:         db,
		dispatcher: NewDispatcher(db, pushClient),
	}
}

// RegisterRoutes registers all notification routes
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/notifications/dispatch", h.DispatchNotification).Methods("POST")
	router.HandleFunc("/notifications/{id}/read", utils.AuthMiddleware(h.MarkRead)).Methods("PATCH")
	router.HandleFunc("/users/{userId}/notifications", utils.AuthMiddleware(h.GetUserNotifications)).Methods("GET")
	router.HandleFunc("/users/{userId}/notifications/read-all", utils.AuthMiddleware(h.MarkAllRead)).Methods("POST")
	router.HandleFunc("/users/{userId}/preferences", utils.AuthMiddleware(h.GetPreferences)).Methods("GET")
	router.HandleFunc("/users/{userId}/preferences", utils.AuthMiddleware(h.UpdatePreferences)).Methods("PUT")
}

// DispatchNotification runs the delivery pipeline for one domain event.
func (h *Handler) DispatchNotification(w http.ResponseWriter, r *http.Request) {
	var req models.DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Type == "" {
		http.Error(w, "Notification type is required", http.StatusBadRequest)
		return
	}

	// The pipeline keeps running even if the caller goes away; an
	// abandoned request must not stop in-flight gateway calls.
	summary, err := h.dispatcher.Dispatch(context.Background(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownTemplate),
			errors.Is(err, ErrMissingTarget),
			errors.Is(err, ErrAmbiguousTarget):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			utils.Logger.Errorf("Dispatch error: %v", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{
				"error":   "internal error",
				"message": "failed to process notification request",
			})
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

// GetUserNotifications returns a user's notification history, newest first.
func (h *Handler) GetUserNotifications(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID := vars["userId"]

	if userID == "" {
		http.Error(w, "User ID is required", http.StatusBadRequest)
		return
	}

	limit := 20
	page := 1

	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsedLimit, err := strconv.Atoi(limitParam); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	if pageParam := r.URL.Query().Get("page"); pageParam != "" {
		if parsedPage, err := strconv.Atoi(pageParam); err == nil && parsedPage > 0 {
			page = parsedPage
		}
	}

	offset := (page - 1) * limit

	var count int64
	if err := h.db.Model(&models.Notification{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		http.Error(w, "Error counting notifications", http.StatusInternalServerError)
		return
	}

	var notifications []models.Notification
	if err := h.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&notifications).Error; err != nil {
		http.Error(w, "Error retrieving notifications", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"total":         count,
		"page":          page,
		"limit":         limit,
		"notifications": notifications,
	})
}

// MarkRead flips a single notification to read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	notificationID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid notification ID", http.StatusBadRequest)
		return
	}

	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	result := h.db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("read", true)
	if result.Error != nil {
		http.Error(w, "Error updating notification", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "Notification not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Notification marked as read",
	})
}

// MarkAllRead flips every unread notification for a user to read.
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID := vars["userId"]

	if userID == "" {
		http.Error(w, "User ID is required", http.StatusBadRequest)
		return
	}

	result := h.db.Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true)
	if result.Error != nil {
		http.Error(w, "Error updating notifications", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "All notifications marked as read",
		"updated": result.RowsAffected,
	})
}

// GetPreferences returns a user's notification preferences. A user
// without a stored row gets the defaults (everything enabled).
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID := vars["userId"]

	if userID == "" {
		http.Error(w, "User ID is required", http.StatusBadRequest)
		return
	}

	prefs := defaultPreferences(userID)
	if err := h.db.Where("user_id = ?", userID).First(&prefs).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Error retrieving preferences", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(prefs)
}

// UpdatePreferences upserts a user's notification preferences.
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID := vars["userId"]

	if userID == "" {
		http.Error(w, "User ID is required", http.StatusBadRequest)
		return
	}

	var incoming models.NotificationPreferences
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var prefs models.NotificationPreferences
	result := h.db.Where("user_id = ?", userID).First(&prefs)

	if result.Error == nil {
		prefs.RideRequests = incoming.RideRequests
		prefs.RideStatus = incoming.RideStatus
		prefs.EventUpdates = incoming.EventUpdates
		prefs.DDRequestUpdates = incoming.DDRequestUpdates
		prefs.SessionReminders = incoming.SessionReminders
		prefs.VerificationAlerts = incoming.VerificationAlerts
		prefs.RevocationAlerts = incoming.RevocationAlerts
		if err := h.db.Save(&prefs).Error; err != nil {
			http.Error(w, "Error updating preferences", http.StatusInternalServerError)
			return
		}
	} else if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		incoming.UserID = userID
		if err := h.db.Create(&incoming).Error; err != nil {
			http.Error(w, "Error creating preferences", http.StatusInternalServerError)
			return
		}
		prefs = incoming
	} else {
		http.Error(w, "Error retrieving preferences", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(prefs)
}

func defaultPreferences(userID string) models.NotificationPreferences {
	return models.NotificationPreferences{
		UserID:             userID,
		RideRequests:       true,
		RideStatus:         true,
		EventUpdates:       true,
		DDRequestUpdates:   true,
		SessionReminders:   true,
		VerificationAlerts: true,
		RevocationAlerts:   true,
	}
}
