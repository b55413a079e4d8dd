package api

import (
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/nkansahrexford/saferide-server/cmd/utils"
	"github.com/nkansahrexford/saferide-server/service/device"
	"github.com/nkansahrexford/saferide-server/service/notification"
	"github.com/nkansahrexford/saferide-server/service/push"
	"gorm.io/gorm"
)

type APIServer struct {
	address string
	db      *gorm.DB
}

func NewApiServer(address string, db *gorm.DB) *APIServer {
	return &APIServer{
		address: address,
		db:      db,
	}
}

func (s *APIServer) Run() error {
	router := mux.NewRouter()
	subrouter := router.PathPrefix("/api/v1").Subrouter()

	pushClient := push.NewClient(push.Config{
		AccessToken: os.Getenv("EXPO_ACCESS_TOKEN"),
	})

	deviceHandler := device.NewHandler(s.db)
	deviceHandler.RegisterRoutes(subrouter)

	notificationHandler := notification.NewHandler(s.db, pushClient)
	notificationHandler.RegisterRoutes(subrouter)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	utils.Logger.Infof("Server running at %s", s.address)
	return http.ListenAndServe(s.address, cors(router))
}
