package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nkansahrexford/saferide-server/cmd/api"
	"github.com/nkansahrexford/saferide-server/cmd/models"
	"github.com/nkansahrexford/saferide-server/cmd/utils"
	"github.com/nkansahrexford/saferide-server/db"
	"gorm.io/gorm"
)

func main() {
	utils.InitLogger()

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			runMigrations()
			return
		default:
			utils.Logger.Fatalf("Unknown command: %s", os.Args[1])
		}
	}

	startServer()
}

func runMigrations() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		utils.Logger.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		sqlDB, _ := DB.DB()
		sqlDB.Close()
		utils.Logger.Info("Database connection closed")
	}()
	utils.Logger.Info("Connected to the database for migrations")

	if err := performMigrations(DB); err != nil {
		utils.Logger.Fatalf("Migration error: %v", err)
	}
	utils.Logger.Info("Migrations completed successfully")
}

func performMigrations(DB *gorm.DB) error {

	migrations := map[interface{}]string{
		&models.User{}:                    "User",
		&models.Device{}:                  "Device",
		&models.Notification{}:            "Notification",
		&models.NotificationPreferences{}: "NotificationPreferences",
	}

	utils.Logger.Info("Starting database migrations...")
	for model, name := range migrations {
		utils.Logger.Infof("Migrating %s table...", name)
		if err := DB.AutoMigrate(model); err != nil {
			return fmt.Errorf("error migrating %s table: %w", name, err)
		}
		utils.Logger.Infof("%s migration successful", name)
	}

	return nil
}

func startServer() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		utils.Logger.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		sqlDB, _ := DB.DB()
		sqlDB.Close()
		utils.Logger.Info("Database connection closed")
	}()
	utils.Logger.Info("Connected to the database")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	server := api.NewApiServer(":"+port, DB)

	go func() {
		if err := server.Run(); err != nil {
			utils.Logger.Fatalf("Server error: %v", err)
		}
	}()
	utils.Logger.Infof("Server running on port %s", port)

	<-quit
	utils.Logger.Info("Shutting down server...")
}
