package database

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/camden-git/foscambackend/models"
)

// InitGormDB initializes and returns a GORM database instance
func InitGormDB(dataSourceName string) (*gorm.DB, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(sqlite.Open(dataSourceName), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database using GORM: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB from GORM: %w", err)
	}

	// write-ahead logging so API readers never block the commit path
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		log.Printf("Warning: failed to set WAL mode: %v", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Println("GORM Database initialized successfully at", dataSourceName)
	return db, nil
}

// AutoMigrateModels migrates the detection schema. Called once at
// startup before any producer runs.
func AutoMigrateModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Camera{},
		&models.AlertType{},
		&models.Detection{},
		&models.DetectionAlert{},
		&models.ProcessingStats{},
	)
	if err != nil {
		return fmt.Errorf("GORM AutoMigrate failed: %w", err)
	}
	log.Println("GORM AutoMigrate completed successfully.")
	return nil
}

// standardAlertTypes is the fixed catalog seeded at startup; immutable
// afterwards.
var standardAlertTypes = []models.AlertType{
	{Name: models.AlertPersonDetected, Description: "Person detected in scene", Priority: 2},
	{Name: models.AlertVehicleDetected, Description: "Vehicle detected in scene", Priority: 2},
	{Name: models.AlertPackageDetected, Description: "Package or delivery detected", Priority: 3},
	{Name: models.AlertUnusualActivity, Description: "Unusual or suspicious activity", Priority: 4},
	{Name: models.AlertNightTime, Description: "Activity during night hours", Priority: 1},
}

// SeedAlertTypes inserts any missing catalog rows. Existing rows are
// left untouched.
func SeedAlertTypes(db *gorm.DB) error {
	for _, alertType := range standardAlertTypes {
		var existing models.AlertType
		err := db.Where("name = ?", alertType.Name).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to query alert type %s: %w", alertType.Name, err)
		}
		record := alertType
		if err := db.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to seed alert type %s: %w", alertType.Name, err)
		}
	}
	return nil
}
