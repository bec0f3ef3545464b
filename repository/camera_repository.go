package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/camden-git/foscambackend/database"
	"github.com/camden-git/foscambackend/models"
)

// CameraRepository implements CameraRepositoryInterface using GORM
type CameraRepository struct {
	DB *gorm.DB
}

func NewCameraRepository(db *gorm.DB) *CameraRepository {
	return &CameraRepository{DB: db}
}

// GetOrCreate finds the camera for (location, device_name), creating it
// on first sight and refreshing last_seen on every call.
func (r *CameraRepository) GetOrCreate(location, deviceName, deviceType string) (*models.Camera, error) {
	var camera models.Camera
	err := r.DB.Where("location = ? AND device_name = ?", location, deviceName).First(&camera).Error
	if err == nil {
		camera.LastSeen = time.Now()
		if err := r.DB.Model(&camera).Update("last_seen", camera.LastSeen).Error; err != nil {
			return nil, fmt.Errorf("failed to update last_seen for camera %d: %w", camera.ID, err)
		}
		return &camera, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to query camera (%s, %s): %w", location, deviceName, err)
	}

	camera = models.Camera{
		Location:   location,
		DeviceName: deviceName,
		DeviceType: deviceType,
		FullName:   location + "_" + deviceName,
		LastSeen:   time.Now(),
		IsActive:   true,
	}
	if err := r.DB.Create(&camera).Error; err != nil {
		// a concurrent producer may have created it between the lookup
		// and the insert
		var existing models.Camera
		if lookupErr := r.DB.Where("location = ? AND device_name = ?", location, deviceName).First(&existing).Error; lookupErr == nil {
			return &existing, nil
		}
		return nil, fmt.Errorf("failed to create camera (%s, %s): %w", location, deviceName, err)
	}
	return &camera, nil
}

func (r *CameraRepository) GetByID(id uint) (*models.Camera, error) {
	var camera models.Camera
	if err := r.DB.First(&camera, id).Error; err != nil {
		return nil, err
	}
	return &camera, nil
}

// ListAll returns every camera ordered by (location, device_name).
func (r *CameraRepository) ListAll() ([]models.Camera, error) {
	var cameras []models.Camera
	if err := r.DB.Order("location ASC, device_name ASC").Find(&cameras).Error; err != nil {
		return nil, fmt.Errorf("failed to list cameras: %w", err)
	}
	return cameras, nil
}

// VerifyCounters recomputes the cached camera counters and repairs any
// drift. Returns the drifts found (after repair) for operator logging.
func (r *CameraRepository) VerifyCounters() ([]database.CounterDrift, error) {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	drifts, err := database.RecountCameraCounters(sqlDB)
	if err != nil {
		return nil, err
	}

	for _, drift := range drifts {
		err := r.DB.Model(&models.Camera{}).Where("id = ?", drift.CameraID).
			Updates(map[string]interface{}{
				"total_detections": drift.ActualDetects,
				"total_alerts":     drift.ActualAlerts,
			}).Error
		if err != nil {
			return drifts, fmt.Errorf("failed to repair counters for camera %d: %w", drift.CameraID, err)
		}
	}
	return drifts, nil
}
