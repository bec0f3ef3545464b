package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/camden-git/foscambackend/models"
)

// ErrDuplicateFilepath is returned when a detection for the path already
// exists; callers treat it as a dedupe hit.
var ErrDuplicateFilepath = errors.New("detection already exists for filepath")

// DetectionRepository implements DetectionRepositoryInterface using GORM
type DetectionRepository struct {
	DB      *gorm.DB
	Cameras *CameraRepository
}

func NewDetectionRepository(db *gorm.DB) *DetectionRepository {
	return &DetectionRepository{DB: db, Cameras: NewCameraRepository(db)}
}

// ExistsByFilepath reports whether a detection has been committed for
// the path.
func (r *DetectionRepository) ExistsByFilepath(path string) (bool, error) {
	var count int64
	err := r.DB.Model(&models.Detection{}).Where("filepath = ?", path).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check filepath %s: %w", path, err)
	}
	return count > 0, nil
}

func (r *DetectionRepository) GetByID(id uint) (*models.Detection, error) {
	var detection models.Detection
	err := r.DB.Preload("Camera").Preload("Alerts.AlertType").First(&detection, id).Error
	if err != nil {
		return nil, err
	}
	return &detection, nil
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// flagsFromKinds projects alert kind names onto the denormalized flag
// columns.
func flagsFromKinds(kinds []string) (hasPerson, hasVehicle, hasPackage, hasUnusual, isNight bool) {
	for _, kind := range kinds {
		switch kind {
		case models.AlertPersonDetected:
			hasPerson = true
		case models.AlertVehicleDetected:
			hasVehicle = true
		case models.AlertPackageDetected:
			hasPackage = true
		case models.AlertUnusualActivity:
			hasUnusual = true
		case models.AlertNightTime:
			isNight = true
		}
	}
	return
}

func marshalAspects(aspects map[string]string) string {
	if len(aspects) == 0 {
		return ""
	}
	raw, err := json.Marshal(aspects)
	if err != nil {
		return ""
	}
	return string(raw)
}

// alertTypeIDs resolves kind names against the seeded catalog inside the
// given transaction.
func alertTypeIDs(tx *gorm.DB, kinds []string) (map[string]uint, error) {
	ids := make(map[string]uint, len(kinds))
	if len(kinds) == 0 {
		return ids, nil
	}
	var types []models.AlertType
	if err := tx.Where("name IN ?", kinds).Find(&types).Error; err != nil {
		return nil, fmt.Errorf("failed to resolve alert types: %w", err)
	}
	for _, at := range types {
		ids[at.Name] = at.ID
	}
	for _, kind := range kinds {
		if _, ok := ids[kind]; !ok {
			return nil, fmt.Errorf("unknown alert kind %q", kind)
		}
	}
	return ids, nil
}

// Create commits one artifact atomically: camera upsert, detection
// insert, alert rows and the camera counter bump all happen in a single
// transaction. A unique-constraint race with a concurrent producer
// surfaces as ErrDuplicateFilepath.
func (r *DetectionRepository) Create(record *NewDetection) (*models.Detection, error) {
	var created models.Detection

	err := r.DB.Transaction(func(tx *gorm.DB) error {
		cameras := NewCameraRepository(tx)
		camera, err := cameras.GetOrCreate(record.Location, record.DeviceName, record.DeviceType)
		if err != nil {
			return err
		}

		hasPerson, hasVehicle, hasPackage, hasUnusual, isNight := flagsFromKinds(record.AlertKinds)

		detection := models.Detection{
			Filename:           record.Filename,
			Filepath:           record.Filepath,
			MediaType:          record.MediaType,
			CameraID:           camera.ID,
			Processed:          true,
			ProcessingTime:     record.ProcessingTime,
			Description:        record.Description,
			Confidence:         record.Confidence,
			AnalysisStructured: marshalAspects(record.AnalysisStructured),
			Timestamp:          time.Now(),
			FileTimestamp:      record.FileTimestamp,
			Width:              record.Width,
			Height:             record.Height,
			FrameCount:         record.FrameCount,
			Duration:           record.Duration,
			HasPerson:          hasPerson,
			HasVehicle:         hasVehicle,
			HasPackage:         hasPackage,
			HasUnusualActivity: hasUnusual,
			IsNightTime:        isNight,
			AlertCount:         len(record.AlertKinds),
			ThumbnailPath:      record.ThumbnailPath,
		}
		if record.MotionType != "" {
			motionType := record.MotionType
			detection.MotionType = &motionType
		}

		if err := tx.Create(&detection).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateFilepath
			}
			return fmt.Errorf("failed to insert detection for %s: %w", record.Filepath, err)
		}

		typeIDs, err := alertTypeIDs(tx, record.AlertKinds)
		if err != nil {
			return err
		}
		for _, kind := range record.AlertKinds {
			alert := models.DetectionAlert{
				DetectionID: detection.ID,
				AlertTypeID: typeIDs[kind],
				Confidence:  record.Confidence,
				DetectedAt:  time.Now(),
			}
			if err := tx.Create(&alert).Error; err != nil {
				return fmt.Errorf("failed to insert detection alert %s: %w", kind, err)
			}
		}

		err = tx.Model(&models.Camera{}).Where("id = ?", camera.ID).
			Updates(map[string]interface{}{
				"total_detections": gorm.Expr("total_detections + ?", 1),
				"total_alerts":     gorm.Expr("total_alerts + ?", len(record.AlertKinds)),
			}).Error
		if err != nil {
			return fmt.Errorf("failed to bump counters for camera %d: %w", camera.ID, err)
		}

		created = detection
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// Reprocess rewrites the analysis of an existing detection: description,
// flags, alert rows, media properties and thumbnail, all in one
// transaction. The camera's alert counter absorbs the delta.
func (r *DetectionRepository) Reprocess(detectionID uint, update *AnalysisUpdate) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var detection models.Detection
		if err := tx.First(&detection, detectionID).Error; err != nil {
			return err
		}

		oldAlertCount := detection.AlertCount

		if err := tx.Where("detection_id = ?", detectionID).Delete(&models.DetectionAlert{}).Error; err != nil {
			return fmt.Errorf("failed to clear alerts for detection %d: %w", detectionID, err)
		}

		hasPerson, hasVehicle, hasPackage, hasUnusual, isNight := flagsFromKinds(update.AlertKinds)

		updates := map[string]interface{}{
			"description":          update.Description,
			"confidence":           update.Confidence,
			"analysis_structured":  marshalAspects(update.AnalysisStructured),
			"processing_time":      update.ProcessingTime,
			"width":                update.Width,
			"height":               update.Height,
			"frame_count":          update.FrameCount,
			"duration":             update.Duration,
			"thumbnail_path":       update.ThumbnailPath,
			"has_person":           hasPerson,
			"has_vehicle":          hasVehicle,
			"has_package":          hasPackage,
			"has_unusual_activity": hasUnusual,
			"is_night_time":        isNight,
			"alert_count":          len(update.AlertKinds),
			"timestamp":            time.Now(),
		}
		if err := tx.Model(&models.Detection{}).Where("id = ?", detectionID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update detection %d: %w", detectionID, err)
		}

		typeIDs, err := alertTypeIDs(tx, update.AlertKinds)
		if err != nil {
			return err
		}
		for _, kind := range update.AlertKinds {
			alert := models.DetectionAlert{
				DetectionID: detectionID,
				AlertTypeID: typeIDs[kind],
				Confidence:  update.Confidence,
				DetectedAt:  time.Now(),
			}
			if err := tx.Create(&alert).Error; err != nil {
				return fmt.Errorf("failed to insert detection alert %s: %w", kind, err)
			}
		}

		delta := len(update.AlertKinds) - oldAlertCount
		if delta != 0 {
			err := tx.Model(&models.Camera{}).Where("id = ?", detection.CameraID).
				Update("total_alerts", gorm.Expr("total_alerts + ?", delta)).Error
			if err != nil {
				return fmt.Errorf("failed to adjust alert counter for camera %d: %w", detection.CameraID, err)
			}
		}
		return nil
	})
}

// List returns one page of detections ordered by file_timestamp
// descending with id as the tiebreak, plus the unpaged total.
func (r *DetectionRepository) List(opts ListOptions) ([]models.Detection, int64, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PerPage < 1 {
		opts.PerPage = 50
	}
	if opts.PerPage > 100 {
		opts.PerPage = 100
	}

	query := r.DB.Model(&models.Detection{}).Where("processed = ?", true)
	if opts.Start != nil {
		query = query.Where("file_timestamp >= ?", *opts.Start)
	}
	if opts.End != nil {
		query = query.Where("file_timestamp <= ?", *opts.End)
	}
	if len(opts.CameraIDs) > 0 {
		query = query.Where("camera_id IN ?", opts.CameraIDs)
	}
	if opts.OnlyAlerts {
		query = query.Where("alert_count > 0")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count detections: %w", err)
	}

	var detections []models.Detection
	err := query.
		Preload("Camera").
		Preload("Alerts.AlertType").
		Order("file_timestamp DESC, id DESC").
		Limit(opts.PerPage).
		Offset((opts.Page - 1) * opts.PerPage).
		Find(&detections).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list detections: %w", err)
	}
	return detections, total, nil
}

// RebuildProcessingStats recomputes the (date, hour, camera) roll-up
// from scratch and returns the number of rows written.
func (r *DetectionRepository) RebuildProcessingStats() (int, error) {
	var detections []models.Detection
	err := r.DB.Select("id", "camera_id", "media_type", "file_timestamp", "timestamp",
		"processing_time", "confidence", "alert_count", "has_person", "has_vehicle", "has_package").
		Find(&detections).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load detections for stats rebuild: %w", err)
	}

	type bucketKey struct {
		date     time.Time
		hour     int
		cameraID uint
	}
	buckets := map[bucketKey]*models.ProcessingStats{}

	for _, d := range detections {
		ts := d.Timestamp
		if d.FileTimestamp != nil {
			ts = *d.FileTimestamp
		}
		local := ts.Local()
		key := bucketKey{
			date:     time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location()),
			hour:     local.Hour(),
			cameraID: d.CameraID,
		}
		stats, ok := buckets[key]
		if !ok {
			stats = &models.ProcessingStats{Date: key.date, Hour: key.hour, CameraID: key.cameraID}
			buckets[key] = stats
		}
		stats.FilesProcessed++
		if d.MediaType == models.MediaTypeVideo {
			stats.VideosProcessed++
		} else {
			stats.ImagesProcessed++
		}
		stats.TotalProcessingTime += d.ProcessingTime
		stats.AvgConfidence += d.Confidence
		stats.TotalAlerts += d.AlertCount
		if d.HasPerson {
			stats.PersonAlerts++
		}
		if d.HasVehicle {
			stats.VehicleAlerts++
		}
		if d.HasPackage {
			stats.PackageAlerts++
		}
	}

	err = r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.ProcessingStats{}).Error; err != nil {
			return fmt.Errorf("failed to clear processing stats: %w", err)
		}
		for _, stats := range buckets {
			if stats.FilesProcessed > 0 {
				stats.AvgProcessingTime = stats.TotalProcessingTime / float64(stats.FilesProcessed)
				stats.AvgConfidence = stats.AvgConfidence / float64(stats.FilesProcessed)
			}
			if err := tx.Create(stats).Error; err != nil {
				return fmt.Errorf("failed to insert processing stats row: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(buckets), nil
}
