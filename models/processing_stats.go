package models

import "time"

// ProcessingStats is the per-(date, hour, camera) roll-up of processing
// counters. It is rebuilt on demand from the detections table rather
// than maintained incrementally.
type ProcessingStats struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Date time.Time `gorm:"not null;index;index:ix_stats_date_camera,priority:1;index:ix_stats_date_hour,priority:1" json:"date"`
	Hour int       `gorm:"index;index:ix_stats_date_hour,priority:2" json:"hour"`

	CameraID uint `gorm:"not null;index;index:ix_stats_date_camera,priority:2" json:"camera_id"`

	FilesProcessed  int `gorm:"default:0" json:"files_processed"`
	ImagesProcessed int `gorm:"default:0" json:"images_processed"`
	VideosProcessed int `gorm:"default:0" json:"videos_processed"`

	AvgProcessingTime   float64 `json:"avg_processing_time"`
	TotalProcessingTime float64 `json:"total_processing_time"`
	AvgConfidence       float64 `json:"avg_confidence"`

	TotalAlerts   int `gorm:"default:0" json:"total_alerts"`
	PersonAlerts  int `gorm:"default:0" json:"person_alerts"`
	VehicleAlerts int `gorm:"default:0" json:"vehicle_alerts"`
	PackageAlerts int `gorm:"default:0" json:"package_alerts"`

	Camera *Camera `gorm:"foreignKey:CameraID" json:"-"`
}

// TableName explicitly sets the table name for GORM.
func (ProcessingStats) TableName() string {
	return "processing_stats"
}
