package models

import "time"

// DetectionAlert is the junction row between a detection and an alert
// type. The denormalized flags on Detection are the projection of these
// rows onto the five named kinds; both are written in the same commit
// transaction.
type DetectionAlert struct {
	ID          uint `gorm:"primaryKey" json:"id"`
	DetectionID uint `gorm:"not null;index;index:ix_detection_alert_detection_type,priority:1" json:"detection_id"`
	AlertTypeID uint `gorm:"not null;index;index:ix_detection_alert_detection_type,priority:2;index:ix_detection_alert_time_type,priority:2" json:"alert_type_id"`

	Confidence float64   `json:"confidence"`
	DetectedAt time.Time `gorm:"index;index:ix_detection_alert_time_type,priority:1" json:"detected_at"`

	Detection *Detection `gorm:"foreignKey:DetectionID" json:"-"`
	AlertType *AlertType `gorm:"foreignKey:AlertTypeID" json:"alert_type,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (DetectionAlert) TableName() string {
	return "detection_alerts"
}
