package models

// Alert kind names seeded into the alert_types catalog at startup. The
// catalog is immutable after seeding.
const (
	AlertPersonDetected  = "PERSON_DETECTED"
	AlertVehicleDetected = "VEHICLE_DETECTED"
	AlertPackageDetected = "PACKAGE_DETECTED"
	AlertUnusualActivity = "UNUSUAL_ACTIVITY"
	AlertNightTime       = "NIGHT_TIME"
)

// AlertType is the lookup table of named alert kinds with a priority
// from 1 (low) to 4 (critical).
type AlertType struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:50;uniqueIndex;not null" json:"name"`
	Description string `gorm:"size:200" json:"description"`
	Priority    int    `gorm:"default:1;index" json:"priority"`

	DetectionAlerts []DetectionAlert `gorm:"foreignKey:AlertTypeID" json:"-"`
}

// TableName explicitly sets the table name for GORM.
func (AlertType) TableName() string {
	return "alert_types"
}
