package models

import "time"

// Device type values derived from the device directory name prefix.
const (
	DeviceTypeStandard = "standard"
	DeviceTypeR2       = "R2"
	DeviceTypeR2C      = "R2C"
	DeviceTypeUnknown  = "unknown"
)

// Camera represents one physical device, identified by its location
// directory and device directory name. Rows are created lazily the first
// time a detection is committed for the pair and are never deleted.
type Camera struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	Location   string `gorm:"size:50;not null;index;uniqueIndex:ux_camera_location_device,priority:1" json:"location"`
	DeviceName string `gorm:"size:100;not null;index;uniqueIndex:ux_camera_location_device,priority:2" json:"device_name"`
	DeviceType string `gorm:"size:20;not null;index" json:"device_type"`

	// full camera identifier for display: location + "_" + device_name
	FullName string `gorm:"size:150;not null;index" json:"full_name"`

	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `gorm:"index" json:"last_seen"`
	IsActive  bool      `gorm:"default:true;index" json:"is_active"`

	// cached aggregates over the detections table, maintained inside the
	// commit transaction; a recount sweep can verify them (see repository)
	TotalDetections int `gorm:"default:0" json:"total_detections"`
	TotalAlerts     int `gorm:"default:0" json:"total_alerts"`

	Detections []Detection `gorm:"foreignKey:CameraID" json:"detections,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Camera) TableName() string {
	return "cameras"
}
