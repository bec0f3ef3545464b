package models

import (
	"encoding/json"
	"time"
)

// Media type values for Detection.MediaType.
const (
	MediaTypeImage = "image"
	MediaTypeVideo = "video"
)

// Motion detection type values parsed from the filename prefix.
const (
	MotionTypeMD  = "MD"
	MotionTypeHMD = "HMD"
)

// Detection is the persisted record for one artifact (image or video).
// It corresponds to the 'detections' table. Filepath is the natural key;
// re-offering a known path is a no-op at the processor level and rejected
// by the unique index if two producers race.
type Detection struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Filename  string `gorm:"size:100;not null;index" json:"filename"`
	Filepath  string `gorm:"size:500;not null;uniqueIndex" json:"filepath"`
	MediaType string `gorm:"size:10;not null;index;index:ix_detection_timestamp_media_type,priority:2;index:ix_detection_camera_media,priority:2" json:"media_type"`

	CameraID   uint    `gorm:"not null;index;index:ix_detection_file_timestamp_camera,priority:2;index:ix_detection_camera_time,priority:1;index:ix_detection_camera_media,priority:1" json:"camera_id"`
	MotionType *string `gorm:"size:10;index" json:"motion_type,omitempty"`

	Processed      bool    `gorm:"default:true;index;index:ix_detection_camera_media,priority:3" json:"processed"`
	ProcessingTime float64 `json:"processing_time_seconds"`

	Description string  `gorm:"type:text" json:"description"`
	Confidence  float64 `gorm:"index;index:ix_detection_confidence_time,priority:1" json:"confidence"`

	// raw aspect map from the describer, stored as a JSON blob
	AnalysisStructured string `gorm:"type:text" json:"analysis_structured,omitempty"`

	// Timestamp is the commit time; FileTimestamp comes from the filename
	// (nullable when the name's date group is unparseable)
	Timestamp     time.Time  `gorm:"index;index:ix_detection_timestamp_media_type,priority:1" json:"timestamp"`
	FileTimestamp *time.Time `gorm:"index;index:ix_detection_file_timestamp_camera,priority:1;index:ix_detection_camera_time,priority:2;index:ix_detection_alerts_time,priority:2;index:ix_detection_confidence_time,priority:2" json:"file_timestamp,omitempty"`

	Width      *int     `json:"width,omitempty"`
	Height     *int     `json:"height,omitempty"`
	FrameCount *int     `json:"frame_count,omitempty"`
	Duration   *float64 `json:"duration_seconds,omitempty"`

	// denormalized alert flags, kept in lockstep with the detection_alerts
	// rows inside the commit transaction
	HasPerson          bool `gorm:"default:false;index;index:ix_detection_alerts,priority:1" json:"has_person"`
	HasVehicle         bool `gorm:"default:false;index;index:ix_detection_alerts,priority:2" json:"has_vehicle"`
	HasPackage         bool `gorm:"default:false;index;index:ix_detection_alerts,priority:3" json:"has_package"`
	HasUnusualActivity bool `gorm:"default:false;index" json:"has_unusual_activity"`
	IsNightTime        bool `gorm:"default:false;index" json:"is_night_time"`
	AlertCount         int  `gorm:"default:0;index;index:ix_detection_alerts_time,priority:1" json:"alert_count"`

	// video only; nil when extraction failed or for images
	ThumbnailPath *string `gorm:"size:500" json:"thumbnail_path,omitempty"`

	Camera *Camera          `gorm:"foreignKey:CameraID" json:"camera,omitempty"`
	Alerts []DetectionAlert `gorm:"foreignKey:DetectionID" json:"alerts,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Detection) TableName() string {
	return "detections"
}

// StructuredAnalysis parses the stored analysis JSON; returns an empty
// map when the blob is absent or malformed.
func (d *Detection) StructuredAnalysis() map[string]string {
	out := map[string]string{}
	if d.AnalysisStructured == "" {
		return out
	}
	if err := json.Unmarshal([]byte(d.AnalysisStructured), &out); err != nil {
		return map[string]string{}
	}
	return out
}

// SetStructuredAnalysis stores the aspect map as JSON. A nil or empty map
// clears the blob.
func (d *Detection) SetStructuredAnalysis(aspects map[string]string) {
	if len(aspects) == 0 {
		d.AnalysisStructured = ""
		return
	}
	raw, err := json.Marshal(aspects)
	if err != nil {
		return
	}
	d.AnalysisStructured = string(raw)
}
