package repository

import (
	"time"

	"github.com/camden-git/foscambackend/database"
	"github.com/camden-git/foscambackend/models"
)

// NewDetection carries everything the processor commits for one
// artifact. Camera identity is included so the camera upsert happens in
// the same transaction as the detection insert.
type NewDetection struct {
	Location   string
	DeviceName string
	DeviceType string

	Filename   string
	Filepath   string
	MediaType  string
	MotionType string

	Description        string
	Confidence         float64
	AnalysisStructured map[string]string

	FileTimestamp *time.Time
	Width         *int
	Height        *int
	FrameCount    *int
	Duration      *float64

	ProcessingTime float64
	ThumbnailPath  *string

	// alert kind names to write as DetectionAlert rows; the denormalized
	// flags are derived from this list inside the transaction
	AlertKinds []string
}

// AnalysisUpdate is the rewrite applied by an explicit reprocess: new
// description, flags, alert rows and media properties for an existing
// detection.
type AnalysisUpdate struct {
	Description        string
	Confidence         float64
	AnalysisStructured map[string]string
	ProcessingTime     float64
	Width              *int
	Height             *int
	FrameCount         *int
	Duration           *float64
	ThumbnailPath      *string
	AlertKinds         []string
}

// ListOptions filters and pages the detection listing.
type ListOptions struct {
	Page       int
	PerPage    int
	Start      *time.Time
	End        *time.Time
	CameraIDs  []uint
	OnlyAlerts bool
}

// CameraRepositoryInterface defines the methods for camera data operations
type CameraRepositoryInterface interface {
	GetOrCreate(location, deviceName, deviceType string) (*models.Camera, error)
	GetByID(id uint) (*models.Camera, error)
	ListAll() ([]models.Camera, error)
	VerifyCounters() ([]database.CounterDrift, error)
}

// DetectionRepositoryInterface defines the methods for detection data operations
type DetectionRepositoryInterface interface {
	ExistsByFilepath(path string) (bool, error)
	GetByID(id uint) (*models.Detection, error)
	Create(record *NewDetection) (*models.Detection, error)
	Reprocess(detectionID uint, update *AnalysisUpdate) error
	List(opts ListOptions) ([]models.Detection, int64, error)
	RebuildProcessingStats() (int, error)
}

// AlertTypeRepositoryInterface defines read access to the seeded catalog
type AlertTypeRepositoryInterface interface {
	ListAll() ([]models.AlertType, error)
	GetByName(name string) (*models.AlertType, error)
}
