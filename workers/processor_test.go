package workers

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/camden-git/foscambackend/config"
	"github.com/camden-git/foscambackend/database"
	"github.com/camden-git/foscambackend/describer"
	"github.com/camden-git/foscambackend/media"
	"github.com/camden-git/foscambackend/models"
	"github.com/camden-git/foscambackend/repository"
)

// stubDescriber echoes a controlled aspect map. Errors queued in
// imageErrs/videoErrs are consumed one per call before any success.
type stubDescriber struct {
	mu sync.Mutex

	aspects   map[string]string
	timeline  []describer.TimelineEvent
	duration  float64
	thumbnail image.Image

	imageErrs []error
	videoErrs []error

	imageCalls int
	videoCalls int
}

func (s *stubDescriber) DescribeImage(ctx context.Context, data []byte) (*describer.ImageAnalysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imageCalls++
	if len(s.imageErrs) > 0 {
		err := s.imageErrs[0]
		s.imageErrs = s.imageErrs[1:]
		return nil, err
	}
	return &describer.ImageAnalysis{
		Aspects:    s.aspects,
		Caption:    s.aspects["general"],
		Confidence: 0.85,
		Width:      1920,
		Height:     1080,
	}, nil
}

func (s *stubDescriber) DescribeVideo(ctx context.Context, path string) (*describer.VideoAnalysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videoCalls++
	if len(s.videoErrs) > 0 {
		err := s.videoErrs[0]
		s.videoErrs = s.videoErrs[1:]
		return nil, err
	}
	return &describer.VideoAnalysis{
		Timeline:        s.timeline,
		Caption:         "stub video",
		Confidence:      0.7,
		Width:           1280,
		Height:          720,
		FrameCount:      300,
		DurationSeconds: s.duration,
		Thumbnail:       s.thumbnail,
	}, nil
}

func (s *stubDescriber) Close() error { return nil }

type pipeline struct {
	processor  *Processor
	detections *repository.DetectionRepository
	db         *gorm.DB
	sourceRoot string
	thumbRoot  string
}

func setupPipeline(t *testing.T, stub describer.Describer) *pipeline {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.InitGormDB(dbPath)
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrateModels(db))
	require.NoError(t, database.SeedAlertTypes(db))

	sourceRoot := t.TempDir()
	thumbRoot := t.TempDir()
	thumbs, err := media.NewThumbnailStore(thumbRoot)
	require.NoError(t, err)

	cfg := config.Config{
		FoscamRoot:            sourceRoot,
		ThumbnailRoot:         thumbRoot,
		QueueCapacity:         8,
		WorkerCount:           1,
		DescriberImageTimeout: 5 * time.Second,
		DescriberVideoTimeout: 5 * time.Second,
		ShutdownGrace:         5 * time.Second,
	}

	detections := repository.NewDetectionRepository(db)
	processor := NewProcessor(cfg, detections, describer.NewSerialized(stub), thumbs)
	t.Cleanup(processor.Stop)

	return &pipeline{
		processor:  processor,
		detections: detections,
		db:         db,
		sourceRoot: sourceRoot,
		thumbRoot:  thumbRoot,
	}
}

// writeArtifact lays out <root>/<location>/<device>/<kind>/<name> with
// placeholder bytes.
func writeArtifact(t *testing.T, root, location, device, kind, name string) string {
	t.Helper()
	dir := filepath.Join(root, location, device, kind)
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("artifact-bytes"), 0644))
	return path
}

func (p *pipeline) offer(t *testing.T, path string) Outcome {
	t.Helper()
	results := make(chan Outcome, 1)
	p.processor.Enqueue(Job{Path: path, Result: results})
	select {
	case outcome := <-results:
		return outcome
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for outcome of %s", path)
		return Outcome{}
	}
}

func TestProcess_ImageWithPersonAndVehicles(t *testing.T) {
	stub := &stubDescriber{aspects: map[string]string{
		"general":     "front yard scene",
		"security":    "person near vehicles",
		"objects":     "1 person, 3 vehicles",
		"activities":  "walking",
		"environment": "daytime",
	}}
	p := setupPipeline(t, stub)

	path := writeArtifact(t, p.sourceRoot, "ami_frontyard_left", "FoscamCamera_00626EFE8B21", "snap", "MDAlarm_20250712-213837.jpg")
	outcome := p.offer(t, path)
	require.Equal(t, EventIngested, outcome.Event)

	var detection models.Detection
	require.NoError(t, p.db.Preload("Camera").Preload("Alerts.AlertType").Where("filepath = ?", path).First(&detection).Error)

	assert.Equal(t, models.MediaTypeImage, detection.MediaType)
	require.NotNil(t, detection.MotionType)
	assert.Equal(t, models.MotionTypeMD, *detection.MotionType)
	require.NotNil(t, detection.FileTimestamp)
	assert.True(t, time.Date(2025, 7, 12, 21, 38, 37, 0, time.Local).Equal(*detection.FileTimestamp))

	assert.True(t, detection.HasPerson)
	assert.True(t, detection.HasVehicle)
	assert.False(t, detection.HasPackage)
	assert.False(t, detection.IsNightTime)
	assert.Equal(t, 2, detection.AlertCount)
	require.Len(t, detection.Alerts, 2)

	require.NotNil(t, detection.Camera)
	assert.Equal(t, "ami_frontyard_left", detection.Camera.Location)
	assert.Equal(t, models.DeviceTypeStandard, detection.Camera.DeviceType)

	require.NotNil(t, detection.Width)
	assert.Equal(t, 1920, *detection.Width)
	assert.Contains(t, detection.Description, "OBJECTS: 1 person, 3 vehicles")
	assert.Contains(t, detection.Description, "ALERTS: PERSON_DETECTED, VEHICLE_DETECTED")
}

func TestProcess_VideoNightUnusualActivity(t *testing.T) {
	stub := &stubDescriber{
		timeline: []describer.TimelineEvent{
			{OffsetSeconds: 0, Description: "suspicious loitering at night", EventType: "general_activity"},
		},
		duration:  12.5,
		thumbnail: image.NewRGBA(image.Rect(0, 0, 4, 4)),
	}
	p := setupPipeline(t, stub)

	path := writeArtifact(t, p.sourceRoot, "dock_left", "FoscamCamera_00626EFE89A8", "record", "MDalarm_20250714_003211.mkv")
	outcome := p.offer(t, path)
	require.Equal(t, EventIngested, outcome.Event)

	var detection models.Detection
	require.NoError(t, p.db.Where("filepath = ?", path).First(&detection).Error)

	assert.Equal(t, models.MediaTypeVideo, detection.MediaType)
	require.NotNil(t, detection.FileTimestamp)
	assert.True(t, time.Date(2025, 7, 14, 0, 32, 11, 0, time.Local).Equal(*detection.FileTimestamp))

	assert.True(t, detection.HasUnusualActivity)
	assert.True(t, detection.IsNightTime)
	assert.Equal(t, 2, detection.AlertCount)

	require.NotNil(t, detection.Duration)
	assert.InEpsilon(t, 12.5, *detection.Duration, 0.0001)
	require.NotNil(t, detection.FrameCount)
	assert.Equal(t, 300, *detection.FrameCount)

	// the thumbnail landed under the thumbnail root, named by stem
	require.NotNil(t, detection.ThumbnailPath)
	assert.Equal(t, filepath.Join(p.thumbRoot, "MDalarm_20250714_003211.jpg"), *detection.ThumbnailPath)
	_, err := os.Stat(*detection.ThumbnailPath)
	assert.NoError(t, err)
}

func TestProcess_UnrecognizedPath(t *testing.T) {
	p := setupPipeline(t, &stubDescriber{aspects: map[string]string{}})

	path := writeArtifact(t, p.sourceRoot, "ami_frontyard_left", "FoscamCamera_00626EFE8B21", "snap", "readme.txt")
	outcome := p.offer(t, path)
	assert.Equal(t, EventSkippedUnrecognized, outcome.Event)

	var cameras, detections int64
	require.NoError(t, p.db.Model(&models.Camera{}).Count(&cameras).Error)
	require.NoError(t, p.db.Model(&models.Detection{}).Count(&detections).Error)
	assert.Zero(t, cameras, "unrecognized path must not create a camera")
	assert.Zero(t, detections)
}

func TestProcess_DuplicateOffer(t *testing.T) {
	stub := &stubDescriber{aspects: map[string]string{"general": "scene"}}
	p := setupPipeline(t, stub)

	path := writeArtifact(t, p.sourceRoot, "kitchen", "R2_001122334455", "snap", "MDAlarm_20250601-080000.jpg")

	first := p.offer(t, path)
	require.Equal(t, EventIngested, first.Event)

	second := p.offer(t, path)
	assert.Equal(t, EventSkippedKnown, second.Event)

	var count int64
	require.NoError(t, p.db.Model(&models.Detection{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestProcess_TransientFailureThenSuccess(t *testing.T) {
	stub := &stubDescriber{
		aspects:   map[string]string{"general": "a person by the door"},
		imageErrs: []error{describer.MarkTransient(context.DeadlineExceeded)},
	}
	p := setupPipeline(t, stub)

	path := writeArtifact(t, p.sourceRoot, "den", "FoscamCamera_AA", "snap", "MDAlarm_20250601-090000.jpg")
	outcome := p.offer(t, path)
	require.Equal(t, EventIngested, outcome.Event)

	assert.Equal(t, 2, stub.imageCalls, "expected one retry after the transient failure")

	var detection models.Detection
	require.NoError(t, p.db.Where("filepath = ?", path).First(&detection).Error)
	assert.Contains(t, detection.Description, "SCENE: a person by the door")
	assert.True(t, detection.HasPerson)
}

func TestProcess_PermanentFailureCommitsUnanalyzable(t *testing.T) {
	stub := &stubDescriber{
		aspects:   map[string]string{"general": "unused"},
		imageErrs: []error{assert.AnError},
	}
	p := setupPipeline(t, stub)

	path := writeArtifact(t, p.sourceRoot, "den", "FoscamCamera_AA", "snap", "MDAlarm_20250601-100000.jpg")
	outcome := p.offer(t, path)
	require.Equal(t, EventIngested, outcome.Event)

	assert.Equal(t, 1, stub.imageCalls, "permanent failures are not retried")

	var detection models.Detection
	require.NoError(t, p.db.Where("filepath = ?", path).First(&detection).Error)
	assert.True(t, detection.Processed)
	assert.Empty(t, detection.Description)
	assert.Zero(t, detection.Confidence)
	assert.Zero(t, detection.AlertCount)

	// seen but unanalyzable: the next offer dedupes
	second := p.offer(t, path)
	assert.Equal(t, EventSkippedKnown, second.Event)
}

func TestProcess_EmptyFileCommitsUnanalyzable(t *testing.T) {
	stub := &stubDescriber{aspects: map[string]string{"general": "unused"}}
	p := setupPipeline(t, stub)

	dir := filepath.Join(p.sourceRoot, "den", "FoscamCamera_AA", "snap")
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, "MDAlarm_20250601-110000.jpg")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	outcome := p.offer(t, path)
	require.Equal(t, EventIngested, outcome.Event)

	assert.Zero(t, stub.imageCalls, "empty files never reach the describer")

	var detection models.Detection
	require.NoError(t, p.db.Where("filepath = ?", path).First(&detection).Error)
	assert.Empty(t, detection.Description)
	assert.Zero(t, detection.Confidence)
	assert.Zero(t, detection.AlertCount)
	assert.Nil(t, detection.ThumbnailPath)
}

func TestProcess_ThumbnailFailureStillCommits(t *testing.T) {
	stub := &stubDescriber{
		timeline: []describer.TimelineEvent{
			{OffsetSeconds: 0, Description: "empty dock", EventType: "general_activity"},
		},
		duration: 8,
		// no thumbnail frame: extraction failed upstream
	}
	p := setupPipeline(t, stub)

	path := writeArtifact(t, p.sourceRoot, "dock_right", "FoscamCamera_BB", "record", "MDalarm_20250601_120000.mkv")
	outcome := p.offer(t, path)
	require.Equal(t, EventIngested, outcome.Event)

	var detection models.Detection
	require.NoError(t, p.db.Where("filepath = ?", path).First(&detection).Error)
	assert.Nil(t, detection.ThumbnailPath)
	assert.NotEmpty(t, detection.Description)
}
