package database

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/camden-git/foscambackend/models"
)

func setupAggregateDB(t *testing.T) (*gorm.DB, *sql.DB) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := InitGormDB(dbPath)
	require.NoError(t, err)
	require.NoError(t, AutoMigrateModels(db))
	require.NoError(t, SeedAlertTypes(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	return db, sqlDB
}

func seedCamera(t *testing.T, db *gorm.DB, location, device string) *models.Camera {
	t.Helper()
	camera := &models.Camera{
		Location:   location,
		DeviceName: device,
		DeviceType: models.DeviceTypeStandard,
		FullName:   location + "_" + device,
		LastSeen:   time.Now(),
		IsActive:   true,
	}
	require.NoError(t, db.Create(camera).Error)
	return camera
}

func seedDetection(t *testing.T, db *gorm.DB, cameraID uint, filepath string, ts time.Time, alertCount int) {
	t.Helper()
	fileTS := ts
	detection := &models.Detection{
		Filename:      "f.jpg",
		Filepath:      filepath,
		MediaType:     models.MediaTypeImage,
		CameraID:      cameraID,
		Processed:     true,
		Timestamp:     ts,
		FileTimestamp: &fileTS,
		AlertCount:    alertCount,
	}
	require.NoError(t, db.Create(detection).Error)
}

func TestDetectionStats_Windows(t *testing.T) {
	db, sqlDB := setupAggregateDB(t)
	camera := seedCamera(t, db, "den", "FoscamCamera_AA")

	now := time.Now()
	seedDetection(t, db, camera.ID, "/a/1.jpg", now.Add(-time.Hour), 0)    // week, possibly today
	seedDetection(t, db, camera.ID, "/a/2.jpg", now.AddDate(0, 0, -3), 1)  // week
	seedDetection(t, db, camera.ID, "/a/3.jpg", now.AddDate(0, 0, -20), 0) // month
	seedDetection(t, db, camera.ID, "/a/4.jpg", now.AddDate(0, 0, -90), 2) // total only

	stats, err := DetectionStats(sqlDB, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(3), stats.Month)
	assert.Equal(t, int64(2), stats.Week)
	assert.LessOrEqual(t, stats.Today, stats.Week)
}

func TestDetectionStats_CameraFilter(t *testing.T) {
	db, sqlDB := setupAggregateDB(t)
	cameraA := seedCamera(t, db, "den", "FoscamCamera_AA")
	cameraB := seedCamera(t, db, "dock_left", "FoscamCamera_BB")

	now := time.Now()
	seedDetection(t, db, cameraA.ID, "/a/1.jpg", now.Add(-time.Minute), 0)
	seedDetection(t, db, cameraB.ID, "/b/1.jpg", now.Add(-time.Minute), 0)

	stats, err := DetectionStats(sqlDB, []uint{cameraA.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total)
}

func TestHeatmapDaily(t *testing.T) {
	db, sqlDB := setupAggregateDB(t)
	camera := seedCamera(t, db, "den", "FoscamCamera_AA")

	now := time.Now()
	seedDetection(t, db, camera.ID, "/a/1.jpg", now.Add(-time.Minute), 0)
	seedDetection(t, db, camera.ID, "/a/2.jpg", now.Add(-2*time.Minute), 0)
	seedDetection(t, db, camera.ID, "/a/3.jpg", now.AddDate(0, 0, -1), 0)

	buckets, err := HeatmapDaily(sqlDB, 7, true, nil)
	require.NoError(t, err)
	require.Len(t, buckets, 7, "window is zero-filled")

	byDate := map[string]DailyBucket{}
	for _, b := range buckets {
		byDate[b.Date] = b
	}

	today := now.Format("2006-01-02")
	yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")
	assert.Equal(t, 2, byDate[today].Count)
	assert.Equal(t, 1, byDate[yesterday].Count)
	assert.Equal(t, 2, byDate[today].CameraBreakdown["den_FoscamCamera_AA"])

	// oldest bucket first
	assert.Equal(t, now.AddDate(0, 0, -6).Format("2006-01-02"), buckets[0].Date)
	assert.Equal(t, today, buckets[6].Date)
}

func TestHeatmapHourly(t *testing.T) {
	db, sqlDB := setupAggregateDB(t)
	camera := seedCamera(t, db, "den", "FoscamCamera_AA")

	now := time.Now()
	seedDetection(t, db, camera.ID, "/a/1.jpg", now.Add(-30*time.Minute), 0)
	seedDetection(t, db, camera.ID, "/a/2.jpg", now.Add(-26*time.Hour), 0) // outside the window

	buckets, err := HeatmapHourly(sqlDB, false, nil)
	require.NoError(t, err)
	require.Len(t, buckets, 24)

	total := 0
	for _, b := range buckets {
		total += b.Count
		assert.GreaterOrEqual(t, b.Hour, 0)
		assert.Less(t, b.Hour, 24)
	}
	assert.Equal(t, 1, total, "only the last 24 hours count")

	// the newest bucket is the current hour
	assert.Equal(t, now.Hour(), buckets[23].Hour)
}

func TestRecountCameraCounters(t *testing.T) {
	db, sqlDB := setupAggregateDB(t)
	camera := seedCamera(t, db, "den", "FoscamCamera_AA")

	seedDetection(t, db, camera.ID, "/a/1.jpg", time.Now(), 2)
	seedDetection(t, db, camera.ID, "/a/2.jpg", time.Now().Add(-time.Hour), 1)

	// counters were never bumped, so the recount reports drift
	drifts, err := RecountCameraCounters(sqlDB)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, camera.ID, drifts[0].CameraID)
	assert.Equal(t, 0, drifts[0].StoredDetects)
	assert.Equal(t, 2, drifts[0].ActualDetects)
	assert.Equal(t, 3, drifts[0].ActualAlerts)
}
