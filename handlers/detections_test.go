package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/camden-git/foscambackend/database"
	"github.com/camden-git/foscambackend/models"
	"github.com/camden-git/foscambackend/repository"
)

func setupHandlerDB(t *testing.T) (*gorm.DB, *repository.DetectionRepository) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.InitGormDB(dbPath)
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrateModels(db))
	require.NoError(t, database.SeedAlertTypes(db))
	return db, repository.NewDetectionRepository(db)
}

func createDetections(t *testing.T, repo *repository.DetectionRepository, n int) {
	t.Helper()
	base := time.Date(2025, 7, 1, 8, 0, 0, 0, time.Local)
	for i := 0; i < n; i++ {
		ts := base.Add(time.Duration(i) * time.Hour)
		var kinds []string
		if i%2 == 0 {
			kinds = []string{models.AlertPersonDetected}
		}
		_, err := repo.Create(&repository.NewDetection{
			Location:      "den",
			DeviceName:    "FoscamCamera_AA",
			DeviceType:    models.DeviceTypeStandard,
			Filename:      ts.Format("MDAlarm_20060102-150405.jpg"),
			Filepath:      "/data/den/FoscamCamera_AA/snap/" + ts.Format("MDAlarm_20060102-150405.jpg"),
			MediaType:     models.MediaTypeImage,
			MotionType:    models.MotionTypeMD,
			Description:   "SCENE: test",
			Confidence:    0.5,
			FileTimestamp: &ts,
			AlertKinds:    kinds,
		})
		require.NoError(t, err)
	}
}

func TestDetectionList_PaginationEnvelope(t *testing.T) {
	_, repo := setupHandlerDB(t)
	createDetections(t, repo, 5)

	handler := &DetectionHandler{Detections: repo}
	r := chi.NewRouter()
	r.Get("/api/detections", handler.List)

	req := httptest.NewRequest(http.MethodGet, "/api/detections?page=1&per_page=2", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Detections []models.Detection `json:"detections"`
		Pagination PaginationInfo     `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Len(t, body.Detections, 2)
	assert.Equal(t, 1, body.Pagination.Page)
	assert.Equal(t, 2, body.Pagination.PerPage)
	assert.Equal(t, int64(5), body.Pagination.Total)
	assert.Equal(t, int64(3), body.Pagination.TotalPages)

	// newest first
	require.NotNil(t, body.Detections[0].FileTimestamp)
	require.NotNil(t, body.Detections[1].FileTimestamp)
	assert.True(t, body.Detections[1].FileTimestamp.Before(*body.Detections[0].FileTimestamp))
}

func TestDetectionList_OnlyAlertsFilter(t *testing.T) {
	_, repo := setupHandlerDB(t)
	createDetections(t, repo, 4)

	handler := &DetectionHandler{Detections: repo}
	r := chi.NewRouter()
	r.Get("/api/detections", handler.List)

	req := httptest.NewRequest(http.MethodGet, "/api/detections?only_alerts=true", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Detections []models.Detection `json:"detections"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Detections)
	for _, d := range body.Detections {
		assert.Greater(t, d.AlertCount, 0)
	}
}

func TestThumbnailForDetection(t *testing.T) {
	_, repo := setupHandlerDB(t)

	thumbDir := t.TempDir()
	thumbPath := filepath.Join(thumbDir, "MDalarm_20250714_003211.jpg")
	require.NoError(t, os.WriteFile(thumbPath, []byte{0xFF, 0xD8, 0xFF}, 0644))

	ts := time.Date(2025, 7, 14, 0, 32, 11, 0, time.Local)
	video, err := repo.Create(&repository.NewDetection{
		Location:      "dock_left",
		DeviceName:    "FoscamCamera_AA",
		DeviceType:    models.DeviceTypeStandard,
		Filename:      "MDalarm_20250714_003211.mkv",
		Filepath:      "/data/dock_left/FoscamCamera_AA/record/MDalarm_20250714_003211.mkv",
		MediaType:     models.MediaTypeVideo,
		MotionType:    models.MotionTypeMD,
		FileTimestamp: &ts,
		ThumbnailPath: &thumbPath,
	})
	require.NoError(t, err)

	image, err := repo.Create(&repository.NewDetection{
		Location:      "dock_left",
		DeviceName:    "FoscamCamera_AA",
		DeviceType:    models.DeviceTypeStandard,
		Filename:      "MDAlarm_20250714-003200.jpg",
		Filepath:      "/data/dock_left/FoscamCamera_AA/snap/MDAlarm_20250714-003200.jpg",
		MediaType:     models.MediaTypeImage,
		FileTimestamp: &ts,
	})
	require.NoError(t, err)

	handler := &ThumbnailHandler{Detections: repo, ThumbnailDir: thumbDir}
	r := chi.NewRouter()
	r.Get("/api/detections/{id}/thumbnail", handler.ForDetection)

	t.Run("serves the video thumbnail", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/detections/"+uintString(video.ID)+"/thumbnail", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
		assert.Equal(t, []byte{0xFF, 0xD8, 0xFF}, rec.Body.Bytes())
	})

	t.Run("404 for images", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/detections/"+uintString(image.ID)+"/thumbnail", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("404 for a dangling thumbnail path", func(t *testing.T) {
		require.NoError(t, os.Remove(thumbPath))
		req := httptest.NewRequest(http.MethodGet, "/api/detections/"+uintString(video.ID)+"/thumbnail", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("404 for an unknown detection", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/detections/99999/thumbnail", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func uintString(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
