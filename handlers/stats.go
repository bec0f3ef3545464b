package handlers

import (
	"database/sql"
	"log"
	"net/http"
	"strconv"

	"github.com/camden-git/foscambackend/database"
)

// StatsHandler serves the dashboard aggregates off the raw connection.
type StatsHandler struct {
	DB *sql.DB
}

// Stats handles GET /api/detections/stats: today/week/month/total in
// the system's local time zone.
func (sh *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	cameraIDs := parseCameraIDs(r.URL.Query().Get("camera_ids"))

	stats, err := database.DetectionStats(sh.DB, cameraIDs)
	if err != nil {
		log.Printf("Error computing stats: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "stats_failed", "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stats": stats})
}

// HeatmapDaily handles GET /api/detections/heatmap.
func (sh *StatsHandler) HeatmapDaily(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	days, _ := strconv.Atoi(query.Get("days"))
	if days <= 0 {
		days = 30
	}
	perCamera := query.Get("per_camera") == "true" || query.Get("per_camera") == "1"
	cameraIDs := parseCameraIDs(query.Get("camera_ids"))

	buckets, err := database.HeatmapDaily(sh.DB, days, perCamera, cameraIDs)
	if err != nil {
		log.Printf("Error computing daily heatmap: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "heatmap_failed", "failed to compute heatmap")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"heatmap_data": buckets})
}

// HeatmapHourly handles GET /api/detections/heatmap-hourly: the last 24
// hours ending now, bucketed by start-of-hour.
func (sh *StatsHandler) HeatmapHourly(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	perCamera := query.Get("per_camera") == "true" || query.Get("per_camera") == "1"
	cameraIDs := parseCameraIDs(query.Get("camera_ids"))

	buckets, err := database.HeatmapHourly(sh.DB, perCamera, cameraIDs)
	if err != nil {
		log.Printf("Error computing hourly heatmap: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "heatmap_failed", "failed to compute heatmap")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"heatmap_data": buckets})
}
