package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/camden-git/foscambackend/repository"
	"github.com/camden-git/foscambackend/workers"
)

// DetectionHandler serves the read-side detection endpoints plus the
// reprocess trigger.
type DetectionHandler struct {
	Detections *repository.DetectionRepository
	Processor  *workers.Processor
}

// PaginationInfo mirrors the dashboard's expected envelope.
type PaginationInfo struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
}

// parseCameraIDs parses a comma-separated camera_ids query value.
func parseCameraIDs(raw string) []uint {
	if raw == "" {
		return nil
	}
	var ids []uint
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}
	return ids
}

func parseTimeParam(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return &ts
		}
	}
	return nil
}

// List handles GET /api/detections with paging and filters. Ordered by
// file_timestamp descending, id as tiebreak.
func (dh *DetectionHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page, _ := strconv.Atoi(query.Get("page"))
	perPage, _ := strconv.Atoi(query.Get("per_page"))

	opts := repository.ListOptions{
		Page:       page,
		PerPage:    perPage,
		Start:      parseTimeParam(query.Get("start")),
		End:        parseTimeParam(query.Get("end")),
		CameraIDs:  parseCameraIDs(query.Get("camera_ids")),
		OnlyAlerts: query.Get("only_alerts") == "true" || query.Get("only_alerts") == "1",
	}

	detections, total, err := dh.Detections.List(opts)
	if err != nil {
		log.Printf("Error listing detections: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "list_failed", "failed to list detections")
		return
	}

	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PerPage < 1 {
		opts.PerPage = 50
	}
	if opts.PerPage > 100 {
		opts.PerPage = 100
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"detections": detections,
		"pagination": PaginationInfo{
			Page:       opts.Page,
			PerPage:    opts.PerPage,
			Total:      total,
			TotalPages: (total + int64(opts.PerPage) - 1) / int64(opts.PerPage),
		},
	})
}

// Get handles GET /api/detections/{id}.
func (dh *DetectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_id", "detection id must be an integer")
		return
	}

	detection, err := dh.Detections.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, "not_found", "no such detection")
			return
		}
		log.Printf("Error fetching detection %d: %v", id, err)
		WriteAPIError(w, http.StatusInternalServerError, "fetch_failed", "failed to fetch detection")
		return
	}
	writeJSON(w, http.StatusOK, detection)
}

// Reprocess handles POST /api/detections/{id}/reprocess: the only
// mutation path for a committed detection. The describe work runs
// synchronously on the request.
func (dh *DetectionHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_id", "detection id must be an integer")
		return
	}

	if err := dh.Processor.Reprocess(uint(id)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, "not_found", "no such detection")
			return
		}
		log.Printf("Error reprocessing detection %d: %v", id, err)
		WriteAPIError(w, http.StatusInternalServerError, "reprocess_failed", err.Error())
		return
	}

	detection, err := dh.Detections.GetByID(uint(id))
	if err != nil {
		log.Printf("Error fetching reprocessed detection %d: %v", id, err)
		writeJSON(w, http.StatusOK, map[string]interface{}{"message": "reprocessed", "id": id})
		return
	}
	writeJSON(w, http.StatusOK, detection)
}
