package handlers

import (
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/camden-git/foscambackend/models"
	"github.com/camden-git/foscambackend/repository"
)

// ThumbnailHandler resolves a detection id to its extracted video
// thumbnail.
type ThumbnailHandler struct {
	Detections   *repository.DetectionRepository
	ThumbnailDir string
}

// ForDetection handles GET /api/detections/{id}/thumbnail. Video only;
// 404 when the detection has no thumbnail or the file was deleted
// externally (dangling pointer, reported with a warning).
func (th *ThumbnailHandler) ForDetection(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_id", "detection id must be an integer")
		return
	}

	detection, err := th.Detections.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, "not_found", "no such detection")
			return
		}
		log.Printf("Error fetching detection %d for thumbnail: %v", id, err)
		WriteAPIError(w, http.StatusInternalServerError, "fetch_failed", "failed to fetch detection")
		return
	}

	if detection.MediaType != models.MediaTypeVideo || detection.ThumbnailPath == nil {
		WriteAPIError(w, http.StatusNotFound, "no_thumbnail", "detection has no thumbnail")
		return
	}

	thumbPath := *detection.ThumbnailPath
	if _, err := os.Stat(thumbPath); os.IsNotExist(err) {
		log.Printf("Warning: thumbnail for detection %d missing on disk: %s", id, thumbPath)
		WriteAPIError(w, http.StatusNotFound, "no_thumbnail", "thumbnail file no longer exists")
		return
	} else if err != nil {
		log.Printf("error stating thumbnail %s: %v", thumbPath, err)
		WriteAPIError(w, http.StatusInternalServerError, "stat_failed", "failed to read thumbnail")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeFile(w, r, thumbPath)
}

// ThumbnailServer creates a handler to serve thumbnails from the specified directory
func ThumbnailServer(thumbnailDir, apiPrefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestedFilename := strings.TrimPrefix(r.URL.Path, apiPrefix)
		if requestedFilename == "" || strings.Contains(requestedFilename, "/") || strings.Contains(requestedFilename, "..") {
			http.Error(w, "Invalid thumbnail path", http.StatusBadRequest)
			return
		}

		fullThumbPath := filepath.Join(thumbnailDir, requestedFilename)

		cleanedPath := filepath.Clean(fullThumbPath)

		if !strings.HasPrefix(cleanedPath, thumbnailDir) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			log.Printf("attempted thumbnail access outside thumbnail directory: Request='%s', Resolved='%s', ThumbDir='%s'",
				r.URL.Path, cleanedPath, thumbnailDir)
			return
		}

		if _, err := os.Stat(cleanedPath); os.IsNotExist(err) {
			http.NotFound(w, r)
			log.Printf("thumbnail not found: %s", cleanedPath)
			return
		} else if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			log.Printf("error stating thumbnail %s: %v", cleanedPath, err)
			return
		}

		cacheDuration := 24 * time.Hour
		w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(int(cacheDuration.Seconds())))
		w.Header().Set("Expires", time.Now().Add(cacheDuration).Format(http.TimeFormat))

		http.ServeFile(w, r, cleanedPath)
	}
}
