package handlers

import (
	"log"
	"net/http"

	"github.com/camden-git/foscambackend/repository"
)

// CameraHandler serves the camera listing.
type CameraHandler struct {
	Cameras *repository.CameraRepository
}

// List handles GET /api/cameras.
func (ch *CameraHandler) List(w http.ResponseWriter, r *http.Request) {
	cameras, err := ch.Cameras.ListAll()
	if err != nil {
		log.Printf("Error listing cameras: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "list_failed", "failed to list cameras")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cameras": cameras})
}
