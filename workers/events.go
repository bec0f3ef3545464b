package workers

import (
	"encoding/json"
	"log"

	"github.com/google/uuid"
)

// Terminal event types: each offered path yields exactly one of these.
const (
	EventIngested            = "ingested"
	EventSkippedUnrecognized = "skipped_unrecognized"
	EventSkippedKnown        = "skipped_known"
	EventSkippedNotReady     = "skipped_not_ready"
	EventFailedPersist       = "failed_persist"
)

// Non-terminal warning event emitted by the watcher and thumbnail path.
const EventWarning = "warning"

// EventCancelled marks a path dropped because shutdown began before it
// was admitted to the queue.
const EventCancelled = "cancelled"

// Event is the structured record emitted for operator triage. It is
// JSON-marshalled onto the process log; consumption (rotation,
// shipping) is external.
type Event struct {
	ID             string   `json:"event_id"`
	Type           string   `json:"event"`
	Path           string   `json:"path,omitempty"`
	DetectionID    uint     `json:"detection_id,omitempty"`
	CameraID       uint     `json:"camera_id,omitempty"`
	AlertKinds     []string `json:"alert_kinds,omitempty"`
	ProcessingTime float64  `json:"processing_time_seconds,omitempty"`
	Detail         string   `json:"detail,omitempty"`
}

// emitEvent writes one structured event line.
func emitEvent(ev Event) {
	ev.ID = uuid.NewString()
	raw, err := json.Marshal(ev)
	if err != nil {
		log.Printf("ERROR marshalling event %s for %s: %v", ev.Type, ev.Path, err)
		return
	}
	log.Printf("event: %s", raw)
}
