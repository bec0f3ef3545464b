// Package describer defines the vision capability used to enrich camera
// artifacts with structured descriptions, plus the serializer that keeps
// at most one caller inside the underlying model at a time.
package describer

import (
	"context"
	"errors"
	"image"
	"sync"
)

// ImageAnalysis is the structured result of describing a still image.
// Aspects carries at least the general, security, objects, activities
// and environment keys.
type ImageAnalysis struct {
	Aspects    map[string]string
	Caption    string
	Confidence float64
	Width      int
	Height     int
}

// TimelineEvent is one observation in a video timeline.
type TimelineEvent struct {
	OffsetSeconds float64
	Description   string
	EventType     string
}

// VideoAnalysis is the structured result of describing a video clip. The
// thumbnail is a frame extracted at roughly five seconds in, or the
// midpoint for shorter clips, at natural resolution; encoding is the
// caller's concern. Nil when extraction failed.
type VideoAnalysis struct {
	Timeline        []TimelineEvent
	Events          []string
	Caption         string
	Confidence      float64
	Width           int
	Height          int
	FrameCount      int
	DurationSeconds float64
	Thumbnail       image.Image
}

// Describer is the vision-language capability. Implementations are
// swappable; tests inject a stub that echoes a controlled aspect map.
type Describer interface {
	DescribeImage(ctx context.Context, data []byte) (*ImageAnalysis, error)
	DescribeVideo(ctx context.Context, path string) (*VideoAnalysis, error)
	Close() error
}

// transientError marks a failure worth one retry (timeouts, resource
// exhaustion). Anything else is treated as permanent.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// MarkTransient wraps err so IsTransient reports true for it.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether the failure should be retried once before
// the artifact is committed as unanalyzable. Context timeouts count as
// transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te *transientError
	return errors.As(err, &te)
}

// serialized decorates a Describer with the describer-serializer lock:
// any caller must hold the mutex while inside a describe call, keeping
// GPU memory usage predictable when the crawler and watcher are both
// active.
type serialized struct {
	mu    sync.Mutex
	inner Describer
}

// NewSerialized wraps d so that at most one describe call runs at a
// time across all callers.
func NewSerialized(d Describer) Describer {
	return &serialized{inner: d}
}

func (s *serialized) DescribeImage(ctx context.Context, data []byte) (*ImageAnalysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.DescribeImage(ctx, data)
}

func (s *serialized) DescribeVideo(ctx context.Context, path string) (*VideoAnalysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.DescribeVideo(ctx, path)
}

func (s *serialized) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Close()
}
