// Package media handles generated asset storage for the ingestion
// pipeline, currently the extracted video thumbnails.
package media

import (
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

const thumbnailJpegQuality = 95

// ThumbnailStore writes extracted video keyframes under a single root
// directory, one JPEG per video named after the video's stem.
type ThumbnailStore struct {
	root string
}

// NewThumbnailStore creates the root directory if needed.
func NewThumbnailStore(root string) (*ThumbnailStore, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid thumbnail root '%s': %w", root, err)
	}
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create thumbnail root '%s': %w", absRoot, err)
	}
	log.Printf("media.thumbnails: initialized store at %s", absRoot)
	return &ThumbnailStore{root: absRoot}, nil
}

// Root returns the absolute thumbnail root directory.
func (ts *ThumbnailStore) Root() string {
	return ts.root
}

// PathFor returns the absolute thumbnail path for a video path's stem.
func (ts *ThumbnailStore) PathFor(videoPath string) string {
	base := filepath.Base(videoPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(ts.root, stem+".jpg")
}

// SaveForVideo encodes the extracted frame as a JPEG at natural
// resolution. The write goes to a temp file in the same directory
// followed by a rename, so readers never observe a partial thumbnail.
// An existing thumbnail for the same stem is overwritten (reprocess).
func (ts *ThumbnailStore) SaveForVideo(videoPath string, frame image.Image) (string, error) {
	if frame == nil {
		return "", fmt.Errorf("no thumbnail frame for %s", videoPath)
	}

	finalPath := ts.PathFor(videoPath)

	tmp, err := os.CreateTemp(ts.root, ".thumb-*.jpg")
	if err != nil {
		return "", fmt.Errorf("failed to create temp thumbnail file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := imaging.Encode(tmp, frame, imaging.JPEG, imaging.JPEGQuality(thumbnailJpegQuality)); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close temp thumbnail file: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to move thumbnail into place: %w", err)
	}
	return finalPath, nil
}

// Delete removes a thumbnail file; a missing file is not an error.
func (ts *ThumbnailStore) Delete(thumbnailPath string) error {
	if thumbnailPath == "" {
		return nil
	}
	if !strings.HasPrefix(filepath.Clean(thumbnailPath), ts.root) {
		return fmt.Errorf("refusing to delete outside thumbnail root: %s", thumbnailPath)
	}
	if err := os.Remove(thumbnailPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
