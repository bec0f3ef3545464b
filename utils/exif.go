package utils

import (
	"bytes"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// ExtractTakenAt pulls the capture timestamp out of a JPEG's EXIF data.
// Used as a fallback when the filename's date group does not parse.
// Returns nil when no usable tag is present; cameras in this family do
// not always write EXIF.
func ExtractTakenAt(data []byte) *time.Time {
	exifData, err := exif.Decode(bytes.NewReader(data))
	if err != nil || exifData == nil {
		return nil
	}
	taken, err := exifData.DateTime()
	if err != nil {
		return nil
	}
	return &taken
}
