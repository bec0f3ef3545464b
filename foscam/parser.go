package foscam

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/camden-git/foscambackend/models"
)

// ErrUnrecognizedPath is returned for any path that does not match the
// foscam directory and filename grammar. Such paths are dropped without
// side effects.
var ErrUnrecognizedPath = errors.New("path does not match foscam layout")

// Artifact kind, taken from the directory holding the file.
const (
	KindSnap   = "snap"
	KindRecord = "record"
)

// Device directory name prefixes recognized during discovery.
var DevicePrefixes = []string{"FoscamCamera", "R2C", "R2"}

var (
	// images: MDAlarm_20250712-213837.jpg or HMDAlarm_20250712-213837.jpg
	imageNameRe = regexp.MustCompile(`^(MDAlarm|HMDAlarm)_(\d{8})-(\d{6})\.jpg$`)
	// videos: MDalarm_20250714_003211.mkv
	videoNameRe = regexp.MustCompile(`^(MDalarm)_(\d{8})_(\d{6})\.mkv$`)
)

const (
	imageTimestampLayout = "20060102-150405"
	videoTimestampLayout = "20060102_150405"
)

// PathInfo holds everything the parser can extract from a source path.
type PathInfo struct {
	Location   string
	DeviceName string
	DeviceType string
	Kind       string // snap or record
	MediaType  string // image or video
	Filename   string

	MotionType string // MD or HMD

	// nil when the filename's date-time group does not parse; the file is
	// still processed
	FileTimestamp *time.Time
}

// FullName returns the camera display identifier.
func (p *PathInfo) FullName() string {
	return p.Location + "_" + p.DeviceName
}

// DeviceTypeFor infers the camera device type from the device directory
// name prefix. R2C is checked before R2 since the former is a prefix of
// the latter's namespace.
func DeviceTypeFor(deviceName string) string {
	switch {
	case strings.HasPrefix(deviceName, "FoscamCamera"):
		return models.DeviceTypeStandard
	case strings.HasPrefix(deviceName, "R2C"):
		return models.DeviceTypeR2C
	case strings.HasPrefix(deviceName, "R2"):
		return models.DeviceTypeR2
	default:
		return models.DeviceTypeUnknown
	}
}

// IsKnownDevice reports whether the directory name matches a recognized
// device naming pattern. Used by the crawler and watcher during
// discovery; the parser itself accepts unknown device prefixes.
func IsKnownDevice(deviceName string) bool {
	for _, prefix := range DevicePrefixes {
		if strings.HasPrefix(deviceName, prefix) {
			return true
		}
	}
	return false
}

// ParsePath extracts camera and artifact information from an absolute
// source path of the shape
//
//	.../<location>/<device_name>/(snap|record)/<filename>
//
// Paths outside the grammar return ErrUnrecognizedPath.
func ParsePath(path string) (*PathInfo, error) {
	cleaned := filepath.Clean(path)
	parts := strings.Split(filepath.ToSlash(cleaned), "/")
	if len(parts) < 4 {
		return nil, fmt.Errorf("%w: %q", ErrUnrecognizedPath, path)
	}

	filename := parts[len(parts)-1]
	kind := parts[len(parts)-2]
	deviceName := parts[len(parts)-3]
	location := parts[len(parts)-4]

	if location == "" || deviceName == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnrecognizedPath, path)
	}

	info := &PathInfo{
		Location:   location,
		DeviceName: deviceName,
		DeviceType: DeviceTypeFor(deviceName),
		Kind:       kind,
		Filename:   filename,
	}

	switch kind {
	case KindSnap:
		m := imageNameRe.FindStringSubmatch(filename)
		if m == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnrecognizedPath, path)
		}
		info.MediaType = models.MediaTypeImage
		if m[1] == "HMDAlarm" {
			info.MotionType = models.MotionTypeHMD
		} else {
			info.MotionType = models.MotionTypeMD
		}
		info.FileTimestamp = parseTimestamp(m[2]+"-"+m[3], imageTimestampLayout)
	case KindRecord:
		m := videoNameRe.FindStringSubmatch(filename)
		if m == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnrecognizedPath, path)
		}
		info.MediaType = models.MediaTypeVideo
		info.MotionType = models.MotionTypeMD
		info.FileTimestamp = parseTimestamp(m[2]+"_"+m[3], videoTimestampLayout)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnrecognizedPath, path)
	}

	return info, nil
}

// parseTimestamp parses the filename date-time group in local time.
// Returns nil when the digits do not form a valid date, in which case
// processing proceeds without a file timestamp.
func parseTimestamp(value, layout string) *time.Time {
	ts, err := time.ParseInLocation(layout, value, time.Local)
	if err != nil {
		return nil
	}
	return &ts
}

// RenderFilename reconstructs the filename from parsed fields. For any
// well-formed name, ParsePath followed by RenderFilename yields the
// original filename.
func RenderFilename(info *PathInfo) (string, error) {
	if info.FileTimestamp == nil {
		return "", fmt.Errorf("cannot render filename without a file timestamp")
	}
	switch info.MediaType {
	case models.MediaTypeImage:
		prefix := "MDAlarm"
		if info.MotionType == models.MotionTypeHMD {
			prefix = "HMDAlarm"
		}
		return prefix + "_" + info.FileTimestamp.Format(imageTimestampLayout) + ".jpg", nil
	case models.MediaTypeVideo:
		return "MDalarm_" + info.FileTimestamp.Format(videoTimestampLayout) + ".mkv", nil
	default:
		return "", fmt.Errorf("unknown media type %q", info.MediaType)
	}
}

// MatchesGrammar is a cheap filename-only pre-filter used by the watcher
// before a full ParsePath.
func MatchesGrammar(kind, filename string) bool {
	switch kind {
	case KindSnap:
		return imageNameRe.MatchString(filename)
	case KindRecord:
		return videoNameRe.MatchString(filename)
	default:
		return false
	}
}
