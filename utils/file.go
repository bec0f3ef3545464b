package utils

import (
	"path/filepath"
	"strings"
)

var foscamImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
}

var foscamVideoExtensions = map[string]bool{
	".mkv": true,
	".mp4": true,
	".avi": true,
}

// IsFoscamImage checks if the filename has a camera snapshot extension
func IsFoscamImage(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return foscamImageExtensions[ext]
}

// IsFoscamVideo checks if the filename has a camera recording extension
func IsFoscamVideo(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return foscamVideoExtensions[ext]
}
