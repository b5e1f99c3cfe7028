package ffmpeg

import (
	"path/filepath"
	"strings"
)

// videoExtensions are the file types considered for conversion.
var videoExtensions = map[string]bool{
	".mkv": true,
	".mp4": true,
	".avi": true,
	".mov": true,
	".m4v": true,
	".ts":  true,
	".wmv": true,
	".flv": true,
}

// IsVideoFile reports whether the path has a recognised video extension.
func IsVideoFile(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}
