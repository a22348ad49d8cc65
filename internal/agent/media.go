package agent

import (
	"encoding/base64"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nextlevelbuilder/goaide/internal/providers"
)

// maxImageBytes caps what gets inlined into a model request.
const maxImageBytes = 10 * 1024 * 1024

var imageMimes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// loadImages reads local image files into base64 ImageContent blocks.
// Unsupported or unreadable files are skipped with a warning.
func loadImages(paths []string) []providers.ImageContent {
	var images []providers.ImageContent
	for _, p := range paths {
		if img, ok := loadImage(p); ok {
			images = append(images, img)
		}
	}
	return images
}

func loadImage(path string) (providers.ImageContent, bool) {
	mime, ok := imageMimes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return providers.ImageContent{}, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("vision: failed to read image file", "path", path, "error", err)
		return providers.ImageContent{}, false
	}
	if len(data) > maxImageBytes {
		slog.Warn("vision: image file too large, skipping", "path", path, "size", len(data))
		return providers.ImageContent{}, false
	}
	return providers.ImageContent{
		MimeType: mime,
		Data:     base64.StdEncoding.EncodeToString(data),
	}, true
}
