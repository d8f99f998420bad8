package blob

import (
	"fmt"
	"strings"
	"time"
)

// extensions maps the allowed upload content types to file extensions.
// gif is mapped for extension lookup but is not an allowed upload type.
var extensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// allowedImageTypes is the upload allowlist.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// ValidImageType reports whether contentType may be uploaded.
func ValidImageType(contentType string) bool {
	return allowedImageTypes[contentType]
}

// ExtensionFor returns the file extension for a content type, defaulting
// to png for anything unknown.
func ExtensionFor(contentType string) string {
	if ext, ok := extensions[contentType]; ok {
		return ext
	}
	return "png"
}

// BuildImageKey constructs the object key for a page illustration:
//
//	stories/<storyId>/pages/page-<n>/<unixMillis>-<fileName>
//
// The millisecond timestamp keeps successive generations for the same page
// from overwriting each other.
func BuildImageKey(storyID string, pageNumber int, fileName string, now time.Time) string {
	return fmt.Sprintf("stories/%s/pages/page-%d/%d-%s",
		storyID, pageNumber, now.UnixMilli(), fileName)
}

// normalizeFileName appends the content-type extension when fileName has
// none.
func normalizeFileName(fileName, contentType string) string {
	if strings.Contains(fileName, ".") {
		return fileName
	}
	return fileName + "." + ExtensionFor(contentType)
}

// contentTypeForKey guesses a content type from the key's extension,
// falling back to octet-stream. Used when serving local files back.
func contentTypeForKey(key string) string {
	idx := strings.LastIndex(key, ".")
	if idx < 0 {
		return "application/octet-stream"
	}
	switch strings.ToLower(key[idx+1:]) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	case "gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}

// validateUpload applies the shared content-type and size checks.
func validateUpload(in UploadInput, maxBytes int) error {
	if !ValidImageType(in.ContentType) {
		return fmt.Errorf("%w: %s", ErrUnsupportedImageType, in.ContentType)
	}
	if len(in.Data) > maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds maximum %d", ErrImageTooLarge, len(in.Data), maxBytes)
	}
	return nil
}
