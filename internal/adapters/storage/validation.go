package storage

import (
	"fmt"
	"strings"
)

// AllowedContentTypes defines the MIME types accepted for uploads.
var AllowedContentTypes = map[string]bool{
	"application/json": true,
	"text/csv":         true,
	"text/plain":       true,
}

// ValidateContentType checks if the content type is allowed.
func ValidateContentType(contentType string) error {
	// Normalize content type (remove parameters like charset)
	normalized := strings.Split(contentType, ";")[0]
	normalized = strings.TrimSpace(strings.ToLower(normalized))

	if !AllowedContentTypes[normalized] {
		return fmt.Errorf("content type %q is not allowed", contentType)
	}
	return nil
}

// ValidateObjectKey rejects empty keys, absolute keys and path traversal.
func ValidateObjectKey(fileKey string) error {
	if strings.TrimSpace(fileKey) == "" {
		return fmt.Errorf("object key is required")
	}
	if strings.HasPrefix(fileKey, "/") {
		return fmt.Errorf("object key %q must be relative", fileKey)
	}
	for _, part := range strings.Split(fileKey, "/") {
		if part == ".." {
			return fmt.Errorf("object key %q must not contain ..", fileKey)
		}
	}
	return nil
}
