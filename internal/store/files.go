// Where: cli/internal/store/files.go
// What: Bucket upload policy checks shared by local backends.
// Why: Local emulators must refuse uploads the BaaS would refuse.
package store

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

// CheckUpload enforces the bucket's enabled flag, size limit and extension allow-list.
func CheckUpload(b Bucket, name string, size int64) error {
	if !b.Enabled {
		return New(KindPermission, "create file", b.ID, "bucket is disabled")
	}
	if b.MaximumFileSize > 0 && size > b.MaximumFileSize {
		return New(KindValidation, "create file", name, fmt.Sprintf("file size %d exceeds bucket limit %d", size, b.MaximumFileSize))
	}
	if len(b.AllowedExtensions) == 0 {
		return nil
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	for _, allowed := range b.AllowedExtensions {
		if strings.EqualFold(allowed, ext) {
			return nil
		}
	}
	return New(KindValidation, "create file", name, fmt.Sprintf("extension %q is not allowed in bucket %s", ext, b.ID))
}

// MimeType guesses the content type from the file name.
func MimeType(name string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		return t
	}
	return "application/octet-stream"
}
