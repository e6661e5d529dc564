// Where: cli/internal/store/appwrite/files.go
// What: Multipart file upload and preview URLs.
// Why: Menu item images live in the images bucket.
package appwrite

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"

	"github.com/poruru/restaurant-baas/cli/internal/store"
)

const opCreateFile = "create file"

func (c *Client) CreateFile(ctx context.Context, bucketID, fileID, name string, content io.Reader) (store.File, error) {
	if fileID == "" {
		fileID = store.UniqueID
	}
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUpload(form, fileID, name, content))
	}()
	var out store.File
	err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        apiPath("storage", "buckets", bucketID, "files"),
		body:        io.Reader(pr),
		contentType: form.FormDataContentType(),
		op:          opCreateFile,
		resource:    bucketID + "/" + name,
	}, &out)
	// Unblock the writer when the request ended before reading the body.
	_ = pr.Close()
	return out, err
}

func writeUpload(form *multipart.Writer, fileID, name string, content io.Reader) error {
	if err := form.WriteField("fileId", fileID); err != nil {
		return err
	}
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	header.Set("Content-Type", store.MimeType(name))
	part, err := form.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, content); err != nil {
		return err
	}
	return form.Close()
}

// FilePreviewURL builds the public preview link. The project goes in the query
// string because browsers load it without custom headers.
func (c *Client) FilePreviewURL(bucketID, fileID string, width, height int) string {
	query := url.Values{}
	if width > 0 {
		query.Set("width", strconv.Itoa(width))
	}
	if height > 0 {
		query.Set("height", strconv.Itoa(height))
	}
	query.Set("project", c.project)
	return c.url(apiPath("storage", "buckets", bucketID, "files", fileID, "preview"), query)
}
