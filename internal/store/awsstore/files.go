// Where: cli/internal/store/awsstore/files.go
// What: File uploads into S3 buckets.
// Why: Bucket policy is checked locally since S3 does not know about it.
package awsstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/poruru/restaurant-baas/cli/internal/store"
)

const opCreateFile = "create file"

func (s *Store) CreateFile(ctx context.Context, bucketID, fileID, name string, content io.Reader) (store.File, error) {
	bucket, err := s.GetBucket(ctx, bucketID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.File{}, store.NotFound(opCreateFile, bucketID)
		}
		return store.File{}, err
	}
	reader := content
	if bucket.MaximumFileSize > 0 {
		reader = io.LimitReader(content, bucket.MaximumFileSize+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return store.File{}, store.Wrap(store.KindTransport, opCreateFile, name, err)
	}
	if err := store.CheckUpload(bucket, name, int64(len(body))); err != nil {
		return store.File{}, err
	}
	file := store.File{
		ID:       s.newID(fileID),
		BucketID: bucketID,
		Name:     name,
		MimeType: store.MimeType(name),
		Size:     int64(len(body)),
	}
	_, err = s.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.BucketName(bucketID)),
		Key:           aws.String(file.ID),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(file.Size),
		ContentType:   aws.String(file.MimeType),
		Metadata:      map[string]string{"name": name},
	})
	if err != nil {
		return store.File{}, classify(opCreateFile, name, err)
	}
	return file, nil
}

// FilePreviewURL addresses the object itself; S3 has no resizing, so the
// dimensions travel as query parameters for an image proxy in front of it.
func (s *Store) FilePreviewURL(bucketID, fileID string, width, height int) string {
	query := url.Values{}
	if width > 0 {
		query.Set("width", strconv.Itoa(width))
	}
	if height > 0 {
		query.Set("height", strconv.Itoa(height))
	}
	bucket := s.BucketName(bucketID)
	var base string
	if endpoint := strings.TrimRight(s.cfg.S3Endpoint, "/"); endpoint != "" {
		base = fmt.Sprintf("%s/%s/%s", endpoint, bucket, url.PathEscape(fileID))
	} else {
		base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, s.region(), url.PathEscape(fileID))
	}
	if encoded := query.Encode(); encoded != "" {
		return base + "?" + encoded
	}
	return base
}
