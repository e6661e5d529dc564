// Where: cli/internal/store/sqlite/files.go
// What: File blobs stored in rb_files under the bucket upload policy.
// Why: Menu item images can be uploaded without a storage service.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"

	"github.com/poruru/restaurant-baas/cli/internal/store"
)

const opCreateFile = "create file"

func (s *Store) CreateFile(ctx context.Context, bucketID, fileID, name string, content io.Reader) (store.File, error) {
	bucket, err := loadBucket(ctx, s.db, opCreateFile, bucketID)
	if err != nil {
		return store.File{}, classify(opCreateFile, bucketID, err)
	}
	reader := content
	if bucket.MaximumFileSize > 0 {
		// One byte past the limit is enough to reject the upload.
		reader = io.LimitReader(content, bucket.MaximumFileSize+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return store.File{}, store.Wrap(store.KindTransport, opCreateFile, name, err)
	}
	if err := store.CheckUpload(bucket, name, int64(len(data))); err != nil {
		return store.File{}, err
	}
	file := store.File{
		ID:       s.newID(fileID),
		BucketID: bucketID,
		Name:     name,
		MimeType: store.MimeType(name),
		Size:     int64(len(data)),
	}
	err = s.inTx(ctx, opCreateFile, bucketID+"/"+name, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO rb_files (bucket_id, id, name, mime_type, size, content, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			file.BucketID, file.ID, file.Name, file.MimeType, file.Size, data, s.now(),
		)
		return err
	})
	if err != nil {
		return store.File{}, err
	}
	return file, nil
}

// FileContent returns the stored bytes of a file.
func (s *Store) FileContent(ctx context.Context, bucketID, fileID string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT content FROM rb_files WHERE bucket_id = ? AND id = ?`, bucketID, fileID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFound("get file", bucketID+"/"+fileID)
	}
	if err != nil {
		return nil, classify("get file", bucketID+"/"+fileID, err)
	}
	return data, nil
}

func (s *Store) FilePreviewURL(bucketID, fileID string, width, height int) string {
	u := url.URL{
		Scheme:   "sqlite",
		Path:     path.Join("/storage/buckets", bucketID, "files", fileID, "preview"),
		RawQuery: fmt.Sprintf("width=%d&height=%d", width, height),
	}
	return u.String()
}
