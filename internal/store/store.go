// Where: cli/internal/store/store.go
// What: Remote store interfaces consumed by the provisioner and services.
// Why: Keep every backend (BaaS REST, SQLite, AWS, memory) behind one contract.
package store

import (
	"context"
	"io"
	"time"

	"github.com/poruru/restaurant-baas/cli/internal/schema"
)

// SchemaStore creates and reads schema objects. Each call blocks until the
// remote has settled the object; CreateAttribute returns once the attribute is
// usable by later attributes and indexes. A create that targets an existing
// object fails with a KindConflict error.
type SchemaStore interface {
	CreateDatabase(ctx context.Context, id, name string) (Database, error)
	GetDatabase(ctx context.Context, id string) (Database, error)
	CreateCollection(ctx context.Context, databaseID string, spec schema.Collection) (Collection, error)
	GetCollection(ctx context.Context, databaseID, id string) (Collection, error)
	CreateAttribute(ctx context.Context, databaseID, collectionID string, spec schema.Attribute) (Attribute, error)
	CreateIndex(ctx context.Context, databaseID, collectionID string, spec schema.Index) (Index, error)
	CreateBucket(ctx context.Context, spec schema.Bucket) (Bucket, error)
	GetBucket(ctx context.Context, id string) (Bucket, error)
}

// DatabaseLister lists databases; used by connectivity checks.
type DatabaseLister interface {
	ListDatabases(ctx context.Context) ([]Database, error)
}

// DocumentStore reads and writes collection rows.
type DocumentStore interface {
	CreateDocument(ctx context.Context, databaseID, collectionID, documentID string, data map[string]any) (Document, error)
	GetDocument(ctx context.Context, databaseID, collectionID, documentID string) (Document, error)
	ListDocuments(ctx context.Context, databaseID, collectionID string, queries ...Query) (DocumentList, error)
	UpdateDocument(ctx context.Context, databaseID, collectionID, documentID string, data map[string]any) (Document, error)
	DeleteDocument(ctx context.Context, databaseID, collectionID, documentID string) error
}

// AccountStore manages the caller's account and sessions.
type AccountStore interface {
	CurrentAccount(ctx context.Context) (Account, error)
	CreateAccount(ctx context.Context, userID, email, password, name string) (Account, error)
	CreateEmailSession(ctx context.Context, email, password string) (Session, error)
	// DeleteSession removes a session; "current" addresses the active one.
	DeleteSession(ctx context.Context, sessionID string) error
}

// FileStore uploads files into buckets.
type FileStore interface {
	CreateFile(ctx context.Context, bucketID, fileID, name string, content io.Reader) (File, error)
	FilePreviewURL(bucketID, fileID string, width, height int) string
}

// Database is a provisioned database.
type Database struct {
	ID        string    `json:"$id"`
	Name      string    `json:"name"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"$createdAt"`
}

// Collection is a provisioned collection.
type Collection struct {
	ID               string   `json:"$id"`
	DatabaseID       string   `json:"databaseId"`
	Name             string   `json:"name"`
	Permissions      []string `json:"$permissions"`
	DocumentSecurity bool     `json:"documentSecurity"`
	Enabled          bool     `json:"enabled"`
}

// Attribute status values reported by backends.
const (
	StatusAvailable  = "available"
	StatusProcessing = "processing"
	StatusFailed     = "failed"
)

// Attribute is a provisioned attribute.
type Attribute struct {
	Key      string `json:"key"`
	Type     string `json:"type"`
	Status   string `json:"status"`
	Required bool   `json:"required"`
	Array    bool   `json:"array"`
	Size     int    `json:"size,omitempty"`
	Default  any    `json:"default,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Index is a provisioned index.
type Index struct {
	Key        string   `json:"key"`
	Type       string   `json:"type"`
	Status     string   `json:"status"`
	Attributes []string `json:"attributes"`
	Orders     []string `json:"orders,omitempty"`
}

// Bucket is a provisioned storage bucket.
type Bucket struct {
	ID                string   `json:"$id"`
	Name              string   `json:"name"`
	Permissions       []string `json:"$permissions"`
	FileSecurity      bool     `json:"fileSecurity"`
	Enabled           bool     `json:"enabled"`
	MaximumFileSize   int64    `json:"maximumFileSize"`
	AllowedExtensions []string `json:"allowedFileExtensions"`
	Compression       string   `json:"compression"`
	Encryption        bool     `json:"encryption"`
	Antivirus         bool     `json:"antivirus"`
}

// Document is one collection row. System fields are kept out of Data.
type Document struct {
	ID           string
	CollectionID string
	DatabaseID   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Data         map[string]any
}

// DocumentList is a page of documents; Total counts every match, not just the page.
type DocumentList struct {
	Total     int
	Documents []Document
}

// File is an uploaded file.
type File struct {
	ID       string `json:"$id"`
	BucketID string `json:"bucketId"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"sizeOriginal"`
}

// Account is an authenticated user.
type Account struct {
	ID     string `json:"$id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Status bool   `json:"status"`
}

// Session is an email/password session.
type Session struct {
	ID     string    `json:"$id"`
	UserID string    `json:"userId"`
	Expire time.Time `json:"expire"`
}

// PermissionStrings renders schema permissions in the BaaS wire form.
func PermissionStrings(perms []schema.Permission) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, p.String())
	}
	return out
}

// Documents returns s as a DocumentStore, or an unsupported error.
func Documents(s any) (DocumentStore, error) {
	if docs, ok := s.(DocumentStore); ok {
		return docs, nil
	}
	return nil, Unsupported("documents")
}

// Accounts returns s as an AccountStore, or an unsupported error.
func Accounts(s any) (AccountStore, error) {
	if accounts, ok := s.(AccountStore); ok {
		return accounts, nil
	}
	return nil, Unsupported("accounts")
}

// Files returns s as a FileStore, or an unsupported error.
func Files(s any) (FileStore, error) {
	if files, ok := s.(FileStore); ok {
		return files, nil
	}
	return nil, Unsupported("files")
}

// Close closes s when it holds resources.
func Close(s any) error {
	if closer, ok := s.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
