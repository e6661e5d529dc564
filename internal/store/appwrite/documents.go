// Where: cli/internal/store/appwrite/documents.go
// What: Document endpoints with JSON-encoded queries.
// Why: Back the menu, order and auth services with the BaaS database.
package appwrite

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/poruru/restaurant-baas/cli/internal/store"
)

const (
	opCreateDocument = "create document"
	opGetDocument    = "get document"
	opListDocuments  = "list documents"
	opUpdateDocument = "update document"
	opDeleteDocument = "delete document"
)

// wireDocument is a document as returned by the BaaS: system fields carry a
// "$" prefix next to the data fields.
type wireDocument map[string]any

func (w wireDocument) document() (store.Document, error) {
	doc := store.Document{Data: map[string]any{}}
	for key, value := range w {
		if !strings.HasPrefix(key, "$") {
			doc.Data[key] = value
			continue
		}
		s, _ := value.(string)
		switch key {
		case "$id":
			doc.ID = s
		case "$collectionId":
			doc.CollectionID = s
		case "$databaseId":
			doc.DatabaseID = s
		case "$createdAt":
			t, err := parseTime(s)
			if err != nil {
				return store.Document{}, err
			}
			doc.CreatedAt = t
		case "$updatedAt":
			t, err := parseTime(s)
			if err != nil {
				return store.Document{}, err
			}
			doc.UpdatedAt = t
		}
	}
	return doc, nil
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", value, err)
	}
	return t.UTC(), nil
}

func documentsPath(databaseID, collectionID string, rest ...string) string {
	parts := append([]string{"databases", databaseID, "collections", collectionID, "documents"}, rest...)
	return apiPath(parts...)
}

func (c *Client) documentCall(ctx context.Context, r request) (store.Document, error) {
	var raw wireDocument
	if err := c.do(ctx, r, &raw); err != nil {
		return store.Document{}, err
	}
	doc, err := raw.document()
	if err != nil {
		return store.Document{}, store.Wrap(store.KindTransport, r.op, r.resource, err)
	}
	return doc, nil
}

func (c *Client) CreateDocument(ctx context.Context, databaseID, collectionID, documentID string, data map[string]any) (store.Document, error) {
	if documentID == "" {
		documentID = store.UniqueID
	}
	return c.documentCall(ctx, request{
		method:   http.MethodPost,
		path:     documentsPath(databaseID, collectionID),
		body:     map[string]any{"documentId": documentID, "data": data},
		op:       opCreateDocument,
		resource: collectionID,
	})
}

func (c *Client) GetDocument(ctx context.Context, databaseID, collectionID, documentID string) (store.Document, error) {
	return c.documentCall(ctx, request{
		method:   http.MethodGet,
		path:     documentsPath(databaseID, collectionID, documentID),
		op:       opGetDocument,
		resource: collectionID + "/" + documentID,
	})
}

func (c *Client) UpdateDocument(ctx context.Context, databaseID, collectionID, documentID string, data map[string]any) (store.Document, error) {
	return c.documentCall(ctx, request{
		method:   http.MethodPatch,
		path:     documentsPath(databaseID, collectionID, documentID),
		body:     map[string]any{"data": data},
		op:       opUpdateDocument,
		resource: collectionID + "/" + documentID,
	})
}

func (c *Client) DeleteDocument(ctx context.Context, databaseID, collectionID, documentID string) error {
	return c.do(ctx, request{
		method:   http.MethodDelete,
		path:     documentsPath(databaseID, collectionID, documentID),
		op:       opDeleteDocument,
		resource: collectionID + "/" + documentID,
	}, nil)
}

// EncodeQueries renders queries as repeated queries[] parameters holding the
// JSON query form.
func EncodeQueries(queries []store.Query) (url.Values, error) {
	values := url.Values{}
	for _, q := range queries {
		encoded, err := json.Marshal(q)
		if err != nil {
			return nil, fmt.Errorf("encode query %s: %w", q.Method, err)
		}
		values.Add("queries[]", string(encoded))
	}
	return values, nil
}

func (c *Client) ListDocuments(ctx context.Context, databaseID, collectionID string, queries ...store.Query) (store.DocumentList, error) {
	values, err := EncodeQueries(queries)
	if err != nil {
		return store.DocumentList{}, store.Wrap(store.KindValidation, opListDocuments, collectionID, err)
	}
	var out struct {
		Total     int            `json:"total"`
		Documents []wireDocument `json:"documents"`
	}
	if err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     documentsPath(databaseID, collectionID),
		query:    values,
		op:       opListDocuments,
		resource: collectionID,
	}, &out); err != nil {
		return store.DocumentList{}, err
	}
	list := store.DocumentList{Total: out.Total, Documents: make([]store.Document, 0, len(out.Documents))}
	for _, raw := range out.Documents {
		doc, err := raw.document()
		if err != nil {
			return store.DocumentList{}, store.Wrap(store.KindTransport, opListDocuments, collectionID, err)
		}
		list.Documents = append(list.Documents, doc)
	}
	return list, nil
}
