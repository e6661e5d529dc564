// Where: cli/internal/store/appwrite/client_test.go
// What: Tests for the REST client against an httptest server.
// Why: Request paths, bodies and error mapping must match the API.
package appwrite

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poruru/restaurant-baas/cli/internal/schema"
	"github.com/poruru/restaurant-baas/cli/internal/store"
)

type recorded struct {
	Method string
	Path   string
	Query  map[string][]string
	Header http.Header
	Body   []byte
}

type fakeServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []recorded
}

func newFakeServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, body []byte)) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fs.mu.Lock()
		fs.requests = append(fs.requests, recorded{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
			Body:   body,
		})
		fs.mu.Unlock()
		handler(w, r, body)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) recorded() []recorded {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]recorded(nil), fs.requests...)
}

func newTestClient(t *testing.T, fs *fakeServer) *Client {
	t.Helper()
	c, err := New(Options{
		Endpoint:     fs.URL + "/v1",
		Project:      "restaurant",
		APIKey:       "secret-key",
		HTTPClient:   fs.Client(),
		PollInterval: time.Millisecond,
		PollTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New(Options{Project: "p"}); err == nil {
		t.Fatalf("expected missing endpoint error")
	}
	if _, err := New(Options{Endpoint: "not a url"}); err == nil {
		t.Fatalf("expected invalid endpoint error")
	}
	if _, err := New(Options{Endpoint: "http://localhost/v1"}); err == nil {
		t.Fatalf("expected missing project error")
	}
	c, err := New(Options{Endpoint: "http://localhost/v1/", Project: "p"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if c.Endpoint() != "http://localhost/v1" {
		t.Fatalf("unexpected endpoint %q", c.Endpoint())
	}
}

func TestCreateDatabaseSendsHeadersAndBody(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		writeJSON(w, http.StatusCreated, map[string]any{"$id": "restaurant-db", "name": "Restaurant", "enabled": true, "$createdAt": "2024-05-01T10:00:00.000+00:00"})
	})
	c := newTestClient(t, fs)

	db, err := c.CreateDatabase(context.Background(), "restaurant-db", "Restaurant")
	if err != nil {
		t.Fatalf("create database: %v", err)
	}
	if db.ID != "restaurant-db" || !db.Enabled || db.CreatedAt.IsZero() {
		t.Fatalf("unexpected database: %+v", db)
	}
	req := fs.recorded()[0]
	if req.Method != http.MethodPost || req.Path != "/v1/databases" {
		t.Fatalf("unexpected request %s %s", req.Method, req.Path)
	}
	if req.Header.Get(headerProject) != "restaurant" || req.Header.Get(headerKey) != "secret-key" {
		t.Fatalf("missing auth headers: %v", req.Header)
	}
	var body map[string]any
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["databaseId"] != "restaurant-db" || body["name"] != "Restaurant" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestErrorsAreClassified(t *testing.T) {
	cases := []struct {
		status int
		kind   store.Kind
	}{
		{http.StatusConflict, store.KindConflict},
		{http.StatusNotFound, store.KindNotFound},
		{http.StatusBadRequest, store.KindValidation},
		{http.StatusUnauthorized, store.KindPermission},
		{http.StatusInternalServerError, store.KindTransport},
	}
	for _, tc := range cases {
		fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
			writeJSON(w, tc.status, map[string]any{"message": "remote says no", "code": tc.status, "type": "some_type"})
		})
		c := newTestClient(t, fs)
		_, err := c.CreateCollection(context.Background(), "db", schema.Collection{ID: "orders"})
		if store.KindOf(err) != tc.kind {
			t.Fatalf("status %d: expected %s, got %v", tc.status, tc.kind, err)
		}
		var se *store.Error
		if !errors.As(err, &se) || se.Status != tc.status || !strings.Contains(se.Message, "remote says no [some_type]") {
			t.Fatalf("status %d: unexpected error %#v", tc.status, err)
		}
		if se.Op != opCreateCollection || se.Resource != "orders" {
			t.Fatalf("unexpected op/resource %q %q", se.Op, se.Resource)
		}
	}
}

func TestTransportErrorWhenServerDown(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request, body []byte) {})
	c := newTestClient(t, fs)
	fs.Close()

	_, err := c.GetDatabase(context.Background(), "db")
	if !errors.Is(err, store.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestCreateAttributePollsUntilAvailable(t *testing.T) {
	var polls atomic.Int32
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		switch r.Method {
		case http.MethodPost:
			writeJSON(w, http.StatusAccepted, map[string]any{"key": "price", "type": "double", "status": "processing", "required": true})
		case http.MethodGet:
			status := "processing"
			if polls.Add(1) >= 3 {
				status = "available"
			}
			writeJSON(w, http.StatusOK, map[string]any{"key": "price", "type": "double", "status": status, "required": true})
		}
	})
	c := newTestClient(t, fs)

	spec := schema.Attribute{Key: "price", Kind: schema.KindFloat, Required: true, Default: 1.5, Min: ptr(0)}
	attr, err := c.CreateAttribute(context.Background(), "db", "menuItems", spec)
	if err != nil {
		t.Fatalf("create attribute: %v", err)
	}
	if attr.Status != store.StatusAvailable || attr.Type != "float" {
		t.Fatalf("unexpected attribute: %+v", attr)
	}
	reqs := fs.recorded()
	if reqs[0].Path != "/v1/databases/db/collections/menuItems/attributes/float" {
		t.Fatalf("unexpected create path %s", reqs[0].Path)
	}
	if reqs[1].Path != "/v1/databases/db/collections/menuItems/attributes/price" {
		t.Fatalf("unexpected poll path %s", reqs[1].Path)
	}
	if len(reqs) != 4 {
		t.Fatalf("expected 1 create and 3 polls, got %d requests", len(reqs))
	}
	var body map[string]any
	if err := json.Unmarshal(reqs[0].Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if v, ok := body["default"]; !ok || v != nil {
		t.Fatalf("required attribute must send default null, got %v (present=%v)", v, ok)
	}
	if body["min"] != float64(0) {
		t.Fatalf("expected min in body: %v", body)
	}
}

func TestCreateAttributeFailedStatusIsValidation(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		switch r.Method {
		case http.MethodPost:
			writeJSON(w, http.StatusAccepted, map[string]any{"key": "name", "type": "string", "status": "processing"})
		default:
			writeJSON(w, http.StatusOK, map[string]any{"key": "name", "type": "string", "status": "failed", "error": "size too large"})
		}
	})
	c := newTestClient(t, fs)

	_, err := c.CreateAttribute(context.Background(), "db", "users", schema.Attribute{Key: "name", Kind: schema.KindString, Size: schema.Int(10)})
	if !errors.Is(err, store.ErrValidation) || !strings.Contains(err.Error(), "size too large") {
		t.Fatalf("expected validation error with remote detail, got %v", err)
	}
}

func TestCreateAttributeTimesOut(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		writeJSON(w, http.StatusOK, map[string]any{"key": "name", "type": "string", "status": "processing"})
	})
	c, err := New(Options{
		Endpoint:     fs.URL + "/v1",
		Project:      "restaurant",
		HTTPClient:   fs.Client(),
		PollInterval: 5 * time.Millisecond,
		PollTimeout:  30 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	_, err = c.CreateAttribute(context.Background(), "db", "users", schema.Attribute{Key: "name", Kind: schema.KindString, Size: schema.Int(10)})
	if !errors.Is(err, store.ErrTransport) || !strings.Contains(err.Error(), "not available after") {
		t.Fatalf("expected poll timeout, got %v", err)
	}
}

func TestCreateIndexAvailableImmediately(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		writeJSON(w, http.StatusAccepted, map[string]any{"key": "email_index", "type": "unique", "status": "available", "attributes": []string{"email"}})
	})
	c := newTestClient(t, fs)

	idx, err := c.CreateIndex(context.Background(), "db", "users", schema.Index{Key: "email_index", Kind: schema.IndexUnique, Attributes: []string{"email"}})
	if err != nil {
		t.Fatalf("create index: %v", err)
	}
	if idx.Key != "email_index" || len(fs.recorded()) != 1 {
		t.Fatalf("expected one request, index=%+v", idx)
	}
}

func TestCreateBucketDefaultsCompression(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		writeJSON(w, http.StatusCreated, map[string]any{"$id": "images", "enabled": true, "maximumFileSize": 10})
	})
	c := newTestClient(t, fs)

	if _, err := c.CreateBucket(context.Background(), schema.Bucket{ID: "images", Enabled: true, MaxFileSize: 10}); err != nil {
		t.Fatalf("create bucket: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(fs.recorded()[0].Body, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["compression"] != "none" || body["bucketId"] != "images" {
		t.Fatalf("unexpected bucket body: %v", body)
	}
}

func TestListDocumentsEncodesQueries(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		writeJSON(w, http.StatusOK, map[string]any{
			"total": 7,
			"documents": []map[string]any{{
				"$id":           "c1",
				"$collectionId": "categories",
				"$databaseId":   "db",
				"$createdAt":    "2024-05-01T10:00:00.000+00:00",
				"$updatedAt":    "2024-05-02T10:00:00.000+00:00",
				"$permissions":  []string{},
				"name":          "Seafood",
				"sortOrder":     2,
			}},
		})
	})
	c := newTestClient(t, fs)

	list, err := c.ListDocuments(context.Background(), "db", "categories", store.Equal("isActive", true), store.OrderAsc("sortOrder"), store.Limit(1))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list.Total != 7 || len(list.Documents) != 1 {
		t.Fatalf("unexpected list: %+v", list)
	}
	doc := list.Documents[0]
	if doc.ID != "c1" || doc.CollectionID != "categories" || doc.Data["name"] != "Seafood" {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if _, ok := doc.Data["$permissions"]; ok {
		t.Fatalf("system fields must stay out of data")
	}
	if doc.UpdatedAt.Sub(doc.CreatedAt) != 24*time.Hour {
		t.Fatalf("unexpected timestamps: %v %v", doc.CreatedAt, doc.UpdatedAt)
	}
	queries := fs.recorded()[0].Query["queries[]"]
	want := []string{
		`{"method":"equal","attribute":"isActive","values":[true]}`,
		`{"method":"orderAsc","attribute":"sortOrder"}`,
		`{"method":"limit","values":[1]}`,
	}
	if strings.Join(queries, "\n") != strings.Join(want, "\n") {
		t.Fatalf("unexpected queries:\n%v", queries)
	}
}

func TestCreateDocumentUsesUniqueID(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		writeJSON(w, http.StatusCreated, map[string]any{"$id": "generated", "name": "Tea"})
	})
	c := newTestClient(t, fs)

	doc, err := c.CreateDocument(context.Background(), "db", "menuItems", "", map[string]any{"name": "Tea"})
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
	if doc.ID != "generated" {
		t.Fatalf("unexpected document %+v", doc)
	}
	var body struct {
		DocumentID string         `json:"documentId"`
		Data       map[string]any `json:"data"`
	}
	if err := json.Unmarshal(fs.recorded()[0].Body, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.DocumentID != store.UniqueID || body.Data["name"] != "Tea" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestAccountCallsUseSessionNotKey(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/account/sessions/email":
			w.Header().Set(headerFallbackCookies, `{"a_session_restaurant":"token"}`)
			writeJSON(w, http.StatusCreated, map[string]any{"$id": "s1", "userId": "u1", "expire": "2025-05-01T10:00:00.000+00:00"})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/account":
			if r.Header.Get(headerFallbackCookies) == "" {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "guests cannot access", "type": "general_unauthorized_scope"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"$id": "u1", "email": "a@example.com", "status": true})
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	})
	c := newTestClient(t, fs)
	ctx := context.Background()

	if _, err := c.CurrentAccount(ctx); !errors.Is(err, store.ErrPermission) {
		t.Fatalf("expected permission error without session, got %v", err)
	}
	session, err := c.CreateEmailSession(ctx, "a@example.com", "password1")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if session.UserID != "u1" {
		t.Fatalf("unexpected session %+v", session)
	}
	acc, err := c.CurrentAccount(ctx)
	if err != nil || acc.ID != "u1" {
		t.Fatalf("current account: %+v %v", acc, err)
	}
	if err := c.DeleteSession(ctx, "current"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := c.CurrentAccount(ctx); !errors.Is(err, store.ErrPermission) {
		t.Fatalf("expected permission error after logout, got %v", err)
	}
	for _, req := range fs.recorded() {
		if req.Header.Get(headerKey) != "" {
			t.Fatalf("account call %s %s must not carry the API key", req.Method, req.Path)
		}
	}
}

func TestCreateFileMultipart(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		writeJSON(w, http.StatusCreated, map[string]any{"$id": "f1", "bucketId": "images", "name": "dish.png", "mimeType": "image/png", "sizeOriginal": 5})
	})
	c := newTestClient(t, fs)

	file, err := c.CreateFile(context.Background(), "images", "", "dish.png", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	if file.ID != "f1" || file.Size != 5 {
		t.Fatalf("unexpected file %+v", file)
	}
	req := fs.recorded()[0]
	if req.Path != "/v1/storage/buckets/images/files" || !strings.HasPrefix(req.Header.Get("Content-Type"), "multipart/form-data") {
		t.Fatalf("unexpected upload request %s %s", req.Path, req.Header.Get("Content-Type"))
	}
	body := string(req.Body)
	for _, want := range []string{`name="fileId"`, store.UniqueID, `filename="dish.png"`, "hello"} {
		if !strings.Contains(body, want) {
			t.Fatalf("multipart body missing %q:\n%s", want, body)
		}
	}
}

func TestFilePreviewURL(t *testing.T) {
	c, err := New(Options{Endpoint: "https://cloud.example.com/v1", Project: "restaurant"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got := c.FilePreviewURL("images", "f1", 400, 300)
	want := "https://cloud.example.com/v1/storage/buckets/images/files/f1/preview?height=300&project=restaurant&width=400"
	if got != want {
		t.Fatalf("FilePreviewURL() = %q, want %q", got, want)
	}
}

func TestIsLocalHost(t *testing.T) {
	for host, want := range map[string]bool{"localhost": true, "127.0.0.1": true, "::1": true, "cloud.appwrite.io": false} {
		if got := isLocalHost(host); got != want {
			t.Fatalf("isLocalHost(%q) = %v, want %v", host, got, want)
		}
	}
}

func ptr(v float64) *float64 { return &v }
