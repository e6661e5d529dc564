// Where: cli/internal/store/memory/memory.go
// What: In-process store implementing every store capability.
// Why: Offline runs (--backend memory) and deterministic tests with call logs and fault injection.
package memory

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/poruru/restaurant-baas/cli/internal/schema"
	"github.com/poruru/restaurant-baas/cli/internal/store"
)

// Operation names recorded in the call log and used for fault injection.
const (
	OpCreateDatabase   = "create database"
	OpGetDatabase      = "get database"
	OpListDatabases    = "list databases"
	OpCreateCollection = "create collection"
	OpGetCollection    = "get collection"
	OpCreateAttribute  = "create attribute"
	OpCreateIndex      = "create index"
	OpCreateBucket     = "create bucket"
	OpGetBucket        = "get bucket"
	OpCreateDocument   = "create document"
	OpGetDocument      = "get document"
	OpListDocuments    = "list documents"
	OpUpdateDocument   = "update document"
	OpDeleteDocument   = "delete document"
	OpCurrentAccount   = "current account"
	OpCreateAccount    = "create account"
	OpCreateSession    = "create session"
	OpDeleteSession    = "delete session"
	OpCreateFile       = "create file"
)

// Call is one recorded store call. Resource is the object id; attributes and
// indexes are recorded as "collection.key".
type Call struct {
	Op       string
	Resource string
}

func (c Call) String() string {
	return c.Op + " " + c.Resource
}

type collection struct {
	meta       store.Collection
	attributes []store.Attribute
	indexes    []store.Index
	documents  []store.Document
}

type account struct {
	store.Account
	password store.PasswordHash
}

type file struct {
	store.File
	content []byte
}

// Store is safe for concurrent use.
type Store struct {
	mu sync.Mutex

	databases   map[string]store.Database
	dbOrder     []string
	collections map[string]*collection
	buckets     map[string]store.Bucket
	files       map[string]map[string]file
	accounts    map[string]*account
	sessions    map[string]store.Session
	current     string

	calls  []Call
	faults map[Call]error

	// Now and NewID are replaceable for deterministic tests.
	Now   func() time.Time
	NewID func() string
}

func New() *Store {
	return &Store{
		databases:   map[string]store.Database{},
		collections: map[string]*collection{},
		buckets:     map[string]store.Bucket{},
		files:       map[string]map[string]file{},
		accounts:    map[string]*account{},
		sessions:    map[string]store.Session{},
		faults:      map[Call]error{},
		Now:         time.Now,
		NewID:       func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
}

// Fail makes every later call of op on resource return err. A nil err clears
// the fault.
func (s *Store) Fail(op, resource string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := Call{Op: op, Resource: resource}
	if err == nil {
		delete(s.faults, key)
		return
	}
	s.faults[key] = err
}

// Calls returns a copy of the call log.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CountCalls counts logged calls of op.
func (s *Store) CountCalls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log, keeping stored objects.
func (s *Store) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// record logs a call and returns an injected fault. Callers hold s.mu.
func (s *Store) record(ctx context.Context, op, resource string) error {
	call := Call{Op: op, Resource: resource}
	s.calls = append(s.calls, call)
	if err := ctx.Err(); err != nil {
		return store.Wrap(store.KindTransport, op, resource, err)
	}
	if err, ok := s.faults[call]; ok {
		return err
	}
	return nil
}

func (s *Store) newID(id string) string {
	if id == "" || id == store.UniqueID {
		return s.NewID()
	}
	return id
}

func collectionKey(databaseID, id string) string {
	return databaseID + "/" + id
}

func (s *Store) CreateDatabase(ctx context.Context, id, name string) (store.Database, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, OpCreateDatabase, id); err != nil {
		return store.Database{}, err
	}
	if _, ok := s.databases[id]; ok {
		return store.Database{}, store.Conflict(OpCreateDatabase, id)
	}
	db := store.Database{ID: id, Name: name, Enabled: true, CreatedAt: s.Now().UTC()}
	s.databases[id] = db
	s.dbOrder = append(s.dbOrder, id)
	return db, nil
}

func (s *Store) GetDatabase(ctx context.Context, id string) (store.Database, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, OpGetDatabase, id); err != nil {
		return store.Database{}, err
	}
	db, ok := s.databases[id]
	if !ok {
		return store.Database{}, store.NotFound(OpGetDatabase, id)
	}
	return db, nil
}

func (s *Store) ListDatabases(ctx context.Context) ([]store.Database, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, OpListDatabases, ""); err != nil {
		return nil, err
	}
	out := make([]store.Database, 0, len(s.dbOrder))
	for _, id := range s.dbOrder {
		out = append(out, s.databases[id])
	}
	return out, nil
}

func (s *Store) CreateCollection(ctx context.Context, databaseID string, spec schema.Collection) (store.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, OpCreateCollection, spec.ID); err != nil {
		return store.Collection{}, err
	}
	if _, ok := s.databases[databaseID]; !ok {
		return store.Collection{}, store.NotFound(OpCreateCollection, databaseID)
	}
	key := collectionKey(databaseID, spec.ID)
	if _, ok := s.collections[key]; ok {
		return store.Collection{}, store.Conflict(OpCreateCollection, spec.ID)
	}
	c := &collection{meta: store.CollectionFromSpec(databaseID, spec)}
	s.collections[key] = c
	return c.meta, nil
}

func (s *Store) GetCollection(ctx context.Context, databaseID, id string) (store.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, OpGetCollection, id); err != nil {
		return store.Collection{}, err
	}
	c, ok := s.collections[collectionKey(databaseID, id)]
	if !ok {
		return store.Collection{}, store.NotFound(OpGetCollection, id)
	}
	return c.meta, nil
}

func (s *Store) CreateAttribute(ctx context.Context, databaseID, collectionID string, spec schema.Attribute) (store.Attribute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resource := collectionID + "." + spec.Key
	if err := s.record(ctx, OpCreateAttribute, resource); err != nil {
		return store.Attribute{}, err
	}
	c, ok := s.collections[collectionKey(databaseID, collectionID)]
	if !ok {
		return store.Attribute{}, store.NotFound(OpCreateAttribute, collectionID)
	}
	for _, a := range c.attributes {
		if a.Key == spec.Key {
			return store.Attribute{}, store.Conflict(OpCreateAttribute, resource)
		}
	}
	attr := store.AttributeFromSpec(spec)
	c.attributes = append(c.attributes, attr)
	return attr, nil
}

func (s *Store) CreateIndex(ctx context.Context, databaseID, collectionID string, spec schema.Index) (store.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resource := collectionID + "." + spec.Key
	if err := s.record(ctx, OpCreateIndex, resource); err != nil {
		return store.Index{}, err
	}
	c, ok := s.collections[collectionKey(databaseID, collectionID)]
	if !ok {
		return store.Index{}, store.NotFound(OpCreateIndex, collectionID)
	}
	for _, idx := range c.indexes {
		if idx.Key == spec.Key {
			return store.Index{}, store.Conflict(OpCreateIndex, resource)
		}
	}
	for _, key := range spec.Attributes {
		if !hasAttribute(c.attributes, key) {
			return store.Index{}, store.New(store.KindValidation, OpCreateIndex, resource, fmt.Sprintf("attribute %q not found", key))
		}
	}
	idx := store.IndexFromSpec(spec)
	c.indexes = append(c.indexes, idx)
	return idx, nil
}

func hasAttribute(attrs []store.Attribute, key string) bool {
	for _, a := range attrs {
		if a.Key == key {
			return true
		}
	}
	return false
}

// Attributes returns the attributes of a collection in creation order.
func (s *Store) Attributes(databaseID, collectionID string) []store.Attribute {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collectionKey(databaseID, collectionID)]
	if !ok {
		return nil
	}
	return append([]store.Attribute(nil), c.attributes...)
}

// Indexes returns the indexes of a collection in creation order.
func (s *Store) Indexes(databaseID, collectionID string) []store.Index {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collectionKey(databaseID, collectionID)]
	if !ok {
		return nil
	}
	return append([]store.Index(nil), c.indexes...)
}

func (s *Store) CreateBucket(ctx context.Context, spec schema.Bucket) (store.Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, OpCreateBucket, spec.ID); err != nil {
		return store.Bucket{}, err
	}
	if _, ok := s.buckets[spec.ID]; ok {
		return store.Bucket{}, store.Conflict(OpCreateBucket, spec.ID)
	}
	b := store.BucketFromSpec(spec)
	s.buckets[spec.ID] = b
	s.files[spec.ID] = map[string]file{}
	return b, nil
}

func (s *Store) GetBucket(ctx context.Context, id string) (store.Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, OpGetBucket, id); err != nil {
		return store.Bucket{}, err
	}
	b, ok := s.buckets[id]
	if !ok {
		return store.Bucket{}, store.NotFound(OpGetBucket, id)
	}
	return b, nil
}

func (s *Store) documents(op, databaseID, collectionID string) (*collection, error) {
	c, ok := s.collections[collectionKey(databaseID, collectionID)]
	if !ok {
		return nil, store.NotFound(op, collectionID)
	}
	return c, nil
}

func (s *Store) CreateDocument(ctx context.Context, databaseID, collectionID, documentID string, data map[string]any) (store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, OpCreateDocument, collectionID); err != nil {
		return store.Document{}, err
	}
	c, err := s.documents(OpCreateDocument, databaseID, collectionID)
	if err != nil {
		return store.Document{}, err
	}
	prepared, err := store.PrepareDocument(collectionID, c.attributes, data, false)
	if err != nil {
		return store.Document{}, err
	}
	id := s.newID(documentID)
	for _, d := range c.documents {
		if d.ID == id {
			return store.Document{}, store.Conflict(OpCreateDocument, id)
		}
	}
	if err := checkUnique(c, "", prepared); err != nil {
		return store.Document{}, err
	}
	now := s.Now().UTC()
	doc := store.Document{
		ID:           id,
		CollectionID: collectionID,
		DatabaseID:   databaseID,
		CreatedAt:    now,
		UpdatedAt:    now,
		Data:         prepared,
	}
	c.documents = append(c.documents, doc)
	return copyDocument(doc), nil
}

// checkUnique enforces unique indexes, skipping the document being updated.
func checkUnique(c *collection, selfID string, data map[string]any) error {
	for _, idx := range c.indexes {
		if idx.Type != string(schema.IndexUnique) {
			continue
		}
		for _, other := range c.documents {
			if other.ID == selfID {
				continue
			}
			same := true
			for _, key := range idx.Attributes {
				if fmt.Sprint(other.Data[key]) != fmt.Sprint(data[key]) {
					same = false
					break
				}
			}
			if same {
				return store.New(store.KindConflict, OpCreateDocument, c.meta.ID, "unique index "+idx.Key+" violated")
			}
		}
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, databaseID, collectionID, documentID string) (store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, OpGetDocument, collectionID); err != nil {
		return store.Document{}, err
	}
	c, err := s.documents(OpGetDocument, databaseID, collectionID)
	if err != nil {
		return store.Document{}, err
	}
	for _, d := range c.documents {
		if d.ID == documentID {
			return copyDocument(d), nil
		}
	}
	return store.Document{}, store.NotFound(OpGetDocument, documentID)
}

func (s *Store) ListDocuments(ctx context.Context, databaseID, collectionID string, queries ...store.Query) (store.DocumentList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, OpListDocuments, collectionID); err != nil {
		return store.DocumentList{}, err
	}
	c, err := s.documents(OpListDocuments, databaseID, collectionID)
	if err != nil {
		return store.DocumentList{}, err
	}
	docs := make([]store.Document, 0, len(c.documents))
	for _, d := range c.documents {
		docs = append(docs, copyDocument(d))
	}
	return store.Apply(docs, queries)
}

func (s *Store) UpdateDocument(ctx context.Context, databaseID, collectionID, documentID string, data map[string]any) (store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, OpUpdateDocument, collectionID); err != nil {
		return store.Document{}, err
	}
	c, err := s.documents(OpUpdateDocument, databaseID, collectionID)
	if err != nil {
		return store.Document{}, err
	}
	patch, err := store.PrepareDocument(collectionID, c.attributes, data, true)
	if err != nil {
		return store.Document{}, err
	}
	for i, d := range c.documents {
		if d.ID != documentID {
			continue
		}
		merged := make(map[string]any, len(d.Data)+len(patch))
		for k, v := range d.Data {
			merged[k] = v
		}
		for k, v := range patch {
			merged[k] = v
		}
		if err := checkUnique(c, d.ID, merged); err != nil {
			return store.Document{}, err
		}
		d.Data = merged
		d.UpdatedAt = s.Now().UTC()
		c.documents[i] = d
		return copyDocument(d), nil
	}
	return store.Document{}, store.NotFound(OpUpdateDocument, documentID)
}

func (s *Store) DeleteDocument(ctx context.Context, databaseID, collectionID, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, OpDeleteDocument, collectionID); err != nil {
		return err
	}
	c, err := s.documents(OpDeleteDocument, databaseID, collectionID)
	if err != nil {
		return err
	}
	for i, d := range c.documents {
		if d.ID == documentID {
			c.documents = append(c.documents[:i], c.documents[i+1:]...)
			return nil
		}
	}
	return store.NotFound(OpDeleteDocument, documentID)
}

func copyDocument(d store.Document) store.Document {
	data := make(map[string]any, len(d.Data))
	for k, v := range d.Data {
		data[k] = v
	}
	d.Data = data
	return d
}

func (s *Store) CurrentAccount(ctx context.Context) (store.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, OpCurrentAccount, "current"); err != nil {
		return store.Account{}, err
	}
	session, ok := s.sessions[s.current]
	if !ok {
		return store.Account{}, store.New(store.KindPermission, OpCurrentAccount, "", "no active session")
	}
	acc, ok := s.accounts[session.UserID]
	if !ok {
		return store.Account{}, store.NotFound(OpCurrentAccount, session.UserID)
	}
	return acc.Account, nil
}

func (s *Store) CreateAccount(ctx context.Context, userID, email, password, name string) (store.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, OpCreateAccount, email); err != nil {
		return store.Account{}, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(password) < store.MinPasswordLength {
		return store.Account{}, store.New(store.KindValidation, OpCreateAccount, email, "email and a password of at least 8 characters are required")
	}
	for _, acc := range s.accounts {
		if acc.Email == email {
			return store.Account{}, store.Conflict(OpCreateAccount, email)
		}
	}
	id := s.newID(userID)
	if _, ok := s.accounts[id]; ok {
		return store.Account{}, store.Conflict(OpCreateAccount, id)
	}
	hash, err := store.HashPassword(password)
	if err != nil {
		return store.Account{}, store.Wrap(store.KindTransport, OpCreateAccount, email, err)
	}
	acc := &account{Account: store.Account{ID: id, Name: name, Email: email, Status: true}, password: hash}
	s.accounts[id] = acc
	return acc.Account, nil
}

func (s *Store) CreateEmailSession(ctx context.Context, email, password string) (store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, OpCreateSession, email); err != nil {
		return store.Session{}, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for _, acc := range s.accounts {
		if acc.Email != email {
			continue
		}
		if !acc.password.Verify(password) {
			break
		}
		now := s.Now().UTC()
		session := store.Session{ID: s.NewID(), UserID: acc.ID, Expire: now.Add(365 * 24 * time.Hour)}
		s.sessions[session.ID] = session
		s.current = session.ID
		return session, nil
	}
	return store.Session{}, store.New(store.KindPermission, OpCreateSession, email, "invalid credentials")
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, OpDeleteSession, sessionID); err != nil {
		return err
	}
	if sessionID == "current" {
		sessionID = s.current
	}
	if _, ok := s.sessions[sessionID]; !ok {
		return store.NotFound(OpDeleteSession, sessionID)
	}
	delete(s.sessions, sessionID)
	if s.current == sessionID {
		s.current = ""
	}
	return nil
}

func (s *Store) CreateFile(ctx context.Context, bucketID, fileID, name string, content io.Reader) (store.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, OpCreateFile, bucketID); err != nil {
		return store.File{}, err
	}
	b, ok := s.buckets[bucketID]
	if !ok {
		return store.File{}, store.NotFound(OpCreateFile, bucketID)
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return store.File{}, store.Wrap(store.KindTransport, OpCreateFile, name, err)
	}
	if err := store.CheckUpload(b, name, int64(len(data))); err != nil {
		return store.File{}, err
	}
	id := s.newID(fileID)
	if _, ok := s.files[bucketID][id]; ok {
		return store.File{}, store.Conflict(OpCreateFile, id)
	}
	f := file{
		File:    store.File{ID: id, BucketID: bucketID, Name: name, MimeType: store.MimeType(name), Size: int64(len(data))},
		content: data,
	}
	s.files[bucketID][id] = f
	return f.File, nil
}

// FileContent returns uploaded bytes; used by tests.
func (s *Store) FileContent(bucketID, fileID string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[bucketID][fileID]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), f.content...), true
}

func (s *Store) FilePreviewURL(bucketID, fileID string, width, height int) string {
	return fmt.Sprintf("memory://%s?width=%d&height=%d", path.Join("storage/buckets", bucketID, "files", fileID, "preview"), width, height)
}

// Snapshot lists the ids of stored objects for diagnostics.
func (s *Store) Snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id := range s.databases {
		out = append(out, "database "+id)
	}
	for id := range s.buckets {
		out = append(out, "bucket "+id)
	}
	for key, c := range s.collections {
		out = append(out, "collection "+key)
		for _, a := range c.attributes {
			out = append(out, "attribute "+key+"."+a.Key)
		}
		for _, idx := range c.indexes {
			out = append(out, "index "+key+"."+idx.Key)
		}
	}
	sort.Strings(out)
	return out
}
