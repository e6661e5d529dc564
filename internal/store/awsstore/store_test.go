// Where: cli/internal/store/awsstore/store_test.go
// What: Tests for the DynamoDB + S3 store against in-memory fakes.
// Why: Pin catalog keys, adoption, rollback and document semantics.
package awsstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/poruru/restaurant-baas/cli/internal/provisioner"
	"github.com/poruru/restaurant-baas/cli/internal/schema"
	"github.com/poruru/restaurant-baas/cli/internal/seed"
	"github.com/poruru/restaurant-baas/cli/internal/store"
)

func testConfig() Config {
	return Config{Region: "ap-northeast-1", TablePrefix: "test-", BucketPrefix: "test-", PollInterval: time.Millisecond, PollTimeout: time.Second}
}

func newTestStore(t *testing.T) (*Store, *fakeDynamo, *fakeS3) {
	t.Helper()
	dynamo, s3Client := newFakeDynamo(), newFakeS3()
	s, err := New(context.Background(), testConfig(), fakeFactory{dynamo: dynamo, s3: s3Client})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s, dynamo, s3Client
}

func newCategories(t *testing.T) (*Store, *fakeDynamo) {
	t.Helper()
	ctx := context.Background()
	s, dynamo, _ := newTestStore(t)
	if _, err := s.CreateDatabase(ctx, "db", "DB"); err != nil {
		t.Fatalf("create database: %v", err)
	}
	if _, err := s.CreateCollection(ctx, "db", schema.Collection{ID: "categories", Name: "Categories"}); err != nil {
		t.Fatalf("create collection: %v", err)
	}
	attrs := []schema.Attribute{
		{Key: "name", Kind: schema.KindString, Size: schema.Int(100), Required: true},
		{Key: "sortOrder", Kind: schema.KindInteger, Default: 0},
		{Key: "isActive", Kind: schema.KindBoolean, Default: true},
		{Key: "tags", Kind: schema.KindString, Size: schema.Int(20), Array: true},
	}
	for _, a := range attrs {
		if _, err := s.CreateAttribute(ctx, "db", "categories", a); err != nil {
			t.Fatalf("create attribute %s: %v", a.Key, err)
		}
	}
	if _, err := s.CreateIndex(ctx, "db", "categories", schema.Index{Key: "name_index", Kind: schema.IndexUnique, Attributes: []string{"name"}}); err != nil {
		t.Fatalf("create index: %v", err)
	}
	return s, dynamo
}

func TestCatalogTableIsCreatedOnce(t *testing.T) {
	s, dynamo := newCategories(t)
	if n := dynamo.count("CreateTable " + DefaultCatalogTable); n != 1 {
		t.Fatalf("expected one catalog create, got %d", n)
	}
	if _, ok := dynamo.tables["test-db.categories"]; !ok {
		t.Fatalf("expected collection table, got %v", dynamo.calls)
	}
	if got := s.TableName("db", "menu items"); got != "test-db.menu_items" {
		t.Fatalf("unexpected table name %q", got)
	}
}

func TestCreateConflicts(t *testing.T) {
	ctx := context.Background()
	s, _ := newCategories(t)

	if _, err := s.CreateDatabase(ctx, "db", "DB"); !store.IsConflict(err) {
		t.Fatalf("expected database conflict, got %v", err)
	}
	if _, err := s.CreateCollection(ctx, "db", schema.Collection{ID: "categories"}); !store.IsConflict(err) {
		t.Fatalf("expected collection conflict, got %v", err)
	}
	if _, err := s.CreateAttribute(ctx, "db", "categories", schema.Attribute{Key: "name", Kind: schema.KindString, Size: schema.Int(1)}); !store.IsConflict(err) {
		t.Fatalf("expected attribute conflict, got %v", err)
	}
	if _, err := s.CreateIndex(ctx, "db", "categories", schema.Index{Key: "name_index", Kind: schema.IndexUnique, Attributes: []string{"name"}}); !store.IsConflict(err) {
		t.Fatalf("expected index conflict, got %v", err)
	}
	if _, err := s.CreateCollection(ctx, "missing", schema.Collection{ID: "x"}); !store.IsNotFound(err) {
		t.Fatalf("expected missing database, got %v", err)
	}
	if _, err := s.CreateAttribute(ctx, "db", "missing", schema.Attribute{Key: "a", Kind: schema.KindBoolean}); !store.IsNotFound(err) {
		t.Fatalf("expected missing collection, got %v", err)
	}
}

func TestAttributesKeepCreationOrder(t *testing.T) {
	s, _ := newCategories(t)
	attrs, err := s.Attributes(context.Background(), "db", "categories")
	if err != nil {
		t.Fatalf("attributes: %v", err)
	}
	var keys []string
	for _, a := range attrs {
		keys = append(keys, a.Key)
	}
	if strings.Join(keys, ",") != "name,sortOrder,isActive,tags" {
		t.Fatalf("unexpected order %v", keys)
	}
}

func TestIndexCreatesSecondaryIndexForScalarAttribute(t *testing.T) {
	ctx := context.Background()
	s, dynamo := newCategories(t)
	table := dynamo.tables["test-db.categories"]
	if table.gsis["idx_name_index"] != types.IndexStatusActive {
		t.Fatalf("expected active name index, got %v", table.gsis)
	}
	if _, err := s.CreateIndex(ctx, "db", "categories", schema.Index{Key: "active_index", Kind: schema.IndexKey, Attributes: []string{"isActive"}}); err != nil {
		t.Fatalf("boolean index: %v", err)
	}
	if _, ok := table.gsis["idx_active_index"]; ok {
		t.Fatalf("boolean attributes cannot key a secondary index")
	}
	_, err := s.CreateIndex(ctx, "db", "categories", schema.Index{Key: "ghost", Kind: schema.IndexKey, Attributes: []string{"missing"}})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	indexes, err := s.Indexes(ctx, "db", "categories")
	if err != nil || len(indexes) != 2 {
		t.Fatalf("expected two recorded indexes, got %v %v", indexes, err)
	}
}

func TestCreateCollectionAdoptsExistingTable(t *testing.T) {
	ctx := context.Background()
	s, dynamo, _ := newTestStore(t)
	if _, err := s.CreateDatabase(ctx, "db", "DB"); err != nil {
		t.Fatalf("create database: %v", err)
	}
	dynamo.tables["test-db.orders"] = &fakeTable{hashKey: store.FieldID, status: types.TableStatusActive, gsis: map[string]types.IndexStatus{}, items: map[string]map[string]types.AttributeValue{}}
	if _, err := s.CreateCollection(ctx, "db", schema.Collection{ID: "orders", Name: "Orders"}); err != nil {
		t.Fatalf("expected adoption, got %v", err)
	}
	if _, err := s.GetCollection(ctx, "db", "orders"); err != nil {
		t.Fatalf("get collection: %v", err)
	}
}

func TestCreateCollectionRollsBackCatalogOnFailure(t *testing.T) {
	ctx := context.Background()
	s, dynamo, _ := newTestStore(t)
	if _, err := s.CreateDatabase(ctx, "db", "DB"); err != nil {
		t.Fatalf("create database: %v", err)
	}
	dynamo.failCreateTable = &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "denied"}
	_, err := s.CreateCollection(ctx, "db", schema.Collection{ID: "orders"})
	if store.KindOf(err) != store.KindPermission {
		t.Fatalf("expected permission error, got %v", err)
	}
	if _, err := s.GetCollection(ctx, "db", "orders"); !store.IsNotFound(err) {
		t.Fatalf("catalog item should be rolled back, got %v", err)
	}
	dynamo.failCreateTable = nil
	if _, err := s.CreateCollection(ctx, "db", schema.Collection{ID: "orders"}); err != nil {
		t.Fatalf("retry after rollback: %v", err)
	}
}

func TestCreateBucket(t *testing.T) {
	ctx := context.Background()
	s, _, s3Client := newTestStore(t)

	if _, err := s.CreateBucket(ctx, schema.Bucket{ID: "Images", Enabled: true, Encryption: true}); err != nil {
		t.Fatalf("create bucket: %v", err)
	}
	if !s3Client.buckets["test-images"] || s3Client.encryption["test-images"] != s3types.ServerSideEncryptionAes256 {
		t.Fatalf("expected encrypted bucket, got %v %v", s3Client.buckets, s3Client.encryption)
	}
	if s3Client.regions["test-images"] != "ap-northeast-1" {
		t.Fatalf("expected location constraint, got %q", s3Client.regions["test-images"])
	}
	if _, err := s.CreateBucket(ctx, schema.Bucket{ID: "Images"}); !store.IsConflict(err) {
		t.Fatalf("expected bucket conflict, got %v", err)
	}

	s3Client.buckets["test-receipts"] = true
	if _, err := s.CreateBucket(ctx, schema.Bucket{ID: "receipts", Enabled: true}); err != nil {
		t.Fatalf("owned bucket should be adopted: %v", err)
	}

	s3Client.foreign["test-taken"] = true
	if _, err := s.CreateBucket(ctx, schema.Bucket{ID: "taken"}); !store.IsConflict(err) {
		t.Fatalf("expected conflict for foreign bucket, got %v", err)
	}
	if _, err := s.GetBucket(ctx, "taken"); !store.IsNotFound(err) {
		t.Fatalf("foreign bucket must not stay in the catalog, got %v", err)
	}
}

func TestDocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	s, _ := newCategories(t)

	doc, err := s.CreateDocument(ctx, "db", "categories", store.UniqueID, map[string]any{"name": "Drinks", "tags": []any{"cold"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if doc.ID == "" || doc.ID == store.UniqueID {
		t.Fatalf("expected generated id, got %q", doc.ID)
	}
	if doc.Data["sortOrder"] != 0 || doc.Data["isActive"] != true {
		t.Fatalf("expected defaults, got %v", doc.Data)
	}
	if _, err := s.CreateDocument(ctx, "db", "categories", "", map[string]any{"name": "Drinks"}); !store.IsConflict(err) {
		t.Fatalf("expected unique conflict, got %v", err)
	}
	if _, err := s.CreateDocument(ctx, "db", "categories", doc.ID, map[string]any{"name": "Other"}); !store.IsConflict(err) {
		t.Fatalf("expected id conflict, got %v", err)
	}
	if _, err := s.CreateDocument(ctx, "db", "categories", "", map[string]any{"sortOrder": 1}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected missing required attribute, got %v", err)
	}

	got, err := s.GetDocument(ctx, "db", "categories", doc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	tags, ok := got.Data["tags"].([]any)
	if !ok || len(tags) != 1 || tags[0] != "cold" {
		t.Fatalf("unexpected tags %#v", got.Data["tags"])
	}

	updated, err := s.UpdateDocument(ctx, "db", "categories", doc.ID, map[string]any{"sortOrder": 3})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Data["name"] != "Drinks" || updated.Data["sortOrder"] != 3 {
		t.Fatalf("update should merge, got %v", updated.Data)
	}
	if !updated.CreatedAt.Equal(doc.CreatedAt) {
		t.Fatalf("update must keep createdAt")
	}
	if _, err := s.UpdateDocument(ctx, "db", "categories", "missing", map[string]any{"sortOrder": 1}); !store.IsNotFound(err) {
		t.Fatalf("expected not found update, got %v", err)
	}

	if err := s.DeleteDocument(ctx, "db", "categories", doc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteDocument(ctx, "db", "categories", doc.ID); !store.IsNotFound(err) {
		t.Fatalf("expected not found delete, got %v", err)
	}
	if _, err := s.CreateDocument(ctx, "db", "categories", "", map[string]any{"name": "Drinks"}); err != nil {
		t.Fatalf("name is free again after delete: %v", err)
	}
}

func TestListDocumentsPagesThroughScans(t *testing.T) {
	ctx := context.Background()
	s, _ := newCategories(t)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.Now = func() time.Time { return fixed }

	for i, name := range []string{"Mains", "Drinks", "Desserts", "Sides", "Specials"} {
		if _, err := s.CreateDocument(ctx, "db", "categories", "", map[string]any{"name": name, "sortOrder": 5 - i}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	all, err := s.ListDocuments(ctx, "db", "categories")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if all.Total != 5 || all.Documents[0].Data["name"] != "Mains" || all.Documents[4].Data["name"] != "Specials" {
		t.Fatalf("expected insertion order across scan pages, got %+v", all)
	}

	page, err := s.ListDocuments(ctx, "db", "categories", store.OrderAsc("sortOrder"), store.Limit(2), store.Offset(1))
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if page.Total != 5 || len(page.Documents) != 2 || page.Documents[0].Data["name"] != "Sides" {
		t.Fatalf("unexpected page %+v", page)
	}

	search, err := s.ListDocuments(ctx, "db", "categories", store.Search("name", "ess"))
	if err != nil || search.Total != 1 || search.Documents[0].Data["name"] != "Desserts" {
		t.Fatalf("unexpected search %+v %v", search, err)
	}
	if _, err := s.ListDocuments(ctx, "db", "missing"); !store.IsNotFound(err) {
		t.Fatalf("expected missing collection, got %v", err)
	}
}

func TestCreateFile(t *testing.T) {
	ctx := context.Background()
	s, _, s3Client := newTestStore(t)
	if _, err := s.CreateBucket(ctx, schema.Bucket{ID: "menu-images", Enabled: true, MaxFileSize: 8, AllowedExtensions: []string{"png"}}); err != nil {
		t.Fatalf("create bucket: %v", err)
	}

	file, err := s.CreateFile(ctx, "menu-images", "latte", "latte.png", strings.NewReader("pngdata"))
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	obj, ok := s3Client.objects["test-menu-images/latte"]
	if !ok || string(obj.body) != "pngdata" || obj.contentType != "image/png" || obj.metadata["name"] != "latte.png" {
		t.Fatalf("unexpected object %+v", obj)
	}
	if file.Size != 7 || file.BucketID != "menu-images" {
		t.Fatalf("unexpected file %+v", file)
	}

	if _, err := s.CreateFile(ctx, "menu-images", "", "big.png", strings.NewReader("0123456789")); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected size limit, got %v", err)
	}
	if _, err := s.CreateFile(ctx, "menu-images", "", "notes.txt", strings.NewReader("x")); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected extension check, got %v", err)
	}
	if _, err := s.CreateFile(ctx, "missing", "", "a.png", strings.NewReader("x")); !store.IsNotFound(err) {
		t.Fatalf("expected missing bucket, got %v", err)
	}
}

func TestFilePreviewURL(t *testing.T) {
	s, _, _ := newTestStore(t)
	if got := s.FilePreviewURL("menu-images", "latte", 300, 0); got != "https://test-menu-images.s3.ap-northeast-1.amazonaws.com/latte?width=300" {
		t.Fatalf("unexpected aws url %q", got)
	}
	s.cfg.S3Endpoint = "http://localhost:9000/"
	if got := s.FilePreviewURL("menu-images", "latte", 0, 0); got != "http://localhost:9000/test-menu-images/latte" {
		t.Fatalf("unexpected local url %q", got)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want store.Kind
	}{
		{&types.ConditionalCheckFailedException{Message: aws.String("x")}, store.KindConflict},
		{&types.ResourceNotFoundException{Message: aws.String("x")}, store.KindNotFound},
		{&smithy.GenericAPIError{Code: "ValidationException"}, store.KindValidation},
		{&smithy.GenericAPIError{Code: "UnrecognizedClientException"}, store.KindPermission},
		{&smithy.GenericAPIError{Code: "InternalServerError"}, store.KindTransport},
		{context.DeadlineExceeded, store.KindTransport},
		{errors.New("dial tcp: refused"), store.KindTransport},
	}
	for _, tc := range cases {
		if got := store.KindOf(classify("op", "res", tc.err)); got != tc.want {
			t.Errorf("classify(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
	if classify("op", "res", nil) != nil {
		t.Fatalf("nil stays nil")
	}
}

func TestWaitActiveTimesOut(t *testing.T) {
	s, dynamo, _ := newTestStore(t)
	s.cfg.PollTimeout = 20 * time.Millisecond
	dynamo.tables["stuck"] = &fakeTable{status: types.TableStatusActive, gsis: map[string]types.IndexStatus{}, items: map[string]map[string]types.AttributeValue{}}
	err := s.waitActive(context.Background(), "create index", "stuck", "never")
	if store.KindOf(err) != store.KindTransport || !strings.Contains(err.Error(), "not active") {
		t.Fatalf("expected timeout, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.waitActive(ctx, "create index", "stuck", "never")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestRestaurantSchemaProvisionsIdempotently(t *testing.T) {
	ctx := context.Background()
	def := schema.Restaurant()
	dynamo, s3Client := newFakeDynamo(), newFakeS3()
	dynamo.pageSize = 0
	factory := fakeFactory{dynamo: dynamo, s3: s3Client}

	first, err := New(ctx, testConfig(), factory)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	report := (&provisioner.Provisioner{Store: first}).Provision(ctx, def)
	if !report.Success() || report.Counts().Created != def.Totals().Objects() {
		t.Fatalf("first run: %+v failures=%v", report.Counts(), report.Failures())
	}

	second, err := New(ctx, testConfig(), factory)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	again := (&provisioner.Provisioner{Store: second}).Provision(ctx, def)
	if !again.Success() || again.Counts().AlreadyExists != def.Totals().Objects() {
		t.Fatalf("second run: %+v failures=%v", again.Counts(), again.Failures())
	}

	seeder := &seed.Seeder{Docs: second, DatabaseID: def.Database.ID, Categories: "categories", MenuItems: "menuItems"}
	if _, err := seeder.Seed(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	list, err := second.ListDocuments(ctx, def.Database.ID, "menuItems", store.OrderAsc("price"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list.Total != 4 || list.Documents[0].Data["name"] != "Iced Coffee" {
		t.Fatalf("unexpected seeded menu: total=%d", list.Total)
	}
	if _, err := seeder.Seed(ctx); !store.IsConflict(err) {
		t.Fatalf("expected unique name conflict on second seed, got %v", err)
	}
}
