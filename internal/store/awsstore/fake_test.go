// Where: cli/internal/store/awsstore/fake_test.go
// What: In-memory DynamoDB and S3 fakes for store tests.
// Why: Exercise the SDK call shapes without emulators.
package awsstore

import (
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type fakeTable struct {
	hashKey  string
	rangeKey string
	status   types.TableStatus
	gsis     map[string]types.IndexStatus
	items    map[string]map[string]types.AttributeValue
	order    []string
}

type fakeDynamo struct {
	mu       sync.Mutex
	tables   map[string]*fakeTable
	pageSize int
	// failCreateTable, when set, is returned by CreateTable for every table but the catalog.
	failCreateTable error
	calls           []string
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{tables: map[string]*fakeTable{}, pageSize: 2}
}

func (f *fakeDynamo) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeDynamo) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func attrString(av types.AttributeValue) string {
	switch t := av.(type) {
	case *types.AttributeValueMemberS:
		return t.Value
	case *types.AttributeValueMemberN:
		return t.Value
	}
	return ""
}

func (t *fakeTable) key(item map[string]types.AttributeValue) string {
	k := attrString(item[t.hashKey])
	if t.rangeKey != "" {
		k += "|" + attrString(item[t.rangeKey])
	}
	return k
}

func (f *fakeDynamo) table(name string) (*fakeTable, error) {
	t, ok := f.tables[name]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("table not found: " + name)}
	}
	return t, nil
}

func (f *fakeDynamo) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.TableName)
	f.record("CreateTable " + name)
	if f.failCreateTable != nil && name != DefaultCatalogTable {
		return nil, f.failCreateTable
	}
	if _, ok := f.tables[name]; ok {
		return nil, &types.ResourceInUseException{Message: aws.String("table exists: " + name)}
	}
	t := &fakeTable{status: types.TableStatusCreating, gsis: map[string]types.IndexStatus{}, items: map[string]map[string]types.AttributeValue{}}
	for _, k := range in.KeySchema {
		if k.KeyType == types.KeyTypeHash {
			t.hashKey = aws.ToString(k.AttributeName)
		} else {
			t.rangeKey = aws.ToString(k.AttributeName)
		}
	}
	f.tables[name] = t
	return &dynamodb.CreateTableOutput{}, nil
}

// DescribeTable reports CREATING once, then ACTIVE.
func (f *fakeDynamo) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.TableName)
	f.record("DescribeTable " + name)
	t, err := f.table(name)
	if err != nil {
		return nil, err
	}
	desc := &types.TableDescription{TableName: aws.String(name), TableStatus: t.status}
	names := make([]string, 0, len(t.gsis))
	for gsi := range t.gsis {
		names = append(names, gsi)
	}
	sort.Strings(names)
	for _, gsi := range names {
		desc.GlobalSecondaryIndexes = append(desc.GlobalSecondaryIndexes, types.GlobalSecondaryIndexDescription{
			IndexName:   aws.String(gsi),
			IndexStatus: t.gsis[gsi],
		})
		t.gsis[gsi] = types.IndexStatusActive
	}
	t.status = types.TableStatusActive
	return &dynamodb.DescribeTableOutput{Table: desc}, nil
}

func (f *fakeDynamo) UpdateTable(_ context.Context, in *dynamodb.UpdateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.TableName)
	f.record("UpdateTable " + name)
	t, err := f.table(name)
	if err != nil {
		return nil, err
	}
	for _, u := range in.GlobalSecondaryIndexUpdates {
		if u.Create == nil {
			continue
		}
		idx := aws.ToString(u.Create.IndexName)
		if _, ok := t.gsis[idx]; ok {
			return nil, &smithy.GenericAPIError{Code: "ValidationException", Message: "index exists: " + idx}
		}
		t.gsis[idx] = types.IndexStatusCreating
	}
	return &dynamodb.UpdateTableOutput{}, nil
}

func conditionMet(existing bool, expr *string) bool {
	if expr == nil {
		return true
	}
	e := aws.ToString(expr)
	switch {
	case strings.HasPrefix(e, "attribute_not_exists("):
		return !existing
	case strings.HasPrefix(e, "attribute_exists("):
		return existing
	}
	return true
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.TableName)
	f.record("PutItem " + name)
	t, err := f.table(name)
	if err != nil {
		return nil, err
	}
	k := t.key(in.Item)
	_, existing := t.items[k]
	if !conditionMet(existing, in.ConditionExpression) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
	}
	if !existing {
		t.order = append(t.order, k)
	}
	t.items[k] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.TableName)
	f.record("GetItem " + name)
	t, err := f.table(name)
	if err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: t.items[t.key(in.Key)]}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.TableName)
	f.record("DeleteItem " + name)
	t, err := f.table(name)
	if err != nil {
		return nil, err
	}
	k := t.key(in.Key)
	_, existing := t.items[k]
	if !conditionMet(existing, in.ConditionExpression) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
	}
	delete(t.items, k)
	for i, o := range t.order {
		if o == k {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) page(t *fakeTable, start map[string]types.AttributeValue, keep func(map[string]types.AttributeValue) bool) ([]map[string]types.AttributeValue, map[string]types.AttributeValue) {
	from := 0
	if start != nil {
		from, _ = strconv.Atoi(attrString(start["__pos"]))
	}
	var out []map[string]types.AttributeValue
	for i := from; i < len(t.order); i++ {
		item := t.items[t.order[i]]
		if keep(item) {
			out = append(out, item)
		}
		if f.pageSize > 0 && i-from+1 == f.pageSize && i+1 < len(t.order) {
			return out, map[string]types.AttributeValue{"__pos": &types.AttributeValueMemberN{Value: strconv.Itoa(i + 1)}}
		}
	}
	return out, nil
}

// Query supports the catalog's "pk = :pk AND begins_with(sk, :prefix)" form.
func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.TableName)
	f.record("Query " + name)
	t, err := f.table(name)
	if err != nil {
		return nil, err
	}
	pk := attrString(in.ExpressionAttributeValues[":pk"])
	prefix := attrString(in.ExpressionAttributeValues[":prefix"])
	items, last := f.page(t, in.ExclusiveStartKey, func(item map[string]types.AttributeValue) bool {
		return attrString(item[t.hashKey]) == pk && strings.HasPrefix(attrString(item[t.rangeKey]), prefix)
	})
	return &dynamodb.QueryOutput{Items: items, LastEvaluatedKey: last}, nil
}

// Scan supports an optional "sk = :meta AND begins_with(pk, :db)" filter.
func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.TableName)
	f.record("Scan " + name)
	t, err := f.table(name)
	if err != nil {
		return nil, err
	}
	items, last := f.page(t, in.ExclusiveStartKey, func(item map[string]types.AttributeValue) bool {
		if in.FilterExpression == nil {
			return true
		}
		return attrString(item[keySK]) == attrString(in.ExpressionAttributeValues[":meta"]) &&
			strings.HasPrefix(attrString(item[keyPK]), attrString(in.ExpressionAttributeValues[":db"]))
	})
	return &dynamodb.ScanOutput{Items: items, LastEvaluatedKey: last}, nil
}

type fakeObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
}

type fakeS3 struct {
	mu         sync.Mutex
	buckets    map[string]bool
	foreign    map[string]bool
	encryption map[string]s3types.ServerSideEncryption
	objects    map[string]fakeObject
	regions    map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		buckets:    map[string]bool{},
		foreign:    map[string]bool{},
		encryption: map[string]s3types.ServerSideEncryption{},
		objects:    map[string]fakeObject{},
		regions:    map[string]string{},
	}
}

func (f *fakeS3) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.Bucket)
	if f.foreign[name] {
		return nil, &s3types.BucketAlreadyExists{Message: aws.String("owned by another account")}
	}
	if f.buckets[name] {
		return nil, &s3types.BucketAlreadyOwnedByYou{Message: aws.String("already yours")}
	}
	f.buckets[name] = true
	if in.CreateBucketConfiguration != nil {
		f.regions[name] = string(in.CreateBucketConfiguration.LocationConstraint)
	}
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeS3) PutBucketEncryption(_ context.Context, in *s3.PutBucketEncryptionInput, _ ...func(*s3.Options)) (*s3.PutBucketEncryptionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.Bucket)
	if !f.buckets[name] {
		return nil, errors.New("no such bucket")
	}
	rule := in.ServerSideEncryptionConfiguration.Rules[0]
	f.encryption[name] = rule.ApplyServerSideEncryptionByDefault.SSEAlgorithm
	return &s3.PutBucketEncryptionOutput{}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.Bucket)
	if !f.buckets[name] {
		return nil, &s3types.NoSuchBucket{Message: aws.String("no such bucket")}
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[name+"/"+aws.ToString(in.Key)] = fakeObject{body: body, contentType: aws.ToString(in.ContentType), metadata: in.Metadata}
	return &s3.PutObjectOutput{}, nil
}

type fakeFactory struct {
	dynamo *fakeDynamo
	s3     *fakeS3
}

func (f fakeFactory) DynamoDB(context.Context, Config) (DynamoDBAPI, error) { return f.dynamo, nil }
func (f fakeFactory) S3(context.Context, Config) (S3API, error)             { return f.s3, nil }
