// Where: cli/internal/store/awsstore/schema.go
// What: Database, collection, attribute, index and bucket operations.
// Why: Map schema objects onto catalog items, DynamoDB tables and S3 buckets.
package awsstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/poruru/restaurant-baas/cli/internal/schema"
	"github.com/poruru/restaurant-baas/cli/internal/store"
)

const (
	opCreateDatabase   = "create database"
	opGetDatabase      = "get database"
	opListDatabases    = "list databases"
	opCreateCollection = "create collection"
	opGetCollection    = "get collection"
	opCreateAttribute  = "create attribute"
	opCreateIndex      = "create index"
	opCreateBucket     = "create bucket"
	opGetBucket        = "get bucket"

	documentKey = "$id"
)

func (s *Store) CreateDatabase(ctx context.Context, id, name string) (store.Database, error) {
	db := store.Database{ID: id, Name: name, Enabled: true, CreatedAt: s.Now().UTC()}
	pk, sk := databaseKey(id)
	if err := s.putCatalog(ctx, opCreateDatabase, id, pk, sk, db, 0); err != nil {
		return store.Database{}, err
	}
	return db, nil
}

func (s *Store) GetDatabase(ctx context.Context, id string) (store.Database, error) {
	var db store.Database
	pk, sk := databaseKey(id)
	if err := s.getCatalog(ctx, opGetDatabase, id, pk, sk, &db); err != nil {
		return store.Database{}, err
	}
	return db, nil
}

func (s *Store) ListDatabases(ctx context.Context) ([]store.Database, error) {
	if err := s.ensureCatalog(ctx); err != nil {
		return nil, err
	}
	input := &dynamodb.ScanInput{
		TableName:        aws.String(s.cfg.CatalogTable),
		FilterExpression: aws.String("#sk = :meta AND begins_with(#pk, :db)"),
		ExpressionAttributeNames: map[string]string{
			"#pk": keyPK,
			"#sk": keySK,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":meta": &types.AttributeValueMemberS{Value: skMeta},
			":db":   &types.AttributeValueMemberS{Value: "db#"},
		},
		ConsistentRead: aws.Bool(true),
	}
	var out []store.Database
	for {
		resp, err := s.dynamo.Scan(ctx, input)
		if err != nil {
			return nil, classify(opListDatabases, "", err)
		}
		for _, item := range resp.Items {
			var db store.Database
			if err := decodeSpec(opListDatabases, "", item, &db); err != nil {
				return nil, err
			}
			out = append(out, db)
		}
		if len(resp.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = resp.LastEvaluatedKey
	}
	sortDatabases(out)
	return out, nil
}

func sortDatabases(dbs []store.Database) {
	sort.SliceStable(dbs, func(i, j int) bool {
		if !dbs[i].CreatedAt.Equal(dbs[j].CreatedAt) {
			return dbs[i].CreatedAt.Before(dbs[j].CreatedAt)
		}
		return dbs[i].ID < dbs[j].ID
	})
}

// CreateCollection records the collection and creates its document table.
// A table left behind by an earlier run is adopted.
func (s *Store) CreateCollection(ctx context.Context, databaseID string, spec schema.Collection) (store.Collection, error) {
	if _, err := s.GetDatabase(ctx, databaseID); err != nil {
		if store.IsNotFound(err) {
			return store.Collection{}, store.NotFound(opCreateCollection, databaseID)
		}
		return store.Collection{}, err
	}
	meta := store.CollectionFromSpec(databaseID, spec)
	pk, sk := collectionKey(databaseID, spec.ID)
	if err := s.putCatalog(ctx, opCreateCollection, spec.ID, pk, sk, meta, 0); err != nil {
		return store.Collection{}, err
	}
	table := s.TableName(databaseID, spec.ID)
	_, err := s.dynamo.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(documentKey), KeyType: types.KeyTypeHash},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(documentKey), AttributeType: types.ScalarAttributeTypeS},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	switch {
	case err == nil:
		s.logger.Debug("collection table created", zap.String("table", table))
	case errorCode(err) == "ResourceInUseException":
		s.logger.Debug("collection table adopted", zap.String("table", table))
	default:
		s.deleteCatalog(ctx, pk, sk)
		return store.Collection{}, classify(opCreateCollection, spec.ID, err)
	}
	if err := s.waitActive(ctx, opCreateCollection, table, ""); err != nil {
		return store.Collection{}, err
	}
	return meta, nil
}

func (s *Store) GetCollection(ctx context.Context, databaseID, id string) (store.Collection, error) {
	var meta store.Collection
	pk, sk := collectionKey(databaseID, id)
	if err := s.getCatalog(ctx, opGetCollection, id, pk, sk, &meta); err != nil {
		return store.Collection{}, err
	}
	return meta, nil
}

func (s *Store) CreateAttribute(ctx context.Context, databaseID, collectionID string, spec schema.Attribute) (store.Attribute, error) {
	resource := collectionID + "." + spec.Key
	if _, err := s.GetCollection(ctx, databaseID, collectionID); err != nil {
		if store.IsNotFound(err) {
			return store.Attribute{}, store.NotFound(opCreateAttribute, collectionID)
		}
		return store.Attribute{}, err
	}
	if strings.HasPrefix(spec.Key, "$") {
		return store.Attribute{}, store.New(store.KindValidation, opCreateAttribute, resource, "attribute keys cannot start with $")
	}
	existing, err := s.Attributes(ctx, databaseID, collectionID)
	if err != nil {
		return store.Attribute{}, err
	}
	attr := store.AttributeFromSpec(spec)
	pk, sk := attributeKey(databaseID, collectionID, spec.Key)
	if err := s.putCatalog(ctx, opCreateAttribute, resource, pk, sk, attr, len(existing)); err != nil {
		return store.Attribute{}, err
	}
	return attr, nil
}

// gsiName is the DynamoDB index backing a collection index.
func gsiName(key string) string {
	return "idx_" + tableNameUnsafe.ReplaceAllString(key, "_")
}

// gsiKeyType reports whether attr can key a global secondary index and with
// which scalar type. Arrays and booleans cannot.
func gsiKeyType(attr store.Attribute) (types.ScalarAttributeType, bool) {
	if attr.Array {
		return "", false
	}
	switch schema.AttributeKind(attr.Type) {
	case schema.KindString, schema.KindDatetime:
		return types.ScalarAttributeTypeS, true
	case schema.KindInteger, schema.KindFloat:
		return types.ScalarAttributeTypeN, true
	default:
		return "", false
	}
}

// CreateIndex records the index. Single-attribute key and unique indexes on
// scalar attributes also get a global secondary index; uniqueness itself is
// checked on write.
func (s *Store) CreateIndex(ctx context.Context, databaseID, collectionID string, spec schema.Index) (store.Index, error) {
	resource := collectionID + "." + spec.Key
	if _, err := s.GetCollection(ctx, databaseID, collectionID); err != nil {
		if store.IsNotFound(err) {
			return store.Index{}, store.NotFound(opCreateIndex, collectionID)
		}
		return store.Index{}, err
	}
	attrs, err := s.Attributes(ctx, databaseID, collectionID)
	if err != nil {
		return store.Index{}, err
	}
	byKey := make(map[string]store.Attribute, len(attrs))
	for _, a := range attrs {
		byKey[a.Key] = a
	}
	for _, key := range spec.Attributes {
		if _, ok := byKey[key]; !ok {
			return store.Index{}, store.New(store.KindValidation, opCreateIndex, resource, fmt.Sprintf("attribute %q not found", key))
		}
	}
	existing, err := s.Indexes(ctx, databaseID, collectionID)
	if err != nil {
		return store.Index{}, err
	}
	idx := store.IndexFromSpec(spec)
	pk, sk := indexKey(databaseID, collectionID, spec.Key)
	if err := s.putCatalog(ctx, opCreateIndex, resource, pk, sk, idx, len(existing)); err != nil {
		return store.Index{}, err
	}
	if spec.Kind == schema.IndexFulltext || len(spec.Attributes) != 1 {
		return idx, nil
	}
	keyType, ok := gsiKeyType(byKey[spec.Attributes[0]])
	if !ok {
		return idx, nil
	}
	table := s.TableName(databaseID, collectionID)
	name := gsiName(spec.Key)
	_, err = s.dynamo.UpdateTable(ctx, &dynamodb.UpdateTableInput{
		TableName: aws.String(table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(spec.Attributes[0]), AttributeType: keyType},
		},
		GlobalSecondaryIndexUpdates: []types.GlobalSecondaryIndexUpdate{{
			Create: &types.CreateGlobalSecondaryIndexAction{
				IndexName: aws.String(name),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String(spec.Attributes[0]), KeyType: types.KeyTypeHash},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeKeysOnly},
			},
		}},
	})
	if err != nil {
		s.deleteCatalog(ctx, pk, sk)
		return store.Index{}, classify(opCreateIndex, resource, err)
	}
	if err := s.waitActive(ctx, opCreateIndex, table, name); err != nil {
		return store.Index{}, err
	}
	s.logger.Debug("secondary index active", zap.String("table", table), zap.String("index", name))
	return idx, nil
}

// CreateBucket records the bucket and creates the S3 bucket behind it. A
// bucket this account already owns is adopted.
func (s *Store) CreateBucket(ctx context.Context, spec schema.Bucket) (store.Bucket, error) {
	bucket := store.BucketFromSpec(spec)
	pk, sk := bucketKey(spec.ID)
	if err := s.putCatalog(ctx, opCreateBucket, spec.ID, pk, sk, bucket, 0); err != nil {
		return store.Bucket{}, err
	}
	name := s.BucketName(spec.ID)
	input := &s3.CreateBucketInput{Bucket: aws.String(name)}
	if region := s.region(); region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(region),
		}
	}
	_, err := s.s3.CreateBucket(ctx, input)
	if err != nil && errorCode(err) != "BucketAlreadyOwnedByYou" {
		s.deleteCatalog(ctx, pk, sk)
		return store.Bucket{}, classify(opCreateBucket, spec.ID, err)
	}
	if spec.Encryption {
		_, err := s.s3.PutBucketEncryption(ctx, &s3.PutBucketEncryptionInput{
			Bucket: aws.String(name),
			ServerSideEncryptionConfiguration: &s3types.ServerSideEncryptionConfiguration{
				Rules: []s3types.ServerSideEncryptionRule{{
					ApplyServerSideEncryptionByDefault: &s3types.ServerSideEncryptionByDefault{
						SSEAlgorithm: s3types.ServerSideEncryptionAes256,
					},
				}},
			},
		})
		if err != nil {
			return store.Bucket{}, classify(opCreateBucket, spec.ID, err)
		}
	}
	s.logger.Debug("bucket ready", zap.String("bucket", name))
	return bucket, nil
}

func (s *Store) GetBucket(ctx context.Context, id string) (store.Bucket, error) {
	var b store.Bucket
	pk, sk := bucketKey(id)
	if err := s.getCatalog(ctx, opGetBucket, id, pk, sk, &b); err != nil {
		return store.Bucket{}, err
	}
	return b, nil
}

func (s *Store) region() string {
	if s.cfg.Region != "" {
		return s.cfg.Region
	}
	return defaultAWSRegion
}
