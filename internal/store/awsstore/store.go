// Where: cli/internal/store/awsstore/store.go
// What: DynamoDB + S3 implementation of the store contract.
// Why: Run the restaurant schema on AWS or its local emulators.
package awsstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/poruru/restaurant-baas/cli/internal/logging"
	"github.com/poruru/restaurant-baas/cli/internal/store"
)

// DynamoDBAPI is the subset of the DynamoDB client used by the store.
type DynamoDBAPI interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	UpdateTable(ctx context.Context, params *dynamodb.UpdateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTableOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// S3API is the subset of the S3 client used by the store.
type S3API interface {
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutBucketEncryption(ctx context.Context, params *s3.PutBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.PutBucketEncryptionOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store keeps schema metadata in a catalog table. Each collection is its own
// table keyed by "$id" and each bucket a real S3 bucket.
type Store struct {
	dynamo DynamoDBAPI
	s3     S3API
	cfg    Config
	logger *zap.Logger

	catalogMu    sync.Mutex
	catalogReady bool

	seqMu   sync.Mutex
	lastSeq int64

	// Now and NewID are replaceable for deterministic tests.
	Now   func() time.Time
	NewID func() string
}

// New builds SDK clients through factory (SDKFactory when nil).
func New(ctx context.Context, cfg Config, factory ClientFactory) (*Store, error) {
	if factory == nil {
		factory = SDKFactory{}
	}
	dynamo, err := factory.DynamoDB(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create dynamodb client: %w", err)
	}
	s3Client, err := factory.S3(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return NewWithClients(dynamo, s3Client, cfg), nil
}

// NewWithClients wires already constructed clients.
func NewWithClients(dynamo DynamoDBAPI, s3Client S3API, cfg Config) *Store {
	if cfg.CatalogTable == "" {
		cfg.CatalogTable = DefaultCatalogTable
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 2 * time.Minute
	}
	return &Store{
		dynamo: dynamo,
		s3:     s3Client,
		cfg:    cfg,
		logger: logging.OrNop(cfg.Logger),
		Now:    time.Now,
		NewID:  func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
}

func (s *Store) newID(id string) string {
	if id == "" || id == store.UniqueID {
		return s.NewID()
	}
	return id
}

var tableNameUnsafe = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// TableName is the DynamoDB table holding a collection's documents.
func (s *Store) TableName(databaseID, collectionID string) string {
	return tableNameUnsafe.ReplaceAllString(s.cfg.TablePrefix+databaseID+"."+collectionID, "_")
}

// BucketName is the S3 bucket backing a storage bucket.
func (s *Store) BucketName(bucketID string) string {
	return strings.ToLower(s.cfg.BucketPrefix + bucketID)
}

// classify maps AWS API error codes to store kinds.
func classify(op, resource string, err error) error {
	if err == nil {
		return nil
	}
	var se *store.Error
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return store.Wrap(store.KindTransport, op, resource, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		kind := store.KindTransport
		switch apiErr.ErrorCode() {
		case "ConditionalCheckFailedException", "ResourceInUseException", "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
			kind = store.KindConflict
		case "ResourceNotFoundException", "NoSuchBucket", "NoSuchKey", "NotFound":
			kind = store.KindNotFound
		case "ValidationException", "InvalidBucketName", "InvalidArgument":
			kind = store.KindValidation
		case "AccessDenied", "AccessDeniedException", "UnrecognizedClientException", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			kind = store.KindPermission
		}
		return &store.Error{Kind: kind, Op: op, Resource: resource, Message: apiErr.ErrorMessage(), Err: err}
	}
	return store.Wrap(store.KindTransport, op, resource, err)
}

func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// ensureCatalog creates the catalog table on first use.
func (s *Store) ensureCatalog(ctx context.Context) error {
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()
	if s.catalogReady {
		return nil
	}
	table := s.cfg.CatalogTable
	_, err := s.dynamo.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
	switch {
	case err == nil:
	case errorCode(err) == "ResourceNotFoundException":
		s.logger.Debug("creating catalog table", zap.String("table", table))
		_, err = s.dynamo.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: aws.String(table),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(keyPK), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String(keySK), KeyType: types.KeyTypeRange},
			},
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String(keyPK), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: aws.String(keySK), AttributeType: types.ScalarAttributeTypeS},
			},
			BillingMode: types.BillingModePayPerRequest,
		})
		if err != nil && errorCode(err) != "ResourceInUseException" {
			return classify("create catalog", table, err)
		}
		if err := s.waitActive(ctx, "create catalog", table, ""); err != nil {
			return err
		}
	default:
		return classify("describe catalog", table, err)
	}
	s.catalogReady = true
	return nil
}

// waitActive polls DescribeTable until the table, and the named index when
// given, report ACTIVE.
func (s *Store) waitActive(ctx context.Context, op, table, index string) error {
	pollCtx, cancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
	defer cancel()
	limiter := rate.NewLimiter(rate.Every(s.cfg.PollInterval), 1)
	for {
		if err := limiter.Wait(pollCtx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return store.Wrap(store.KindTransport, op, table, ctxErr)
			}
			return store.New(store.KindTransport, op, table, fmt.Sprintf("not active after %s", s.cfg.PollTimeout))
		}
		out, err := s.dynamo.DescribeTable(pollCtx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
		if err != nil {
			if errorCode(err) == "ResourceNotFoundException" {
				continue
			}
			return classify(op, table, err)
		}
		if out.Table == nil || out.Table.TableStatus != types.TableStatusActive {
			continue
		}
		if index == "" {
			return nil
		}
		for _, gsi := range out.Table.GlobalSecondaryIndexes {
			if aws.ToString(gsi.IndexName) == index && gsi.IndexStatus == types.IndexStatusActive {
				return nil
			}
		}
	}
}

var (
	_ store.SchemaStore    = (*Store)(nil)
	_ store.DatabaseLister = (*Store)(nil)
	_ store.DocumentStore  = (*Store)(nil)
	_ store.FileStore      = (*Store)(nil)
)
