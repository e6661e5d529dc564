// Where: cli/internal/store/awsstore/factory.go
// What: AWS SDK configuration and endpoint discovery for DynamoDB and S3.
// Why: Encapsulate SDK configuration for cloud accounts and local emulators.
package awsstore

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/poruru/restaurant-baas/cli/internal/constants"
)

const (
	defaultAWSRegion    = "ap-northeast-1"
	DefaultCatalogTable = "rbaas-catalog"

	defaultDynamoPort = 8000
	defaultS3Port     = 9000
)

// Config selects the AWS account or local emulators backing the store.
// Empty endpoints use the regular AWS endpoints unless ComposeProject asks
// for discovery.
type Config struct {
	Region         string
	DynamoEndpoint string
	S3Endpoint     string
	AccessKey      string
	SecretKey      string
	// TablePrefix is prepended to every collection table name.
	TablePrefix  string
	CatalogTable string
	// BucketPrefix is prepended to every S3 bucket name.
	BucketPrefix string
	// ComposeProject enables published-port discovery of local emulators.
	ComposeProject string
	PollInterval   time.Duration
	PollTimeout    time.Duration
	Logger         *zap.Logger
}

// ClientFactory builds the SDK clients; tests replace it with fakes.
type ClientFactory interface {
	DynamoDB(ctx context.Context, cfg Config) (DynamoDBAPI, error)
	S3(ctx context.Context, cfg Config) (S3API, error)
}

// SDKFactory builds real aws-sdk-go-v2 clients.
type SDKFactory struct{}

func (SDKFactory) DynamoDB(ctx context.Context, cfg Config) (DynamoDBAPI, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return dynamodb.NewFromConfig(awsCfg, func(options *dynamodb.Options) {
		if cfg.DynamoEndpoint != "" {
			options.BaseEndpoint = aws.String(cfg.DynamoEndpoint)
		}
	}), nil
}

func (SDKFactory) S3(ctx context.Context, cfg Config) (S3API, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg, func(options *s3.Options) {
		if cfg.S3Endpoint != "" {
			options.BaseEndpoint = aws.String(cfg.S3Endpoint)
			options.UsePathStyle = true
		}
	}), nil
}

func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	region := cfg.Region
	if region == "" {
		region = os.Getenv(constants.EnvAWSRegion)
	}
	if region == "" {
		region = defaultAWSRegion
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		opts = append(opts, config.WithCredentialsProvider(creds))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// ResolveEndpoints fills empty endpoints from RBAAS_PORT_DYNAMODB /
// RBAAS_PORT_S3 or the compose project's published ports. Local endpoints
// default to the emulator credentials when none are configured.
func ResolveEndpoints(ctx context.Context, cfg Config, resolver PortResolver) Config {
	if cfg.ComposeProject == "" && os.Getenv(constants.EnvPortDynamoDB) == "" && os.Getenv(constants.EnvPortS3) == "" {
		return cfg
	}
	if cfg.DynamoEndpoint == "" {
		request := PortRequest{Project: cfg.ComposeProject, Service: "dynamodb", ContainerPort: defaultDynamoPort}
		if port, ok := resolvePort(ctx, constants.EnvPortDynamoDB, defaultDynamoPort, request, resolver); ok {
			cfg.DynamoEndpoint = fmt.Sprintf("http://localhost:%d", port)
		}
	}
	if cfg.S3Endpoint == "" {
		request := PortRequest{Project: cfg.ComposeProject, Service: "s3", ContainerPort: defaultS3Port}
		if port, ok := resolvePort(ctx, constants.EnvPortS3, defaultS3Port, request, resolver); ok {
			cfg.S3Endpoint = fmt.Sprintf("http://localhost:%d", port)
		}
	}
	if cfg.AccessKey == "" && cfg.SecretKey == "" && isLocalEndpoint(cfg.DynamoEndpoint) {
		cfg.AccessKey = envOr(constants.EnvEmulatorAccessKey, "dummy")
		cfg.SecretKey = envOr(constants.EnvEmulatorSecretKey, "dummy")
	}
	return cfg
}

func isLocalEndpoint(endpoint string) bool {
	return strings.Contains(endpoint, "://localhost") || strings.Contains(endpoint, "://127.0.0.1")
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
