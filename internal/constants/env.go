// Where: cli/internal/constants/env.go
// What: Environment variable naming constants.
// Why: Centralize environment variable names to avoid typos and inconsistencies.
package constants

// Host suffixes are joined with the brand prefix by envutil (RBAAS_<SUFFIX>).
const (
	HostSuffixConfigPath = "CONFIG_PATH"
	HostSuffixConfigHome = "CONFIG_HOME"
	HostSuffixProfile    = "PROFILE"
	HostSuffixBackend    = "BACKEND"
	HostSuffixLogLevel   = "LOG_LEVEL"
	HostSuffixSQLitePath = "SQLITE_PATH"
)

const (
	// BaaS connection, named after the variables the web front-end reads.
	EnvEndpoint   = "VITE_APPWRITE_ENDPOINT"
	EnvProjectID  = "VITE_APPWRITE_PROJECT_ID"
	EnvDatabaseID = "VITE_APPWRITE_DATABASE_ID"
	EnvAPIKey     = "APPWRITE_API_KEY"

	// AWS-compatible emulator configuration
	EnvAWSRegion          = "AWS_REGION"
	EnvDynamoDBEndpoint   = "DYNAMODB_ENDPOINT"
	EnvDynamoDBAccessKey  = "DYNAMODB_ACCESS_KEY"
	EnvDynamoDBSecretKey  = "DYNAMODB_SECRET_KEY"
	EnvS3Endpoint         = "S3_ENDPOINT"
	EnvS3AccessKey        = "S3_ACCESS_KEY"
	EnvS3SecretKey        = "S3_SECRET_KEY"
	EnvPortDynamoDB       = "RBAAS_PORT_DYNAMODB"
	EnvPortS3             = "RBAAS_PORT_S3"
	EnvEmulatorAccessKey  = "RBAAS_AWS_ACCESS_KEY"
	EnvEmulatorSecretKey  = "RBAAS_AWS_SECRET_KEY"
	EnvComposeProjectName = "COMPOSE_PROJECT_NAME"
)
