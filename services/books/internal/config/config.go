package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when neither --config nor FAVBOOKS_CONFIG is set.
const DefaultPath = "config.yaml"

// Store backends.
const (
	StoreDynamoDB = "dynamodb"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Attachment backends.
const (
	AttachmentsS3    = "s3"
	AttachmentsMinio = "minio"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port           string   `yaml:"port"`
	LogLevel       string   `yaml:"logLevel"`
	LogFormat      string   `yaml:"logFormat"`
	AllowedOrigins []string `yaml:"allowedOrigins"`

	JWKSURL                string        `yaml:"jwksURL"`
	JWTIssuer              string        `yaml:"jwtIssuer"`
	JWTAudience            string        `yaml:"jwtAudience"`
	JWTLeeway              time.Duration `yaml:"jwtLeeway"`
	JWKSRefreshInterval    time.Duration `yaml:"jwksRefreshInterval"`
	JWKSMinRefetchInterval time.Duration `yaml:"jwksMinRefetchInterval"`

	Store            string `yaml:"store"`
	DynamoTable      string `yaml:"dynamoTable"`
	DynamoOwnerIndex string `yaml:"dynamoOwnerIndex"`
	DynamoEndpoint   string `yaml:"dynamoEndpoint"`
	DatabaseURL      string `yaml:"databaseURL"`

	Attachments          string        `yaml:"attachments"`
	AWSRegion            string        `yaml:"awsRegion"`
	S3Bucket             string        `yaml:"s3Bucket"`
	S3Endpoint           string        `yaml:"s3Endpoint"`
	S3UsePathStyle       bool          `yaml:"s3UsePathStyle"`
	AccessKey            string        `yaml:"accessKey"`
	SecretKey            string        `yaml:"secretKey"`
	MinioEndpoint        string        `yaml:"minioEndpoint"`
	MinioUseSSL          bool          `yaml:"minioUseSSL"`
	MinioEnsureBucket    bool          `yaml:"minioEnsureBucket"`
	AttachmentKeyPrefix  string        `yaml:"attachmentKeyPrefix"`
	UploadURLExpiry      time.Duration `yaml:"uploadURLExpiry"`
	AttachmentPublicBase string        `yaml:"attachmentPublicBaseURL"`

	RedisAddr       string        `yaml:"redisAddr"`
	RedisPassword   string        `yaml:"redisPassword"`
	RateLimit       int           `yaml:"rateLimit"`
	RateLimitWindow time.Duration `yaml:"rateLimitWindow"`
}

// ResolvePath picks the config file: the flag value, then FAVBOOKS_CONFIG,
// then DefaultPath.
func ResolvePath(flagValue string) string {
	if p := strings.TrimSpace(flagValue); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv("FAVBOOKS_CONFIG")); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads config from path (defaults to config.yaml), applies
// environment overrides and validates the result.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) error {
	strs := map[string]*string{
		"PORT":                &cfg.Port,
		"LOG_LEVEL":           &cfg.LogLevel,
		"LOG_FORMAT":          &cfg.LogFormat,
		"JWKS_URL":            &cfg.JWKSURL,
		"JWT_ISSUER":          &cfg.JWTIssuer,
		"JWT_AUDIENCE":        &cfg.JWTAudience,
		"BOOKS_STORE":         &cfg.Store,
		"BOOKS_TABLE":         &cfg.DynamoTable,
		"BOOKS_OWNER_INDEX":   &cfg.DynamoOwnerIndex,
		"DYNAMODB_ENDPOINT":   &cfg.DynamoEndpoint,
		"DATABASE_URL":        &cfg.DatabaseURL,
		"ATTACHMENTS_BACKEND": &cfg.Attachments,
		"AWS_REGION":          &cfg.AWSRegion,
		"ATTACHMENTS_BUCKET":  &cfg.S3Bucket,
		"S3_ENDPOINT":         &cfg.S3Endpoint,
		"MINIO_ENDPOINT":      &cfg.MinioEndpoint,
		"MINIO_ACCESS_KEY":    &cfg.AccessKey,
		"MINIO_SECRET_KEY":    &cfg.SecretKey,
		"REDIS_ADDR":          &cfg.RedisAddr,
		"REDIS_PASSWORD":      &cfg.RedisPassword,
	}
	for name, dst := range strs {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: MINIO_USE_SSL: %w", err)
		}
		cfg.MinioUseSSL = b
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
	durations := map[string]*time.Duration{
		"UPLOAD_URL_EXPIRY": &cfg.UploadURLExpiry,
		"RATE_LIMIT_WINDOW": &cfg.RateLimitWindow,
	}
	for name, dst := range durations {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", name, err)
			}
			*dst = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: RATE_LIMIT: %w", err)
		}
		cfg.RateLimit = n
	}
	return nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Store == "" {
		cfg.Store = StoreDynamoDB
	}
	if cfg.Store == StoreDynamoDB && cfg.DynamoOwnerIndex == "" {
		cfg.DynamoOwnerIndex = "UserIdIndex"
	}
	if cfg.Attachments == "" {
		cfg.Attachments = AttachmentsS3
	}
	if cfg.UploadURLExpiry == 0 {
		cfg.UploadURLExpiry = 300 * time.Second
	}
	if cfg.RedisAddr != "" {
		if cfg.RateLimit == 0 {
			cfg.RateLimit = 120
		}
		if cfg.RateLimitWindow == 0 {
			cfg.RateLimitWindow = time.Minute
		}
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.JWKSURL == "" {
		return errors.New("config: jwksURL is required (set in config.yaml or JWKS_URL)")
	}
	if cfg.JWTLeeway < 0 || cfg.JWKSRefreshInterval < 0 || cfg.JWKSMinRefetchInterval < 0 {
		return errors.New("config: jwt durations must not be negative")
	}
	switch cfg.Store {
	case StoreDynamoDB:
		if cfg.DynamoTable == "" {
			return errors.New("config: dynamoTable is required for the dynamodb store (set in config.yaml or BOOKS_TABLE)")
		}
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required for the postgres store (set in config.yaml or DATABASE_URL)")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("config: unknown store %q (want dynamodb, postgres or memory)", cfg.Store)
	}
	if cfg.S3Bucket == "" {
		return errors.New("config: s3Bucket is required (set in config.yaml or ATTACHMENTS_BUCKET)")
	}
	switch cfg.Attachments {
	case AttachmentsS3:
	case AttachmentsMinio:
		if cfg.MinioEndpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
			return errors.New("config: minioEndpoint, accessKey and secretKey are required for the minio backend")
		}
	default:
		return fmt.Errorf("config: unknown attachments backend %q (want s3 or minio)", cfg.Attachments)
	}
	if cfg.UploadURLExpiry < 0 {
		return errors.New("config: uploadURLExpiry must not be negative")
	}
	if cfg.RedisAddr != "" && (cfg.RateLimit <= 0 || cfg.RateLimitWindow <= 0) {
		return errors.New("config: rateLimit and rateLimitWindow must be positive when redisAddr is set")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
