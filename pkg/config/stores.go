package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/dittodav/internal/logger"
	"github.com/marmos91/dittodav/pkg/paginate"
	"github.com/marmos91/dittodav/pkg/paginate/badger"
	"github.com/marmos91/dittodav/pkg/paginate/memory"
	s3store "github.com/marmos91/dittodav/pkg/paginate/s3"
	"github.com/marmos91/dittodav/pkg/paginate/sqlstore"
)

// s3Options is the S3 backend section as written in the config file.
type s3Options struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region" validate:"required"`
	Bucket          string `mapstructure:"bucket" validate:"required"`
	AccessKeyID     string `mapstructure:"access_key_id" validate:"required_with=SecretAccessKey"`
	SecretAccessKey string `mapstructure:"secret_access_key" validate:"required_with=AccessKeyID"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	MaxAttempts     int    `mapstructure:"max_attempts" validate:"omitempty,gte=1"`
}

// memoryOptions is accepted for symmetry; the memory backend has no settings.
type memoryOptions struct{}

// decodeStoreOptions decodes and validates the section of the selected
// backend. It returns one of memoryOptions, badger.Config,
// sqlstore.Config or s3Options.
func decodeStoreOptions(cfg *StoreConfig) (any, error) {
	var (
		section map[string]any
		target  any
	)
	switch cfg.Type {
	case "memory":
		section, target = cfg.Memory, &memoryOptions{}
	case "badger":
		section, target = cfg.Badger, &badger.Config{}
	case "sqlstore":
		section, target = cfg.SQL, &sqlstore.Config{}
	case "s3":
		section, target = cfg.S3, &s3Options{}
	default:
		return nil, fmt.Errorf("unknown store type: %q", cfg.Type)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           target,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(section); err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", cfg.Type, err)
	}
	if err := validate.Struct(target); err != nil {
		return nil, formatValidationError(err)
	}

	switch t := target.(type) {
	case *memoryOptions:
		return *t, nil
	case *badger.Config:
		return *t, nil
	case *sqlstore.Config:
		return *t, nil
	case *s3Options:
		return *t, nil
	}
	return nil, fmt.Errorf("unknown store type: %q", cfg.Type)
}

// CreateStore creates the pagination store selected by cfg.Store.Type.
//
// Supported types:
//   - "memory": pkg/paginate/memory (ephemeral)
//   - "badger": pkg/paginate/badger (BadgerDB, persistent)
//   - "sqlstore": pkg/paginate/sqlstore (SQLite or PostgreSQL through bun)
//   - "s3": pkg/paginate/s3 (Amazon S3 or compatible storage)
func CreateStore(ctx context.Context, cfg *PaginateConfig) (paginate.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	options, err := decodeStoreOptions(&cfg.Store)
	if err != nil {
		return nil, err
	}

	opts := paginate.Options{TTL: cfg.TTL}

	if _, ok := options.(memoryOptions); ok {
		return memory.New(opts), nil
	}

	codec, err := paginate.NewCodec(cfg.Codec)
	if err != nil {
		return nil, err
	}

	switch o := options.(type) {
	case badger.Config:
		store, err := badger.New(ctx, o, codec, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger database: %w", err)
		}
		return store, nil

	case sqlstore.Config:
		store, err := sqlstore.New(ctx, o, codec, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s database: %w", o.Driver, err)
		}
		return store, nil

	case s3Options:
		return createS3Store(ctx, o, codec, opts)
	}

	return nil, fmt.Errorf("unknown store type: %q", cfg.Store.Type)
}

func createS3Store(ctx context.Context, o s3Options, codec paginate.Codec, opts paginate.Options) (paginate.Store, error) {
	client, err := newS3Client(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	store, err := s3store.New(ctx, s3store.Config{
		Client:    client,
		Bucket:    o.Bucket,
		KeyPrefix: o.KeyPrefix,
	}, codec, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 store: %w", err)
	}

	logger.Info("S3 pagination store initialized: bucket=%s, region=%s, prefix=%s",
		o.Bucket, o.Region, o.KeyPrefix)
	return store, nil
}

// s3MaxAttempts is the number of tries per S3 request. Pagination store
// calls fail fast by default: a failed Store degrades to the first page and a
// failed Get falls through to a fresh listing.
func s3MaxAttempts(o s3Options) int {
	if o.MaxAttempts > 0 {
		return o.MaxAttempts
	}
	return 1
}

// newS3Client builds an S3 client from the backend section.
//
// Static credentials are used when both keys are set, otherwise the default
// AWS credential chain. A custom endpoint (MinIO, Localstack) implies
// path-style addressing.
func newS3Client(ctx context.Context, o s3Options) (*s3.Client, error) {
	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(o.Region),
	}

	if o.AccessKeyID != "" && o.SecretAccessKey != "" {
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKeyID, o.SecretAccessKey, ""),
		))
	}

	maxAttempts := s3MaxAttempts(o)
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(so *retry.StandardOptions) {
			so.MaxAttempts = maxAttempts
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(so *s3.Options) {
		if o.Endpoint != "" {
			so.BaseEndpoint = aws.String(o.Endpoint)
			so.UsePathStyle = true
		}
		if o.ForcePathStyle {
			so.UsePathStyle = true
		}
	}), nil
}
