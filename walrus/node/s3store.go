package node

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/xerrors"
)

// S3Config is the configuration of an S3 compatible object storage.
type S3Config struct {
	Region    string `yaml:"region" env:"VAULT_S3_REGION"`
	Endpoint  string `yaml:"endpoint" env:"VAULT_S3_ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"VAULT_S3_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"VAULT_S3_SECRET_KEY"`
	Bucket    string `yaml:"bucket" env:"VAULT_S3_BUCKET"`
	Prefix    string `yaml:"prefix" env:"VAULT_S3_PREFIX"`
}

// S3API is the subset of the S3 client used by the store.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

var loadAWSConfig = config.LoadDefaultConfig

// NewS3Client returns a client of the object storage. Static credentials are
// used when an access key is given, otherwise the default chain applies.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}

	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := loadAWSConfig(ctx, opts...)
	if err != nil {
		return nil, xerrors.Errorf("failed to load config: %v", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return client, nil
}

// S3Store is a store of blobs in an object storage bucket. Each blob is kept
// next to a JSON record object.
//
// - implements node.Store
type S3Store struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Store returns a store writing in the bucket under the prefix.
func NewS3Store(client S3API, bucket, prefix string) S3Store {
	return S3Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

// Put implements node.Store. Concurrent uploads of the same blob may both be
// reported as created.
func (s S3Store) Put(ctx context.Context, record Record, data []byte) (Record, bool, error) {
	raw, err := s.read(ctx, s.recordKey(record.BlobID))
	if err == nil {
		var existing Record

		err = json.Unmarshal(raw, &existing)
		if err != nil {
			return Record{}, false, xerrors.Errorf("failed to decode record: %v", err)
		}

		return existing, false, nil
	}

	if !xerrors.Is(err, ErrNotFound) {
		return Record{}, false, xerrors.Errorf("failed to read record: %v", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.blobKey(record.BlobID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return Record{}, false, xerrors.Errorf("failed to put blob: %v", err)
	}

	raw, err = json.Marshal(record)
	if err != nil {
		return Record{}, false, xerrors.Errorf("failed to encode record: %v", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.recordKey(record.BlobID)),
		Body:        bytes.NewReader(raw),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return Record{}, false, xerrors.Errorf("failed to put record: %v", err)
	}

	return record, true, nil
}

// Get implements node.Store.
func (s S3Store) Get(ctx context.Context, blobID string) ([]byte, error) {
	data, err := s.read(ctx, s.blobKey(blobID))
	if err != nil {
		return nil, xerrors.Errorf("blob '%s': %w", blobID, err)
	}

	return data, nil
}

func (s S3Store) read(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})

	var noKey *types.NoSuchKey
	if xerrors.As(err, &noKey) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, xerrors.Errorf("failed to get object: %v", err)
	}

	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, xerrors.Errorf("failed to read object: %v", err)
	}

	return data, nil
}

func (s S3Store) blobKey(id string) string {
	return path.Join(s.prefix, "blobs", id)
}

func (s S3Store) recordKey(id string) string {
	return path.Join(s.prefix, "records", id+".json")
}
