package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/soapkg/internal/util"
	"github.com/OFFIS-RIT/soapkg/pkg/common"
	"github.com/OFFIS-RIT/soapkg/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

const s3MaxTries = 3

// S3SnapshotStore keeps the encoded snapshot as one object in an S3
// compatible bucket (AWS, MinIO, SeaweedFS).
type S3SnapshotStore struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3SnapshotStoreParams configures the S3 connection. Endpoint may be
// empty for AWS; AccessKey and SecretKey may be empty to use the default
// credential chain.
type NewS3SnapshotStoreParams struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Key       string
}

// NewS3SnapshotStore creates a path-style S3 client for the given bucket.
func NewS3SnapshotStore(ctx context.Context, params NewS3SnapshotStoreParams) (*S3SnapshotStore, error) {
	if params.Bucket == "" {
		return nil, errors.New("S3 bucket is empty")
	}
	if params.Key == "" {
		return nil, errors.New("S3 snapshot key is empty")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(params.Region),
	}
	if params.Endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(params.Endpoint))
	}
	if params.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			params.AccessKey,
			params.SecretKey,
			"",
		)))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return &S3SnapshotStore{
		client: client,
		bucket: params.Bucket,
		key:    params.Key,
	}, nil
}

func (s *S3SnapshotStore) Save(ctx context.Context, snap common.GraphSnapshot) error {
	data, err := encodeBytes(snap)
	if err != nil {
		return err
	}

	err = util.RetryErrWithContext(ctx, s3MaxTries, func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:          aws.String(s.bucket),
			Key:             aws.String(s.key),
			Body:            bytes.NewReader(data),
			ContentType:     aws.String("application/json"),
			ContentEncoding: aws.String("gzip"),
		})
		if err != nil {
			logger.Warn("[Store] Snapshot upload failed", "bucket", s.bucket, "key", s.key, "err", err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upload snapshot to S3: %w", err)
	}

	logger.Debug("[Store] Snapshot uploaded", "bucket", s.bucket, "key", s.key, "bytes", len(data))
	return nil
}

func (s *S3SnapshotStore) Load(ctx context.Context) (common.GraphSnapshot, error) {
	var data []byte
	err := util.RetryErrWithContext(ctx, s3MaxTries, func(ctx context.Context) error {
		result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key),
		})
		if err != nil {
			if isNotFound(err) {
				return fmt.Errorf("%w: s3://%s/%s", ErrSnapshotNotFound, s.bucket, s.key)
			}
			return err
		}
		defer result.Body.Close()

		buf := new(bytes.Buffer)
		if _, err := buf.ReadFrom(result.Body); err != nil {
			return fmt.Errorf("failed to read snapshot object: %w", err)
		}
		data = buf.Bytes()
		return nil
	})
	if errors.Is(err, ErrSnapshotNotFound) {
		return common.GraphSnapshot{}, err
	}
	if err != nil {
		return common.GraphSnapshot{}, fmt.Errorf("failed to get snapshot from S3: %w", err)
	}

	return DecodeSnapshot(bytes.NewReader(data))
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
