package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"patchdb/internal/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Config configures the S3 backend.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional, for S3-compatible stores such as MinIO
	AccessKeyID     string // optional, falls back to the default credential chain
	SecretAccessKey string
	UsePathStyle    bool
	PresignExpiry   time.Duration
}

// S3Store stores objects in an S3 bucket.
type S3Store struct {
	client   *s3.Client
	presign  *s3.PresignClient
	uploader *manager.Uploader
	bucket   string
	expiry   time.Duration
}

// NewS3Store builds an S3Store from cfg.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newS3StoreFromClient(client, cfg.Bucket, cfg.PresignExpiry), nil
}

func newS3StoreFromClient(client *s3.Client, bucket string, expiry time.Duration) *S3Store {
	if expiry <= 0 {
		expiry = DefaultPresignExpiry
	}
	return &S3Store{
		client:   client,
		presign:  s3.NewPresignClient(client),
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		expiry:   expiry,
	}
}

func (s *S3Store) PresignUpload(ctx context.Context, key, contentType string) (*PresignedURL, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	req, err := s.presign.PresignPutObject(ctx, input, s3.WithPresignExpires(s.expiry))
	s.observe("presign_put", err)
	if err != nil {
		return nil, fmt.Errorf("presign put %q: %w", key, err)
	}
	return &PresignedURL{
		URL:       req.URL,
		Method:    req.Method,
		Key:       key,
		Headers:   flattenHeader(req.SignedHeader),
		ExpiresAt: time.Now().Add(s.expiry),
	}, nil
}

func (s *S3Store) PresignDownload(ctx context.Context, key string) (*PresignedURL, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expiry))
	s.observe("presign_get", err)
	if err != nil {
		return nil, fmt.Errorf("presign get %q: %w", key, err)
	}
	return &PresignedURL{
		URL:       req.URL,
		Method:    req.Method,
		Key:       key,
		ExpiresAt: time.Now().Add(s.expiry),
	}, nil
}

func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	ctx, span := observability.GetTraceLayer().TraceExternalCall(ctx, "s3", "HeadObject")
	defer span.End()

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			s.observe("head", nil)
			return false, nil
		}
		s.observe("head", err)
		span.RecordError(err)
		return false, fmt.Errorf("head %q: %w", key, err)
	}
	s.observe("head", nil)
	return true, nil
}

func (s *S3Store) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx, span := observability.GetTraceLayer().TraceExternalCall(ctx, "s3", "GetObject")
	defer span.End()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			s.observe("get", nil)
			return nil, ErrNotFound
		}
		s.observe("get", err)
		span.RecordError(err)
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	s.observe("get", nil)
	return out.Body, nil
}

func (s *S3Store) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	ctx, span := observability.GetTraceLayer().TraceExternalCall(ctx, "s3", "Upload")
	defer span.End()

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	_, err := s.uploader.Upload(ctx, input)
	s.observe("upload", err)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("upload %q: %w", key, err)
	}
	return nil
}

func (s *S3Store) observe(operation string, err error) {
	observability.StorageRequests.WithLabelValues("s3", operation, observability.Outcome(err)).Inc()
}

func isS3NotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

func flattenHeader(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 && k != "Host" {
			out[k] = v[0]
		}
	}
	return out
}
