package etl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/BartekS5/nyc-taxi-etl/internal/config"
	"github.com/BartekS5/nyc-taxi-etl/pkg/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// NewSource builds the partition source selected by cfg.Type. Sources that
// hold clients also implement io.Closer.
func NewSource(ctx context.Context, cfg config.SourceConfig) (Source, error) {
	switch cfg.Type {
	case "http":
		return &HTTPSource{BaseURL: cfg.BaseURL, Client: &http.Client{Timeout: cfg.Timeout}}, nil
	case "file":
		return &FileSource{Dir: cfg.Dir}, nil
	case "s3":
		return NewS3Source(ctx, cfg)
	case "gcs":
		return NewGCSSource(ctx, cfg)
	default:
		return nil, models.Errorf(models.KindConfigError, "unsupported source type %q", cfg.Type)
	}
}

// HTTPSource downloads objects from BaseURL/name, e.g. the TLC CloudFront
// distribution.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

func (s *HTTPSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	url := s.BaseURL + "/" + name
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, models.NewError(models.KindConfigError, fmt.Errorf("building request for %s: %w", url, err))
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, models.NewError(models.KindTransientIO, fmt.Errorf("GET %s: %w", url, err))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp.Body, nil
	// CloudFront answers 403 for keys missing from the bucket behind it.
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, models.Errorf(models.KindNotFound, "GET %s: %s", url, resp.Status)
	default:
		resp.Body.Close()
		return nil, models.Errorf(models.KindTransientIO, "GET %s: %s", url, resp.Status)
	}
}

// FileSource reads objects from a local directory.
type FileSource struct {
	Dir string
}

func (s *FileSource) Open(_ context.Context, name string) (io.ReadCloser, error) {
	p := filepath.Join(s.Dir, name)
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, models.Errorf(models.KindNotFound, "open %s: %v", p, err)
		}
		return nil, models.NewError(models.KindTransientIO, fmt.Errorf("open %s: %w", p, err))
	}
	return f, nil
}

// S3API is the subset of the S3 client used by S3Source.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type S3Source struct {
	Client S3API
	Bucket string
	Prefix string
}

func NewS3Source(ctx context.Context, cfg config.SourceConfig) (*S3Source, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryMaxAttempts(1),
	}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, models.NewError(models.KindConfigError, fmt.Errorf("failed to load AWS config: %w", err))
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Source{Client: client, Bucket: cfg.Bucket, Prefix: cfg.Prefix}, nil
}

func (s *S3Source) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key := path.Join(s.Prefix, name)
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		var respErr *awshttp.ResponseError
		if errors.As(err, &nsk) || (errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound) {
			return nil, models.Errorf(models.KindNotFound, "s3://%s/%s: %v", s.Bucket, key, err)
		}
		return nil, models.NewError(models.KindTransientIO, fmt.Errorf("s3://%s/%s: %w", s.Bucket, key, err))
	}
	return out.Body, nil
}

type GCSSource struct {
	Client *storage.Client
	Bucket string
	Prefix string
}

func NewGCSSource(ctx context.Context, cfg config.SourceConfig) (*GCSSource, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, models.NewError(models.KindConfigError, fmt.Errorf("create GCS client: %w", err))
	}
	return &GCSSource{Client: client, Bucket: cfg.Bucket, Prefix: cfg.Prefix}, nil
}

func (s *GCSSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	object := path.Join(s.Prefix, name)
	r, err := s.Client.Bucket(s.Bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, classifyGCSError(err, fmt.Sprintf("gs://%s/%s", s.Bucket, object))
	}
	return r, nil
}

func (s *GCSSource) Close() error {
	return s.Client.Close()
}

func classifyGCSError(err error, uri string) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return models.Errorf(models.KindNotFound, "%s: %v", uri, err)
	}
	return models.NewError(models.KindTransientIO, fmt.Errorf("%s: %w", uri, err))
}
