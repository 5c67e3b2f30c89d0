package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds the settings for an S3-compatible backend.
type S3Config struct {
	Endpoint  string // empty for real AWS
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// S3Store stores photos in an S3-compatible bucket. Account roots map to key
// prefixes. Photos are small enough that Save buffers the stream to obtain a
// content length for PutObject.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store creates a new S3 storage backend.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	// Custom resolver for S3-compatible endpoints (MinIO, Spaces, ...).
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if cfg.Endpoint != "" {
			return aws.Endpoint{
				PartitionID:   "aws",
				URL:           cfg.Endpoint,
				SigningRegion: cfg.Region,
			}, nil
		}
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})

	sdkCfg, err := awsCfg.LoadDefaultConfig(ctx,
		awsCfg.WithRegion(cfg.Region),
		awsCfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsCfg.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config: %w", err)
	}

	client := s3.NewFromConfig(sdkCfg, func(o *s3.Options) {
		// Path-style addressing is required by most S3-compatible services.
		o.UsePathStyle = true
	})

	slog.Info("s3 storage initialized", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket)
	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

// EnsureRoot is a no-op: prefixes need no creation in object storage.
func (s *S3Store) EnsureRoot(root string) error {
	return nil
}

// Save uploads data under the account root prefix and returns the byte count.
func (s *S3Store) Save(root, name string, data io.Reader) (int64, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, data)
	if err != nil {
		return 0, fmt.Errorf("failed to read photo data: %w", err)
	}

	_, err = s.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(root, name)),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(n),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to put object %s: %w", s.key(root, name), err)
	}
	return n, nil
}

// Open returns a reader for a stored object.
func (s *S3Store) Open(root, name string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(root, name)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", s.key(root, name), err)
	}
	return out.Body, nil
}

// List returns the names of all objects under an account root prefix.
func (s *S3Store) List(root string) ([]string, error) {
	prefix := root + "/"
	var names []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(context.Background())
		if err != nil {
			return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			names = append(names, strings.TrimPrefix(aws.ToString(obj.Key), prefix))
		}
	}
	return names, nil
}

// Delete removes a stored object.
func (s *S3Store) Delete(root, name string) error {
	_, err := s.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(root, name)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", s.key(root, name), err)
	}
	return nil
}

// RemoveRoot deletes every object under the account root prefix.
func (s *S3Store) RemoveRoot(root string) error {
	names, err := s.List(root)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := s.Delete(root, name); err != nil {
			return err
		}
	}
	return nil
}

func (s *S3Store) key(root, name string) string {
	return root + "/" + name
}
