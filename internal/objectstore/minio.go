// Package objectstore archives bundles in an S3-compatible bucket.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
	"stealthcompany.com/fhirrecord/internal/archive"
	"stealthcompany.com/fhirrecord/internal/jsonpath"
	"stealthcompany.com/fhirrecord/internal/metrics"
)

const contentType = "application/fhir+json"

// Options configures the connection to the object store
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Prefix    string
}

// MinioSink stores each bundle as the object <Prefix><name>.json
type MinioSink struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioSink connects to the endpoint and checks that the bucket exists
func NewMinioSink(ctx context.Context, opts Options) (*MinioSink, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", opts.Bucket)
	}

	log.Info().Str("endpoint", opts.Endpoint).Str("bucket", opts.Bucket).Msg("Successfully connected to minio")
	return &MinioSink{client: client, bucket: opts.Bucket, prefix: opts.Prefix}, nil
}

// ObjectName returns the key a bundle named name is stored under
func (s *MinioSink) ObjectName(name string) string {
	return s.prefix + archive.FileName(name)
}

// Store uploads the bundle, replacing an earlier object of the same name
func (s *MinioSink) Store(ctx context.Context, name string, bundle jsonpath.Node) error {
	data, err := bundle.MarshalIndent("", archive.Indent)
	if err != nil {
		metrics.RecordArchiveWrite("minio", "error")
		return fmt.Errorf("failed to encode bundle %s: %w", name, err)
	}

	_, err = s.client.PutObject(ctx, s.bucket, s.ObjectName(name), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		metrics.RecordArchiveWrite("minio", "error")
		return fmt.Errorf("failed to put object %s in bucket %s: %w", s.ObjectName(name), s.bucket, err)
	}

	metrics.RecordArchiveWrite("minio", "success")
	log.Debug().Str("object", s.ObjectName(name)).Msg("Bundle stored in object store")
	return nil
}

// Load downloads a stored bundle
func (s *MinioSink) Load(ctx context.Context, name string) (jsonpath.Node, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.ObjectName(name), minio.GetObjectOptions{})
	if err != nil {
		return jsonpath.Node{}, fmt.Errorf("failed to get object %s: %w", s.ObjectName(name), err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return jsonpath.Node{}, fmt.Errorf("bundle %s: %w", name, archive.ErrNotFound)
		}
		return jsonpath.Node{}, fmt.Errorf("failed to read object %s: %w", s.ObjectName(name), err)
	}
	return jsonpath.Parse(data)
}
