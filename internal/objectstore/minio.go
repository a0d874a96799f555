package objectstore

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const contentTypeNPY = "application/octet-stream"

// putter is the slice of *minio.Client the mirror needs.
type putter interface {
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Mirror uploads local files under a fixed bucket and key prefix. It is safe
// for concurrent use by multiple workers.
type Mirror struct {
	client putter
	bucket string
	prefix string
}

// NewMinIOClient builds a client for cfg.
func NewMinIOClient(cfg Config) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	}
	return minio.New(cfg.Endpoint, opts)
}

// NewMirror connects to cfg's endpoint and creates the bucket if needed.
func NewMirror(ctx context.Context, cfg Config) (*Mirror, error) {
	client, err := NewMinIOClient(cfg)
	if err != nil {
		return nil, err
	}
	if err := ensureBucket(ctx, client, cfg.Bucket, cfg.Region); err != nil {
		return nil, fmt.Errorf("ensure mirror bucket: %w", err)
	}
	return NewMirrorWithClient(client, cfg)
}

// NewMirrorWithClient wraps an existing client.
func NewMirrorWithClient(client putter, cfg Config) (*Mirror, error) {
	if client == nil {
		return nil, fmt.Errorf("minio client is required")
	}
	return &Mirror{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Key returns the object key for a file name.
func (m *Mirror) Key(name string) string {
	if m.prefix == "" {
		return name
	}
	return path.Join(m.prefix, name)
}

// Upload copies the file at localPath to the object Key(name).
func (m *Mirror) Upload(ctx context.Context, name, localPath string) error {
	if m == nil || m.client == nil {
		return fmt.Errorf("mirror not initialized")
	}
	opts := minio.PutObjectOptions{ContentType: contentTypeNPY}
	if _, err := m.client.FPutObject(ctx, m.bucket, m.Key(name), localPath, opts); err != nil {
		return fmt.Errorf("upload %s to %s/%s: %w", localPath, m.bucket, m.Key(name), err)
	}
	return nil
}

// Target describes the mirror destination for logs.
func (m *Mirror) Target() string {
	if m.prefix == "" {
		return m.bucket
	}
	return m.bucket + "/" + m.prefix
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
