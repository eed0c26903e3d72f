package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/FolderDrop/internal/config"
)

// MinioGateway wraps MinIO/S3 interactions for member objects and archives.
type MinioGateway struct {
	client *minio.Client
	bucket string
	region string
}

// NewMinio creates a MinIO client from the Config.
func NewMinio(cfg *config.Config) (*MinioGateway, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &MinioGateway{client: client, bucket: cfg.S3Bucket, region: cfg.S3Region}, nil
}

// EnsureBucket makes sure the bucket exists before use.
func (g *MinioGateway) EnsureBucket(ctx context.Context) error {
	exists, err := g.client.BucketExists(ctx, g.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", g.bucket, err)
	}
	if !exists {
		if err := g.client.MakeBucket(ctx, g.bucket, minio.MakeBucketOptions{Region: g.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", g.bucket, err)
		}
	}
	return nil
}

func (g *MinioGateway) Exists(ctx context.Context, path string) (bool, error) {
	_, err := g.client.StatObject(ctx, g.bucket, path, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat object %s: %w", path, err)
}

func (g *MinioGateway) SignedGetURL(ctx context.Context, path string, expiry time.Duration, disposition string) (string, error) {
	params := url.Values{}
	if disposition != "" {
		params.Set("response-content-disposition", disposition)
	}
	u, err := g.client.PresignedGetObject(ctx, g.bucket, path, expiry, params)
	if err != nil {
		return "", fmt.Errorf("presign get %s: %w", path, err)
	}
	return u.String(), nil
}

func (g *MinioGateway) SignedPutURL(ctx context.Context, path string, expiry time.Duration) (string, error) {
	u, err := g.client.PresignedPutObject(ctx, g.bucket, path, expiry)
	if err != nil {
		return "", fmt.Errorf("presign put %s: %w", path, err)
	}
	return u.String(), nil
}

func (g *MinioGateway) Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := g.client.PutObject(ctx, g.bucket, path, r, size, opts); err != nil {
		return fmt.Errorf("put object %s: %w", path, err)
	}
	return nil
}

func (g *MinioGateway) Delete(ctx context.Context, path string) error {
	err := g.client.RemoveObject(ctx, g.bucket, path, minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("remove object %s: %w", path, err)
	}
	return nil
}

// DeleteMany removes objects with S3 multi-object delete.
func (g *MinioGateway) DeleteMany(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	objectsCh := make(chan minio.ObjectInfo, len(paths))
	for _, p := range paths {
		objectsCh <- minio.ObjectInfo{Key: p}
	}
	close(objectsCh)
	var errs []error
	for rerr := range g.client.RemoveObjects(ctx, g.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if rerr.Err != nil && !isNotFound(rerr.Err) {
			errs = append(errs, fmt.Errorf("remove object %s: %w", rerr.ObjectName, rerr.Err))
		}
	}
	return errors.Join(errs...)
}

func (g *MinioGateway) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range g.client.ListObjects(ctx, g.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NotFound" || resp.StatusCode == http.StatusNotFound
}
