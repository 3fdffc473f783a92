package importer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Source is where a legacy dump lives. Names are slash separated and
// relative to the dump root.
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// List returns the sorted names of the files directly under dir.
	List(ctx context.Context, dir string) ([]string, error)
}

// DirSource reads a dump unpacked on local disk.
type DirSource struct {
	Root string
}

func (d DirSource) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(d.Root, filepath.FromSlash(name)))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

func (d DirSource) List(_ context.Context, dir string) ([]string, error) {
	items, err := os.ReadDir(filepath.Join(d.Root, filepath.FromSlash(dir)))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		if item.IsDir() {
			continue
		}
		names = append(names, path.Join(dir, item.Name()))
	}
	sort.Strings(names)
	return names, nil
}

// BucketSource reads a dump stored in an S3 compatible bucket.
type BucketSource struct {
	client *minio.Client
	bucket string
	prefix string
}

type BucketConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Prefix    string
}

func NewBucketSource(cfg BucketConfig) (*BucketSource, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket source needs an endpoint and a bucket")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &BucketSource{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

func (b *BucketSource) key(name string) string {
	if b.prefix == "" {
		return name
	}
	return b.prefix + "/" + name
}

func (b *BucketSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, b.key(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", name, err)
	}
	// GetObject is lazy; Stat surfaces a missing key here rather than on
	// the first read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, fmt.Errorf("stat object %s: %w", name, err)
	}
	return obj, nil
}

func (b *BucketSource) List(ctx context.Context, dir string) ([]string, error) {
	prefix := b.key(dir) + "/"
	var names []string
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects %s: %w", prefix, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		names = append(names, path.Join(dir, strings.TrimPrefix(obj.Key, prefix)))
	}
	sort.Strings(names)
	return names, nil
}
