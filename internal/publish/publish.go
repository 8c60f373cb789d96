// Package publish uploads a built distribution to S3-compatible storage.
package publish

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pseudodojo/psdist/internal/site"
	"go.uber.org/zap"
)

// Config locates the destination bucket.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// Putter is the subset of *minio.Client used by Publisher.
type Putter interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

var _ Putter = (*minio.Client)(nil)

// Object is one file to upload.
type Object struct {
	Path string // local path
	Key  string // object key
}

// NewClient returns a minio client for cfg.
func NewClient(cfg Config) (*minio.Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return client, nil
}

func region(cfg Config) string {
	if r := strings.TrimSpace(cfg.Region); r != "" {
		return r
	}
	return "us-east-1"
}

// Objects lists what a distribution consists of: both indices, every bundle
// and every indexed file. Keys are the workdir-relative paths under prefix.
// The result is sorted by key and holds each key once.
func Objects(workDir, prefix string, ix *site.Index) []Object {
	rels := append([]string{site.FilesName, site.TargzName}, ix.Paths()...)
	seen := make(map[string]struct{}, len(rels))
	out := make([]Object, 0, len(rels))
	for _, rel := range rels {
		key := objectKey(prefix, rel)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, Object{Path: filepath.Join(workDir, filepath.FromSlash(rel)), Key: key})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func objectKey(prefix, rel string) string {
	rel = strings.TrimLeft(strings.TrimSpace(rel), "/")
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return rel
	}
	return path.Join(prefix, rel)
}

func contentType(key string) string {
	switch path.Ext(key) {
	case ".json", ".djrepo":
		return "application/json"
	case ".html":
		return "text/html; charset=utf-8"
	case ".xml", ".upf", ".psml":
		return "application/xml"
	case ".tgz":
		return "application/gzip"
	default:
		return "application/octet-stream"
	}
}

// Publisher uploads objects into one bucket.
type Publisher struct {
	client Putter
	bucket string
	region string
	logger *zap.Logger

	initOnce sync.Once
	initErr  error
}

// New returns a Publisher writing to cfg.Bucket through client.
func New(client Putter, cfg Config, logger *zap.Logger) (*Publisher, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: client, bucket: bucket, region: region(cfg), logger: logger}, nil
}

func (p *Publisher) ensureBucket(ctx context.Context) error {
	p.initOnce.Do(func() {
		exists, err := p.client.BucketExists(ctx, p.bucket)
		if err != nil {
			p.initErr = err
			return
		}
		if exists {
			return
		}
		p.logger.Info("creating bucket", zap.String("bucket", p.bucket))
		p.initErr = p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{Region: p.region})
	})
	return p.initErr
}

// Publish uploads every object. Failed uploads do not stop the others; their
// errors are returned together. It returns the number of bytes uploaded.
func (p *Publisher) Publish(ctx context.Context, objs []Object) (int64, error) {
	if err := p.ensureBucket(ctx); err != nil {
		return 0, fmt.Errorf("ensure bucket: %w", err)
	}
	var merr *multierror.Error
	var total int64
	for _, o := range objs {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		info, err := p.client.FPutObject(ctx, p.bucket, o.Key, o.Path, minio.PutObjectOptions{
			ContentType: contentType(o.Key),
		})
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("cannot upload %s: %w", o.Key, err))
			continue
		}
		total += info.Size
		p.logger.Debug("uploaded", zap.String("key", o.Key), zap.String("size", humanize.IBytes(uint64(info.Size))))
	}
	return total, merr.ErrorOrNil()
}
