// Package storage mirrors dataset files kept in S3 compatible object storage
// into a local directory so the file loaders can read them.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const s3Scheme = "s3://"

// Location is a parsed s3://bucket/key URI. Key may end with a glob in its
// last segment.
type Location struct {
	Bucket string
	Key    string
}

// IsS3URI reports whether uri uses the s3:// scheme.
func IsS3URI(uri string) bool {
	return strings.HasPrefix(strings.ToLower(uri), s3Scheme)
}

// ParseURI splits an s3:// URI into bucket and key.
func ParseURI(uri string) (Location, error) {
	if !IsS3URI(uri) {
		return Location{}, fmt.Errorf("%q is not an s3:// URI", uri)
	}
	rest := uri[len(s3Scheme):]
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Location{}, fmt.Errorf("s3 URI %q has no bucket", uri)
	}
	return Location{Bucket: bucket, Key: strings.TrimSuffix(key, "/")}, nil
}

// listPrefix returns the prefix to list and the glob to filter keys with.
func (l Location) listPrefix() (prefix, pattern string) {
	if strings.ContainsAny(l.Key, "*?[") {
		dir := path.Dir(l.Key)
		if dir == "." {
			dir = ""
		} else {
			dir += "/"
		}
		return dir, l.Key
	}
	return l.Key, ""
}

// objectAPI is the part of the S3 client used here.
type objectAPI interface {
	s3.ListObjectsV2APIClient
	manager.DownloadAPIClient
}

// S3Config configures the client. Empty fields fall back to the default
// AWS configuration chain.
type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// S3 downloads objects with the s3 transfer manager.
type S3 struct {
	client     objectAPI
	downloader *manager.Downloader
}

// NewS3 builds a client from cfg. A custom Endpoint switches to path-style
// addressing, which MinIO and most S3 compatible stores need.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	var opts []func(*aws_config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, aws_config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, aws_config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := aws_config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3(client), nil
}

func newS3(client objectAPI) *S3 {
	return &S3{client: client, downloader: manager.NewDownloader(client)}
}

// Download mirrors every object under uri into dir/<bucket>/<key> and returns
// the local paths in listing order. Files already present with the same size
// are not downloaded again.
func (s *S3) Download(ctx context.Context, uri, dir string) ([]string, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	prefix, pattern := loc.listPrefix()

	var paths []string
	pager := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(loc.Bucket),
		Prefix: aws.String(prefix),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", loc.Bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			if pattern != "" {
				if ok, _ := path.Match(pattern, key); !ok {
					continue
				}
			}
			local := filepath.Join(dir, loc.Bucket, filepath.FromSlash(key))
			if err := s.fetch(ctx, loc.Bucket, key, local, aws.ToInt64(obj.Size)); err != nil {
				return nil, err
			}
			paths = append(paths, local)
		}
	}
	return paths, nil
}

func (s *S3) fetch(ctx context.Context, bucket, key, local string, size int64) error {
	if info, err := os.Stat(local); err == nil && info.Size() == size {
		slog.Debug("object already mirrored", "bucket", bucket, "key", key)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return fmt.Errorf("failed to create dir for %s: %w", local, err)
	}

	tmp := local + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	_, err = s.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to download s3://%s/%s: %w", bucket, key, err)
	}
	if err := os.Rename(tmp, local); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", local, err)
	}
	slog.Debug("downloaded object", "bucket", bucket, "key", key, "path", local)
	return nil
}
