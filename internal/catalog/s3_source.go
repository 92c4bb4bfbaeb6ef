// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/vlabel/internal/cache"
	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Options configures an object-storage clip source.
type S3Options struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PresignTTL      time.Duration
	Extensions      []string
}

type objectPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Source lists clips from a bucket prefix and hands out presigned GET URLs,
// so clip bytes never pass through this process.
type S3Source struct {
	list    s3.ListObjectsV2APIClient
	presign objectPresigner
	bucket  string
	prefix  string
	ttl     time.Duration
	exts    map[string]struct{}
	// Presigned URLs are reused for half their lifetime so a redelivered
	// clip keeps its URL and stays browser-cacheable.
	urls *cache.Memory[string]

	mu   sync.RWMutex
	keys map[string]string // id -> object key
}

// NewS3Source builds the AWS clients from opts. Static credentials are used
// when given, otherwise the default provider chain applies.
func NewS3Source(ctx context.Context, opts S3Options) (*S3Source, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return newS3Source(client, s3.NewPresignClient(client), opts), nil
}

func newS3Source(list s3.ListObjectsV2APIClient, presign objectPresigner, opts S3Options) *S3Source {
	ttl := opts.PresignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &S3Source{
		list:    list,
		presign: presign,
		bucket:  opts.Bucket,
		prefix:  strings.TrimLeft(opts.Prefix, "/"),
		ttl:     ttl,
		exts:    extSet(opts.Extensions),
		urls:    cache.NewMemory[string](),
		keys:    make(map[string]string),
	}
}

func (s *S3Source) Name() string { return "s3" }

// Scan pages through the prefix and returns matching keys as sorted ids.
func (s *S3Source) Scan(ctx context.Context) ([]string, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix)
	}

	found := make(map[string]string)
	pager := s3.NewListObjectsV2Paginator(s.list, input)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") || !hasExt(key, s.exts) {
				continue
			}
			if id := NormalizeID(strings.TrimPrefix(key, s.prefix)); id != "" {
				found[id] = key
			}
		}
	}

	ids := make([]string, 0, len(found))
	s.mu.Lock()
	for id, key := range found {
		s.keys[id] = key
		ids = append(ids, id)
	}
	s.mu.Unlock()
	s.urls.Purge()
	sort.Strings(ids)
	return ids, nil
}

// URL presigns a GET for the object behind id.
func (s *S3Source) URL(ctx context.Context, id string) (string, error) {
	if u, ok := s.urls.Get(id); ok {
		return u, nil
	}
	s.mu.RLock()
	key, ok := s.keys[id]
	s.mu.RUnlock()
	if !ok {
		key = s.prefix + id
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) {
		o.Expires = s.ttl
	})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", id, err)
	}
	s.urls.Set(id, req.URL, s.ttl/2)
	return req.URL, nil
}
