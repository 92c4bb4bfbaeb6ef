// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLister serves pages keyed by continuation token ("" is the first page).
type fakeLister struct {
	pages map[string]*s3.ListObjectsV2Output
	seen  []*s3.ListObjectsV2Input
	err   error
}

func (f *fakeLister) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.seen = append(f.seen, in)
	if f.err != nil {
		return nil, f.err
	}
	return f.pages[aws.ToString(in.ContinuationToken)], nil
}

type fakePresigner struct {
	key   string
	ttl   time.Duration
	calls int
}

func (f *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var o s3.PresignOptions
	for _, fn := range optFns {
		fn(&o)
	}
	f.calls++
	f.key, f.ttl = aws.ToString(in.Key), o.Expires
	return &v4.PresignedHTTPRequest{URL: "https://s3.test/" + aws.ToString(in.Bucket) + "/" + f.key + "?sig=1", Method: "GET"}, nil
}

func objects(keys ...string) []s3types.Object {
	out := make([]s3types.Object, len(keys))
	for i, k := range keys {
		out[i] = s3types.Object{Key: aws.String(k)}
	}
	return out
}

func TestS3Source_ScanPaginatesAndFilters(t *testing.T) {
	lister := &fakeLister{pages: map[string]*s3.ListObjectsV2Output{
		"": {
			Contents:              objects("clips/b.mp4", "clips/readme.txt", "clips/sub/"),
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String("p2"),
		},
		"p2": {
			Contents:    objects("clips/sub/a.webm"),
			IsTruncated: aws.Bool(false),
		},
	}}
	presign := &fakePresigner{}
	src := newS3Source(lister, presign, S3Options{Bucket: "media", Prefix: "clips/", Extensions: testExts, PresignTTL: 10 * time.Minute})

	ids, err := src.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b.mp4", "sub/a.webm"}, ids)
	require.Len(t, lister.seen, 2)
	assert.Equal(t, "clips/", aws.ToString(lister.seen[0].Prefix))

	u, err := src.URL(context.Background(), "sub/a.webm")
	require.NoError(t, err)
	assert.Equal(t, "https://s3.test/media/clips/sub/a.webm?sig=1", u)
	assert.Equal(t, "clips/sub/a.webm", presign.key)
	assert.Equal(t, 10*time.Minute, presign.ttl)
}

func TestS3Source_URLReused(t *testing.T) {
	presign := &fakePresigner{}
	src := newS3Source(&fakeLister{}, presign, S3Options{Bucket: "media", Extensions: testExts, PresignTTL: time.Hour})

	first, err := src.URL(context.Background(), "a.mp4")
	require.NoError(t, err)
	second, err := src.URL(context.Background(), "a.mp4")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, presign.calls)

	_, err = src.URL(context.Background(), "b.mp4")
	require.NoError(t, err)
	assert.Equal(t, 2, presign.calls)
}

func TestS3Source_ListError(t *testing.T) {
	src := newS3Source(&fakeLister{err: errors.New("denied")}, &fakePresigner{}, S3Options{Bucket: "media", Extensions: testExts})
	_, err := src.Scan(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
}

func TestS3Source_InCatalog(t *testing.T) {
	lister := &fakeLister{pages: map[string]*s3.ListObjectsV2Output{
		"": {Contents: objects("x.mov")},
	}}
	c, err := New(context.Background(), newS3Source(lister, &fakePresigner{}, S3Options{Bucket: "b", Extensions: testExts}))
	require.NoError(t, err)
	assert.Equal(t, []string{"x.mov"}, c.List())
	assert.Equal(t, "s3", c.Source().Name())
}

func TestNewS3Source_RequiresBucket(t *testing.T) {
	_, err := NewS3Source(context.Background(), S3Options{})
	assert.Error(t, err)
}
