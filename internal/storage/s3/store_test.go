package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/detectql/detectql/internal/storage"
)

const exchangeKey = "date=2026-02-19/hour=09/exchange-1.parquet"

func TestPutPlacesExchangeUnderPrefix(t *testing.T) {
	api := &fakeBucketAPI{}
	store := newStore(api, " archive ", "/detectql/prod/")

	if _, err := store.Put(context.Background(), "/"+exchangeKey, bytes.NewBufferString("abc"), 3, storage.PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if api.lastBucket != "archive" {
		t.Fatalf("bucket = %q", api.lastBucket)
	}
	if api.lastKey != "detectql/prod/"+exchangeKey {
		t.Fatalf("key = %q", api.lastKey)
	}
	if api.lastContentType != parquetContentType {
		t.Fatalf("content type = %q", api.lastContentType)
	}
}

func TestStoreRejectsKeysOutsideArchiveLayout(t *testing.T) {
	store := newStore(&fakeBucketAPI{}, "archive", "")
	for _, key := range []string{"../secrets.txt", "exchange-1.parquet", "date=2026-02-19/hour=09/../../x.parquet"} {
		if _, err := store.Put(context.Background(), key, strings.NewReader("x"), 1, storage.PutOptions{}); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("Put(%q) error = %v, want ErrInvalidKey", key, err)
		}
		if _, err := store.Get(context.Background(), key); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("Get(%q) error = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestGetMapsMissingExchange(t *testing.T) {
	store := newStore(&fakeBucketAPI{getErr: storage.ErrObjectNotFound}, "archive", "")
	if _, err := store.Get(context.Background(), exchangeKey); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() error = %v, want ErrObjectNotFound", err)
	}

	store = newStore(&fakeBucketAPI{getErr: errors.New("boom")}, "archive", "")
	_, err := store.Get(context.Background(), exchangeKey)
	if err == nil || errors.Is(err, storage.ErrObjectNotFound) || !strings.Contains(err.Error(), exchangeKey) {
		t.Fatalf("Get() error = %v", err)
	}
}

func TestCreateBucketIfMissing(t *testing.T) {
	api := &fakeBucketAPI{}
	store := newStore(api, "archive", "")
	if err := store.createBucketIfMissing(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("createBucketIfMissing() error = %v", err)
	}
	if api.madeRegion != "us-east-1" {
		t.Fatalf("MakeBucket region = %q", api.madeRegion)
	}

	existing := &fakeBucketAPI{bucketExists: true}
	if err := newStore(existing, "archive", "").createBucketIfMissing(context.Background(), ""); err != nil {
		t.Fatalf("createBucketIfMissing() error = %v", err)
	}
	if existing.madeRegion != "" || existing.makeCalls != 0 {
		t.Fatal("existing bucket must not be created again")
	}
}

func TestPingRequiresBucket(t *testing.T) {
	api := &fakeBucketAPI{}
	store := newStore(api, "archive", "")
	if err := store.Ping(context.Background()); err == nil {
		t.Fatal("expected missing bucket error")
	}
	api.bucketExists = true
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

func TestNewRequiresEndpointAndBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil || !strings.Contains(err.Error(), "endpoint and bucket required") {
		t.Fatalf("New() error = %v", err)
	}
}

func TestResolveEndpoint(t *testing.T) {
	cases := []struct {
		raw    string
		useSSL bool
		host   string
		secure bool
	}{
		{raw: "https://minio.example.com", host: "minio.example.com", secure: true},
		{raw: "http://localhost:9000", useSSL: true, host: "localhost:9000", secure: false},
		{raw: "localhost:9000", useSSL: true, host: "localhost:9000", secure: true},
	}
	for _, tc := range cases {
		host, secure, err := resolveEndpoint(tc.raw, tc.useSSL)
		if err != nil {
			t.Fatalf("resolveEndpoint(%q) error = %v", tc.raw, err)
		}
		if host != tc.host || secure != tc.secure {
			t.Fatalf("resolveEndpoint(%q) = %q, %v", tc.raw, host, secure)
		}
	}
	for _, raw := range []string{"", "ftp://minio", "https://minio.example.com/bucket", "minio/bucket"} {
		if _, _, err := resolveEndpoint(raw, false); err == nil {
			t.Fatalf("resolveEndpoint(%q) expected error", raw)
		}
	}
}

func TestArchivePrefix(t *testing.T) {
	for raw, want := range map[string]string{"": "", "/": "", " /a//b/ ": "a/b", "..": "", "../x": ""} {
		if got := archivePrefix(raw); got != want {
			t.Fatalf("archivePrefix(%q) = %q, want %q", raw, got, want)
		}
	}
}

type fakeBucketAPI struct {
	lastBucket      string
	lastKey         string
	lastContentType string
	bucketExists    bool
	madeRegion      string
	makeCalls       int
	getErr          error
}

func (f *fakeBucketAPI) PutObject(_ context.Context, bucket, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	f.lastBucket = bucket
	f.lastKey = key
	f.lastContentType = contentType
	_, _ = io.Copy(io.Discard, body)
	return storage.ObjectInfo{Key: key, Size: size, ETag: "etag-1"}, nil
}

func (f *fakeBucketAPI) GetObject(_ context.Context, _, key string) (io.ReadCloser, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return io.NopCloser(strings.NewReader(key)), nil
}

func (f *fakeBucketAPI) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, nil
}

func (f *fakeBucketAPI) MakeBucket(_ context.Context, _, region string) error {
	f.makeCalls++
	f.madeRegion = region
	return nil
}
