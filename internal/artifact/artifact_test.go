package artifact_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"vidgrab/internal/artifact"
	"vidgrab/internal/services"
)

func TestLocalStoreLifecycle(t *testing.T) {
	root := filepath.Join(t.TempDir(), "artifacts")
	store, err := artifact.NewLocalStore(root)
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "abc123.mkv")
	if err := os.WriteFile(src, []byte("matroska"), 0o644); err != nil {
		t.Fatal(err)
	}
	art, err := store.Publish(ctx, "job-1", src, "abc123.mkv")
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if art.Key != "job-1/abc123.mkv" || art.Size != 8 || art.ContentType != "video/x-matroska" {
		t.Fatalf("unexpected artifact: %#v", art)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("expected local source to be consumed, stat err=%v", err)
	}

	reader, size, err := store.Open(ctx, art.Key)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	data, _ := io.ReadAll(reader)
	reader.Close()
	if size != 8 || string(data) != "matroska" {
		t.Fatalf("unexpected content %q (size %d)", data, size)
	}

	if err := store.Remove(ctx, art.Key); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := store.Remove(ctx, art.Key); err != nil {
		t.Fatalf("second Remove should be a no-op: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "job-1")); !os.IsNotExist(err) {
		t.Fatalf("expected job dir to be removed, stat err=%v", err)
	}
	if _, _, err := store.Open(ctx, art.Key); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected NotFound after removal, got %v", err)
	}
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	store, err := artifact.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.Open(context.Background(), "../etc/passwd"); !errors.Is(err, services.ErrInvalidInput) {
		t.Fatalf("expected InvalidInput for traversal, got %v", err)
	}
}

type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	types    map[string]string
	afterPut func()
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[key] = data
	f.types[key] = aws.ToString(in.ContentType)
	f.mu.Unlock()
	if f.afterPut != nil {
		f.afterPut()
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data)), ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3StoreLifecycle(t *testing.T) {
	client := newFakeS3()
	store := artifact.NewS3StoreWithClient(client, "media", "artifacts/")
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "abc123.mp4")
	if err := os.WriteFile(src, []byte("mp4-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	art, err := store.Publish(ctx, "job-9", src, "abc123.mp4")
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if _, ok := client.objects["media/artifacts/job-9/abc123.mp4"]; !ok {
		t.Fatalf("object not uploaded under prefix: %v", client.objects)
	}
	if client.types["media/artifacts/job-9/abc123.mp4"] != "video/mp4" {
		t.Fatalf("unexpected content type %q", client.types["media/artifacts/job-9/abc123.mp4"])
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("expected uploaded source to be removed, stat err=%v", err)
	}

	reader, size, err := store.Open(ctx, art.Key)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	reader.Close()
	if size != int64(len("mp4-bytes")) {
		t.Fatalf("unexpected size %d", size)
	}

	if err := store.Remove(ctx, art.Key); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, _, err := store.Open(ctx, art.Key); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestDownloadName(t *testing.T) {
	cases := []struct {
		title, fallback, ext, want string
	}{
		{"Sample", "abc123", ".mkv", "Sample.mkv"},
		{"Café del Mar: Live / 2024 ", "x", ".mkv", "Cafe del Mar Live 2024.mkv"},
		{"日本語のタイトル", "abc123", ".mp4", "abc123.mp4"},
		{`bad"name\with;chars`, "id", ".webm", "bad name with chars.webm"},
		{"  ", "abc123", ".mkv", "abc123.mkv"},
	}
	for _, tc := range cases {
		if got := artifact.DownloadName(tc.title, tc.fallback, tc.ext); got != tc.want {
			t.Fatalf("DownloadName(%q) = %q, want %q", tc.title, got, tc.want)
		}
	}
}

func TestContentTypeFor(t *testing.T) {
	if got := artifact.ContentTypeFor("a.MKV"); got != "video/x-matroska" {
		t.Fatalf("unexpected mkv type %q", got)
	}
	if got := artifact.ContentTypeFor("a.unknownext"); got != "application/octet-stream" {
		t.Fatalf("unexpected fallback type %q", got)
	}
}

func TestS3StorePublishSurvivesLocalCleanupFailure(t *testing.T) {
	client := newFakeS3()
	store := artifact.NewS3StoreWithClient(client, "media", "")
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "abc123.mkv")
	if err := os.WriteFile(src, []byte("mkv-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	// A non-empty directory in place of the source makes the local remove fail.
	client.afterPut = func() {
		if err := os.Remove(src); err != nil {
			t.Errorf("remove source: %v", err)
		}
		if err := os.MkdirAll(filepath.Join(src, "busy"), 0o755); err != nil {
			t.Errorf("block source path: %v", err)
		}
	}

	art, err := store.Publish(ctx, "job-10", src, "abc123.mkv")
	if err != nil {
		t.Fatalf("Publish failed after upload: %v", err)
	}
	if art.Key != "job-10/abc123.mkv" || art.Size != int64(len("mkv-bytes")) {
		t.Fatalf("unexpected artifact %+v", art)
	}
	if _, ok := client.objects["media/job-10/abc123.mkv"]; !ok {
		t.Fatalf("uploaded object missing: %v", client.objects)
	}
	reader, _, err := store.Open(ctx, art.Key)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	reader.Close()
}
