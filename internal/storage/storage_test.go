package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/timecapsule/internal/testutil"
)

func TestObjectKeySanitisesFilename(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	require.Equal(t, "capsules/1700000000123-photo.png", ObjectKey("capsules", "photo.png", now))
	require.Equal(t, "capsules/1700000000123-my_holiday_.jpg", ObjectKey("/capsules/", "my holiday!.jpg", now))
	require.Equal(t, "avatars/1700000000123-passwd", ObjectKey("avatars", "../../etc/passwd", now))
	require.Equal(t, "avatars/1700000000123-upload", ObjectKey("avatars", "", now))
}

func TestLocalStoragePutAndDelete(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), "/uploads/")
	require.NoError(t, err)

	url, err := store.Put(context.Background(), "capsules/1-a.txt", strings.NewReader("hello"), 5, "text/plain")
	require.NoError(t, err)
	require.Equal(t, "/uploads/capsules/1-a.txt", url)

	data, err := os.ReadFile(filepath.Join(store.Root(), "capsules", "1-a.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	require.NoError(t, store.Delete(context.Background(), "capsules/1-a.txt"))
	require.NoError(t, store.Delete(context.Background(), "capsules/1-a.txt"))

	_, err = store.Put(context.Background(), "../escape", strings.NewReader("x"), 1, "text/plain")
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestStoreRollsBackOnFailure(t *testing.T) {
	backend := &flakyStorage{failOn: 2}
	clock := func() time.Time { return time.UnixMilli(42) }

	_, err := Store(context.Background(), backend, "capsules", []Upload{
		{Filename: "a.png", ContentType: "image/png", Body: strings.NewReader("a")},
		{Filename: "b.png", Body: strings.NewReader("b")},
	}, clock)
	require.Error(t, err)
	require.Equal(t, []string{"capsules/42-a.png"}, backend.deleted)

	backend = &flakyStorage{}
	stored, err := Store(context.Background(), backend, "capsules", []Upload{
		{Filename: "a.png", ContentType: "application/octet-stream", Body: bytes.NewReader(testutil.PNG())},
		{Filename: "b.bin", ContentType: "image/png", Body: bytes.NewReader([]byte{0x00, 0xff, 0x00, 0x10})},
	}, clock)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, "image/png", stored[0].ContentType)
	require.Equal(t, "application/octet-stream", stored[1].ContentType)
	require.Equal(t, "mem://capsules/42-a.png", stored[0].URL)
}

func TestDetectContentTypeKeepsBody(t *testing.T) {
	png := testutil.PNG()

	upload, err := DetectContentType(Upload{Filename: "me.png", ContentType: "application/octet-stream", Body: bytes.NewReader(png)})
	require.NoError(t, err)
	require.Equal(t, "image/png", upload.ContentType)
	data, err := io.ReadAll(upload.Body)
	require.NoError(t, err)
	require.Equal(t, png, data)

	// A reader without Seek is stitched back together after sniffing.
	upload, err = DetectContentType(Upload{Filename: "note.txt", ContentType: "image/png", Body: io.NopCloser(strings.NewReader("plain words"))})
	require.NoError(t, err)
	require.Contains(t, upload.ContentType, "text/plain")
	data, err = io.ReadAll(upload.Body)
	require.NoError(t, err)
	require.Equal(t, "plain words", string(data))

	upload, err = DetectContentType(Upload{Filename: "empty"})
	require.NoError(t, err)
	require.Empty(t, upload.ContentType)
}

func TestS3StoragePutAndDelete(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []string
		bodies   []string
		types    []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, r.Method+" "+r.URL.Path)
		bodies = append(bodies, string(body))
		types = append(types, r.Header.Get("Content-Type"))
		mu.Unlock()
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	store, err := NewS3Storage(context.Background(), S3Config{
		Bucket:          "capsules-bucket",
		Region:          "us-east-1",
		Endpoint:        server.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		UsePathStyle:    true,
	})
	require.NoError(t, err)

	url, err := store.Put(context.Background(), "capsules/1-a.txt", bytes.NewReader([]byte("hello")), 5, "text/plain")
	require.NoError(t, err)
	require.Equal(t, server.URL+"/capsules-bucket/capsules/1-a.txt", url)
	require.NoError(t, store.Delete(context.Background(), "capsules/1-a.txt"))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{
		"PUT /capsules-bucket/capsules/1-a.txt",
		"DELETE /capsules-bucket/capsules/1-a.txt",
	}, requests)
	require.Contains(t, bodies[0], "hello")
	require.Equal(t, "text/plain", types[0])
}

func TestNewS3StorageValidatesConfig(t *testing.T) {
	_, err := NewS3Storage(context.Background(), S3Config{Region: "us-east-1"})
	require.ErrorContains(t, err, "bucket is required")

	_, err = NewS3Storage(context.Background(), S3Config{Bucket: "b"})
	require.ErrorContains(t, err, "region is required")

	require.Equal(t, "https://b.s3.eu-west-1.amazonaws.com", defaultS3BaseURL(S3Config{Bucket: "b", Region: "eu-west-1"}))
}

type flakyStorage struct {
	failOn  int
	calls   int
	deleted []string
}

func (f *flakyStorage) Put(_ context.Context, key string, _ io.Reader, _ int64, _ string) (string, error) {
	f.calls++
	if f.failOn > 0 && f.calls == f.failOn {
		return "", errors.New("boom")
	}
	return "mem://" + key, nil
}

func (f *flakyStorage) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}
