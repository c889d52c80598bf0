package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"
)

// ErrInvalidKey is returned when an object key is empty or escapes its prefix.
var ErrInvalidKey = errors.New("storage: invalid object key")

// ObjectStorage persists uploaded media and returns the URL it can be fetched from.
type ObjectStorage interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Upload is a file received from a client, ready to be stored.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// StoredObject describes an upload after it reached object storage.
type StoredObject struct {
	Key         string
	URL         string
	ContentType string
	Size        int64
	Filename    string
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectKey builds "<prefix>/<unix-millis>-<sanitised filename>".
func ObjectKey(prefix, filename string, now time.Time) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "upload"
	}
	return fmt.Sprintf("%s/%d-%s", strings.Trim(prefix, "/"), now.UnixMilli(), name)
}

// Store uploads every file under prefix and returns the stored objects. The
// content type is detected from each file's bytes. When one upload fails, the
// objects already written are removed before returning.
func Store(ctx context.Context, backend ObjectStorage, prefix string, uploads []Upload, now func() time.Time) ([]StoredObject, error) {
	if len(uploads) == 0 {
		return nil, nil
	}
	if backend == nil {
		return nil, errors.New("storage: backend is not configured")
	}

	stored := make([]StoredObject, 0, len(uploads))
	for _, upload := range uploads {
		key := ObjectKey(prefix, upload.Filename, now())
		upload, err := DetectContentType(upload)
		if err != nil {
			Remove(context.WithoutCancel(ctx), backend, stored)
			return nil, err
		}
		contentType := upload.ContentType

		url, err := backend.Put(ctx, key, upload.Body, upload.Size, contentType)
		if err != nil {
			Remove(context.WithoutCancel(ctx), backend, stored)
			return nil, fmt.Errorf("storage: put %s: %w", key, err)
		}
		stored = append(stored, StoredObject{
			Key:         key,
			URL:         url,
			ContentType: contentType,
			Size:        upload.Size,
			Filename:    upload.Filename,
		})
	}
	return stored, nil
}

// Remove deletes stored objects best effort and returns the first error encountered.
func Remove(ctx context.Context, backend ObjectStorage, objects []StoredObject) error {
	if backend == nil {
		return nil
	}
	var first error
	for _, obj := range objects {
		if obj.Key == "" {
			continue
		}
		if err := backend.Delete(ctx, obj.Key); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func validateKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" || strings.HasPrefix(key, "/") {
		return ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return ErrInvalidKey
		}
	}
	return nil
}
