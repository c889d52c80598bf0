package handlers

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"

	"github.com/charlesng35/timecapsule/internal/storage"
	"github.com/charlesng35/timecapsule/pkg/errors"
)

// defaultMaxUploadBytes caps a multipart request body when no limit is configured.
const defaultMaxUploadBytes int64 = 32 << 20

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(strings.ToLower(c.ContentType()), "multipart/")
}

// parseMultipart limits the body and parses the multipart form.
func parseMultipart(c *gin.Context, maxBytes int64) (*multipart.Form, error) {
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
	form, err := c.MultipartForm()
	if err != nil {
		return nil, errors.NewBadRequest("invalid multipart payload")
	}
	return form, nil
}

// openUploads opens every file sent under field. The returned closer must be called
// once the uploads have been stored.
func openUploads(form *multipart.Form, field string) ([]storage.Upload, func() error, error) {
	var (
		uploads []storage.Upload
		files   []io.Closer
	)
	closeAll := func() error {
		var errs error
		for _, f := range files {
			errs = multierr.Append(errs, f.Close())
		}
		return errs
	}

	if form == nil {
		return nil, closeAll, nil
	}

	for _, header := range form.File[field] {
		file, err := header.Open()
		if err != nil {
			_ = closeAll()
			return nil, func() error { return nil }, errors.NewBadRequest("unable to read uploaded file " + header.Filename)
		}
		files = append(files, file)
		uploads = append(uploads, storage.Upload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        file,
		})
	}
	return uploads, closeAll, nil
}
