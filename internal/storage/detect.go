package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
)

// sniffLimit is how many leading bytes are inspected to detect a media type.
const sniffLimit = 3072

// DetectContentType replaces the client supplied content type with the one
// detected from the leading bytes of the upload. Seekable bodies are rewound;
// other bodies are stitched back together so nothing is lost.
func DetectContentType(upload Upload) (Upload, error) {
	if upload.Body == nil {
		return upload, nil
	}

	head := make([]byte, sniffLimit)
	n, err := io.ReadFull(upload.Body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return upload, fmt.Errorf("storage: read %s: %w", upload.Filename, err)
	}
	head = head[:n]
	upload.ContentType = mimetype.Detect(head).String()

	if seeker, ok := upload.Body.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err == nil {
			return upload, nil
		}
	}
	upload.Body = io.MultiReader(bytes.NewReader(head), upload.Body)
	return upload, nil
}
