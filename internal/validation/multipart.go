// Package validation parses upload requests.
package validation

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/itchan-dev/imagehost/internal/domain"
)

// FilesField is the multipart field carrying uploaded files.
const FilesField = "files"

// multipartMemory is how much of the form ParseMultipartForm keeps in memory
// before spilling file parts to temp files.
const multipartMemory = 8 << 20

var (
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrNoFiles         = errors.New("no files uploaded")
)

// ValidateAndParseMultipart enforces maxSize on the body and parses the form.
// Exceeding maxSize closes the connection after the limit is read.
func ValidateAndParseMultipart(r *http.Request, w http.ResponseWriter, maxSize int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w: limit is %d bytes", ErrPayloadTooLarge, maxErr.Limit)
		}
		return fmt.Errorf("%w: failed to parse multipart form: %w", ErrNoFiles, err)
	}
	return nil
}

// OpenUploadedFiles opens every part of FilesField in form order. The
// returned cleanup closes them and must be called even on error.
func OpenUploadedFiles(form *multipart.Form) ([]domain.UploadedFile, func(), error) {
	var opened []multipart.File
	cleanup := func() {
		for _, f := range opened {
			f.Close()
		}
	}
	if form == nil || len(form.File[FilesField]) == 0 {
		return nil, cleanup, ErrNoFiles
	}

	headers := form.File[FilesField]
	files := make([]domain.UploadedFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, cleanup, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		opened = append(opened, f)
		files = append(files, domain.UploadedFile{
			Filename: fh.Filename,
			Size:     fh.Size,
			Content:  f,
		})
	}
	return files, cleanup, nil
}

// FormatSizeMB renders a byte count as whole megabytes for client messages.
func FormatSizeMB(bytes int64) string {
	mb := float64(bytes) / (1024 * 1024)
	if mb == float64(int64(mb)) {
		return fmt.Sprintf("%dMB", int64(mb))
	}
	return fmt.Sprintf("%.1fMB", mb)
}
