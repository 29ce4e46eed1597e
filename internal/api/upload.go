package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tabsql/tabsql/internal/table"
	"github.com/tabsql/tabsql/internal/table/loader"
)

const multipartMemory = 8 << 20

// uploadError carries the response for a rejected upload.
type uploadError struct {
	status  int
	code    string
	message string
	details string
}

func (e *uploadError) Error() string {
	return e.message
}

// formField names a text part. Required fields are rejected with code when
// blank, before the file is decoded.
type formField struct {
	name     string
	required bool
	code     string
	message  string
}

type upload struct {
	Table    table.Table
	Filename string
	Fields   map[string]string
}

// readUpload parses a multipart request holding a "file" part and the given
// text fields, then decodes the file into a table.
func readUpload(w http.ResponseWriter, r *http.Request, maxBytes int64, fields ...formField) (upload, error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return upload{}, &uploadError{
				status:  http.StatusRequestEntityTooLarge,
				code:    "FILE_TOO_LARGE",
				message: fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit),
			}
		}
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return upload{}, &uploadError{status: http.StatusBadRequest, code: "FILE_REQUIRED", message: "No file uploaded"}
		}
		return upload{}, &uploadError{status: http.StatusBadRequest, code: "INVALID_FORM", message: "invalid multipart form", details: err.Error()}
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		return upload{}, &uploadError{status: http.StatusBadRequest, code: "FILE_REQUIRED", message: "No file uploaded"}
	}
	defer func() { _ = file.Close() }()

	values := make(map[string]string, len(fields))
	for _, field := range fields {
		value := strings.TrimSpace(r.FormValue(field.name))
		if value == "" && field.required {
			return upload{}, &uploadError{status: http.StatusBadRequest, code: field.code, message: field.message}
		}
		values[field.name] = value
	}

	if !loader.Supported(header.Filename) {
		return upload{}, &uploadError{status: http.StatusBadRequest, code: "UNSUPPORTED_FILE", message: "Unsupported file", details: header.Filename}
	}
	loaded, err := loader.Load(header.Filename, file)
	if err != nil {
		return upload{}, &uploadError{status: http.StatusBadRequest, code: "INVALID_FILE", message: "could not read uploaded file", details: err.Error()}
	}
	return upload{Table: loaded, Filename: header.Filename, Fields: values}, nil
}

func writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	var uploadErr *uploadError
	if !errors.As(err, &uploadErr) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_FILE", err.Error(), false, nil)
		return
	}
	var extra map[string]any
	if uploadErr.details != "" {
		extra = map[string]any{"details": uploadErr.details}
	}
	writeError(r.Context(), w, uploadErr.status, uploadErr.code, uploadErr.message, false, extra)
}
