package client

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// encodeParams serializes request params. Slices become repeated `name[]`
// parameters; nil values and empty strings are skipped.
func encodeParams(params map[string]any) url.Values {
	values := url.Values{}
	for key, value := range params {
		switch v := value.(type) {
		case nil:
		case string:
			if v != "" {
				values.Set(key, v)
			}
		case []string:
			addArray(values, key, v)
		case []int:
			addArray(values, key, lo.Map(v, func(item int, _ int) string { return strconv.Itoa(item) }))
		case []any:
			addArray(values, key, lo.Map(v, func(item any, _ int) string { return fmt.Sprint(item) }))
		default:
			values.Set(key, fmt.Sprint(v))
		}
	}
	return values
}

func addArray(values url.Values, key string, items []string) {
	name := key
	if !strings.HasSuffix(name, "[]") {
		name += "[]"
	}
	for _, item := range items {
		values.Add(name, item)
	}
}

// FormFile is a file part of a multipart request.
type FormFile struct {
	Field    string
	Filename string
	Content  io.Reader
}

// Form is a multipart/form-data request body.
type Form struct {
	Fields map[string]string
	Files  []FormFile
}

func (f *Form) encode() (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)

	for name, value := range f.Fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}
	for _, file := range f.Files {
		part, err := writer.CreateFormFile(file.Field, file.Filename)
		if err != nil {
			return nil, "", err
		}
		if file.Content != nil {
			if _, err := io.Copy(part, file.Content); err != nil {
				return nil, "", fmt.Errorf("copy %s: %w", file.Filename, err)
			}
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buf, writer.FormDataContentType(), nil
}
