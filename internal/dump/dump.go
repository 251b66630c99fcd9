// Package dump serializes captured request and response records.
package dump

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"unicode/utf8"
)

// DefaultBodySizeCap is the largest response body stored in full.
const DefaultBodySizeCap = 2 << 20

// Body encodings.
const (
	EncodingBase64          = "base64"
	EncodingBase64Truncated = "base64_truncated"
	EncodingUTF8            = "utf-8"
)

// PostData is a request body.
type PostData struct {
	Encoding string `json:"encoding"`
	Data     string `json:"data"`
}

// Request is one outgoing request seen by the browser.
type Request struct {
	Timestamp    float64           `json:"timestamp"`
	ID           string            `json:"id"`
	Method       string            `json:"method"`
	URL          string            `json:"url"`
	ResourceType string            `json:"resource_type"`
	Headers      map[string]string `json:"headers"`
	PostData     *PostData         `json:"post_data"`
}

// RequestRef identifies the request a response answers.
type RequestRef struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// Response is one response received by the browser.
type Response struct {
	Timestamp    float64           `json:"timestamp"`
	ID           string            `json:"id"`
	URL          string            `json:"url"`
	Status       int64             `json:"status"`
	StatusText   string            `json:"status_text"`
	MimeType     string            `json:"mime_type,omitempty"`
	Headers      map[string]string `json:"headers"`
	Request      RequestRef        `json:"request"`
	BodyEncoding *string           `json:"body_encoding"`
	Body         *string           `json:"body"`
	BodyLength   int               `json:"body_length,omitempty"`
	BodyError    string            `json:"body_error,omitempty"`
}

// SetBody stores body on the record, base64-encoded and capped at sizeCap
// bytes. Bodies over the cap keep their first sizeCap bytes and are flagged
// base64_truncated. Empty bodies are left unset.
func (r *Response) SetBody(body []byte, sizeCap int) {
	encoding, data, length := EncodeBody(body, sizeCap)
	if encoding == "" {
		return
	}
	r.BodyEncoding = &encoding
	r.Body = &data
	r.BodyLength = length
}

// EncodeBody base64-encodes body, truncating it to sizeCap bytes. It returns
// the encoding label, the encoded data and the original length.
func EncodeBody(body []byte, sizeCap int) (string, string, int) {
	if len(body) == 0 {
		return "", "", 0
	}
	if sizeCap <= 0 {
		sizeCap = DefaultBodySizeCap
	}

	if len(body) > sizeCap {
		return EncodingBase64Truncated, base64.StdEncoding.EncodeToString(body[:sizeCap]), len(body)
	}
	return EncodingBase64, base64.StdEncoding.EncodeToString(body), len(body)
}

// EncodePostData keeps text bodies as-is and base64-encodes binary ones.
func EncodePostData(body []byte) *PostData {
	if len(body) == 0 {
		return nil
	}
	if utf8.Valid(body) {
		return &PostData{Encoding: EncodingUTF8, Data: string(body)}
	}
	return &PostData{Encoding: EncodingBase64, Data: base64.StdEncoding.EncodeToString(body)}
}

// Write encodes records as an indented JSON array. A nil slice is written as
// an empty array.
func Write[T any](w io.Writer, records []T) error {
	if records == nil {
		records = []T{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encoding records: %w", err)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// WriteFile writes records to path, replacing any existing file.
func WriteFile[T any](path string, records []T) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	if err := Write(f, records); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return f.Close()
}
