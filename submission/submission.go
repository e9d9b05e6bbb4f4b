// Package submission turns form-builder webhook payloads into applicant
// records. Field names are chosen by whoever builds the form, so nothing here
// relies on a fixed schema.
package submission

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

const (
	maxBodyBytes     = 1 << 20
	maxMultipartSize = 10 << 20
)

var ErrMalformedSubmission = errors.New("malformed submission")

// Field is a single submitted key/value pair. Non-string JSON scalars are
// kept in their literal text form. For a JSON object value, Object holds its
// decoded fields and Value their flattened text.
type Field struct {
	Key    string
	Value  string
	Object Submission
}

// Submission is the raw field set in source order.
type Submission []Field

// Lookup returns the value for key, matching case-insensitively when there is
// no exact match.
func (s Submission) Lookup(key string) (string, bool) {
	if i := s.index(key); i >= 0 {
		return s[i].Value, true
	}
	return "", false
}

func (s Submission) index(key string) int {
	for i, f := range s {
		if f.Key == key {
			return i
		}
	}
	for i, f := range s {
		if strings.EqualFold(f.Key, key) {
			return i
		}
	}
	return -1
}

// MarshalJSON writes the submission as a JSON object, keeping field order.
func (s Submission) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Parse reads the request body as JSON, url-encoded or multipart form data.
// Unknown content types are tried as JSON first and as a query string second.
func Parse(r *http.Request) (Submission, error) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}

	switch mediaType {
	case "application/json":
		body, err := readBody(r)
		if err != nil {
			return nil, err
		}
		return FromJSON(body)
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedSubmission, err)
		}
		values, err := transcode(r.PostForm, params["charset"])
		if err != nil {
			return nil, err
		}
		return FromValues(values), nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMultipartSize); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedSubmission, err)
		}
		return FromValues(r.MultipartForm.Value), nil
	}

	body, err := readBody(r)
	if err != nil {
		return nil, err
	}
	if sub, err := FromJSON(body); err == nil {
		return sub, nil
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSubmission, err)
	}
	return FromValues(values), nil
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrMalformedSubmission, err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrMalformedSubmission, maxBodyBytes)
	}
	return body, nil
}

// FromValues converts form values into a submission. Keys are sorted so the
// result does not depend on map iteration order; repeated values are joined
// with a space.
func FromValues(values map[string][]string) Submission {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sub := make(Submission, 0, len(keys))
	for _, k := range keys {
		sub = append(sub, Field{Key: k, Value: joinNonEmpty(values[k])})
	}
	return sub
}

// FromJSON decodes a JSON object keeping its key order. Nested objects and
// arrays are flattened into the space-joined text of their scalar leaves, so
// {"name":{"first":"Jane","last":"Doe"}} yields name="Jane Doe".
func FromJSON(data []byte) (Submission, error) {
	sub, err := decodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSubmission, err)
	}
	return sub, nil
}

func decodeObject(data []byte) (Submission, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected a JSON object")
	}

	var sub Submission
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode %q: %w", key, err)
		}

		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) > 0 && trimmed[0] == '{' {
			object, err := decodeObject(trimmed)
			if err != nil {
				return nil, fmt.Errorf("decode %q: %w", key, err)
			}
			sub = append(sub, Field{Key: key, Value: object.text(), Object: object})
			continue
		}

		value, err := flatten(trimmed)
		if err != nil {
			return nil, fmt.Errorf("decode %q: %w", key, err)
		}
		sub = append(sub, Field{Key: key, Value: value})
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return sub, nil
}

func flatten(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", nil
	}

	switch trimmed[0] {
	case '{':
		fields, err := decodeObject(trimmed)
		if err != nil {
			return "", err
		}
		return fields.text(), nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return "", err
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			v, err := flatten(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, v)
		}
		return joinNonEmpty(parts), nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	case 'n':
		return "", nil
	default:
		// numbers and booleans keep their literal text
		return string(trimmed), nil
	}
}

// text joins the non-empty field values with a space.
func (s Submission) text() string {
	parts := make([]string, 0, len(s))
	for _, f := range s {
		parts = append(parts, f.Value)
	}
	return joinNonEmpty(parts)
}

func joinNonEmpty(values []string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

// transcode converts form values posted in a legacy charset to UTF-8.
func transcode(values url.Values, charset string) (url.Values, error) {
	charset = strings.TrimSpace(charset)
	if charset == "" || strings.EqualFold(charset, "utf-8") || strings.EqualFold(charset, "utf8") {
		return values, nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("%w: unsupported charset %q", ErrMalformedSubmission, charset)
	}
	decoder := enc.NewDecoder()

	out := make(url.Values, len(values))
	for key, vs := range values {
		k, err := decoder.String(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedSubmission, err)
		}
		for _, v := range vs {
			d, err := decoder.String(v)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedSubmission, err)
			}
			out[k] = append(out[k], d)
		}
	}
	return out, nil
}
