package plans

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// fields is a decoded JSON object whose members are interpreted lazily, so
// that absent keys can be told apart from zero values
type fields map[string]json.RawMessage

func (f fields) has(key string) bool {
	_, ok := f[key]
	return ok
}

// text returns the member as trimmed text. Numbers are rendered in their
// JSON form; null and absent members are empty.
func (f fields) text(key string) string {
	raw, ok := f[key]
	if !ok {
		return ""
	}
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}

// missing lists the keys whose text is empty, in the order given
func (f fields) missing(keys ...string) []string {
	var out []string
	for _, k := range keys {
		if f.text(k) == "" {
			out = append(out, k)
		}
	}
	return out
}

// integer accepts a JSON number or a numeric string
func (f fields) integer(key string) (int, error) {
	s := f.text(key)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil && v == float64(int(v)) {
		return int(v), nil
	}
	return 0, fmt.Errorf("%s must be an integer", key)
}

// number accepts a JSON number or a numeric string
func (f fields) number(key string) (float64, error) {
	v, err := strconv.ParseFloat(f.text(key), 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number", key)
	}
	return v, nil
}

// ParseOptionalDate reads a YYYY-MM-DD date. Empty, "null" and malformed
// input yield nil rather than an error.
func ParseOptionalDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}
