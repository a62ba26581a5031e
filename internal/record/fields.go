package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeKey turns a display label into a field key.
//
// "Balance Due:" -> "balance_due"
// "Date/Time Issued" -> "date_time_issued"
func NormalizeKey(label string) string {
	label = strings.ReplaceAll(label, "\u00a0", " ")
	label = strings.TrimSpace(label)
	label = strings.TrimRight(label, ":")
	label = strings.TrimSpace(label)
	label = whitespaceRegex.ReplaceAllString(label, " ")
	label = strings.ToLower(label)
	label = strings.ReplaceAll(label, " ", "_")
	label = strings.ReplaceAll(label, "/", "_")
	return label
}

// Fields is an insertion ordered map of normalized keys to display values.
// The zero value is ready to use.
type Fields struct {
	keys   []string
	values map[string]string
}

// Set stores value under key. A key that is already present keeps its
// original position and takes the new value.
func (f *Fields) Set(key, value string) {
	if f.values == nil {
		f.values = map[string]string{}
	}
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

func (f Fields) Get(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Value returns the value under key or an empty string.
func (f Fields) Value(key string) string {
	return f.values[key]
}

func (f Fields) Has(key string) bool {
	_, ok := f.values[key]
	return ok
}

func (f Fields) Len() int {
	return len(f.keys)
}

// Keys returns the keys in insertion order.
func (f Fields) Keys() []string {
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

// Each calls fn for every entry in insertion order.
func (f Fields) Each(fn func(key, value string)) {
	for _, k := range f.keys {
		fn(k, f.values[k])
	}
}

// Clone returns a copy that does not share storage with f.
func (f Fields) Clone() Fields {
	out := Fields{}
	f.Each(out.Set)
	return out
}

// Map returns the entries as an unordered map.
func (f Fields) Map() map[string]string {
	out := make(map[string]string, len(f.keys))
	f.Each(func(k, v string) {
		out[k] = v
	})
	return out
}

func (f Fields) MarshalJSON() ([]byte, error) {
	var buffer bytes.Buffer
	buffer.WriteByte('{')
	for i, k := range f.keys {
		if i > 0 {
			buffer.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f.values[k])
		if err != nil {
			return nil, err
		}
		buffer.Write(key)
		buffer.WriteByte(':')
		buffer.Write(value)
	}
	buffer.WriteByte('}')
	return buffer.Bytes(), nil
}

// UnmarshalJSON reads a flat JSON object, keeping the document order of its keys.
// Non-string values are stored as their JSON text.
func (f *Fields) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	tok, err := decoder.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*f = Fields{}
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("fields: expected object, got %v", tok)
	}

	out := Fields{}
	for decoder.More() {
		tok, err := decoder.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("fields: expected key, got %v", tok)
		}

		var raw json.RawMessage
		err = decoder.Decode(&raw)
		if err != nil {
			return err
		}

		var value string
		err = json.Unmarshal(raw, &value)
		if err != nil {
			trimmed := strings.TrimSpace(string(raw))
			if trimmed == "null" {
				trimmed = ""
			}
			value = trimmed
		}
		out.Set(key, value)
	}

	*f = out
	return nil
}
