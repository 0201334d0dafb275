// Package dashboard rewrites Grafana dashboard JSON so that it no longer
// depends on the multi-cluster template variables of kube-prometheus-stack.
//
// Dashboards are decoded into insertion-ordered objects so that a rewritten
// dashboard keeps the key order of its source and diffs stay readable.
package dashboard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Object is a JSON object that remembers the order of its keys.
type Object = orderedmap.OrderedMap[string, any]

// NewObject returns an empty Object.
func NewObject() *Object {
	return orderedmap.New[string, any]()
}

// Dashboard is a parsed Grafana dashboard. Only the templating list is
// interpreted; every other field is carried through untouched.
type Dashboard struct {
	Root *Object
}

// ErrNotObject is returned when a document's top-level value is not a JSON
// object.
var ErrNotObject = errors.New("dashboard is not a JSON object")

// Parse decodes dashboard JSON. Numbers keep their literal representation.
func Parse(data []byte) (*Dashboard, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}

	root, ok := v.(*Object)
	if !ok {
		return nil, ErrNotObject
	}

	return &Dashboard{Root: root}, nil
}

// Decode decodes a single JSON value. Objects become *Object, arrays
// []any, numbers json.Number.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("decoding JSON: %w", err)
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding JSON: unexpected data after top-level value")
	}

	return v, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		obj := NewObject()

		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}

			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("object key is %T, not string", keyTok)
			}

			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}

			obj.Set(key, val)
		}

		if _, err := dec.Token(); err != nil {
			return nil, err
		}

		return obj, nil
	case '[':
		arr := make([]any, 0)

		for dec.More() {
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}

			arr = append(arr, val)
		}

		if _, err := dec.Token(); err != nil {
			return nil, err
		}

		return arr, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %q", delim)
	}
}

// MarshalIndent renders the dashboard as JSON indented by two spaces with a
// trailing newline. Non-ASCII and HTML characters are written literally.
func (d *Dashboard) MarshalIndent() ([]byte, error) {
	return Encode(d.Root, "  ")
}

// Encode renders v as JSON. An empty indent produces the single-line form
// with ", " and ": " separators; otherwise every element goes on its own
// line.
func Encode(v any, indent string) ([]byte, error) {
	var buf bytes.Buffer

	if err := writeValue(&buf, v, indent, 0); err != nil {
		return nil, err
	}

	if indent != "" {
		buf.WriteByte('\n')
	}

	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, v any, indent string, level int) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	case json.Number:
		buf.WriteString(val.String())
	case int:
		buf.WriteString(strconv.Itoa(val))
	case float64:
		buf.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case string:
		return writeString(buf, val)
	case *Object:
		return writeObject(buf, val, indent, level)
	case []any:
		return writeArray(buf, val, indent, level)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("encoding %T: %w", val, err)
		}

		buf.Write(b)
	}

	return nil
}

func writeObject(buf *bytes.Buffer, obj *Object, indent string, level int) error {
	if obj.Len() == 0 {
		buf.WriteString("{}")
		return nil
	}

	buf.WriteByte('{')

	first := true

	for pair := obj.Oldest(); pair != nil; pair = pair.Next() {
		if !first {
			buf.WriteByte(',')

			if indent == "" {
				buf.WriteByte(' ')
			}
		}

		first = false

		newline(buf, indent, level+1)

		if err := writeString(buf, pair.Key); err != nil {
			return err
		}

		buf.WriteString(": ")

		if err := writeValue(buf, pair.Value, indent, level+1); err != nil {
			return err
		}
	}

	newline(buf, indent, level)
	buf.WriteByte('}')

	return nil
}

func writeArray(buf *bytes.Buffer, arr []any, indent string, level int) error {
	if len(arr) == 0 {
		buf.WriteString("[]")
		return nil
	}

	buf.WriteByte('[')

	for i, item := range arr {
		if i > 0 {
			buf.WriteByte(',')

			if indent == "" {
				buf.WriteByte(' ')
			}
		}

		newline(buf, indent, level+1)

		if err := writeValue(buf, item, indent, level+1); err != nil {
			return err
		}
	}

	newline(buf, indent, level)
	buf.WriteByte(']')

	return nil
}

func newline(buf *bytes.Buffer, indent string, level int) {
	if indent == "" {
		return
	}

	buf.WriteByte('\n')

	for range level {
		buf.WriteString(indent)
	}
}

// writeString quotes s without escaping HTML characters.
func writeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer

	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encoding string: %w", err)
	}

	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))

	return nil
}
