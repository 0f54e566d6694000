// Package jsonfile implements reading and writing of per-language catalog
// files.
//
// The expected file format is an arbitrarily nested JSON object with string
// leaves, named after its language code (en.json, pt-BR.json):
//
//	{
//	  "app": {
//	    "title": "My App"
//	  }
//	}
//
// Member order is preserved on round-trip. Files are written with 2-space
// indentation and a trailing newline. A leading UTF-8 byte-order mark is
// accepted on read, and an empty file reads as an empty object.
package jsonfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/minios-linux/lokat/keypath"
)

// Ext is the catalog file extension.
const Ext = ".json"

// ErrInvalid is returned when a file is not a JSON object.
var ErrInvalid = errors.New("not a JSON object")

var bom = []byte{0xEF, 0xBB, 0xBF}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// Parse decodes a catalog document. The top-level value must be an object;
// an empty or whitespace-only document is an empty object.
func Parse(data []byte) (*keypath.Object, error) {
	data = bytes.TrimPrefix(data, bom)
	if len(bytes.TrimSpace(data)) == 0 {
		return keypath.NewObject(), nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	obj, err := decodeObject(dec)
	if err != nil {
		return nil, err
	}

	// Trailing garbage after the object is rejected.
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after object", ErrInvalid)
	}
	return obj, nil
}

// decodeObject reads one object from dec, preserving member order.
func decodeObject(dec *json.Decoder) (*keypath.Object, error) {
	t, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if delim, ok := t.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: expected {, got %v", ErrInvalid, t)
	}

	obj := keypath.NewObject()
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		key, ok := kt.(string)
		if !ok {
			return nil, fmt.Errorf("%w: expected string key, got %T", ErrInvalid, kt)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: value for %q: %v", ErrInvalid, key, err)
		}

		value, err := decodeValue(raw)
		if err != nil {
			return nil, err
		}
		obj.Put(key, value)
	}

	// Closing brace.
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return obj, nil
}

func decodeValue(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty value", ErrInvalid)
	}
	switch trimmed[0] {
	case '{':
		return decodeObject(json.NewDecoder(bytes.NewReader(trimmed)))
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return s, nil
	default:
		// Kept verbatim so the file round-trips; never translated.
		return json.RawMessage(append([]byte(nil), trimmed...)), nil
	}
}

// ---------------------------------------------------------------------------
// Marshaling
// ---------------------------------------------------------------------------

// Marshal encodes obj with 2-space indentation and a trailing newline.
func Marshal(obj *keypath.Object) ([]byte, error) {
	var b bytes.Buffer
	if obj == nil {
		obj = keypath.NewObject()
	}
	if err := writeObject(&b, obj, ""); err != nil {
		return nil, err
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func writeObject(b *bytes.Buffer, obj *keypath.Object, indent string) error {
	keys := obj.Keys()
	if len(keys) == 0 {
		b.WriteString("{}")
		return nil
	}

	inner := indent + "  "
	b.WriteString("{\n")
	for i, k := range keys {
		b.WriteString(inner)
		b.WriteString(jsonString(k))
		b.WriteString(": ")

		v, _ := obj.Value(k)
		switch val := v.(type) {
		case string:
			b.WriteString(jsonString(val))
		case *keypath.Object:
			if err := writeObject(b, val, inner); err != nil {
				return err
			}
		case json.RawMessage:
			if err := json.Indent(b, val, inner, "  "); err != nil {
				return fmt.Errorf("encoding %q: %w", k, err)
			}
		default:
			return fmt.Errorf("encoding %q: unsupported value %T", k, v)
		}

		if i < len(keys)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString(indent)
	b.WriteByte('}')
	return nil
}

// jsonString returns s as a JSON string literal without HTML escaping.
func jsonString(s string) string {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return string(bytes.TrimRight(b.Bytes(), "\n"))
}

// ---------------------------------------------------------------------------
// Files
// ---------------------------------------------------------------------------

// Read loads a catalog file. A missing file yields an empty object and no
// error. A file that is not a valid JSON object yields an empty object and an
// error wrapping ErrInvalid, so callers can choose to degrade gracefully.
func Read(path string) (*keypath.Object, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return keypath.NewObject(), nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	obj, err := Parse(data)
	if err != nil {
		return keypath.NewObject(), fmt.Errorf("parsing %s: %w", path, err)
	}
	return obj, nil
}

// Write encodes obj and writes it to path, creating parent directories.
func Write(path string, obj *keypath.Object) error {
	data, err := Marshal(obj)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// LangCode returns the language code encoded in a catalog file name, and
// whether the name is a catalog file at all.
func LangCode(name string) (string, bool) {
	if filepath.Ext(name) != Ext {
		return "", false
	}
	code := name[:len(name)-len(Ext)]
	if code == "" {
		return "", false
	}
	return code, true
}

// FileName returns the catalog file name for a language code.
func FileName(code string) string {
	return code + Ext
}
