// Package alert defines the EDR and NGAV alert schemas carried on source topics.
package alert

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

var (
	ErrNotObject    = errors.New("payload is not a JSON object")
	ErrMissingField = errors.New("missing required field")
)

// Document is a decoded JSON object together with the bytes it came from.
type Document struct {
	Raw    []byte
	Fields map[string]json.RawMessage
}

// Decode parses raw as a JSON object.
func Decode(raw []byte) (*Document, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if fields == nil {
		return nil, ErrNotObject
	}
	return &Document{Raw: raw, Fields: fields}, nil
}

// Has reports whether key is present with a non-null value.
func (d *Document) Has(key string) bool {
	v, ok := d.Fields[key]
	if !ok {
		return false
	}
	return !bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// HasAll reports whether every key is present with a non-null value.
func (d *Document) HasAll(keys ...string) bool {
	for _, k := range keys {
		if !d.Has(k) {
			return false
		}
	}
	return true
}

// parseStrict decodes d into out after checking that every JSON field of the
// target struct is present and non-null, including the fields of nested
// objects and of every element of arrays of objects. Extra fields in the
// document are ignored.
func parseStrict(d *Document, out any) error {
	missing := missingKeys(d.Fields, reflect.TypeOf(out).Elem(), "")
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}
	return json.Unmarshal(d.Raw, out)
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// missingKeys lists the absent or null fields of t in obj, prefixed with
// prefix. Values of the wrong JSON type are left for json.Unmarshal to reject.
func missingKeys(obj map[string]json.RawMessage, t reflect.Type, prefix string) []string {
	var missing []string
	for _, f := range requiredFields(t) {
		raw, ok := obj[f.name]
		if !ok || isNull(raw) {
			missing = append(missing, prefix+f.name)
			continue
		}
		switch {
		case f.typ.Kind() == reflect.Struct:
			var nested map[string]json.RawMessage
			if json.Unmarshal(raw, &nested) == nil {
				missing = append(missing, missingKeys(nested, f.typ, prefix+f.name+".")...)
			}
		case f.typ.Kind() == reflect.Slice && f.typ.Elem().Kind() == reflect.Struct:
			var items []json.RawMessage
			if json.Unmarshal(raw, &items) != nil {
				continue
			}
			for i, item := range items {
				path := fmt.Sprintf("%s%s[%d]", prefix, f.name, i)
				if isNull(item) {
					missing = append(missing, path)
					continue
				}
				var nested map[string]json.RawMessage
				if json.Unmarshal(item, &nested) == nil {
					missing = append(missing, missingKeys(nested, f.typ.Elem(), path+".")...)
				}
			}
		}
	}
	return missing
}

type requiredField struct {
	name string
	typ  reflect.Type
}

var requiredCache sync.Map

func requiredFields(t reflect.Type) []requiredField {
	if cached, ok := requiredCache.Load(t); ok {
		return cached.([]requiredField)
	}
	fields := make([]requiredField, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		fields = append(fields, requiredField{name: name, typ: sf.Type})
	}
	requiredCache.Store(t, fields)
	return fields
}

// SeverityLabel maps the vendor severity scale (1 is most severe) to a label.
func SeverityLabel(severity uint8) string {
	switch severity {
	case 1:
		return "critical"
	case 2:
		return "high"
	case 3:
		return "medium"
	case 4:
		return "low"
	default:
		return "unknown"
	}
}
