// Package keypath converts between nested JSON object trees and flat
// dot-separated key paths.
//
// A catalog file such as
//
//	{
//	  "app": {
//	    "title": "My App",
//	    "menu": { "open": "Open" }
//	  }
//	}
//
// flattens to {"app.title": "My App", "app.menu.open": "Open"}. Only string
// leaves are translatable; arrays, numbers, booleans and null are kept in the
// tree verbatim but never appear in the flat view.
package keypath

import (
	"sort"
	"strings"
)

// Separator joins path segments.
const Separator = "."

// Object is a JSON object that remembers the order of its keys.
//
// Values are one of: string, *Object, or json.RawMessage for every other JSON
// value (arrays, numbers, booleans, null).
type Object struct {
	keys   []string
	values map[string]any
}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{values: make(map[string]any)}
}

// Keys returns the member names in document order.
func (o *Object) Keys() []string {
	return o.keys
}

// Len returns the number of members.
func (o *Object) Len() int {
	return len(o.keys)
}

// Value returns the raw member value.
func (o *Object) Value(key string) (any, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Put sets a member, appending the key if it is new and keeping its
// position otherwise.
func (o *Object) Put(key string, value any) {
	if o.values == nil {
		o.values = make(map[string]any)
	}
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

// Split breaks a dot path into its segments. Empty segments are kept.
func Split(path string) []string {
	return strings.Split(path, Separator)
}

// Join builds a dot path from a prefix and a child key.
func Join(prefix, key string) string {
	return prefix + Separator + key
}

// ---------------------------------------------------------------------------
// Flat view
// ---------------------------------------------------------------------------

// Flatten returns every string leaf of obj keyed by its dot path.
func Flatten(obj *Object) map[string]string {
	out := make(map[string]string)
	if obj == nil {
		return out
	}
	flattenInto(obj, "", true, out)
	return out
}

func flattenInto(obj *Object, prefix string, root bool, out map[string]string) {
	for _, k := range obj.keys {
		path := k
		if !root {
			path = Join(prefix, k)
		}
		switch v := obj.values[k].(type) {
		case string:
			out[path] = v
		case *Object:
			flattenInto(v, path, false, out)
		}
		// Arrays and other leaves are not translatable.
	}
}

// Unflatten builds a tree from a flat map, inserting paths in sorted order.
func Unflatten(flat map[string]string) *Object {
	paths := make([]string, 0, len(flat))
	for p := range flat {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	obj := NewObject()
	for _, p := range paths {
		Set(obj, p, flat[p])
	}
	return obj
}

// ---------------------------------------------------------------------------
// Single path access
// ---------------------------------------------------------------------------

// Set writes value at path, creating intermediate objects as needed. Any
// intermediate that is not an object (a string, array or scalar) is replaced
// by a fresh empty object, so the last writer decides the shape.
func Set(obj *Object, path, value string) {
	segments := Split(path)
	node := obj
	for _, seg := range segments[:len(segments)-1] {
		child, ok := node.values[seg].(*Object)
		if !ok {
			child = NewObject()
			node.Put(seg, child)
		}
		node = child
	}
	node.Put(segments[len(segments)-1], value)
}

// Get reads the string at path. It reports false when any intermediate is
// missing or not an object, or when the leaf is not a string.
func Get(obj *Object, path string) (string, bool) {
	if obj == nil {
		return "", false
	}
	segments := Split(path)
	node := obj
	for _, seg := range segments[:len(segments)-1] {
		child, ok := node.values[seg].(*Object)
		if !ok {
			return "", false
		}
		node = child
	}
	s, ok := node.values[segments[len(segments)-1]].(string)
	return s, ok
}

// Has reports whether path resolves to a string leaf.
func Has(obj *Object, path string) bool {
	_, ok := Get(obj, path)
	return ok
}

// Lookup returns whatever value sits at path: a string, a nested object or a
// raw JSON scalar or array.
func Lookup(obj *Object, path string) (any, bool) {
	if obj == nil {
		return nil, false
	}
	segments := Split(path)
	node := obj
	for _, seg := range segments[:len(segments)-1] {
		child, ok := node.values[seg].(*Object)
		if !ok {
			return nil, false
		}
		node = child
	}
	return node.Value(segments[len(segments)-1])
}

// Blocked reports whether a proper prefix of path holds a non-object value,
// so that Set(obj, path, ...) would replace it.
func Blocked(obj *Object, path string) bool {
	if obj == nil {
		return false
	}
	segments := Split(path)
	node := obj
	for _, seg := range segments[:len(segments)-1] {
		v, ok := node.values[seg]
		if !ok {
			return false
		}
		child, ok := v.(*Object)
		if !ok {
			return true
		}
		node = child
	}
	return false
}
