package keypath

import (
	"encoding/json"
	"reflect"
	"testing"
)

// ---------------------------------------------------------------------------
// Flatten
// ---------------------------------------------------------------------------

func TestFlatten_NestedStringsOnly(t *testing.T) {
	menu := NewObject()
	menu.Put("open", "Open")
	menu.Put("items", json.RawMessage(`["a","b"]`))

	obj := NewObject()
	obj.Put("title", "My App")
	obj.Put("count", json.RawMessage(`3`))
	obj.Put("menu", menu)

	got := Flatten(obj)
	want := map[string]string{
		"title":     "My App",
		"menu.open": "Open",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Flatten = %v, want %v", got, want)
	}
}

func TestFlatten_EmptySegmentsKept(t *testing.T) {
	inner := NewObject()
	inner.Put("", "blank child")
	obj := NewObject()
	obj.Put("", "blank root")
	obj.Put("a", inner)

	got := Flatten(obj)
	if got[""] != "blank root" {
		t.Errorf(`got[""] = %q`, got[""])
	}
	if got["a."] != "blank child" {
		t.Errorf(`got["a."] = %q`, got["a."])
	}
}

func TestFlatten_Nil(t *testing.T) {
	if got := Flatten(nil); len(got) != 0 {
		t.Fatalf("Flatten(nil) = %v", got)
	}
}

func TestFlattenUnflatten_RoundTrip(t *testing.T) {
	cases := []map[string]string{
		{},
		{"a": "1"},
		{"a.b": "1", "a.c": "2", "d": "3"},
		{"x.y.z": "deep", "x.w": "", "q": "Hello, world"},
		{"a..b": "empty middle", "c": "plain"},
	}
	for _, m := range cases {
		got := Flatten(Unflatten(m))
		if !reflect.DeepEqual(got, m) {
			t.Errorf("Flatten(Unflatten(%v)) = %v", m, got)
		}
	}
}

// ---------------------------------------------------------------------------
// Set / Get
// ---------------------------------------------------------------------------

func TestSet_CreatesIntermediates(t *testing.T) {
	obj := NewObject()
	Set(obj, "x.y", "Hi")

	x, ok := obj.Value("x")
	if !ok {
		t.Fatal("x not created")
	}
	xo, ok := x.(*Object)
	if !ok {
		t.Fatalf("x is %T, want *Object", x)
	}
	if v, _ := xo.Value("y"); v != "Hi" {
		t.Fatalf("x.y = %v", v)
	}
}

func TestSet_ReplacesNonObjectIntermediates(t *testing.T) {
	tests := []struct {
		name     string
		existing any
	}{
		{"string", "leaf"},
		{"array", json.RawMessage(`[1,2]`)},
		{"number", json.RawMessage(`42`)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			obj := NewObject()
			obj.Put("before", "kept")
			obj.Put("a", tc.existing)
			obj.Put("after", "kept")

			Set(obj, "a.b", "new")

			if got, ok := Get(obj, "a.b"); !ok || got != "new" {
				t.Fatalf("Get(a.b) = %q, %v", got, ok)
			}
			// Position of the reshaped member is unchanged.
			if keys := obj.Keys(); !reflect.DeepEqual(keys, []string{"before", "a", "after"}) {
				t.Fatalf("keys = %v", keys)
			}
		})
	}
}

func TestSet_OverwritesLeaf(t *testing.T) {
	obj := NewObject()
	Set(obj, "a", "one")
	Set(obj, "a", "two")
	if got, _ := Get(obj, "a"); got != "two" {
		t.Fatalf("a = %q", got)
	}
	if obj.Len() != 1 {
		t.Fatalf("Len = %d, want 1", obj.Len())
	}
}

func TestGet_MissingAndNonObject(t *testing.T) {
	obj := NewObject()
	Set(obj, "a.b", "x")
	obj.Put("arr", json.RawMessage(`["x"]`))

	for _, path := range []string{"missing", "a.missing", "a.b.c", "arr", "arr.0", "a"} {
		if v, ok := Get(obj, path); ok {
			t.Errorf("Get(%q) = %q, true; want not found", path, v)
		}
	}
	if Has(nil, "a") {
		t.Error("Has(nil) = true")
	}
}

func TestLookup_AnyValue(t *testing.T) {
	obj := NewObject()
	Set(obj, "app.title", "T")
	obj.Put("n", json.RawMessage(`3`))

	if v, ok := Lookup(obj, "app"); !ok {
		t.Fatal("Lookup(app) should find the nested object")
	} else if _, isObj := v.(*Object); !isObj {
		t.Fatalf("Lookup(app) = %T, want *Object", v)
	}
	if v, ok := Lookup(obj, "app.title"); !ok || v != "T" {
		t.Fatalf("Lookup(app.title) = %v, %v", v, ok)
	}
	if _, ok := Lookup(obj, "n"); !ok {
		t.Fatal("Lookup(n) should find the raw scalar")
	}
	for _, path := range []string{"missing", "app.missing", "app.title.x", "n.x"} {
		if _, ok := Lookup(obj, path); ok {
			t.Errorf("Lookup(%q) found a value", path)
		}
	}
	if _, ok := Lookup(nil, "a"); ok {
		t.Error("Lookup(nil) found a value")
	}
}

func TestBlocked(t *testing.T) {
	obj := NewObject()
	Set(obj, "app.title", "T")
	obj.Put("n", json.RawMessage(`3`))

	cases := map[string]bool{
		"app.title.x": true,
		"n.x":         true,
		"app.menu":    false,
		"app":         false,
		"new.key":     false,
		"app.title":   false,
	}
	for path, want := range cases {
		if got := Blocked(obj, path); got != want {
			t.Errorf("Blocked(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestSplit_KeepsEmptySegments(t *testing.T) {
	got := Split("a..b")
	want := []string{"a", "", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Split = %#v, want %#v", got, want)
	}
}
