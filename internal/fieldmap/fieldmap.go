// Package fieldmap maps column and property names to struct fields. Nested
// structs are flattened (except time.Time and sql.Scanner implementations) and
// `db:"name"` tags override field names. Maps are cached per type.
package fieldmap

import (
	"database/sql"
	"reflect"
	"strings"
)

// DefaultCacheSize bounds the number of types kept in the hot cache generation.
const DefaultCacheSize = 4096

var scannerIface = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

var structIndexCache = NewCache[reflect.Type, *Map](DefaultCacheSize)

// Field describes a leaf field reachable by name.
type Field struct {
	Index     []int // full index path for FieldByIndex-like ops
	Ambiguous bool  // several fields share the name
}

// Map resolves names to fields. Exact names win over case-insensitive ones,
// so `contactId` finds a field ContactID with no tag.
type Map struct {
	exact map[string]Field
	fold  map[string]Field
}

// Lookup returns the field registered for name.
func (m *Map) Lookup(name string) (Field, bool) {
	if f, ok := m.exact[name]; ok {
		return f, true
	}
	f, ok := m.fold[strings.ToLower(name)]
	return f, ok
}

// Len returns the number of distinct exact names.
func (m *Map) Len() int { return len(m.exact) }

func (m *Map) add(name string, f Field) {
	addTo(m.exact, name, f)
	addTo(m.fold, strings.ToLower(name), f)
}

func addTo(m map[string]Field, name string, f Field) {
	if prev, exists := m[name]; exists {
		if !prev.Ambiguous {
			m[name] = Field{Ambiguous: true}
		}
		return
	}
	m[name] = f
}

// Of returns the (cached) field map of t, which may be a pointer to a struct.
// Non-struct types yield an empty map.
func Of(t reflect.Type) *Map {
	if m, ok := structIndexCache.Get(t); ok {
		return m
	}

	base := t
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	m := &Map{exact: map[string]Field{}, fold: map[string]Field{}}
	if base.Kind() != reflect.Struct {
		structIndexCache.Put(t, m)
		return m
	}

	visited := map[reflect.Type]bool{}
	var walk func(rt reflect.Type, path []int)
	walk = func(rt reflect.Type, path []int) {
		for rt.Kind() == reflect.Pointer {
			rt = rt.Elem()
		}
		if rt.Kind() != reflect.Struct || visited[rt] {
			return
		}
		visited[rt] = true
		defer delete(visited, rt)

		for i := 0; i < rt.NumField(); i++ {
			f := rt.Field(i)
			if f.PkgPath != "" {
				continue
			}
			tag := f.Tag.Get("db")
			if tag == "-" {
				continue
			}
			name := f.Name
			if tag != "" {
				if n, _, _ := strings.Cut(tag, ","); n != "" {
					name = n
				}
			}
			if ShouldFlatten(f.Type) {
				walk(f.Type, appendIndex(path, i))
				continue
			}
			m.add(name, Field{Index: appendIndex(path, i)})
		}
	}
	walk(base, nil)
	structIndexCache.Put(t, m)
	return m
}

// ShouldFlatten reports whether a field of type ft is descended into.
func ShouldFlatten(ft reflect.Type) bool {
	if reflect.PointerTo(ft).Implements(scannerIface) || ft.Implements(scannerIface) {
		return false
	}
	tt := ft
	if tt.Kind() == reflect.Pointer {
		tt = tt.Elem()
	}
	if tt.Kind() != reflect.Struct {
		return false
	}
	return !(tt.PkgPath() == "time" && tt.Name() == "Time")
}

// IsScanner reports whether *t or t implements sql.Scanner.
func IsScanner(t reflect.Type) bool {
	return reflect.PointerTo(t).Implements(scannerIface) || t.Implements(scannerIface)
}

func appendIndex(path []int, idx int) []int {
	out := make([]int, len(path)+1)
	copy(out, path)
	out[len(path)] = idx
	return out
}

// Get reads name from row: a map with string keys or a struct, possibly
// behind pointers and interfaces. Ambiguous struct fields are not found.
func Get(row any, name string) (any, bool) {
	if m, ok := row.(map[string]any); ok {
		v, ok := m[name]
		return v, ok
	}
	rv := Indirect(reflect.ValueOf(row))
	switch rv.Kind() {
	case reflect.Map:
		keyT := rv.Type().Key()
		key := reflect.ValueOf(name)
		if key.Type() != keyT {
			if !key.Type().ConvertibleTo(keyT) {
				return nil, false
			}
			key = key.Convert(keyT)
		}
		if v := rv.MapIndex(key); v.IsValid() {
			return v.Interface(), true
		}
	case reflect.Struct:
		if f, ok := Of(rv.Type()).Lookup(name); ok && !f.Ambiguous {
			return Value(rv, f.Index)
		}
	}
	return nil, false
}

// Indirect unwraps interfaces and pointers down to a concrete value. A nil
// pointer is returned as is.
func Indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer) {
		if v.IsNil() {
			return v
		}
		v = v.Elem()
	}
	return v
}

// Value extracts the value at the end of path. A nil pointer along the path
// yields (nil, true), i.e. SQL NULL; (nil, false) means the path does not fit.
func Value(root reflect.Value, path []int) (any, bool) {
	v := root
	for v.IsValid() && v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, true
		}
		v = v.Elem()
	}
	for i, idx := range path {
		for v.IsValid() && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return nil, true
			}
			v = v.Elem()
		}
		if !v.IsValid() || v.Kind() != reflect.Struct {
			return nil, false
		}
		v = v.Field(idx)
		if i == len(path)-1 {
			for v.IsValid() && v.Kind() == reflect.Interface {
				if v.IsNil() {
					return nil, true
				}
				v = v.Elem()
			}
			if v.Kind() == reflect.Pointer && v.IsNil() {
				return nil, true
			}
			return v.Interface(), true
		}
	}
	return nil, false
}

// Alloc walks root by path, allocating intermediate nil pointers, and returns
// the leaf field (a leaf pointer is not allocated).
func Alloc(root reflect.Value, path []int) reflect.Value {
	v := root
	for i, idx := range path {
		f := v.Field(idx)
		if i == len(path)-1 {
			return f
		}
		if f.Kind() == reflect.Pointer {
			if f.IsNil() {
				f.Set(reflect.New(f.Type().Elem()))
			}
			v = f.Elem()
		} else {
			v = f
		}
	}
	return v
}

// Set stores value into the field at path, allocating intermediate pointers.
func Set(root reflect.Value, path []int, value reflect.Value) {
	Alloc(root, path).Set(value)
}
