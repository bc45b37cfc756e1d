// Package transcode renames object keys between the application naming
// convention (camelCase) and the wire convention (snake_case).
//
// Only plain data is walked: maps with string keys and slices or arrays of
// anything other than bytes. Every other value (structs, pointers, time.Time,
// []byte, json.Number, scalars) is returned unchanged. Typed structs carry
// their own wire names in json tags and are never renamed.
package transcode

import (
	"reflect"
	"strings"
)

// ToWire converts every map key in v from camelCase to snake_case.
func ToWire(v any) any {
	return walk(v, CamelToSnake)
}

// FromWire converts every map key in v from snake_case to camelCase.
func FromWire(v any) any {
	return walk(v, SnakeToCamel)
}

// IsPlain reports whether v is plain data that the transcoder recurses into.
func IsPlain(v any) bool {
	if v == nil {
		return false
	}
	return isPlainType(reflect.TypeOf(v))
}

func isPlainType(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Map:
		return t.Key().Kind() == reflect.String
	case reflect.Slice, reflect.Array:
		return t.Elem().Kind() != reflect.Uint8
	}
	return false
}

func walk(v any, rename func(string) string) any {
	if !IsPlain(v) {
		return v
	}
	return walkValue(reflect.ValueOf(v), rename).Interface()
}

// walkValue returns a renamed copy of rv with the same static type.
func walkValue(rv reflect.Value, rename func(string) string) reflect.Value {
	switch rv.Kind() {
	case reflect.Interface:
		if rv.IsNil() {
			return rv
		}
		inner := rv.Elem()
		if !isPlainType(inner.Type()) {
			return rv
		}
		out := reflect.New(rv.Type()).Elem()
		out.Set(walkValue(inner, rename))
		return out

	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String || rv.IsNil() {
			return rv
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		keyType := rv.Type().Key()
		iter := rv.MapRange()
		for iter.Next() {
			key := reflect.New(keyType).Elem()
			key.SetString(rename(iter.Key().String()))
			out.SetMapIndex(key, walkValue(iter.Value(), rename))
		}
		return out

	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 || rv.IsNil() {
			return rv
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(walkValue(rv.Index(i), rename))
		}
		return out

	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return rv
		}
		out := reflect.New(rv.Type()).Elem()
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(walkValue(rv.Index(i), rename))
		}
		return out
	}
	return rv
}

// CamelToSnake replaces every ASCII uppercase letter X with "_x".
func CamelToSnake(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			b.WriteByte('_')
			b.WriteByte(c + ('a' - 'A'))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// SnakeToCamel replaces every "_x" (x an ASCII lowercase letter) with "X".
// An underscore followed by anything else is kept.
func SnakeToCamel(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' && i+1 < len(s) && s[i+1] >= 'a' && s[i+1] <= 'z' {
			b.WriteByte(s[i+1] - ('a' - 'A'))
			i++
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
