package validator

import (
	"reflect"
	"strings"
)

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
)

// SanitizeString escapes the HTML special characters of s. Applying it twice
// escapes the ampersands introduced by the first pass again.
func SanitizeString(s string) string {
	return htmlEscaper.Replace(s)
}

// SanitizeData returns a copy of value with every string leaf escaped by
// SanitizeString. Structs, pointers, slices, arrays and maps keep their
// shape; map keys and non-string leaves are left untouched.
func SanitizeData(value any) any {
	if value == nil {
		return nil
	}
	return sanitizeValue(reflect.ValueOf(value)).Interface()
}

// Sanitize is SanitizeData for a concrete type.
func Sanitize[T any](value T) T {
	out, ok := SanitizeData(value).(T)
	if !ok {
		return value
	}
	return out
}

func sanitizeValue(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.String:
		out := reflect.New(v.Type()).Elem()
		out.SetString(SanitizeString(v.String()))
		return out

	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type().Elem())
		out.Elem().Set(sanitizeValue(v.Elem()))
		return out

	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(sanitizeValue(v.Elem()))
		return out

	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		for i := 0; i < v.NumField(); i++ {
			if !out.Field(i).CanSet() {
				continue
			}
			out.Field(i).Set(sanitizeValue(v.Field(i)))
		}
		return out

	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(sanitizeValue(v.Index(i)))
		}
		return out

	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(sanitizeValue(v.Index(i)))
		}
		return out

	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), sanitizeValue(iter.Value()))
		}
		return out
	}
	return v
}
