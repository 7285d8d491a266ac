// Package query turns structured report queries into canonical query strings.
//
// The canonical string is both the HTTP query sent to the cost-management API
// and the second half of a cache key, so equivalent queries must always encode
// to the same bytes: map keys are sorted at every depth, nested maps are
// flattened into bracket notation (filter[resolution]=monthly) and nil values
// are dropped.
package query

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"slices"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrCircularQuery is returned when a map or slice contains itself
	ErrCircularQuery = errors.New("query contains a circular reference")

	// ErrUnsupportedValue is returned for values that have no query string form
	ErrUnsupportedValue = errors.New("query value cannot be serialized")

	// ErrMalformedQuery is returned by Parse for inconsistent bracket keys
	ErrMalformedQuery = errors.New("malformed query string")
)

// Query is a report query: filters, group-by, order-by and pagination keys.
// Values may be scalars, slices (multi-value filters) or nested maps.
type Query map[string]any

// Canonicalize encodes q into its canonical query string.
// Semantically identical queries produce identical output regardless of map
// insertion order. An empty or nil query encodes to "".
func Canonicalize(q Query) (string, error) {
	enc := &encoder{}
	if err := enc.encode("", reflect.ValueOf(map[string]any(q))); err != nil {
		return "", err
	}
	return strings.Join(enc.pairs, "&"), nil
}

// MustCanonicalize is like Canonicalize but panics on error.
// Intended for static queries declared at package level.
func MustCanonicalize(q Query) string {
	s, err := Canonicalize(q)
	if err != nil {
		panic(err)
	}
	return s
}

type encoder struct {
	pairs []string
	// containers on the current path, for cycle detection
	path []uintptr
}

var stringerType = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()

func (e *encoder) encode(name string, v reflect.Value) error {
	// pointers unwrapped for this value; a repeat means a pointer cycle
	var seen []uintptr
	for {
		if !v.IsValid() {
			return nil
		}
		if v.Type().Implements(stringerType) && v.Kind() != reflect.Map && v.Kind() != reflect.Slice {
			if (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) && v.IsNil() {
				return nil
			}
			e.add(name, v.Interface().(fmt.Stringer).String())
			return nil
		}
		if v.Kind() != reflect.Pointer && v.Kind() != reflect.Interface {
			break
		}
		if v.IsNil() {
			return nil
		}
		if v.Kind() == reflect.Pointer {
			ptr := v.Pointer()
			if slices.Contains(seen, ptr) {
				return fmt.Errorf("%w at %q", ErrCircularQuery, name)
			}
			seen = append(seen, ptr)
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Map:
		return e.encodeMap(name, v)
	case reflect.Slice, reflect.Array:
		return e.encodeList(name, v)
	case reflect.String:
		e.add(name, v.String())
	case reflect.Bool:
		e.add(name, strconv.FormatBool(v.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.add(name, strconv.FormatInt(v.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		e.add(name, strconv.FormatUint(v.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		e.add(name, strconv.FormatFloat(v.Float(), 'f', -1, v.Type().Bits()))
	default:
		return fmt.Errorf("%w: %s at %q", ErrUnsupportedValue, v.Type(), name)
	}
	return nil
}

func (e *encoder) encodeMap(name string, v reflect.Value) error {
	if v.Type().Key().Kind() != reflect.String {
		return fmt.Errorf("%w: map key type %s at %q", ErrUnsupportedValue, v.Type().Key(), name)
	}
	if v.Len() == 0 {
		return nil
	}
	leave, err := e.enter(name, v)
	if err != nil {
		return err
	}
	defer leave()

	type field struct {
		key   string
		value reflect.Value
	}
	fields := make([]field, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		fields = append(fields, field{key: iter.Key().String(), value: iter.Value()})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].key < fields[j].key })

	for _, f := range fields {
		if err := e.encode(childName(name, f.key), f.value); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) encodeList(name string, v reflect.Value) error {
	if name == "" {
		return fmt.Errorf("%w: top-level list", ErrUnsupportedValue)
	}
	if v.Len() == 0 {
		return nil
	}
	if v.Kind() == reflect.Slice {
		leave, err := e.enter(name, v)
		if err != nil {
			return err
		}
		defer leave()
	}
	for i := 0; i < v.Len(); i++ {
		if err := e.encode(name, v.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

// enter pushes a map or slice onto the current path and fails if it is
// already there.
func (e *encoder) enter(name string, v reflect.Value) (func(), error) {
	ptr := v.Pointer()
	for _, p := range e.path {
		if p == ptr {
			return nil, fmt.Errorf("%w at %q", ErrCircularQuery, name)
		}
	}
	e.path = append(e.path, ptr)
	return func() { e.path = e.path[:len(e.path)-1] }, nil
}

func (e *encoder) add(name, value string) {
	e.pairs = append(e.pairs, name+"="+url.QueryEscape(value))
}

func childName(parent, key string) string {
	if parent == "" {
		return url.QueryEscape(key)
	}
	return parent + "[" + url.QueryEscape(key) + "]"
}
