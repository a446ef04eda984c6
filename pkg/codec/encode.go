// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package codec

import (
	"bytes"
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

const hexDigits = "0123456789ABCDEF"

// Marshal returns the canonical serialization of v.
func Marshal(v any) ([]byte, error) {
	e := &encoder{}
	if err := e.value(v, 0); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

// MarshalString is Marshal returning a string, the form backends store.
func MarshalString(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) newline(depth int) {
	e.buf.WriteByte('\n')
	for i := 0; i < depth; i++ {
		e.buf.WriteByte(' ')
	}
}

func (e *encoder) value(v any, depth int) error {
	switch x := v.(type) {
	case nil:
		e.buf.WriteString("null")
	case bool:
		if x {
			e.buf.WriteString("true")
		} else {
			e.buf.WriteString("false")
		}
	case string:
		e.str(x)
	case json.Number:
		return e.number(x)
	case int:
		e.buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int8:
		e.buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int16:
		e.buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int32:
		e.buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int64:
		e.buf.WriteString(strconv.FormatInt(x, 10))
	case uint:
		e.buf.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint8:
		e.buf.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint16:
		e.buf.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint32:
		e.buf.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint64:
		e.buf.WriteString(strconv.FormatUint(x, 10))
	case float32:
		return e.float(v, float64(x))
	case float64:
		return e.float(v, x)
	case map[string]any:
		return e.object(len(x), sortedKeys(x), func(k string) any { return x[k] }, depth)
	case map[string]string:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return e.object(len(x), keys, func(k string) any { return x[k] }, depth)
	case []any:
		return e.array(len(x), func(i int) any { return x[i] }, depth)
	case []string:
		return e.array(len(x), func(i int) any { return x[i] }, depth)
	case Set:
		elems := x.Sorted()
		return e.object(2, []string{SetTag, SetElements}, func(k string) any {
			if k == SetTag {
				return true
			}
			return elems
		}, depth)
	case Referencer:
		name := x.LazyJSONName()
		return e.object(1, []string{RefTag}, func(string) any { return name }, depth)
	case []byte:
		return &UnsupportedTypeError{Value: v}
	default:
		return e.reflectValue(v, depth)
	}
	return nil
}

// reflectValue handles named slice and map types that the fast path above
// does not list.
func (e *encoder) reflectValue(v any, depth int) error {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			e.buf.WriteString("null")
			return nil
		}
		return e.array(rv.Len(), func(i int) any { return rv.Index(i).Interface() }, depth)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return &UnsupportedTypeError{Value: v}
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		kt := rv.Type().Key()
		return e.object(len(keys), keys, func(k string) any {
			return rv.MapIndex(reflect.ValueOf(k).Convert(kt)).Interface()
		}, depth)
	}
	return &UnsupportedTypeError{Value: v}
}

func (e *encoder) object(n int, keys []string, get func(string) any, depth int) error {
	if n == 0 {
		e.buf.WriteString("{}")
		return nil
	}
	e.buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		e.newline(depth + 1)
		e.str(k)
		e.buf.WriteString(": ")
		if err := e.value(get(k), depth+1); err != nil {
			return err
		}
	}
	e.newline(depth)
	e.buf.WriteByte('}')
	return nil
}

func (e *encoder) array(n int, get func(int) any, depth int) error {
	if n == 0 {
		e.buf.WriteString("[]")
		return nil
	}
	e.buf.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		e.newline(depth + 1)
		if err := e.value(get(i), depth+1); err != nil {
			return err
		}
	}
	e.newline(depth)
	e.buf.WriteByte(']')
	return nil
}

func (e *encoder) str(s string) {
	e.buf.WriteByte('"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch {
			case c == '"':
				e.buf.WriteString(`\"`)
			case c == '\\':
				e.buf.WriteString(`\\`)
			case c == '\b':
				e.buf.WriteString(`\b`)
			case c == '\f':
				e.buf.WriteString(`\f`)
			case c == '\n':
				e.buf.WriteString(`\n`)
			case c == '\r':
				e.buf.WriteString(`\r`)
			case c == '\t':
				e.buf.WriteString(`\t`)
			case c < 0x20:
				e.escape(rune(c))
			default:
				e.buf.WriteByte(c)
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r > 0xFFFF {
			r1, r2 := utf16.EncodeRune(r)
			e.escape(r1)
			e.escape(r2)
		} else {
			e.escape(r)
		}
		i += size
	}
	e.buf.WriteByte('"')
}

func (e *encoder) escape(r rune) {
	e.buf.WriteString(`\u`)
	e.buf.WriteByte(hexDigits[(r>>12)&0xF])
	e.buf.WriteByte(hexDigits[(r>>8)&0xF])
	e.buf.WriteByte(hexDigits[(r>>4)&0xF])
	e.buf.WriteByte(hexDigits[r&0xF])
}

// number writes integers verbatim and normalizes reals so that a parsed
// "1e2" re-serializes as "100.0", matching what an in-memory float would.
func (e *encoder) number(n json.Number) error {
	s := n.String()
	if s == "" {
		return &UnsupportedTypeError{Value: n}
	}
	if !strings.ContainsAny(s, ".eE") {
		e.buf.WriteString(s)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return &UnsupportedTypeError{Value: n}
	}
	return e.float(n, f)
}

func (e *encoder) float(orig any, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return &UnsupportedTypeError{Value: orig}
	}
	e.buf.WriteString(FormatFloat(f))
	return nil
}

// FormatFloat lays out the shortest round-trip digits of f in the canonical
// style: "1.0", "12.34", "0.001234", "1e30", "1.234e-7".
func FormatFloat(f float64) string {
	var sb strings.Builder
	if math.Signbit(f) {
		sb.WriteByte('-')
		f = -f
	}
	sci := strconv.FormatFloat(f, 'e', -1, 64)
	mant, expPart, _ := strings.Cut(sci, "e")
	digits := strings.Replace(mant, ".", "", 1)
	exp, _ := strconv.Atoi(expPart)

	length := len(digits)
	kk := exp + 1 // position of the decimal point relative to digits
	k := kk - length

	switch {
	case k >= 0 && kk <= 21:
		sb.WriteString(digits)
		sb.WriteString(strings.Repeat("0", k))
		sb.WriteString(".0")
	case kk > 0 && kk <= 21:
		sb.WriteString(digits[:kk])
		sb.WriteByte('.')
		sb.WriteString(digits[kk:])
	case kk > -6 && kk <= 0:
		sb.WriteString("0.")
		sb.WriteString(strings.Repeat("0", -kk))
		sb.WriteString(digits)
	case length == 1:
		sb.WriteString(digits)
		sb.WriteByte('e')
		sb.WriteString(strconv.Itoa(kk - 1))
	default:
		sb.WriteString(digits[:1])
		sb.WriteByte('.')
		sb.WriteString(digits[1:])
		sb.WriteByte('e')
		sb.WriteString(strconv.Itoa(kk - 1))
	}
	return sb.String()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
