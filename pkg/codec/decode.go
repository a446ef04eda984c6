// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Parse decodes a JSON document into plain maps, slices and json.Number
// values. Tagged objects are left untouched.
func Parse(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse document: trailing data after top-level value")
	}
	return v, nil
}

// Unmarshal decodes a canonical document, turning tagged objects into Ref
// and Set values.
func Unmarshal(data []byte) (any, error) {
	v, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return decodeTagged(v)
}

// UnmarshalString is Unmarshal for a document held as a string.
func UnmarshalString(s string) (any, error) {
	return Unmarshal([]byte(s))
}

func decodeTagged(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		if raw, ok := x[RefTag]; ok {
			name, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s must be a string, got %T", ErrMalformedTag, RefTag, raw)
			}
			return Ref{Name: name}, nil
		}
		if _, ok := x[SetTag]; ok {
			return decodeSet(x)
		}
		for k, child := range x {
			dv, err := decodeTagged(child)
			if err != nil {
				return nil, err
			}
			x[k] = dv
		}
		return x, nil
	case []any:
		for i, child := range x {
			dv, err := decodeTagged(child)
			if err != nil {
				return nil, err
			}
			x[i] = dv
		}
		return x, nil
	default:
		return v, nil
	}
}

func decodeSet(obj map[string]any) (Set, error) {
	raw, ok := obj[SetElements]
	if !ok {
		return nil, fmt.Errorf("%w: set without %q", ErrMalformedTag, SetElements)
	}
	elems, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: set %q must be an array, got %T", ErrMalformedTag, SetElements, raw)
	}
	s := make(Set, len(elems))
	for _, e := range elems {
		str, ok := e.(string)
		if !ok {
			return nil, fmt.Errorf("%w: set element %v is %T, want string", ErrMalformedTag, e, e)
		}
		s.Add(str)
	}
	return s, nil
}
