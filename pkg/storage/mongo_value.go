// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"

	"github.com/kraklabs/lazyjson/pkg/codec"
)

// toBSON converts a parsed document (see codec.Parse) into a BSON value.
// Tagged forms are kept as plain sub-documents so the stored value decodes
// back to the same canonical text.
func toBSON(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, string:
		return x, nil
	case json.Number:
		s := x.String()
		if !strings.ContainsAny(s, ".eE") {
			i, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("integer %s does not fit in 64 bits", s)
			}
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("parse number %s: %w", s, err)
		}
		return f, nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		doc := make(bson.D, 0, len(x))
		for _, k := range keys {
			ev, err := toBSON(x[k])
			if err != nil {
				return nil, err
			}
			doc = append(doc, bson.E{Key: k, Value: ev})
		}
		return doc, nil
	case []any:
		arr := make(bson.A, len(x))
		for i, e := range x {
			ev, err := toBSON(e)
			if err != nil {
				return nil, err
			}
			arr[i] = ev
		}
		return arr, nil
	default:
		return nil, &codec.UnsupportedTypeError{Value: v}
	}
}

// fromBSON converts a stored BSON value back into the parsed form accepted
// by codec.Marshal.
func fromBSON(rv bson.RawValue) (any, error) {
	switch rv.Type {
	case bsontype.Null, bsontype.Undefined:
		return nil, nil
	case bsontype.Boolean:
		return rv.Boolean(), nil
	case bsontype.String:
		return rv.StringValue(), nil
	case bsontype.Int32:
		return json.Number(strconv.FormatInt(int64(rv.Int32()), 10)), nil
	case bsontype.Int64:
		return json.Number(strconv.FormatInt(rv.Int64(), 10)), nil
	case bsontype.Double:
		return rv.Double(), nil
	case bsontype.EmbeddedDocument:
		elems, err := rv.Document().Elements()
		if err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		out := make(map[string]any, len(elems))
		for _, e := range elems {
			v, err := fromBSON(e.Value())
			if err != nil {
				return nil, err
			}
			out[e.Key()] = v
		}
		return out, nil
	case bsontype.Array:
		vals, err := rv.Array().Values()
		if err != nil {
			return nil, fmt.Errorf("decode array: %w", err)
		}
		out := make([]any, len(vals))
		for i, e := range vals {
			v, err := fromBSON(e)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported BSON type %s", rv.Type)
	}
}

// encodeValue parses canonical text into a BSON value.
func encodeValue(text string) (any, error) {
	parsed, err := codec.Parse([]byte(text))
	if err != nil {
		return nil, err
	}
	return toBSON(parsed)
}

// decodeValue renders a stored BSON value as canonical text.
func decodeValue(rv bson.RawValue) (string, error) {
	v, err := fromBSON(rv)
	if err != nil {
		return "", err
	}
	return codec.MarshalString(v)
}
