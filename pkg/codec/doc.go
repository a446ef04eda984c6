// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package codec implements the canonical serialization and content hashing
// used by every lazyjson backend.
//
// Documents are JSON trees extended with two tagged forms:
//
//   - Weak references, written as {"__lazy_json__": "<name>"}, decode to Ref.
//   - String sets, written as {"__set__": true, "elements": [...]}, decode to
//     Set. Elements are sorted on output so the bytes do not depend on map
//     iteration order.
//
// # Canonical Form
//
// Marshal writes object keys sorted by code point, indents nested values by
// one space per level, escapes every non-ASCII rune as \uXXXX and lays out
// floating point numbers the way the historical encoder did. Stored data is
// hashed over exactly these bytes, so any change to the layout invalidates
// every content hash in every backend.
//
//	data, err := codec.Marshal(map[string]any{
//	    "name":  "numpy",
//	    "deps":  codec.NewSet("python", "cython"),
//	    "attrs": codec.Ref{Name: "node_attrs/numpy.json"},
//	})
//	sum := codec.Hash(data)
//
// # Decoding
//
// Unmarshal parses with number preservation (json.Number) and then converts
// tagged objects into Ref and Set values. Parse skips the tagged step and is
// meant for code that stores values verbatim.
package codec
