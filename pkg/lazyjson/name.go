// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package lazyjson

import (
	"fmt"
	"strings"

	"github.com/kraklabs/lazyjson/pkg/storage"
)

const nameExt = ".json"

// ParseName splits a document name into hashmap and key.
//
//	"node_attrs/numpy.json" -> (node_attrs, "numpy")
//	"graph.json"            -> (lazy_json, "graph")
func ParseName(name string) (storage.Hashmap, string, error) {
	if !strings.HasSuffix(name, nameExt) {
		return "", "", fmt.Errorf("document name %q must end in %s", name, nameExt)
	}
	stem := strings.TrimSuffix(name, nameExt)
	h := storage.CatchAll
	if dir, key, ok := strings.Cut(stem, "/"); ok {
		hm, err := storage.ParseHashmap(dir)
		if err != nil {
			return "", "", err
		}
		h, stem = hm, key
	}
	if stem == "" || strings.Contains(stem, "/") {
		return "", "", fmt.Errorf("document name %q has an invalid key", name)
	}
	return h, stem, nil
}

// NodeName is the inverse of ParseName.
func NodeName(h storage.Hashmap, key string) string {
	if h == storage.CatchAll {
		return key + nameExt
	}
	return string(h) + "/" + key + nameExt
}
