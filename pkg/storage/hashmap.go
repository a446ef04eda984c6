// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package storage

import "fmt"

// Hashmap names a collection of documents.
type Hashmap string

// Known hashmaps.
const (
	// CatchAll holds miscellaneous top-level documents. The file backend
	// stores it flat at the root directory.
	CatchAll Hashmap = "lazy_json"

	PRJSON        Hashmap = "pr_json"
	PRInfo        Hashmap = "pr_info"
	VersionPRInfo Hashmap = "version_pr_info"
	Versions      Hashmap = "versions"
	NodeAttrs     Hashmap = "node_attrs"
)

var enumerated = []Hashmap{PRJSON, PRInfo, VersionPRInfo, Versions, NodeAttrs}

// Hashmaps returns the enumerated hashmaps, without the catch-all.
func Hashmaps() []Hashmap {
	return append([]Hashmap(nil), enumerated...)
}

// AllHashmaps returns the enumerated hashmaps followed by the catch-all.
func AllHashmaps() []Hashmap {
	return append(Hashmaps(), CatchAll)
}

// Validate returns an error wrapping ErrUnknownHashmap if h is not known.
func (h Hashmap) Validate() error {
	if h == CatchAll {
		return nil
	}
	for _, known := range enumerated {
		if h == known {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownHashmap, string(h))
}

// ParseHashmap validates s as a hashmap name.
func ParseHashmap(s string) (Hashmap, error) {
	h := Hashmap(s)
	if err := h.Validate(); err != nil {
		return "", err
	}
	return h, nil
}

func (h Hashmap) String() string { return string(h) }
