// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package codec

// Clone deep-copies the maps, slices and sets of a decoded document so the
// copy can be handed out without aliasing the original.
func Clone(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, child := range x {
			out[k] = Clone(child)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, child := range x {
			out[i] = Clone(child)
		}
		return out
	case Set:
		out := make(Set, len(x))
		for e := range x {
			out[e] = struct{}{}
		}
		return out
	default:
		return v
	}
}
