// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package testing provides test helpers shared by the lazyjson packages.
//
// # Quick Start
//
// Use SetupFileBackend for a file cache that lives in memory:
//
//	func TestMyFeature(t *testing.T) {
//	    cache := testing.SetupFileBackend(t)
//	    testing.Seed(t, cache, storage.NodeAttrs, map[string]any{
//	        "numpy": map[string]any{"version": "1.26.4"},
//	    })
//	    require.Equal(t, []string{"numpy"}, testing.Keys(t, cache, storage.NodeAttrs))
//	}
//
// # Recording Calls
//
// Recorder wraps any backend and keeps a log of the operations issued
// through it, which is how tests assert batching and write fan-out:
//
//	mirror := testing.NewRecorder("mirror", testing.SetupMemoryBackend(t))
//	// ... run code against mirror ...
//	require.Len(t, mirror.Calls("MultiGet"), 3)
//
// Import it under an alias to avoid clashing with the standard library:
//
//	import lazytest "github.com/kraklabs/lazyjson/internal/testing"
package testing
