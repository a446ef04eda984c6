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

// Package storage provides the key/value backends behind lazy documents.
//
// Every backend implements the Backend interface: a set of named hashmaps,
// each mapping string keys to canonical JSON text. The same document can
// live in several backends at once; the syncer package keeps them aligned.
//
// # Available Backends
//
//   - FileBackend: one JSON file per document in a sharded directory tree,
//     optionally kept in sync with git
//   - MongoBackend: one collection per hashmap in a MongoDB database
//   - MemoryBackend: process-local maps, for tests and dry runs
//
// # Hashmaps
//
// The known hashmaps are pr_json, pr_info, version_pr_info, versions and
// node_attrs, plus the lazy_json catch-all. Any other name fails with
// ErrUnknownHashmap.
//
//	b := storage.NewFileBackend("/path/to/graph")
//	ok, err := b.SetIfAbsent(ctx, storage.NodeAttrs, "numpy", "{}")
//
// # File Layout
//
// A document with key k in hashmap h is stored at
//
//	h/a/b/c/d/e/k.json
//
// where abcde are the first five hex characters of sha1("k.json").
// Catch-all documents are stored at the root as k.json.
//
// # Scopes
//
// Transaction and Snapshot take a callback and pass it a derived context.
// Operations issued with that context run inside the scope. Calling either
// again with the derived context joins the existing scope instead of
// opening a new one. The file and memory backends run callbacks directly.
//
// # Thread Safety
//
// All backends are safe for concurrent use. The file backend serializes
// deletes through the pr, delete and tree locks of its LockSet.
package storage
