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

// Package bootstrap turns backend configuration into an opened
// lazyjson.Store.
//
//	env, err := bootstrap.Open(ctx, bootstrap.Config{
//	    Backends: []string{"mongodb", "file"},
//	    Root:     "cf-graph",
//	    Mongo:    storage.MongoConfig{URI: os.Getenv("MONGODB_CONNECTION_STRING")},
//	}, logger)
//	if err != nil {
//	    return err
//	}
//	defer env.Close(ctx)
//
// # Backends
//
//   - file: the graph directory under Root. Also serves as the cache.
//   - mongodb: one collection per hashmap. Missing collections and their
//     unique key index are created on open.
//   - memory: process-local maps, for dry runs and tests.
//
// Opening is idempotent. Provisioning only creates what is missing, so it
// is safe to run against a populated database.
package bootstrap
