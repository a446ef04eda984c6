// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package syncer reconciles secondary backends with the primary.
//
// Sync is one-directional and hash based. For every hashmap the engine
// reads {key: content hash} from the primary and from each secondary,
// deletes keys the primary no longer has, and copies the values whose hash
// is missing or different. Values are fetched from the primary in batches
// of sorted keys, and each secondary receives only the keys stale for it.
//
// Hashmaps are processed in a fixed priority order so that foundational
// collections converge first:
//
//	lazy_json, node_attrs, pr_info, version_pr_info, pr_json, versions
//
// followed by any other hashmap in sorted order. A run is idempotent and
// keeps no checkpoint; re-running simply diffs again.
//
//	s := syncer.New(primary, []storage.Backend{mirror}, syncer.WithBatchSize(1000))
//	res, err := s.Run(ctx)
package syncer
