// Package pipeline runs the export pipeline end to end and caches its
// result per session.
//
// A run is sequential: the device directory is built, filtered by device
// type and joined with each device's variables, then pivoted into the wide
// table and narrowed to the export columns.
//
// Session caching:
//
// The session HTTP API serves the same (device type, token) pair many times.
// Cache memoises successful runs under a digest of that pair and collapses
// concurrent misses for the same key into one upstream run
// (golang.org/x/sync/singleflight). Failed runs are never cached.
//
// Thread Safety:
//   - Pipeline is stateless and safe for concurrent use.
//   - Cache is safe for concurrent use.
package pipeline
