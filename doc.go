// Package transcache stores short key/value text entries ("translations")
// keyed by the pair (key, locale) and serves them through filtered lookups,
// point lookups and a bulk export, all read through a generation-checked
// cache.
//
// Components:
//   - Store: the record store (PostgreSQL or SQLite, see store/...).
//   - Cache[V]: read-through cache over a byte Provider, a Codec[V] and a
//     GenStore. Entries are framed with the generation they were computed
//     under; a stale or corrupt frame is deleted on read.
//   - keyset.KeySet: registry of every list and point-lookup fingerprint
//     that has been populated, drained by the write path.
//   - Service: the translation operations (List, Get, Create, Update,
//     Export, Invalidate).
//
// Keys:
//
//	<ns>:list:filters:<hash>  - filtered list results
//	<ns>:record:<id>          - point lookups (absence is cached too)
//	<ns>:export:all           - the locale -> key -> value export
//
// Populate pattern (inside GetOrCompute):
//
//	tracker.Add(key)            // before the snapshot
//	obs := gen.Snapshot(key)    // before the store read
//	v   := produce()
//	set(key, v) iff gen == obs
//
// A write commits first and then forgets the export plus every tracked
// fingerprint. Forget bumps the generation, so a producer that raced the
// write can never store its result.
package transcache
