// Package ddbstore is the storage-engine core of a disk-oriented
// database: a fixed-size buffer pool mediating a paginated heap file, an
// extendible-hash page table, a clock-free LRU victim selector, a
// persistent B+Tree index, a tuple-level lock manager with wait-die
// deadlock avoidance, and a write-ahead log with ARIES-style recovery.
//
// There is no SQL layer, catalog, wire protocol, or CLI here — see
// internal/btree, internal/bufferpool, internal/heap, internal/lock,
// internal/wal, and internal/recovery for the components themselves, and
// example_test.go for how they wire together.
package ddbstore
