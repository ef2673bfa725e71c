// Package cache provides the bounded, weighted response cache for the media
// proxy.
//
// Capacity is a byte budget, not an entry count: each entry weighs its data
// length (minimum 1). Eviction uses an approximate recency/frequency policy
// (TinyLFU admission over sampled LFU eviction) that resists scan pollution;
// entries additionally expire a fixed TTL after insertion, regardless of
// access pattern. Writes are asynchronous, so the weighted size may briefly
// overshoot the budget before converging.
//
// The cache owns its internal concurrency control; callers never take locks.
package cache
