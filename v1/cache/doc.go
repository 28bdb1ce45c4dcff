// Package cache provides a small typed wrapper over ristretto used to keep
// short-lived copies of store lookups, such as the active worker set served
// to HTTP readers.
package cache
