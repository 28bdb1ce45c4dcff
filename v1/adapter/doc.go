// Package adapter provides the key-value stores presence keys are written to:
// an in-memory map with expiry for tests and local runs, and a Redis backend.
package adapter
