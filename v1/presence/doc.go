// Package presence implements a presence registry on top of a key-value store
// with expiring keys.
//
// An Agent owns one worker name. At construction it refuses the name if a live
// presence key already exists for it; Run then keeps the key
// "running:<name>" alive by rewriting it with a short TTL (2s by default) every
// 87.5% of that TTL, and lists "running:*" on every cycle to report which
// workers are alive. A worker that dies stops renewing and its key expires
// within one TTL; nothing is deleted on shutdown.
//
// The uniqueness check is a single read and is not atomic with the first
// write: two agents started at the same moment with the same name can both
// pass it.
//
// Observer and Directory are read-side helpers: Observer turns successive
// active sets into join/leave events on a syncbus.Bus, and Directory serves
// the active set from a short-lived cache.
package presence
