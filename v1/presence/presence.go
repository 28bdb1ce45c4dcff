package presence

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mirkobrombin/go-presence/v1/adapter"
)

const (
	// KeyPrefix prefixes every presence key.
	KeyPrefix = "running:"
	// KeyPattern matches every presence key.
	KeyPattern = KeyPrefix + "*"
	// DefaultLeaseTTL is the lifetime of a presence key.
	DefaultLeaseTTL = 2 * time.Second
	// RenewFactor is the fraction of the lease after which it is renewed.
	RenewFactor = 0.875
)

var (
	// ErrEmptyIdentity is returned when an Agent is created without a name.
	ErrEmptyIdentity = errors.New("presence: empty worker name")
	// ErrDuplicateIdentity matches *DuplicateIdentityError.
	ErrDuplicateIdentity = errors.New("presence: duplicate worker name")
	// ErrStopped is returned by Run and Renew once the agent has been stopped.
	ErrStopped = errors.New("presence: stopping")
	// ErrStoreUnavailable matches *StoreError.
	ErrStoreUnavailable = errors.New("presence: store unavailable")
	// ErrAlreadyRunning is returned when Run is called on a running agent.
	ErrAlreadyRunning = errors.New("presence: agent already running")
)

// DuplicateIdentityError reports a name already held by a live worker.
type DuplicateIdentityError struct {
	Name string
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("presence: worker %q is already running, try changing the name via APP_NAME", e.Name)
}

func (e *DuplicateIdentityError) Is(target error) bool { return target == ErrDuplicateIdentity }

// StoreError wraps a failed store call.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("presence: store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

// Key returns the presence key for name.
func Key(name string) string { return KeyPrefix + name }

// NameFromKey strips KeyPrefix from key. Only the leading prefix is removed so
// names containing ':' survive.
func NameFromKey(key string) string { return strings.TrimPrefix(key, KeyPrefix) }

// ActiveSet lists the names of every worker with a live presence key, sorted.
func ActiveSet(ctx context.Context, store adapter.Store) ([]string, error) {
	keys, err := store.Keys(ctx, KeyPattern)
	if err != nil {
		return nil, &StoreError{Op: "keys", Key: KeyPattern, Err: err}
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, NameFromKey(k))
	}
	slices.Sort(names)
	return names, nil
}

// RenewInterval returns the delay between renewals for a lease of ttl.
func RenewInterval(ttl time.Duration) time.Duration {
	return time.Duration(float64(ttl) * RenewFactor)
}
