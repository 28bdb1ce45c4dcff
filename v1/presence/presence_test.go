package presence

import (
	"testing"
	"time"
)

func TestKeyHelpers(t *testing.T) {
	if Key("w1") != "running:w1" {
		t.Fatalf("unexpected key %q", Key("w1"))
	}
	if NameFromKey("running:w1") != "w1" {
		t.Fatalf("unexpected name %q", NameFromKey("running:w1"))
	}
	if NameFromKey("running:host:42") != "host:42" {
		t.Fatalf("names with ':' must survive, got %q", NameFromKey("running:host:42"))
	}
	if KeyPattern != "running:*" {
		t.Fatalf("unexpected pattern %q", KeyPattern)
	}
}

func TestRenewInterval(t *testing.T) {
	for ttl, want := range map[time.Duration]time.Duration{
		2 * time.Second:       1750 * time.Millisecond,
		8 * time.Second:       7 * time.Second,
		40 * time.Millisecond: 35 * time.Millisecond,
	} {
		if got := RenewInterval(ttl); got != want {
			t.Fatalf("RenewInterval(%v) = %v, want %v", ttl, got, want)
		}
	}
}
