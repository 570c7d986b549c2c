package realtime

import (
	"fmt"
	"sync"
	"testing"
)

type nopConn struct{}

func (nopConn) Send([]byte) error { return nil }

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	r.Register("c1", 7, nopConn{})
	r.Register("c2", 7, nopConn{})
	r.Register("c3", 9, nopConn{})

	if got := len(r.ConnectionsFor(7)); got != 2 {
		t.Fatalf("expected 2 connections for user 7, got %d", got)
	}
	if got := len(r.ConnectionsFor(9)); got != 1 {
		t.Fatalf("expected 1 connection for user 9, got %d", got)
	}
	if got := len(r.ConnectionsFor(42)); got != 0 {
		t.Fatalf("expected no connections for unknown user, got %d", got)
	}
}

func TestRegistryRegisterIdempotent(t *testing.T) {
	r := NewRegistry()

	r.Register("c1", 7, nopConn{})
	r.Register("c1", 7, nopConn{})

	if got := len(r.ConnectionsFor(7)); got != 1 {
		t.Fatalf("re-registering the same connection should not grow the set, got %d", got)
	}
}

func TestRegistryUnregisterRemovesEmptyEntry(t *testing.T) {
	r := NewRegistry()

	r.Register("c1", 7, nopConn{})
	r.Register("c2", 7, nopConn{})
	r.Unregister("c1")

	if got := len(r.ConnectionsFor(7)); got != 1 {
		t.Fatalf("expected 1 connection left, got %d", got)
	}

	r.Unregister("c2")

	if got := len(r.ConnectionsFor(7)); got != 0 {
		t.Fatalf("expected empty set after last disconnect, got %d", got)
	}
	if got := r.OnlineUserCount(); got != 0 {
		t.Fatalf("registry should hold no entry for a fully disconnected user, online=%d", got)
	}
}

func TestRegistryUnregisterUnknownIsNoop(t *testing.T) {
	r := NewRegistry()
	// Disconnect can race registration; this must not panic or error.
	r.Unregister("never-registered")
}

func TestRegistryMovesConnectionBetweenUsers(t *testing.T) {
	r := NewRegistry()

	r.Register("c1", 7, nopConn{})
	r.Register("c1", 8, nopConn{})

	if got := len(r.ConnectionsFor(7)); got != 0 {
		t.Fatalf("connection should have left user 7, got %d", got)
	}
	if got := len(r.ConnectionsFor(8)); got != 1 {
		t.Fatalf("connection should belong to user 8, got %d", got)
	}
}

func TestRegistryConcurrentChurn(t *testing.T) {
	r := NewRegistry()

	const users = 10
	const connsPerUser = 20

	var wg sync.WaitGroup
	for u := 0; u < users; u++ {
		for c := 0; c < connsPerUser; c++ {
			wg.Add(1)
			go func(u, c int) {
				defer wg.Done()
				id := fmt.Sprintf("conn-%d-%d", u, c)
				r.Register(id, int64(u+1), nopConn{})
				if c%2 == 0 {
					r.Unregister(id)
				}
			}(u, c)
		}
	}
	wg.Wait()

	for u := 1; u <= users; u++ {
		if got := len(r.ConnectionsFor(int64(u))); got != connsPerUser/2 {
			t.Errorf("user %d: expected %d surviving connections, got %d", u, connsPerUser/2, got)
		}
	}

	// Drain the rest; every entry must vanish.
	for u := 0; u < users; u++ {
		for c := 1; c < connsPerUser; c += 2 {
			r.Unregister(fmt.Sprintf("conn-%d-%d", u, c))
		}
	}
	if got := r.OnlineUserCount(); got != 0 {
		t.Fatalf("expected empty registry after full drain, %d users remain", got)
	}
}
