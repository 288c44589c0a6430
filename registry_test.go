package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistryGetRegisterRename(t *testing.T) {
	r := NewRegistry(0, 0)
	s := &Session{Nickname: "Alice"}

	r.Register(s)

	got, ok := r.Get("alice")
	require.True(t, ok)
	require.Same(t, s, got)

	r.Rename("alice", "bob", s)
	_, ok = r.Get("alice")
	require.False(t, ok, "old key is gone after rename")
	got, ok = r.Get("bob")
	require.True(t, ok)
	require.Same(t, s, got)

	r.Unregister("bob")
	_, ok = r.Get("bob")
	require.False(t, ok)
}

func TestRegistryHistoryEvictsOldestOverCap(t *testing.T) {
	r := NewRegistry(2, 86400*time.Second)

	r.RecordHistory(HistoryEntry{Nickname: "alice"})
	r.RecordHistory(HistoryEntry{Nickname: "bob"})
	r.RecordHistory(HistoryEntry{Nickname: "carol"})

	_, ok := r.LookupHistory("alice")
	require.False(t, ok, "least-recently-touched entry is evicted once over cap")

	_, ok = r.LookupHistory("bob")
	require.True(t, ok)
	_, ok = r.LookupHistory("carol")
	require.True(t, ok)
}

func TestRegistryHistoryExpiresByTTL(t *testing.T) {
	r := NewRegistry(0, time.Minute)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	registryNow = func() time.Time { return base }
	defer func() { registryNow = time.Now }()

	r.RecordHistory(HistoryEntry{Nickname: "alice"})

	registryNow = func() time.Time { return base.Add(2 * time.Minute) }

	_, ok := r.LookupHistory("alice")
	require.False(t, ok, "entry older than the ttl is expired on lookup")
}

func TestRegistryHistoryTouchMovesToFront(t *testing.T) {
	r := NewRegistry(2, 86400*time.Second)

	r.RecordHistory(HistoryEntry{Nickname: "alice"})
	r.RecordHistory(HistoryEntry{Nickname: "bob"})
	r.RecordHistory(HistoryEntry{Nickname: "alice"}) // touch alice again
	r.RecordHistory(HistoryEntry{Nickname: "carol"}) // evicts bob, not alice

	_, ok := r.LookupHistory("bob")
	require.False(t, ok)
	_, ok = r.LookupHistory("alice")
	require.True(t, ok)
}
