package main

import (
	"container/list"
	"time"
)

// HistoryEntry is a snapshot of a recently-disconnected identity, recorded on
// clean disconnect. Mirrors SPEC_FULL.md section 3's client_history entry
// shape.
type HistoryEntry struct {
	Nickname string
	Username string
	Hostname string
	RealName string
	Account  string
	at       time.Time
}

// Registry owns the two structures SPEC_FULL.md section 3 assigns to the
// server context: the live nickname map and the bounded, expiring history of
// recently-disconnected identities.
//
// Grounded on catbox's Nicks/LocalUsers maps (local_client.go, local_user.go)
// for the live half, and mammon/server.py's
// ExpiringDict(max_len=1024, max_age_seconds=86400) for the history half. No
// LRU/cache library appears anywhere in the reference pack, so the bounded
// history map is hand-rolled on container/list (DESIGN.md).
type Registry struct {
	clients map[string]*Session // casefolded nickname -> session

	history     map[string]*list.Element // casefolded nickname -> list element
	historyList *list.List                // front = most recently touched
	historyCap  int
	historyTTL  time.Duration
}

type historyRecord struct {
	key   string
	entry HistoryEntry
}

// NewRegistry returns a Registry with the given history bound (default cap
// 1024, ttl 86400s per SPEC_FULL.md section 3 if zero values are passed).
func NewRegistry(historyCap int, historyTTL time.Duration) *Registry {
	if historyCap <= 0 {
		historyCap = 1024
	}
	if historyTTL <= 0 {
		historyTTL = 86400 * time.Second
	}

	return &Registry{
		clients:     map[string]*Session{},
		history:     map[string]*list.Element{},
		historyList: list.New(),
		historyCap:  historyCap,
		historyTTL:  historyTTL,
	}
}

// Get returns the live session for a nickname, if any, under casefolded
// comparison.
func (r *Registry) Get(nickname string) (*Session, bool) {
	s, ok := r.clients[casefold(nickname)]
	return s, ok
}

// Register installs s under its current nickname. The caller must have
// already checked for a collision.
func (r *Registry) Register(s *Session) {
	r.clients[casefold(s.Nickname)] = s
}

// Rename moves a session from its old nickname key to its new one. Used by
// the NICK handler after it has already validated the new nickname is free.
func (r *Registry) Rename(oldNick, newNick string, s *Session) {
	delete(r.clients, casefold(oldNick))
	r.clients[casefold(newNick)] = s
}

// snapshot returns every live session, for the shutdown broadcast in
// server.go which must not mutate the map it is iterating as each session
// exits.
func (r *Registry) snapshot() []*Session {
	out := make([]*Session, 0, len(r.clients))
	for _, s := range r.clients {
		out = append(out, s)
	}
	return out
}

// Unregister removes a nickname from the live map. It is a no-op if the
// nickname is not present (idempotence: exit() may call this more than once
// defensively).
func (r *Registry) Unregister(nickname string) {
	delete(r.clients, casefold(nickname))
}

// RecordHistory appends (or overwrites, on nickname collision with an
// existing entry -- the LRU does not keep a list per nickname; see
// SPEC_FULL.md DESIGN NOTES) a history entry for a clean disconnect, and
// evicts the least-recently-touched entry if the bound is exceeded.
func (r *Registry) RecordHistory(entry HistoryEntry) {
	entry.at = r.now()
	key := casefold(entry.Nickname)

	if elem, ok := r.history[key]; ok {
		r.historyList.MoveToFront(elem)
		elem.Value = historyRecord{key: key, entry: entry}
		return
	}

	elem := r.historyList.PushFront(historyRecord{key: key, entry: entry})
	r.history[key] = elem

	for r.historyList.Len() > r.historyCap {
		r.evictOldest()
	}
}

// LookupHistory returns the most recent history entry for a nickname, if one
// exists and has not expired.
func (r *Registry) LookupHistory(nickname string) (HistoryEntry, bool) {
	r.expire()

	elem, ok := r.history[casefold(nickname)]
	if !ok {
		return HistoryEntry{}, false
	}
	return elem.Value.(historyRecord).entry, true
}

func (r *Registry) evictOldest() {
	elem := r.historyList.Back()
	if elem == nil {
		return
	}
	r.historyList.Remove(elem)
	delete(r.history, elem.Value.(historyRecord).key)
}

// expire drops entries older than historyTTL. Called lazily on lookup rather
// than on a ticking goroutine, since the registry has no other reason to run
// on a timer of its own.
func (r *Registry) expire() {
	cutoff := r.now().Add(-r.historyTTL)

	for {
		elem := r.historyList.Back()
		if elem == nil {
			break
		}
		rec := elem.Value.(historyRecord)
		if rec.entry.at.After(cutoff) {
			break
		}
		r.historyList.Remove(elem)
		delete(r.history, rec.key)
	}
}

// now is overridable in tests; defaults to time.Now.
var registryNow = time.Now

func (r *Registry) now() time.Time {
	return registryNow()
}
