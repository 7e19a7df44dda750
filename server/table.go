package server

import (
	"sync"
	"time"

	"github.com/minidomo/p0p"
)

// Table owns the session_id -> ClientData mapping. All mutations are
// serialised by one mutex, matching the original server.py's single
// _map_lock rather than a lock-free map: iteration (IterateIdle, CloseAll)
// takes a snapshot under the lock and, for IterateIdle, re-validates each
// entry under the lock again before reporting it, so a session refreshed
// between snapshot and re-check is never reported idle.
type Table struct {
	mu      sync.Mutex
	clients map[uint32]*ClientData
}

// NewTable constructs an empty session table.
func NewTable() *Table {
	return &Table{clients: make(map[uint32]*ClientData)}
}

// Lookup returns a copy of the record for sessionID, or nil if absent. A
// copy - not the live map entry - is returned so a caller (the classifier,
// in particular) can read its fields after the lock is released without
// racing a concurrent Update/Touch on the same session from another
// goroutine.
func (t *Table) Lookup(sessionID uint32) *ClientData {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.clients[sessionID]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

// Insert adds record to the table. record.SessionID must not already be
// present: a session_id maps to at most one ClientData at a time.
func (t *Table) Insert(record *ClientData) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clients[record.SessionID] = record
}

// Remove deletes sessionID from the table, if present.
func (t *Table) Remove(sessionID uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.clients, sessionID)
}

// Update atomically records the sequence and command of the last accepted
// inbound packet for sessionID and bumps its last-activity timestamp. No-op
// if the session has since been removed (e.g. raced with a concurrent
// close).
func (t *Table) Update(sessionID uint32, seq uint32, command p0p.Command, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.clients[sessionID]; ok {
		c.PrevSeq = seq
		c.PrevCommand = command
		c.LastActivity = now
	}
}

// Touch bumps only the last-activity timestamp for sessionID.
func (t *Table) Touch(sessionID uint32, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.clients[sessionID]; ok {
		c.LastActivity = now
	}
}

// IterateIdle returns the records whose LastActivity is older than
// interval as of now. It takes a snapshot of the table under the lock,
// then re-validates each candidate's timestamp under the lock again
// before including it, so a session whose activity was refreshed between
// the snapshot and the re-check is not incorrectly reported idle.
func (t *Table) IterateIdle(now time.Time, interval time.Duration) []*ClientData {
	t.mu.Lock()
	snapshot := make([]uint32, 0, len(t.clients))
	for id := range t.clients {
		snapshot = append(snapshot, id)
	}
	t.mu.Unlock()

	var idle []*ClientData
	for _, id := range snapshot {
		t.mu.Lock()
		c, ok := t.clients[id]
		if ok && now.Sub(c.LastActivity) > interval {
			idle = append(idle, c)
		}
		t.mu.Unlock()
	}
	return idle
}

// CloseAll removes and returns every record currently in the table, used
// at shutdown. The snapshot is taken and the map cleared under one lock
// acquisition, matching server.py's close() which lists
// client_data_map.values() before deleting each entry.
func (t *Table) CloseAll() []*ClientData {
	t.mu.Lock()
	defer t.mu.Unlock()
	all := make([]*ClientData, 0, len(t.clients))
	for _, c := range t.clients {
		all = append(all, c)
	}
	t.clients = make(map[uint32]*ClientData)
	return all
}

// Len reports the number of sessions currently tracked.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clients)
}
