package service

import (
	"sync"

	"github.com/LuckiPhoenix/idest-server/internal/model"
)

// PresenceRegistry is the process-wide directory of live connections:
// (user, session) on one side, socket handle on the other. Nothing here is
// persisted; clients repopulate the registry by reconnecting after a
// restart.
type PresenceRegistry struct {
	mu       sync.RWMutex
	byHandle map[string]*model.ConnectionRecord
	byKey    map[presenceKey]*model.ConnectionRecord
}

type presenceKey struct {
	userID    string
	sessionID string
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		byHandle: make(map[string]*model.ConnectionRecord),
		byKey:    make(map[presenceKey]*model.ConnectionRecord),
	}
}

// Add registers a connection. A reconnect for the same (user, session)
// replaces the previous record; the replaced record is returned so the
// caller can tear down the stale handle.
func (r *PresenceRegistry) Add(record *model.ConnectionRecord) *model.ConnectionRecord {
	key := presenceKey{userID: record.UserID, sessionID: record.SessionID}

	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.byKey[key]
	if previous != nil {
		delete(r.byHandle, previous.Handle)
	}
	r.byKey[key] = record
	r.byHandle[record.Handle] = record
	return previous
}

// RemoveByHandle drops the connection with the given handle and returns its
// record, or nil when the handle is unknown.
func (r *PresenceRegistry) RemoveByHandle(handle string) *model.ConnectionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.byHandle[handle]
	if !ok {
		return nil
	}
	delete(r.byHandle, handle)

	key := presenceKey{userID: record.UserID, sessionID: record.SessionID}
	if current := r.byKey[key]; current != nil && current.Handle == handle {
		delete(r.byKey, key)
	}
	return record
}

// IsConnected reports whether the user has a live connection to the session.
func (r *PresenceRegistry) IsConnected(userID, sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byKey[presenceKey{userID: userID, sessionID: sessionID}]
	return ok
}

// UsersInSession returns all live connection records for the session.
func (r *PresenceRegistry) UsersInSession(sessionID string) []*model.ConnectionRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var records []*model.ConnectionRecord
	for key, record := range r.byKey {
		if key.sessionID == sessionID {
			records = append(records, record)
		}
	}
	return records
}

// HandleFor returns the socket handle of the user's connection to the
// session, or "" when offline.
func (r *PresenceRegistry) HandleFor(userID, sessionID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if record := r.byKey[presenceKey{userID: userID, sessionID: sessionID}]; record != nil {
		return record.Handle
	}
	return ""
}
