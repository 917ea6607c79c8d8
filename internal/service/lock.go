package service

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/LuckiPhoenix/idest-server/internal/errs"
)

// AcquireResult is the outcome of a TryAcquire call.
type AcquireResult int

const (
	AcquireGranted AcquireResult = iota
	AcquireAlreadyHeld
	AcquireDenied
)

const lockShardCount = 32

type lockShard struct {
	mu      sync.Mutex
	holders map[string]string // sessionID -> holder userID
}

// ResourceLock is a single-owner advisory lock keyed by session id. One
// instance exists per guarded resource kind (screen share, canvas). State is
// in-memory only and re-derived from reconnects after a restart. Only the
// acquire/release decision happens under the shard mutex; callers perform
// provider RPCs and persistence outside it.
type ResourceLock struct {
	kind   string
	shards [lockShardCount]*lockShard
}

func NewResourceLock(kind string) *ResourceLock {
	l := &ResourceLock{kind: kind}
	for i := range l.shards {
		l.shards[i] = &lockShard{holders: make(map[string]string)}
	}
	return l
}

func (l *ResourceLock) shard(sessionID string) *lockShard {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return l.shards[h.Sum32()%lockShardCount]
}

// TryAcquire grants the lock when unheld, is idempotent for the current
// holder, and is denied when held by someone else. Denials never mutate
// holder state and are never queued.
func (l *ResourceLock) TryAcquire(sessionID, userID string) (AcquireResult, string) {
	s := l.shard(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	holder, held := s.holders[sessionID]
	if !held {
		s.holders[sessionID] = userID
		return AcquireGranted, userID
	}
	if holder == userID {
		return AcquireAlreadyHeld, holder
	}
	return AcquireDenied, holder
}

// Release frees the lock. Releasing an unheld lock fails NotFound; releasing
// a lock held by a different user fails Forbidden.
func (l *ResourceLock) Release(sessionID, userID string) error {
	s := l.shard(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	holder, held := s.holders[sessionID]
	if !held {
		return errs.NotFound(fmt.Sprintf("no active %s lock for session", l.kind))
	}
	if holder != userID {
		return errs.Forbidden(fmt.Sprintf("%s lock is held by another user", l.kind))
	}
	delete(s.holders, sessionID)
	return nil
}

// Holder returns the current holder, or "" when unheld.
func (l *ResourceLock) Holder(sessionID string) string {
	s := l.shard(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holders[sessionID]
}

// ForceRelease frees the lock regardless of holder and reports whether a
// holder was evicted.
func (l *ResourceLock) ForceRelease(sessionID string) bool {
	s := l.shard(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	_, held := s.holders[sessionID]
	delete(s.holders, sessionID)
	return held
}

// ReleaseIfHeldBy frees the lock only when userID is the holder, reporting
// whether it was released. Used on disconnect cleanup.
func (l *ResourceLock) ReleaseIfHeldBy(sessionID, userID string) bool {
	s := l.shard(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.holders[sessionID] != userID {
		return false
	}
	delete(s.holders, sessionID)
	return true
}
