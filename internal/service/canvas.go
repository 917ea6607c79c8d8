package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/LuckiPhoenix/idest-server/internal/cache"
	"github.com/LuckiPhoenix/idest-server/internal/errs"
	"github.com/LuckiPhoenix/idest-server/internal/model"
	"github.com/LuckiPhoenix/idest-server/internal/repository"
)

// CanvasService owns the collaborative whiteboard of a session. All
// mutations are gated by the canvas lock; state persists on the session
// document capped at model.MaxCanvasOperations.
type CanvasService struct {
	sessionRepo  repository.SessionRepo
	sessionCache cache.SessionCache
	lock         *ResourceLock
}

func NewCanvasService(sessionRepo repository.SessionRepo, sessionCache cache.SessionCache, lock *ResourceLock) *CanvasService {
	return &CanvasService{
		sessionRepo:  sessionRepo,
		sessionCache: sessionCache,
		lock:         lock,
	}
}

// Lock exposes the canvas lock for preemption and disconnect cleanup.
func (s *CanvasService) Lock() *ResourceLock {
	return s.lock
}

// Load returns the persisted canvas state, or nil when the session has no
// whiteboard yet.
func (s *CanvasService) Load(ctx context.Context, sessionID string) (*model.CanvasState, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, errs.Internal("failed to load canvas state", err)
	}
	if session == nil {
		return nil, errs.NotFound("session not found")
	}
	return session.Whiteboard, nil
}

// Save persists the state, keeping only the most recent operations.
func (s *CanvasService) Save(ctx context.Context, sessionID string, state *model.CanvasState) error {
	state.Trim(model.MaxCanvasOperations)
	if err := s.sessionRepo.UpdateWhiteboard(ctx, sessionID, state); err != nil {
		return errs.Internal("failed to save canvas state", err)
	}
	if err := s.sessionCache.Invalidate(ctx, sessionID); err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("canvas: cache invalidation failed")
	}
	return nil
}

// Open acquires the canvas for the user and returns the persisted state.
// Re-opening by the current holder returns the state unchanged; a board held
// by someone else is Forbidden.
func (s *CanvasService) Open(ctx context.Context, sessionID, userID string) (*model.CanvasState, error) {
	result, _ := s.lock.TryAcquire(sessionID, userID)
	if result == AcquireDenied {
		return nil, errs.Forbidden("canvas is currently held by another user")
	}

	state, err := s.Load(ctx, sessionID)
	if err != nil {
		// Do not leave a freshly granted lock stuck behind a load failure.
		if result == AcquireGranted {
			s.lock.ReleaseIfHeldBy(sessionID, userID)
		}
		return nil, err
	}
	return state, nil
}

// Close persists the optional final state and releases the canvas. Closing
// with no holder fails NotFound; closing someone else's board fails
// Forbidden.
func (s *CanvasService) Close(ctx context.Context, sessionID, userID string, finalState *model.CanvasState) error {
	holder := s.lock.Holder(sessionID)
	if holder == "" {
		return errs.NotFound("no active canvas lock for session")
	}
	if holder != userID {
		return errs.Forbidden("canvas lock is held by another user")
	}

	if finalState != nil {
		if err := s.Save(ctx, sessionID, finalState); err != nil {
			return err
		}
	}
	return s.lock.Release(sessionID, userID)
}

// Clear resets the board to an empty operation list with default metadata.
// Requires current ownership.
func (s *CanvasService) Clear(ctx context.Context, sessionID, userID string) (*model.CanvasState, error) {
	holder := s.lock.Holder(sessionID)
	if holder == "" {
		return nil, errs.NotFound("no active canvas lock for session")
	}
	if holder != userID {
		return nil, errs.Forbidden("canvas lock is held by another user")
	}

	state := model.EmptyCanvasState()
	if err := s.Save(ctx, sessionID, state); err != nil {
		return nil, err
	}
	return state, nil
}
