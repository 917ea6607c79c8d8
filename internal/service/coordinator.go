package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/LuckiPhoenix/idest-server/internal/cache"
	"github.com/LuckiPhoenix/idest-server/internal/errs"
	"github.com/LuckiPhoenix/idest-server/internal/model"
	"github.com/LuckiPhoenix/idest-server/internal/repository"
)

// SessionCoordinator composes policy, presence, locks, canvas, and the
// media provider behind the session-facing operations. In-memory lock and
// presence decisions happen inside their own critical sections; provider
// RPCs and persistence always execute outside them.
type SessionCoordinator struct {
	sessionRepo  repository.SessionRepo
	classRepo    repository.ClassRepo
	userRepo     repository.UserRepo
	chatRepo     repository.ChatRepo
	sessionCache cache.SessionCache
	presence     *PresenceRegistry
	screenLock   *ResourceLock
	canvas       *CanvasService
	media        MediaProvider
	policy       *AccessPolicy
	broadcaster  Broadcaster
}

func NewSessionCoordinator(
	sessionRepo repository.SessionRepo,
	classRepo repository.ClassRepo,
	userRepo repository.UserRepo,
	chatRepo repository.ChatRepo,
	sessionCache cache.SessionCache,
	presence *PresenceRegistry,
	screenLock *ResourceLock,
	canvas *CanvasService,
	media MediaProvider,
	policy *AccessPolicy,
) *SessionCoordinator {
	return &SessionCoordinator{
		sessionRepo:  sessionRepo,
		classRepo:    classRepo,
		userRepo:     userRepo,
		chatRepo:     chatRepo,
		sessionCache: sessionCache,
		presence:     presence,
		screenLock:   screenLock,
		canvas:       canvas,
		media:        media,
		policy:       policy,
		broadcaster:  noopBroadcaster{},
	}
}

// SetBroadcaster injects the websocket hub (wsHub implements Broadcaster).
func (c *SessionCoordinator) SetBroadcaster(b Broadcaster) {
	c.broadcaster = b
}

// Presence exposes the registry for the websocket transport.
func (c *SessionCoordinator) Presence() *PresenceRegistry {
	return c.presence
}

// JoinResponse carries everything a client needs to enter the room.
type JoinResponse struct {
	Token    string              `json:"token"`
	RoomName string              `json:"roomName"`
	Roster   []model.RosterEntry `json:"roster"`
}

// Join validates access and the session window, ensures the provider room
// exists, and mints a room credential for the user.
func (c *SessionCoordinator) Join(ctx context.Context, user *model.User, sessionID string) (*JoinResponse, error) {
	session, class, err := c.requireActiveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !c.policy.CanAccessSession(user, session, class) {
		return nil, errs.Forbidden("no access to this session")
	}

	roomName, err := c.media.EnsureRoom(ctx, sessionID, map[string]interface{}{"classId": session.ClassID})
	if err != nil {
		return nil, err
	}

	token, err := c.media.IssueToken(roomName, user.ID, user.FullName,
		map[string]interface{}{"role": user.Role, "avatarUrl": user.AvatarURL},
		MediaGrants{CanPublish: true, CanSubscribe: true, CanPublishData: true})
	if err != nil {
		return nil, err
	}

	roster, err := c.buildRoster(ctx, session, class)
	if err != nil {
		return nil, err
	}

	log.Info().Str("sessionId", sessionID).Str("userId", user.ID).Msg("user joined session")
	return &JoinResponse{Token: token, RoomName: roomName, Roster: roster}, nil
}

// Roster returns the de-duplicated participant list annotated with live
// presence.
func (c *SessionCoordinator) Roster(ctx context.Context, user *model.User, sessionID string) ([]model.RosterEntry, error) {
	session, class, err := c.getSessionWithClass(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !c.policy.CanAccessSession(user, session, class) {
		return nil, errs.Forbidden("no access to this session")
	}
	return c.buildRoster(ctx, session, class)
}

// Connect registers a live socket connection. A previous connection of the
// same user to the same session is replaced and its handle torn down.
func (c *SessionCoordinator) Connect(ctx context.Context, user *model.User, sessionID, handle string) error {
	session, class, err := c.requireActiveSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !c.policy.CanAccessSession(user, session, class) {
		return errs.Forbidden("no access to this session")
	}

	replaced := c.presence.Add(&model.ConnectionRecord{
		UserID:      user.ID,
		Handle:      handle,
		SessionID:   sessionID,
		FullName:    user.FullName,
		Role:        user.Role,
		AvatarURL:   user.AvatarURL,
		ConnectedAt: time.Now().UTC(),
	})
	if replaced != nil {
		c.broadcaster.DisconnectHandle(replaced.Handle)
	}

	c.broadcaster.BroadcastToSession(sessionID, "user_joined", map[string]interface{}{
		"userId":   user.ID,
		"fullName": user.FullName,
	})
	c.writeSystemMessage(ctx, sessionID, user.ID, fmt.Sprintf("%s joined the session", user.FullName))
	return nil
}

// Disconnect drops the connection with the given handle and releases any
// resource lock its user still holds in that session.
func (c *SessionCoordinator) Disconnect(ctx context.Context, handle string) {
	record := c.presence.RemoveByHandle(handle)
	if record == nil {
		return
	}

	if c.screenLock.ReleaseIfHeldBy(record.SessionID, record.UserID) {
		c.broadcaster.BroadcastToSession(record.SessionID, "screen_share_stopped", map[string]interface{}{
			"userId": record.UserID,
		})
	}
	if c.canvas.Lock().ReleaseIfHeldBy(record.SessionID, record.UserID) {
		c.broadcaster.BroadcastToSession(record.SessionID, "canvas_released", map[string]interface{}{
			"userId": record.UserID,
		})
	}

	c.broadcaster.BroadcastToSession(record.SessionID, "user_left", map[string]interface{}{
		"userId": record.UserID,
	})
	c.writeSystemMessage(ctx, record.SessionID, record.UserID, fmt.Sprintf("%s left the session", record.FullName))
}

// Kick removes the participant at the provider and drops the local presence
// record.
func (c *SessionCoordinator) Kick(ctx context.Context, requester *model.User, sessionID, targetID string) error {
	session, class, err := c.getSessionWithClass(ctx, sessionID)
	if err != nil {
		return err
	}
	target, err := c.userRepo.GetByID(ctx, targetID)
	if err != nil {
		return errs.Internal("failed to load target user", err)
	}
	if target == nil {
		return errs.NotFound("target user not found")
	}
	if !c.policy.CanKick(requester, target, session, class) {
		return errs.Forbidden("no permission to remove this participant")
	}

	if err := c.media.RemoveParticipant(ctx, RoomNameForSession(sessionID), targetID); err != nil {
		return err
	}

	if handle := c.presence.HandleFor(targetID, sessionID); handle != "" {
		c.presence.RemoveByHandle(handle)
		c.broadcaster.DisconnectHandle(handle)
	}

	// The socket-close path finds no presence record after the removal
	// above, so the kicked user's locks are released here.
	if c.screenLock.ReleaseIfHeldBy(sessionID, targetID) {
		c.broadcaster.BroadcastToSession(sessionID, "screen_share_stopped", map[string]interface{}{
			"userId": targetID,
		})
	}
	if c.canvas.Lock().ReleaseIfHeldBy(sessionID, targetID) {
		c.broadcaster.BroadcastToSession(sessionID, "canvas_released", map[string]interface{}{
			"userId": targetID,
		})
	}

	c.broadcaster.BroadcastToSession(sessionID, "user_kicked", map[string]interface{}{
		"userId": targetID,
	})

	log.Info().Str("sessionId", sessionID).Str("userId", targetID).
		Str("by", requester.ID).Msg("participant kicked")
	return nil
}

// StopParticipantMedia mutes the target's published tracks of the given
// kind ("audio", "video", or "both").
func (c *SessionCoordinator) StopParticipantMedia(ctx context.Context, requester *model.User, sessionID, targetID, kind string) error {
	session, class, err := c.getSessionWithClass(ctx, sessionID)
	if err != nil {
		return err
	}
	target, err := c.userRepo.GetByID(ctx, targetID)
	if err != nil {
		return errs.Internal("failed to load target user", err)
	}
	if target == nil {
		return errs.NotFound("target user not found")
	}
	if !c.policy.CanControlMedia(requester, target, session, class) {
		return errs.Forbidden("no permission to control this participant's media")
	}

	roomName := RoomNameForSession(sessionID)
	tracks, err := c.media.ListTracks(ctx, roomName, targetID)
	if err != nil {
		return err
	}
	for _, track := range tracks {
		if kind != "both" && track.Kind != kind {
			continue
		}
		if err := c.media.MuteTrack(ctx, roomName, targetID, track.ID, true); err != nil {
			return err
		}
	}
	return nil
}

// StartScreenShare grants the screen-share slot to the user. Screen share
// preempts an active canvas lock in the same session, never the reverse.
// The slot is released again when the provider announcement fails.
func (c *SessionCoordinator) StartScreenShare(ctx context.Context, user *model.User, sessionID string) error {
	session, class, err := c.requireActiveSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !c.policy.CanAccessSession(user, session, class) {
		return errs.Forbidden("no access to this session")
	}

	result, holder := c.screenLock.TryAcquire(sessionID, user.ID)
	if result == AcquireDenied {
		return errs.Conflict(fmt.Sprintf("screen share is already active by user %s", holder))
	}
	if result == AcquireAlreadyHeld {
		return nil
	}

	if c.canvas.Lock().ForceRelease(sessionID) {
		c.broadcaster.BroadcastToSession(sessionID, "canvas_released", map[string]interface{}{
			"reason": "screen_share_started",
		})
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"type":   "screen_share_started",
		"userId": user.ID,
	})
	if err := c.media.SendData(ctx, sessionID, payload); err != nil {
		// The slot must not stay stuck behind a failed announcement.
		c.screenLock.ReleaseIfHeldBy(sessionID, user.ID)
		return err
	}

	c.broadcaster.BroadcastToSession(sessionID, "screen_share_started", map[string]interface{}{
		"userId": user.ID,
	})
	return nil
}

// StopScreenShare releases the screen-share slot held by the user.
func (c *SessionCoordinator) StopScreenShare(ctx context.Context, user *model.User, sessionID string) error {
	if err := c.screenLock.Release(sessionID, user.ID); err != nil {
		return err
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"type":   "screen_share_stopped",
		"userId": user.ID,
	})
	if err := c.media.SendData(ctx, sessionID, payload); err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("screen share stop announcement failed")
	}

	c.broadcaster.BroadcastToSession(sessionID, "screen_share_stopped", map[string]interface{}{
		"userId": user.ID,
	})
	return nil
}

// OpenCanvas acquires the whiteboard for the user within an active session.
func (c *SessionCoordinator) OpenCanvas(ctx context.Context, user *model.User, sessionID string) (*model.CanvasState, error) {
	session, class, err := c.requireActiveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !c.policy.CanAccessSession(user, session, class) {
		return nil, errs.Forbidden("no access to this session")
	}

	state, err := c.canvas.Open(ctx, sessionID, user.ID)
	if err != nil {
		return nil, err
	}
	c.broadcaster.BroadcastToSession(sessionID, "canvas_opened", map[string]interface{}{
		"userId": user.ID,
	})
	return state, nil
}

// CloseCanvas persists the optional final state and frees the whiteboard.
func (c *SessionCoordinator) CloseCanvas(ctx context.Context, user *model.User, sessionID string, finalState *model.CanvasState) error {
	if err := c.canvas.Close(ctx, sessionID, user.ID, finalState); err != nil {
		return err
	}
	c.broadcaster.BroadcastToSession(sessionID, "canvas_released", map[string]interface{}{
		"userId": user.ID,
	})
	return nil
}

// ClearCanvas resets the whiteboard to defaults.
func (c *SessionCoordinator) ClearCanvas(ctx context.Context, user *model.User, sessionID string) (*model.CanvasState, error) {
	state, err := c.canvas.Clear(ctx, sessionID, user.ID)
	if err != nil {
		return nil, err
	}
	c.broadcaster.BroadcastToSession(sessionID, "canvas_cleared", map[string]interface{}{
		"userId": user.ID,
	})
	return state, nil
}

// EndSession stamps the end time. Ending an already-ended session errors.
func (c *SessionCoordinator) EndSession(ctx context.Context, user *model.User, sessionID string) error {
	session, class, err := c.getSessionWithClass(ctx, sessionID)
	if err != nil {
		return err
	}
	if !c.policy.CanModifySession(user, session, class) {
		return errs.Forbidden("no permission to end this session")
	}
	if session.EndTime != nil {
		return errs.Conflict("session has already ended")
	}

	now := time.Now().UTC()
	session.EndTime = &now
	if err := c.sessionRepo.Update(ctx, session); err != nil {
		return errs.Internal("failed to end session", err)
	}
	c.invalidateSession(ctx, sessionID)

	c.broadcaster.BroadcastToSession(sessionID, "session_ended", map[string]interface{}{
		"endedAt": now,
	})
	return nil
}

// DeleteSession removes an ended session. Host or admin only.
func (c *SessionCoordinator) DeleteSession(ctx context.Context, user *model.User, sessionID string) error {
	session, _, err := c.getSessionWithClass(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.HostID != user.ID && !user.IsAdmin() {
		return errs.Forbidden("only the host or an admin may delete a session")
	}
	if session.EndTime == nil {
		return errs.Conflict("session must be ended before deletion")
	}

	if err := c.sessionRepo.Delete(ctx, sessionID); err != nil {
		return errs.Internal("failed to delete session", err)
	}
	c.invalidateSession(ctx, sessionID)
	return nil
}

func (c *SessionCoordinator) buildRoster(ctx context.Context, session *model.Session, class *model.Class) ([]model.RosterEntry, error) {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	add(session.HostID)
	if class != nil {
		add(class.CreatorID)
		for _, id := range class.TeacherIDs {
			add(id)
		}
		for _, m := range class.Members {
			if m.IsActive {
				add(m.UserID)
			}
		}
	}

	users, err := c.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errs.Internal("failed to load roster users", err)
	}

	roster := make([]model.RosterEntry, 0, len(users))
	for _, u := range users {
		roster = append(roster, model.RosterEntry{
			UserID:    u.ID,
			FullName:  u.FullName,
			Role:      u.Role,
			AvatarURL: u.AvatarURL,
			IsHost:    u.ID == session.HostID,
			IsOnline:  c.presence.IsConnected(u.ID, session.ID),
		})
	}
	return roster, nil
}

// getSession prefers the cache and falls back to MongoDB.
func (c *SessionCoordinator) getSession(ctx context.Context, sessionID string) (*model.Session, error) {
	session, err := c.sessionCache.Get(ctx, sessionID)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("session cache read failed")
	}
	if session != nil {
		return session, nil
	}

	session, err = c.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, errs.Internal("failed to load session", err)
	}
	if session == nil {
		return nil, errs.NotFound("session not found")
	}
	if err := c.sessionCache.Set(ctx, session); err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("session cache write failed")
	}
	return session, nil
}

func (c *SessionCoordinator) getSessionWithClass(ctx context.Context, sessionID string) (*model.Session, *model.Class, error) {
	session, err := c.getSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	class, err := c.classRepo.GetByID(ctx, session.ClassID)
	if err != nil {
		return nil, nil, errs.Internal("failed to load class", err)
	}
	return session, class, nil
}

// requireActiveSession rejects join/control operations once the session's
// end time has passed.
func (c *SessionCoordinator) requireActiveSession(ctx context.Context, sessionID string) (*model.Session, *model.Class, error) {
	session, class, err := c.getSessionWithClass(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if session.HasEnded(time.Now()) {
		return nil, nil, errs.Forbidden("session has ended")
	}
	return session, class, nil
}

// writeSystemMessage records a chat notice best-effort; message loss never
// blocks join/leave.
func (c *SessionCoordinator) writeSystemMessage(ctx context.Context, sessionID, userID, content string) {
	err := c.chatRepo.Insert(ctx, &model.ChatMessage{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		UserID:    userID,
		Content:   content,
		Kind:      model.ChatKindSystem,
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("chat system message write failed")
	}
}

func (c *SessionCoordinator) invalidateSession(ctx context.Context, sessionID string) {
	if err := c.sessionCache.Invalidate(ctx, sessionID); err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("session cache invalidation failed")
	}
}
