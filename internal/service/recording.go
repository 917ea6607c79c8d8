package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/LuckiPhoenix/idest-server/internal/cache"
	"github.com/LuckiPhoenix/idest-server/internal/errs"
	"github.com/LuckiPhoenix/idest-server/internal/model"
	"github.com/LuckiPhoenix/idest-server/internal/repository"
)

// RecordingService drives provider-side composite recordings and reconciles
// webhook-delivered egress status into RecordingRun rows. The recording repo
// upsert keyed by egress id is the serialization point between webhook
// deliveries and direct start/stop calls racing on the same run.
type RecordingService struct {
	sessionRepo   repository.SessionRepo
	classRepo     repository.ClassRepo
	recordingRepo repository.RecordingRepo
	sessionCache  cache.SessionCache
	media         MediaProvider
	resolver      RecordingURLResolver
	policy        *AccessPolicy

	apiKey        string
	apiSecret     string
	publicBaseURL string
}

func NewRecordingService(
	sessionRepo repository.SessionRepo,
	classRepo repository.ClassRepo,
	recordingRepo repository.RecordingRepo,
	sessionCache cache.SessionCache,
	media MediaProvider,
	resolver RecordingURLResolver,
	policy *AccessPolicy,
	apiKey, apiSecret, publicBaseURL string,
) *RecordingService {
	return &RecordingService{
		sessionRepo:   sessionRepo,
		classRepo:     classRepo,
		recordingRepo: recordingRepo,
		sessionCache:  sessionCache,
		media:         media,
		resolver:      resolver,
		policy:        policy,
		apiKey:        apiKey,
		apiSecret:     apiSecret,
		publicBaseURL: publicBaseURL,
	}
}

// Start begins a composite recording of the session's room and returns the
// provider's egress id. The id and a start timestamp are stored in session
// metadata for Stop and for webhook reconciliation.
func (s *RecordingService) Start(ctx context.Context, requester *model.User, sessionID string) (string, error) {
	session, err := s.requireModifyRights(ctx, requester, sessionID)
	if err != nil {
		return "", err
	}
	// Stop stays available after the window closes; only fresh starts are
	// gated on it.
	if session.HasEnded(time.Now()) {
		return "", errs.Forbidden("session has ended")
	}
	if session.ActiveEgressID() != "" {
		return "", errs.Conflict("recording already in progress")
	}

	roomName, err := s.media.EnsureRoom(ctx, sessionID, nil)
	if err != nil {
		return "", err
	}

	egressID, err := s.media.StartCompositeRecording(ctx, roomName)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	session.Meta.Recording = &model.RecordingMeta{EgressID: egressID, StartedAt: &now}
	if err := s.sessionRepo.UpdateMeta(ctx, sessionID, session.Meta); err != nil {
		return "", errs.Internal("failed to store recording metadata", err)
	}
	s.invalidateSession(ctx, sessionID)

	if _, err := s.recordingRepo.UpsertByEgressID(ctx, &model.RecordingRun{
		SessionID: sessionID,
		EgressID:  egressID,
		Status:    model.RecordingStarting,
		StartedAt: &now,
	}); err != nil {
		log.Warn().Err(err).Str("egressId", egressID).Msg("recording: initial run upsert failed")
	}

	log.Info().Str("sessionId", sessionID).Str("egressId", egressID).Msg("recording started")
	return egressID, nil
}

// Stop asks the provider to end the active recording and stamps a stop
// timestamp. Fails NotFound when no recording is active.
func (s *RecordingService) Stop(ctx context.Context, requester *model.User, sessionID string) error {
	session, err := s.requireModifyRights(ctx, requester, sessionID)
	if err != nil {
		return err
	}

	egressID := session.ActiveEgressID()
	if egressID == "" {
		return errs.NotFound("no active recording")
	}

	if err := s.media.StopRecording(ctx, egressID); err != nil {
		return err
	}

	now := time.Now().UTC()
	session.Meta.Recording.StoppedAt = &now
	if err := s.sessionRepo.UpdateMeta(ctx, sessionID, session.Meta); err != nil {
		return errs.Internal("failed to store recording metadata", err)
	}
	s.invalidateSession(ctx, sessionID)

	log.Info().Str("sessionId", sessionID).Str("egressId", egressID).Msg("recording stop requested")
	return nil
}

// ListRecordings returns all recording runs of a session with private
// storage locators resolved to time-limited signed URLs.
func (s *RecordingService) ListRecordings(ctx context.Context, requester *model.User, sessionID string) ([]*model.RecordingRun, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, errs.Internal("failed to load session", err)
	}
	if session == nil {
		return nil, errs.NotFound("session not found")
	}
	class, err := s.classRepo.GetByID(ctx, session.ClassID)
	if err != nil {
		return nil, errs.Internal("failed to load class", err)
	}
	if !s.policy.CanAccessSession(requester, session, class) {
		return nil, errs.Forbidden("no access to this session")
	}

	runs, err := s.recordingRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, errs.Internal("failed to list recordings", err)
	}
	for _, run := range runs {
		resolved, err := s.resolver.Resolve(ctx, run.Location)
		if err != nil {
			log.Warn().Err(err).Str("egressId", run.EgressID).Msg("recording: URL resolution failed")
			continue
		}
		run.Location = resolved
	}
	return runs, nil
}

// HandleProviderEvent ingests a signed provider webhook. Signature failures
// are BadRequest; authenticated events that cannot be used (non-egress
// types, unparseable room names) are acknowledged and dropped so the
// provider does not retry them.
func (s *RecordingService) HandleProviderEvent(ctx context.Context, body []byte, authHeader string) error {
	if err := s.verifyWebhook(body, authHeader); err != nil {
		return err
	}

	event := &livekit.WebhookEvent{}
	unmarshal := protojson.UnmarshalOptions{DiscardUnknown: true, AllowPartial: true}
	if err := unmarshal.Unmarshal(body, event); err != nil {
		return errs.BadRequest("malformed webhook payload")
	}

	if !strings.HasPrefix(event.Event, "egress_") || event.EgressInfo == nil {
		log.Debug().Str("event", event.Event).Msg("webhook: ignoring non-egress event")
		return nil
	}

	info := event.EgressInfo
	sessionID := SessionIDFromRoomName(info.RoomName)
	if sessionID == "" {
		log.Warn().Str("roomName", info.RoomName).Str("egressId", info.EgressId).
			Msg("webhook: room name not parseable, dropping event")
		return nil
	}

	run := &model.RecordingRun{
		SessionID: sessionID,
		EgressID:  info.EgressId,
		Status:    mapEgressStatus(info.Status),
		Error:     info.Error,
	}
	if t := normalizeEpoch(info.StartedAt); !t.IsZero() {
		run.StartedAt = &t
	}
	if t := normalizeEpoch(info.EndedAt); !t.IsZero() {
		run.EndedAt = &t
	}
	if len(info.FileResults) > 0 {
		file := info.FileResults[0]
		run.Filename = file.Filename
		run.Location = file.Location
		if file.Duration > 0 {
			run.Duration = time.Duration(file.Duration)
		}
		run.SizeBytes = file.Size
	}

	// The upsert itself refuses to regress a terminal run; a dropped stale
	// write comes back as the untouched stored document.
	stored, err := s.recordingRepo.UpsertByEgressID(ctx, run)
	if err != nil {
		return errs.Internal("failed to upsert recording run", err)
	}
	if stored != nil && stored.Status.IsTerminal() && !run.Status.IsTerminal() {
		log.Warn().Str("egressId", info.EgressId).
			Str("stored", string(stored.Status)).Str("incoming", string(run.Status)).
			Msg("webhook: ignoring stale status for terminal run")
		return nil
	}

	if run.Status == model.RecordingComplete {
		s.mirrorPlaybackURL(ctx, sessionID, run)
	}

	log.Info().Str("sessionId", sessionID).Str("egressId", info.EgressId).
		Str("status", string(run.Status)).Msg("webhook: recording run updated")
	return nil
}

// mirrorPlaybackURL copies a resolvable playback URL onto the session for
// consumers that read recordings off the session document.
func (s *RecordingService) mirrorPlaybackURL(ctx context.Context, sessionID string, run *model.RecordingRun) {
	url := ""
	switch {
	case strings.HasPrefix(run.Location, "http://"), strings.HasPrefix(run.Location, "https://"):
		url = run.Location
	case s.publicBaseURL != "" && run.Filename != "":
		url = strings.TrimSuffix(s.publicBaseURL, "/") + "/" + strings.TrimPrefix(run.Filename, "/")
	}
	if url == "" {
		return
	}
	if err := s.sessionRepo.SetRecordingURL(ctx, sessionID, url); err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("recording: failed to mirror playback URL")
		return
	}
	s.invalidateSession(ctx, sessionID)
}

func (s *RecordingService) requireModifyRights(ctx context.Context, requester *model.User, sessionID string) (*model.Session, error) {
	if requester == nil || (!requester.IsTeacher() && !requester.IsAdmin()) {
		return nil, errs.Forbidden("only teachers or admins may control recording")
	}
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, errs.Internal("failed to load session", err)
	}
	if session == nil {
		return nil, errs.NotFound("session not found")
	}
	class, err := s.classRepo.GetByID(ctx, session.ClassID)
	if err != nil {
		return nil, errs.Internal("failed to load class", err)
	}
	if !s.policy.CanModifySession(requester, session, class) {
		return nil, errs.Forbidden("no permission to modify this session")
	}
	return session, nil
}

func (s *RecordingService) invalidateSession(ctx context.Context, sessionID string) {
	if err := s.sessionCache.Invalidate(ctx, sessionID); err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("recording: cache invalidation failed")
	}
}

// verifyWebhook checks the provider's signature header: a JWT signed with
// the shared API secret whose sha256 claim must match the request body.
func (s *RecordingService) verifyWebhook(body []byte, authHeader string) error {
	if authHeader == "" {
		return errs.BadRequest("missing webhook signature")
	}
	verifier, err := auth.ParseAPIToken(authHeader)
	if err != nil {
		return errs.BadRequest("invalid webhook signature")
	}
	if verifier.APIKey() != s.apiKey {
		return errs.BadRequest("unknown webhook API key")
	}
	claims, err := verifier.Verify(s.apiSecret)
	if err != nil {
		return errs.BadRequest("invalid webhook signature")
	}
	sum := sha256.Sum256(body)
	if claims.Sha256 != base64.StdEncoding.EncodeToString(sum[:]) {
		return errs.BadRequest("webhook body digest mismatch")
	}
	return nil
}

func mapEgressStatus(status livekit.EgressStatus) model.RecordingStatus {
	switch status {
	case livekit.EgressStatus_EGRESS_STARTING:
		return model.RecordingStarting
	case livekit.EgressStatus_EGRESS_ACTIVE:
		return model.RecordingActive
	case livekit.EgressStatus_EGRESS_ENDING:
		return model.RecordingEnding
	case livekit.EgressStatus_EGRESS_COMPLETE:
		return model.RecordingComplete
	case livekit.EgressStatus_EGRESS_FAILED:
		return model.RecordingFailed
	case livekit.EgressStatus_EGRESS_ABORTED:
		return model.RecordingAborted
	case livekit.EgressStatus_EGRESS_LIMIT_REACHED:
		return model.RecordingLimitReached
	default:
		return model.RecordingUnknown
	}
}

// normalizeEpoch converts a provider timestamp of unknown unit (seconds,
// milliseconds, microseconds, or nanoseconds) into a time.Time by sniffing
// the value's magnitude.
func normalizeEpoch(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	switch {
	case v < 1e11: // seconds until year 5138
		return time.Unix(v, 0).UTC()
	case v < 1e14:
		return time.UnixMilli(v).UTC()
	case v < 1e17:
		return time.UnixMicro(v).UTC()
	default:
		return time.Unix(0, v).UTC()
	}
}
