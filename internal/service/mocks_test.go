package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LuckiPhoenix/idest-server/internal/model"
)

// Mock SessionRepo for testing
type mockSessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session

	shouldFailGet    bool
	shouldFailUpdate bool
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: make(map[string]*model.Session)}
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session
	return nil
}

func (m *mockSessionRepo) GetByID(ctx context.Context, id string) (*model.Session, error) {
	if m.shouldFailGet {
		return nil, errors.New("database get failed")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id], nil
}

func (m *mockSessionRepo) Update(ctx context.Context, session *model.Session) error {
	if m.shouldFailUpdate {
		return errors.New("database update failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session
	return nil
}

func (m *mockSessionRepo) UpdateMeta(ctx context.Context, id string, meta model.SessionMeta) error {
	if m.shouldFailUpdate {
		return errors.New("database update failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.Meta = meta
	}
	return nil
}

func (m *mockSessionRepo) UpdateWhiteboard(ctx context.Context, id string, state *model.CanvasState) error {
	if m.shouldFailUpdate {
		return errors.New("database update failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.Whiteboard = state
	}
	return nil
}

func (m *mockSessionRepo) SetRecordingURL(ctx context.Context, id, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.RecordingURL = url
		s.IsRecorded = true
	}
	return nil
}

func (m *mockSessionRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Mock ClassRepo for testing
type mockClassRepo struct {
	mu      sync.RWMutex
	classes map[string]*model.Class
}

func newMockClassRepo() *mockClassRepo {
	return &mockClassRepo{classes: make(map[string]*model.Class)}
}

func (m *mockClassRepo) GetByID(ctx context.Context, id string) (*model.Class, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.classes[id], nil
}

// Mock UserRepo for testing
type mockUserRepo struct {
	mu    sync.RWMutex
	users map[string]*model.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.users[id], nil
}

func (m *mockUserRepo) GetByIDs(ctx context.Context, ids []string) ([]*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

// Mock ChatRepo for testing
type mockChatRepo struct {
	mu         sync.Mutex
	messages   []*model.ChatMessage
	shouldFail bool
}

func newMockChatRepo() *mockChatRepo {
	return &mockChatRepo{}
}

func (m *mockChatRepo) Insert(ctx context.Context, msg *model.ChatMessage) error {
	if m.shouldFail {
		return errors.New("chat insert failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

// Mock RecordingRepo for testing
type mockRecordingRepo struct {
	mu   sync.RWMutex
	runs map[string]*model.RecordingRun // egressID -> run
}

func newMockRecordingRepo() *mockRecordingRepo {
	return &mockRecordingRepo{runs: make(map[string]*model.RecordingRun)}
}

func (m *mockRecordingRepo) UpsertByEgressID(ctx context.Context, run *model.RecordingRun) (*model.RecordingRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	stored, ok := m.runs[run.EgressID]
	if ok && stored.Status.IsTerminal() && !run.Status.IsTerminal() {
		// Mirrors the store-side filter: a stale non-terminal write never
		// touches a terminal run and reports the stored document back.
		copied := *stored
		return &copied, nil
	}
	if !ok {
		stored = &model.RecordingRun{
			ID:        uuid.New().String(),
			EgressID:  run.EgressID,
			CreatedAt: now,
		}
		m.runs[run.EgressID] = stored
	}
	stored.SessionID = run.SessionID
	stored.Status = run.Status
	stored.UpdatedAt = now
	if run.Location != "" {
		stored.Location = run.Location
	}
	if run.Filename != "" {
		stored.Filename = run.Filename
	}
	if run.StartedAt != nil {
		stored.StartedAt = run.StartedAt
	}
	if run.EndedAt != nil {
		stored.EndedAt = run.EndedAt
	}
	if run.Duration != 0 {
		stored.Duration = run.Duration
	}
	if run.SizeBytes != 0 {
		stored.SizeBytes = run.SizeBytes
	}
	if run.Error != "" {
		stored.Error = run.Error
	}
	copied := *stored
	return &copied, nil
}

func (m *mockRecordingRepo) GetByEgressID(ctx context.Context, egressID string) (*model.RecordingRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[egressID]
	if !ok {
		return nil, nil
	}
	copied := *run
	return &copied, nil
}

func (m *mockRecordingRepo) ListBySession(ctx context.Context, sessionID string) ([]*model.RecordingRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.RecordingRun
	for _, run := range m.runs {
		if run.SessionID == sessionID {
			copied := *run
			out = append(out, &copied)
		}
	}
	return out, nil
}

// Mock SessionCache for testing (always misses unless primed)
type mockSessionCache struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
}

func newMockSessionCache() *mockSessionCache {
	return &mockSessionCache{sessions: make(map[string]*model.Session)}
}

func (m *mockSessionCache) Set(ctx context.Context, session *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session
	return nil
}

func (m *mockSessionCache) Get(ctx context.Context, id string) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id], nil
}

func (m *mockSessionCache) Invalidate(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Mock MediaProvider for testing
type mockMediaProvider struct {
	mu sync.Mutex

	removedParticipants []string
	mutedTracks         []string
	dataMessages        [][]byte
	tracks              map[string][]MediaTrack // identity -> tracks
	egressCounter       int

	shouldFailSendData bool
	shouldFailEgress   bool
}

func newMockMediaProvider() *mockMediaProvider {
	return &mockMediaProvider{tracks: make(map[string][]MediaTrack)}
}

func (m *mockMediaProvider) EnsureRoom(ctx context.Context, sessionID string, meta map[string]interface{}) (string, error) {
	return RoomNameForSession(sessionID), nil
}

func (m *mockMediaProvider) IssueToken(roomName, identity, displayName string, meta map[string]interface{}, grants MediaGrants) (string, error) {
	return "token-" + identity, nil
}

func (m *mockMediaProvider) SendData(ctx context.Context, sessionID string, payload []byte, identities ...string) error {
	if m.shouldFailSendData {
		return errors.New("provider unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dataMessages = append(m.dataMessages, payload)
	return nil
}

func (m *mockMediaProvider) RemoveParticipant(ctx context.Context, roomName, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removedParticipants = append(m.removedParticipants, identity)
	return nil
}

func (m *mockMediaProvider) ListTracks(ctx context.Context, roomName, identity string) ([]MediaTrack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tracks[identity], nil
}

func (m *mockMediaProvider) MuteTrack(ctx context.Context, roomName, identity, trackID string, muted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutedTracks = append(m.mutedTracks, trackID)
	return nil
}

func (m *mockMediaProvider) StartCompositeRecording(ctx context.Context, roomName string) (string, error) {
	if m.shouldFailEgress {
		return "", errors.New("egress unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.egressCounter++
	return "EG_" + uuid.New().String()[:8], nil
}

func (m *mockMediaProvider) StopRecording(ctx context.Context, egressID string) error {
	if m.shouldFailEgress {
		return errors.New("egress unavailable")
	}
	return nil
}

// Mock URL resolver for testing
type mockResolver struct{}

func (mockResolver) Resolve(ctx context.Context, location string) (string, error) {
	if location == "" {
		return "", nil
	}
	return "https://signed.example.com/" + location, nil
}
