package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/LuckiPhoenix/idest-server/internal/errs"
	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
)

const roomNamePrefix = "session-"

// RoomNameForSession maps a session id to its provider room name.
func RoomNameForSession(sessionID string) string {
	return roomNamePrefix + sessionID
}

// SessionIDFromRoomName reverses RoomNameForSession. Returns "" when the
// room name does not carry the prefix.
func SessionIDFromRoomName(roomName string) string {
	if !strings.HasPrefix(roomName, roomNamePrefix) {
		return ""
	}
	return strings.TrimPrefix(roomName, roomNamePrefix)
}

// MediaGrants are the publish/subscribe capabilities minted into a room
// token.
type MediaGrants struct {
	CanPublish     bool
	CanSubscribe   bool
	CanPublishData bool
}

// MediaTrack is a participant's published track as reported by the provider.
type MediaTrack struct {
	ID    string
	Kind  string // "audio" or "video"
	Muted bool
}

// MediaProvider is the thin RPC surface against the real-time-media
// provider. Failures surface as Upstream errors, never Internal.
type MediaProvider interface {
	EnsureRoom(ctx context.Context, sessionID string, meta map[string]interface{}) (string, error)
	IssueToken(roomName, identity, displayName string, meta map[string]interface{}, grants MediaGrants) (string, error)
	SendData(ctx context.Context, sessionID string, payload []byte, identities ...string) error
	RemoveParticipant(ctx context.Context, roomName, identity string) error
	ListTracks(ctx context.Context, roomName, identity string) ([]MediaTrack, error)
	MuteTrack(ctx context.Context, roomName, identity, trackID string, muted bool) error
	StartCompositeRecording(ctx context.Context, roomName string) (string, error)
	StopRecording(ctx context.Context, egressID string) error
}

// RecordingUpload is where the provider drops composite recording files.
type RecordingUpload struct {
	AccessKey string
	SecretKey string
	Region    string
	Endpoint  string
	Bucket    string
}

// LiveKitService implements MediaProvider against a LiveKit deployment.
type LiveKitService struct {
	apiKey    string
	apiSecret string
	room      *lksdk.RoomServiceClient
	egress    *lksdk.EgressClient
	upload    RecordingUpload
}

func NewLiveKitService(url, apiKey, apiSecret string, upload RecordingUpload) *LiveKitService {
	return &LiveKitService{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		room:      lksdk.NewRoomServiceClient(url, apiKey, apiSecret),
		egress:    lksdk.NewEgressClient(url, apiKey, apiSecret),
		upload:    upload,
	}
}

// EnsureRoom creates the session's room if needed and returns its name.
// Creation is idempotent on the provider side.
func (s *LiveKitService) EnsureRoom(ctx context.Context, sessionID string, meta map[string]interface{}) (string, error) {
	roomName := RoomNameForSession(sessionID)

	metadata := ""
	if len(meta) > 0 {
		data, err := json.Marshal(meta)
		if err != nil {
			return "", errs.Internal("failed to encode room metadata", err)
		}
		metadata = string(data)
	}

	_, err := s.room.CreateRoom(ctx, &livekit.CreateRoomRequest{
		Name:     roomName,
		Metadata: metadata,
	})
	if err != nil {
		return "", errs.Upstream("failed to create media room", err)
	}
	return roomName, nil
}

// IssueToken mints a signed room credential for the identity.
func (s *LiveKitService) IssueToken(roomName, identity, displayName string, meta map[string]interface{}, grants MediaGrants) (string, error) {
	at := auth.NewAccessToken(s.apiKey, s.apiSecret)

	grant := &auth.VideoGrant{
		RoomJoin:       true,
		Room:           roomName,
		CanPublish:     &grants.CanPublish,
		CanSubscribe:   &grants.CanSubscribe,
		CanPublishData: &grants.CanPublishData,
	}
	at.SetVideoGrant(grant).
		SetIdentity(identity).
		SetName(displayName).
		SetValidFor(6 * time.Hour)

	if len(meta) > 0 {
		data, err := json.Marshal(meta)
		if err != nil {
			return "", errs.Internal("failed to encode token metadata", err)
		}
		at.SetMetadata(string(data))
	}

	token, err := at.ToJWT()
	if err != nil {
		return "", errs.Upstream("failed to sign media token", err)
	}
	return token, nil
}

// SendData publishes a reliable data message into the session's room,
// optionally scoped to specific identities.
func (s *LiveKitService) SendData(ctx context.Context, sessionID string, payload []byte, identities ...string) error {
	_, err := s.room.SendData(ctx, &livekit.SendDataRequest{
		Room:                  RoomNameForSession(sessionID),
		Data:                  payload,
		Kind:                  livekit.DataPacket_RELIABLE,
		DestinationIdentities: identities,
	})
	if err != nil {
		return errs.Upstream("failed to send data message", err)
	}
	return nil
}

func (s *LiveKitService) RemoveParticipant(ctx context.Context, roomName, identity string) error {
	_, err := s.room.RemoveParticipant(ctx, &livekit.RoomParticipantIdentity{
		Room:     roomName,
		Identity: identity,
	})
	if err != nil {
		return errs.Upstream("failed to remove participant", err)
	}
	return nil
}

func (s *LiveKitService) ListTracks(ctx context.Context, roomName, identity string) ([]MediaTrack, error) {
	participant, err := s.room.GetParticipant(ctx, &livekit.RoomParticipantIdentity{
		Room:     roomName,
		Identity: identity,
	})
	if err != nil {
		return nil, errs.Upstream("failed to get participant", err)
	}

	tracks := make([]MediaTrack, 0, len(participant.Tracks))
	for _, t := range participant.Tracks {
		kind := ""
		switch t.Type {
		case livekit.TrackType_AUDIO:
			kind = "audio"
		case livekit.TrackType_VIDEO:
			kind = "video"
		default:
			continue
		}
		tracks = append(tracks, MediaTrack{ID: t.Sid, Kind: kind, Muted: t.Muted})
	}
	return tracks, nil
}

func (s *LiveKitService) MuteTrack(ctx context.Context, roomName, identity, trackID string, muted bool) error {
	_, err := s.room.MutePublishedTrack(ctx, &livekit.MuteRoomTrackRequest{
		Room:     roomName,
		Identity: identity,
		TrackSid: trackID,
		Muted:    muted,
	})
	if err != nil {
		return errs.Upstream("failed to mute track", err)
	}
	return nil
}

// StartCompositeRecording starts a merged recording of the whole room and
// returns the provider's egress id.
func (s *LiveKitService) StartCompositeRecording(ctx context.Context, roomName string) (string, error) {
	info, err := s.egress.StartRoomCompositeEgress(ctx, &livekit.RoomCompositeEgressRequest{
		RoomName: roomName,
		Layout:   "grid",
		FileOutputs: []*livekit.EncodedFileOutput{{
			FileType: livekit.EncodedFileType_MP4,
			Filepath: fmt.Sprintf("recordings/%s/{time}.mp4", roomName),
			Output: &livekit.EncodedFileOutput_S3{S3: &livekit.S3Upload{
				AccessKey: s.upload.AccessKey,
				Secret:    s.upload.SecretKey,
				Region:    s.upload.Region,
				Endpoint:  s.upload.Endpoint,
				Bucket:    s.upload.Bucket,
			}},
		}},
	})
	if err != nil {
		return "", errs.Upstream("failed to start composite recording", err)
	}
	return info.EgressId, nil
}

func (s *LiveKitService) StopRecording(ctx context.Context, egressID string) error {
	_, err := s.egress.StopEgress(ctx, &livekit.StopEgressRequest{EgressId: egressID})
	if err != nil {
		return errs.Upstream("failed to stop recording", err)
	}
	return nil
}
