package model

import "time"

// RecordingMeta is the recording-related slice of session metadata. The
// egress id ties the session to the provider-side recording job.
type RecordingMeta struct {
	EgressID  string     `json:"egressId" bson:"egressId"`
	StartedAt *time.Time `json:"startedAt,omitempty" bson:"startedAt,omitempty"`
	StoppedAt *time.Time `json:"stoppedAt,omitempty" bson:"stoppedAt,omitempty"`
}

// SessionMeta carries structured metadata plus an open bag for
// provider-specific extras.
type SessionMeta struct {
	Recording *RecordingMeta         `json:"recording,omitempty" bson:"recording,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty" bson:"extra,omitempty"`
}

// Session is a live class meeting.
type Session struct {
	ID           string       `json:"id" bson:"_id"`
	ClassID      string       `json:"classId" bson:"classId"`
	HostID       string       `json:"hostId" bson:"hostId"`
	StartTime    time.Time    `json:"startTime" bson:"startTime"`
	EndTime      *time.Time   `json:"endTime,omitempty" bson:"endTime,omitempty"`
	IsRecorded   bool         `json:"isRecorded" bson:"isRecorded"`
	RecordingURL string       `json:"recordingUrl,omitempty" bson:"recordingUrl,omitempty"`
	Meta         SessionMeta  `json:"meta" bson:"meta"`
	Whiteboard   *CanvasState `json:"whiteboard,omitempty" bson:"whiteboard,omitempty"`
	CreatedAt    time.Time    `json:"createdAt" bson:"createdAt"`
}

// HasEnded reports whether the session's end time has passed.
func (s *Session) HasEnded(now time.Time) bool {
	return s.EndTime != nil && s.EndTime.Before(now)
}

// ActiveEgressID returns the egress id of an in-flight recording, or ""
// when no recording is active or a stop was already requested.
func (s *Session) ActiveEgressID() string {
	r := s.Meta.Recording
	if r == nil || r.StoppedAt != nil {
		return ""
	}
	return r.EgressID
}

// RosterEntry is one participant in a session roster, annotated with live
// presence.
type RosterEntry struct {
	UserID    string `json:"userId"`
	FullName  string `json:"fullName"`
	Role      Role   `json:"role"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	IsHost    bool   `json:"isHost"`
	IsOnline  bool   `json:"isOnline"`
}
