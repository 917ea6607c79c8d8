package model

import "time"

type RecordingStatus string

const (
	RecordingStarting     RecordingStatus = "STARTING"
	RecordingActive       RecordingStatus = "ACTIVE"
	RecordingEnding       RecordingStatus = "ENDING"
	RecordingComplete     RecordingStatus = "COMPLETE"
	RecordingFailed       RecordingStatus = "FAILED"
	RecordingAborted      RecordingStatus = "ABORTED"
	RecordingLimitReached RecordingStatus = "LIMIT_REACHED"
	RecordingUnknown      RecordingStatus = "UNKNOWN"
)

// IsTerminal reports whether the status is final. A terminal run is never
// updated by a later event carrying a non-terminal status.
func (s RecordingStatus) IsTerminal() bool {
	switch s {
	case RecordingComplete, RecordingFailed, RecordingAborted, RecordingLimitReached:
		return true
	}
	return false
}

// RecordingRun is one provider-side egress job for a session. Runs are an
// append-only audit: upserted by egress id, never deleted.
type RecordingRun struct {
	ID        string          `json:"id" bson:"_id"`
	SessionID string          `json:"sessionId" bson:"sessionId"`
	EgressID  string          `json:"egressId" bson:"egressId"`
	Status    RecordingStatus `json:"status" bson:"status"`
	Location  string          `json:"location,omitempty" bson:"location,omitempty"`
	Filename  string          `json:"filename,omitempty" bson:"filename,omitempty"`
	StartedAt *time.Time      `json:"startedAt,omitempty" bson:"startedAt,omitempty"`
	EndedAt   *time.Time      `json:"endedAt,omitempty" bson:"endedAt,omitempty"`
	Duration  time.Duration   `json:"duration,omitempty" bson:"duration,omitempty"`
	SizeBytes int64           `json:"sizeBytes,omitempty" bson:"sizeBytes,omitempty"`
	Error     string          `json:"error,omitempty" bson:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt" bson:"updatedAt"`
}
