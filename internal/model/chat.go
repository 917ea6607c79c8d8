package model

import "time"

type ChatKind string

const (
	ChatKindUser   ChatKind = "user"
	ChatKindSystem ChatKind = "system"
)

// ChatMessage is a persisted session chat entry. Join/leave notices are
// written best-effort and must never block the flow that produced them.
type ChatMessage struct {
	ID        string    `json:"id" bson:"_id"`
	SessionID string    `json:"sessionId" bson:"sessionId"`
	UserID    string    `json:"userId,omitempty" bson:"userId,omitempty"`
	Content   string    `json:"content" bson:"content"`
	Kind      ChatKind  `json:"kind" bson:"kind"`
	SentAt    time.Time `json:"sentAt" bson:"sentAt"`
}
