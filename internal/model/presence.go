package model

import "time"

// ConnectionRecord is a live socket connection of a user inside a session.
// Records live only in process memory; a restart loses them and clients
// repopulate the registry by reconnecting.
type ConnectionRecord struct {
	UserID      string    `json:"userId"`
	Handle      string    `json:"handle"`
	SessionID   string    `json:"sessionId"`
	FullName    string    `json:"fullName"`
	Role        Role      `json:"role"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
}
