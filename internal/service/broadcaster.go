package service

// Broadcaster interface for WebSocket broadcasting (avoids import cycle)
type Broadcaster interface {
	BroadcastToSession(sessionID string, msgType string, payload interface{})
	BroadcastToUser(sessionID, userID string, msgType string, payload interface{})
	DisconnectHandle(handle string)
}

// noopBroadcaster stands in until the websocket hub is injected.
type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastToSession(string, string, interface{}) {}

func (noopBroadcaster) BroadcastToUser(string, string, string, interface{}) {}

func (noopBroadcaster) DisconnectHandle(string) {}
