package ws

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MsgUserJoined         MessageType = "user_joined"
	MsgUserLeft           MessageType = "user_left"
	MsgUserKicked         MessageType = "user_kicked"
	MsgScreenShareStarted MessageType = "screen_share_started"
	MsgScreenShareStopped MessageType = "screen_share_stopped"
	MsgCanvasOpened       MessageType = "canvas_opened"
	MsgCanvasReleased     MessageType = "canvas_released"
	MsgCanvasCleared      MessageType = "canvas_cleared"
	MsgSessionEnded       MessageType = "session_ended"
	MsgError              MessageType = "error"
)

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub manages WebSocket connections for sessions
type Hub struct {
	// sessionID -> handle -> connection
	sessionConns map[string]map[string]*Connection
	byHandle     map[string]*Connection

	mu sync.RWMutex

	// Channels for coordination
	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *BroadcastMessage
}

// Connection represents one user's WebSocket connection to a session
type Connection struct {
	Handle    string
	SessionID string
	UserID    string
	Send      chan []byte
	Hub       *Hub
}

// BroadcastMessage is a message to broadcast
type BroadcastMessage struct {
	SessionID string
	ToUser    string // Empty means everyone in the session
	Message   *Message
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	h := &Hub{
		sessionConns: make(map[string]map[string]*Connection),
		byHandle:     make(map[string]*Connection),
		register:     make(chan *Connection),
		unregister:   make(chan *Connection),
		broadcast:    make(chan *BroadcastMessage, 256),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			if h.sessionConns[conn.SessionID] == nil {
				h.sessionConns[conn.SessionID] = make(map[string]*Connection)
			}
			h.sessionConns[conn.SessionID][conn.Handle] = conn
			h.byHandle[conn.Handle] = conn
			h.mu.Unlock()
			log.Debug().Str("handle", conn.Handle).Str("sessionId", conn.SessionID).
				Msg("ws: connection registered")

		case conn := <-h.unregister:
			h.mu.Lock()
			if existing, ok := h.byHandle[conn.Handle]; ok && existing == conn {
				delete(h.byHandle, conn.Handle)
				if conns, ok := h.sessionConns[conn.SessionID]; ok {
					delete(conns, conn.Handle)
					if len(conns) == 0 {
						delete(h.sessionConns, conn.SessionID)
					}
				}
				close(conn.Send)
			}
			h.mu.Unlock()
			log.Debug().Str("handle", conn.Handle).Str("sessionId", conn.SessionID).
				Msg("ws: connection unregistered")

		case msg := <-h.broadcast:
			h.mu.RLock()
			data, _ := json.Marshal(msg.Message)
			for _, conn := range h.sessionConns[msg.SessionID] {
				if msg.ToUser != "" && conn.UserID != msg.ToUser {
					continue
				}
				select {
				case conn.Send <- data:
				default:
					// Drop message if buffer full
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// BroadcastToSession sends a message to every connection in the session
// (implements service.Broadcaster)
func (h *Hub) BroadcastToSession(sessionID string, msgType string, payload interface{}) {
	data, _ := json.Marshal(payload)
	h.broadcast <- &BroadcastMessage{
		SessionID: sessionID,
		Message: &Message{
			Type:    MessageType(msgType),
			Payload: data,
		},
	}
}

// BroadcastToUser sends a message to one user's connection in the session
// (implements service.Broadcaster)
func (h *Hub) BroadcastToUser(sessionID, userID string, msgType string, payload interface{}) {
	data, _ := json.Marshal(payload)
	h.broadcast <- &BroadcastMessage{
		SessionID: sessionID,
		ToUser:    userID,
		Message: &Message{
			Type:    MessageType(msgType),
			Payload: data,
		},
	}
}

// DisconnectHandle closes the connection with the given handle (implements
// service.Broadcaster)
func (h *Hub) DisconnectHandle(handle string) {
	h.mu.RLock()
	conn, ok := h.byHandle[handle]
	h.mu.RUnlock()
	if ok {
		h.Unregister(conn)
	}
}
