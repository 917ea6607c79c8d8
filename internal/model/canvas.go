package model

import "time"

// MaxCanvasOperations caps the persisted operation log per session; older
// operations are evicted first.
const MaxCanvasOperations = 1000

// Canvas defaults used when a board is cleared.
const (
	DefaultCanvasWidth      = 800
	DefaultCanvasHeight     = 600
	DefaultCanvasBackground = "#FFFFFF"
)

// CanvasOperation is a single drawing action. Payload is shaped by the
// client (stroke points, color, erase region) and stored opaquely.
type CanvasOperation struct {
	Type      string                 `json:"type" bson:"type"`
	Payload   map[string]interface{} `json:"payload" bson:"payload"`
	Timestamp time.Time              `json:"timestamp" bson:"timestamp"`
}

type CanvasMeta struct {
	Width      int    `json:"width" bson:"width"`
	Height     int    `json:"height" bson:"height"`
	Background string `json:"background" bson:"background"`
}

// CanvasState is the persisted whiteboard of a session.
type CanvasState struct {
	Operations []CanvasOperation `json:"operations" bson:"operations"`
	Meta       CanvasMeta        `json:"meta" bson:"meta"`
}

// EmptyCanvasState returns a cleared board with default dimensions.
func EmptyCanvasState() *CanvasState {
	return &CanvasState{
		Operations: []CanvasOperation{},
		Meta: CanvasMeta{
			Width:      DefaultCanvasWidth,
			Height:     DefaultCanvasHeight,
			Background: DefaultCanvasBackground,
		},
	}
}

// Trim drops the oldest operations so that at most max remain.
func (c *CanvasState) Trim(max int) {
	if len(c.Operations) > max {
		c.Operations = c.Operations[len(c.Operations)-max:]
	}
}
