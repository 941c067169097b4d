package models

// Frame event names sent to render clients
const (
	FrameSnapshot = "snapshot"
	FrameStatus   = "status"
	FrameFinished = "finished"
	FrameError    = "error"
)

// Frame is what render clients receive over WebSocket or SSE. HTML is always
// a prefix of the answer that is safe to render as-is.
type Frame struct {
	Event   string `json:"event"`
	TurnID  string `json:"turn_id,omitempty"`
	HTML    string `json:"html,omitempty"`
	Message string `json:"message,omitempty"`
}
