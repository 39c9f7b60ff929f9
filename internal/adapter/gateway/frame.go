package gateway

import "relay-ai/internal/domain"

// FrameType identifies the kind of frame exchanged over the WebSocket connection.
type FrameType string

// Client frames.
const (
	FrameTypeMessage FrameType = "message"
	// FrameTypeCancel abandons the reply currently being streamed.
	FrameTypeCancel FrameType = "cancel"
)

// Server frames.
const (
	FrameTypeWelcome  FrameType = "welcome"
	FrameTypeHandoff  FrameType = "handoff"
	FrameTypeFragment FrameType = "fragment"
	FrameTypeReply    FrameType = "reply"
	FrameTypeError    FrameType = "error"
)

// ClientFrame is a frame sent by the chat client.
type ClientFrame struct {
	Type    FrameType `json:"type"`
	Content string    `json:"content,omitempty"`
}

// Frame is a frame sent by the server. Which fields are set depends on Type:
//
//	welcome   SessionID, Agent, Content
//	handoff   From, To, Content (the system note)
//	fragment  Agent, Content
//	reply     Agent, Content, FastPath, Incomplete, Error, Code
//	error     Code, Content
type Frame struct {
	Type       FrameType        `json:"type"`
	SessionID  string           `json:"session_id,omitempty"`
	Agent      string           `json:"agent,omitempty"`
	From       string           `json:"from,omitempty"`
	To         string           `json:"to,omitempty"`
	Content    string           `json:"content,omitempty"`
	FastPath   bool             `json:"fast_path,omitempty"`
	Incomplete bool             `json:"incomplete,omitempty"`
	Error      bool             `json:"error,omitempty"`
	Code       domain.ErrorCode `json:"code,omitempty"`
}

func errorFrame(err error) Frame {
	return Frame{Type: FrameTypeError, Code: domain.ErrorCodeOf(err), Content: err.Error()}
}
