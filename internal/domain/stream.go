package domain

// StreamStartedPayload is the payload for EventStreamStarted events.
type StreamStartedPayload struct {
	Agent string `json:"agent"`
}

// StreamCompletedPayload is the payload for EventStreamCompleted events.
// Published once when the stream is finalized, including abandoned streams.
type StreamCompletedPayload struct {
	Agent      string `json:"agent"`
	Content    string `json:"content"`
	Incomplete bool   `json:"incomplete,omitempty"`
	Usage      *Usage `json:"usage,omitempty"`
}

// StreamErrorPayload is the payload for EventStreamError events.
// Published when a streaming response fails mid-stream.
type StreamErrorPayload struct {
	Agent string `json:"agent"`
	Error string `json:"error"`
}
