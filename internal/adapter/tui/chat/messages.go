// Package chat implements the terminal chat UI: one session, replies
// streamed into a scrolling transcript, handoffs shown as banners.
package chat

import (
	"relay-ai/internal/domain"
	"relay-ai/internal/usecase"
)

// Gen on every message identifies the session generation it belongs to.
// /new starts a fresh generation and messages from older ones are dropped.

// TurnStartedMsg carries the dispatcher's answer to a submitted message.
type TurnStartedMsg struct {
	Resp *usecase.Response
	Err  error
	Gen  uint64
}

// FragmentMsg is one piece of a streamed reply.
type FragmentMsg struct {
	Text string
	Gen  uint64
}

// StreamDoneMsg reports the transcript turn a stream produced.
type StreamDoneMsg struct {
	Turn domain.Turn
	Err  error
	Gen  uint64
}
