package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"relay-ai/internal/domain"
	"relay-ai/internal/usecase"
)

const (
	sendQueueSize = 64
	// inboxSize bounds the messages waiting behind the current turn.
	inboxSize = 8
	writeTimeout  = 5 * time.Second
	// maxFrameBytes bounds one client frame.
	maxFrameBytes = 64 * 1024
)

// clientConn is one WebSocket conversation.
type clientConn struct {
	ws      *websocket.Conn
	session *usecase.Session
	logger  *slog.Logger

	sendCh    chan Frame
	done      chan struct{}
	closeOnce sync.Once
	// hangup ends the connection context when writing fails.
	hangup context.CancelFunc

	// Messages wait in inbox and run one at a time on the serve
	// goroutine, which closes idle when it exits.
	inbox chan string
	idle  chan struct{}

	// turnCancel ends the running turn; nil between turns.
	turnMu     sync.Mutex
	turnCancel context.CancelFunc
}

func newClientConn(ws *websocket.Conn, session *usecase.Session, hangup context.CancelFunc, logger *slog.Logger) *clientConn {
	ws.SetReadLimit(maxFrameBytes)
	return &clientConn{
		ws:      ws,
		session: session,
		logger:  logger,
		sendCh:  make(chan Frame, sendQueueSize),
		done:    make(chan struct{}),
		hangup:  hangup,
		inbox:   make(chan string, inboxSize),
		idle:    make(chan struct{}),
	}
}

func (cc *clientConn) close() {
	cc.closeOnce.Do(func() { close(cc.done) })
}

// send queues a frame, waiting while the queue is full. It gives up once
// the connection is closed.
func (cc *clientConn) send(f Frame) bool {
	select {
	case cc.sendCh <- f:
		return true
	case <-cc.done:
		return false
	}
}

// onEvent runs inline on the dispatcher's goroutine, so handoff frames are
// queued before any frame of the reply that follows them.
func (cc *clientConn) onEvent(_ context.Context, event domain.Event) {
	if event.Type != domain.EventAgentHandoff {
		return
	}
	var p domain.HandoffPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		cc.logger.Warn("gateway: bad handoff payload", "session_id", event.SessionID, "error", err)
		return
	}
	cc.send(Frame{Type: FrameTypeHandoff, From: p.From, To: p.To, Content: p.Note})
}

func (cc *clientConn) writeLoop(ctx context.Context) {
	defer cc.hangup()
	for {
		select {
		case <-cc.done:
			return
		case <-ctx.Done():
			return
		case frame := <-cc.sendCh:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, cc.ws, frame)
			cancel()
			if err != nil {
				cc.logger.Debug("gateway write failed", "session_id", cc.session.ID, "error", err)
				return
			}
		}
	}
}

func (s *Server) readLoop(ctx context.Context, cc *clientConn) {
	for {
		_, data, err := cc.ws.Read(ctx)
		if err != nil {
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			cc.send(errorFrame(domain.NewDomainError("gateway.read", domain.ErrFrameInvalid, "malformed JSON")))
			continue
		}

		switch frame.Type {
		case FrameTypeMessage:
			s.metrics.MessagesRecv.Add(1)
			select {
			case cc.inbox <- frame.Content:
			default:
				cc.send(errorFrame(domain.NewDomainError("gateway.read", domain.ErrSessionBusy, "message queue full")))
			}
		case FrameTypeCancel:
			cc.cancelTurn()
		default:
			cc.send(errorFrame(domain.NewDomainError("gateway.read", domain.ErrFrameInvalid,
				"unknown frame type "+string(frame.Type))))
		}
	}
}

// serve runs queued messages in arrival order, each to completion before
// the next starts.
func (s *Server) serve(ctx context.Context, cc *clientConn) {
	defer close(cc.idle)
	for {
		select {
		case <-ctx.Done():
			return
		case <-cc.done:
			return
		case message := <-cc.inbox:
			if ctx.Err() != nil {
				return
			}
			turnCtx := cc.beginTurn(ctx)
			s.runTurn(turnCtx, cc, message)
			cc.cancelTurn()
		}
	}
}

func (cc *clientConn) beginTurn(parent context.Context) context.Context {
	cc.turnMu.Lock()
	defer cc.turnMu.Unlock()
	ctx, cancel := context.WithCancel(parent)
	cc.turnCancel = cancel
	return ctx
}

// cancelTurn abandons the running turn, if any. Queued messages still run.
func (cc *clientConn) cancelTurn() {
	cc.turnMu.Lock()
	defer cc.turnMu.Unlock()
	if cc.turnCancel != nil {
		cc.turnCancel()
		cc.turnCancel = nil
	}
}

// runTurn dispatches one message and delivers the reply.
func (s *Server) runTurn(ctx context.Context, cc *clientConn, message string) {
	resp, err := s.deps.Dispatcher.Handle(ctx, cc.session, message)
	if err != nil {
		cc.send(errorFrame(err))
		return
	}
	s.deliver(cc, resp)
}

func (s *Server) deliver(cc *clientConn, resp *usecase.Response) {
	reply := Frame{Type: FrameTypeReply, Agent: resp.Agent, FastPath: resp.FastPath}

	if resp.IsStream() {
		stream := resp.Stream
		for fragment := range stream.Fragments() {
			if !cc.send(Frame{Type: FrameTypeFragment, Agent: resp.Agent, Content: fragment}) {
				stream.Close()
				break
			}
		}
		turn := stream.Turn()
		reply.Content = turn.Content
		reply.Incomplete = turn.Incomplete
		reply.Error = turn.Error
		if err := stream.Err(); err != nil {
			reply.Code = usecase.ClassifyError(err).Code()
		}
	} else {
		reply.Content = resp.Text
		if resp.Err != nil {
			reply.Error = true
			reply.Code = usecase.ClassifyError(resp.Err).Code()
		}
	}

	if cc.send(reply) {
		s.metrics.MessagesSent.Add(1)
	}
}
