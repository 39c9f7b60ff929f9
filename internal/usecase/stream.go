package usecase

import (
	"context"
	"iter"
	"strings"
	"sync"
	"sync/atomic"

	"relay-ai/internal/domain"
)

// streamOutcome is what a Stream hands back to the dispatcher once it is
// final.
type streamOutcome struct {
	content    string
	usage      *domain.Usage
	incomplete bool
	err        error
}

// Stream is a lazy, finite, single-consumer sequence of reply fragments.
//
// Ranging over Fragments drives the provider. Breaking out of the loop,
// calling Close or cancelling the context passed to Handle abandons the
// stream: the provider call is cancelled and the text received so far is
// appended to the transcript as an incomplete assistant turn. A stream
// that is neither ranged to the end nor closed keeps its session busy.
type Stream struct {
	ctx      context.Context
	cancel   context.CancelFunc
	deltas   <-chan domain.StreamDelta
	finalize func(streamOutcome) domain.Turn

	consumed atomic.Bool
	once     sync.Once
	done     chan struct{}

	// Written by the consuming goroutine, read after done is closed.
	acc  strings.Builder
	turn domain.Turn
	err  error
}

func newStream(ctx context.Context, cancel context.CancelFunc, deltas <-chan domain.StreamDelta, finalize func(streamOutcome) domain.Turn) *Stream {
	return &Stream{
		ctx:      ctx,
		cancel:   cancel,
		deltas:   deltas,
		finalize: finalize,
		done:     make(chan struct{}),
	}
}

// Fragments returns the reply as it arrives. The sequence can be ranged
// over once; later calls yield nothing.
func (s *Stream) Fragments() iter.Seq[string] {
	return func(yield func(string) bool) {
		if !s.consumed.CompareAndSwap(false, true) {
			return
		}

		var (
			usage     *domain.Usage
			streamErr error
			abandoned bool
			finished  bool
		)
	loop:
		for {
			select {
			case delta, ok := <-s.deltas:
				if !ok {
					finished = true
					break loop
				}
				if delta.Err != nil {
					streamErr = delta.Err
					break loop
				}
				if delta.Usage != nil {
					u := *delta.Usage
					usage = &u
				}
				if delta.Content != "" {
					s.acc.WriteString(delta.Content)
					if !yield(delta.Content) {
						abandoned = true
						break loop
					}
				}
				if delta.Done {
					finished = true
					break loop
				}
			case <-s.ctx.Done():
				abandoned = true
				break loop
			}
		}

		// A channel closed because our context was cancelled is an
		// abandoned stream, not a finished one.
		if finished && s.ctx.Err() != nil {
			finished, abandoned = false, true
		}
		s.complete(streamOutcome{
			content:    s.acc.String(),
			usage:      usage,
			incomplete: abandoned || !finished,
			err:        streamErr,
		})
	}
}

// Collect drains the stream and returns the full reply text.
func (s *Stream) Collect() string {
	for range s.Fragments() {
	}
	<-s.done
	return s.turn.Content
}

// Close abandons the stream if it has not been consumed yet and cancels an
// in-progress one. Close is idempotent.
func (s *Stream) Close() {
	s.cancel()
	if s.consumed.CompareAndSwap(false, true) {
		s.complete(streamOutcome{incomplete: true})
	}
}

// Done is closed once the reply has been appended to the transcript.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Turn returns the transcript turn the stream produced. It is valid after
// Done is closed.
func (s *Stream) Turn() domain.Turn {
	<-s.done
	return s.turn
}

// Err returns the provider error that ended the stream, if any. It is
// valid after Done is closed.
func (s *Stream) Err() error {
	<-s.done
	return s.err
}

func (s *Stream) complete(out streamOutcome) {
	s.once.Do(func() {
		s.cancel()
		// Let the provider goroutine exit if it is blocked on send.
		go func() {
			for range s.deltas {
			}
		}()
		s.err = out.err
		s.turn = s.finalize(out)
		close(s.done)
	})
}
