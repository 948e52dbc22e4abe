// Package stream implements the resumable bridge between a generation run
// and its consumers. Each run writes an ordered event sequence through a
// Sink; a Feed attached by stream id replays the durable log and then
// follows live events. With no durable log configured the bridge degrades
// to direct pass-through: forwarding still works, replay returns nothing.
package stream

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/xxxsen/coscribe/internal/protocol"
)

var (
	// ErrWriterExists is returned when a second Open targets a stream that
	// already has its single writer.
	ErrWriterExists = errors.New("stream already has a writer")
	// ErrStreamUnknown is returned when Attach finds neither live state nor
	// a durable record for the stream id.
	ErrStreamUnknown = errors.New("unknown stream")
	// ErrSuperseded is returned by a feed that a later Attach replaced.
	ErrSuperseded = errors.New("feed superseded")
)

// Entry is one durably logged frame.
type Entry struct {
	Seq     int64
	Payload string
}

// Log is the durable backing store of the bridge. A nil Log selects
// degraded pass-through mode.
type Log interface {
	Append(ctx context.Context, streamID string, seq int64, payload string) error
	List(ctx context.Context, streamID string, afterSeq int64) ([]Entry, error)
}

// Bridge is an explicitly constructed registry of stream state, passed to
// call sites instead of living in a package global. Independent streams
// proceed fully in parallel; within one stream there is one writer and at
// most one active feed.
type Bridge struct {
	mu      sync.Mutex
	streams map[string]*streamState
	log     Log
	logger  *zap.Logger
}

type streamState struct {
	mu       sync.Mutex
	seq      int64
	feed     *Feed
	closed   bool
	degraded bool
	hasSink  bool
}

func NewBridge(log Log, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if log == nil {
		logger.Info("stream bridge running in degraded pass-through mode, reconnects will not replay")
	}
	return &Bridge{
		streams: make(map[string]*streamState),
		log:     log,
		logger:  logger,
	}
}

// Resumable reports whether a durable log backs this bridge.
func (b *Bridge) Resumable() bool {
	return b.log != nil
}

func (b *Bridge) state(streamID string, create bool) *streamState {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.streams[streamID]
	if st == nil && create {
		st = &streamState{}
		b.streams[streamID] = st
	}
	return st
}

// Open claims the writer side of a stream. Called once per generation run.
func (b *Bridge) Open(ctx context.Context, streamID string) (*Sink, error) {
	_ = ctx
	st := b.state(streamID, true)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.hasSink {
		return nil, ErrWriterExists
	}
	st.hasSink = true
	return &Sink{bridge: b, streamID: streamID, st: st}, nil
}

// Attach returns a feed that yields the durable prefix of the stream
// followed by live events, each exactly once. A later Attach supersedes an
// earlier one; the superseded feed stops with ErrSuperseded.
func (b *Bridge) Attach(ctx context.Context, streamID string) (*Feed, error) {
	st := b.state(streamID, false)
	if st == nil {
		if b.log == nil {
			return nil, ErrStreamUnknown
		}
		// The run is no longer live; everything it produced is in the log.
		entries, err := b.log.List(ctx, streamID, 0)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			return nil, ErrStreamUnknown
		}
		return &Feed{replay: b.decode(streamID, entries), done: true}, nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.feed != nil {
		st.feed.supersede()
	}
	var replay []protocol.Event
	if b.log != nil && !st.degraded {
		// Holding st.mu here: the writer appends and forwards under the
		// same lock, so the snapshot below has no gap with the live side.
		entries, err := b.log.List(ctx, streamID, 0)
		if err != nil {
			b.logger.Warn("stream log read failed, attaching live only",
				zap.String("stream_id", streamID), zap.Error(err))
		} else {
			replay = b.decode(streamID, entries)
		}
	}
	feed := &Feed{
		replay: replay,
		live:   make(chan protocol.Event, 64),
	}
	if st.closed {
		feed.done = true
		feed.live = nil
	} else {
		st.feed = feed
	}
	return feed, nil
}

func (b *Bridge) decode(streamID string, entries []Entry) []protocol.Event {
	events := make([]protocol.Event, 0, len(entries))
	for _, entry := range entries {
		event, err := protocol.DecodeLine([]byte(entry.Payload))
		if err != nil {
			b.logger.Warn("dropping undecodable logged frame",
				zap.String("stream_id", streamID), zap.Int64("seq", entry.Seq), zap.Error(err))
			continue
		}
		events = append(events, event)
	}
	return events
}

// Sink is the single writer of a stream.
type Sink struct {
	bridge   *Bridge
	streamID string
	st       *streamState
	closed   bool
}

// Write durably appends the event (when a log is configured) and forwards
// it to the attached feed. A log failure degrades this stream to
// pass-through rather than failing the generation run.
func (s *Sink) Write(ctx context.Context, event protocol.Event) error {
	frame, err := protocol.Encode(event)
	if err != nil {
		return err
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if s.closed || s.st.closed {
		return io.ErrClosedPipe
	}
	s.st.seq++
	if s.bridge.log != nil && !s.st.degraded {
		if err := s.bridge.log.Append(ctx, s.streamID, s.st.seq, string(frame)); err != nil {
			s.bridge.logger.Warn("stream log append failed, degrading stream to pass-through",
				zap.String("stream_id", s.streamID), zap.Error(err))
			s.st.degraded = true
		}
	}
	if feed := s.st.feed; feed != nil {
		feed.deliver(event)
	}
	return nil
}

// Close ends the stream; the attached feed observes end-of-stream after
// draining. The live state is released here; later attaches are served
// from the durable log alone.
func (s *Sink) Close() error {
	s.st.mu.Lock()
	if s.closed {
		s.st.mu.Unlock()
		return nil
	}
	s.closed = true
	s.st.closed = true
	if feed := s.st.feed; feed != nil {
		feed.finish()
		s.st.feed = nil
	}
	s.st.mu.Unlock()

	s.bridge.mu.Lock()
	if s.bridge.streams[s.streamID] == s.st {
		delete(s.bridge.streams, s.streamID)
	}
	s.bridge.mu.Unlock()
	return nil
}

// Feed is the reader side of a stream: first the replayed prefix, then
// live events, then io.EOF.
type Feed struct {
	replay []protocol.Event
	live   chan protocol.Event

	mu         sync.Mutex
	done       bool
	superseded bool
}

func (f *Feed) deliver(event protocol.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		return
	}
	select {
	case f.live <- event:
	default:
		// Reader stalled or vanished without detaching. Cut it loose; a
		// re-attach replays from the durable log.
		f.supersedeLocked()
	}
}

func (f *Feed) finish() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		return
	}
	f.done = true
	close(f.live)
}

func (f *Feed) supersede() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.supersedeLocked()
}

func (f *Feed) supersedeLocked() {
	if f.done {
		f.superseded = true
		return
	}
	f.superseded = true
	f.done = true
	close(f.live)
}

// Recv blocks until the next event, end-of-stream (io.EOF), supersession,
// or context cancellation.
func (f *Feed) Recv(ctx context.Context) (protocol.Event, error) {
	if len(f.replay) > 0 {
		event := f.replay[0]
		f.replay = f.replay[1:]
		return event, nil
	}
	f.mu.Lock()
	superseded, live := f.superseded, f.live
	f.mu.Unlock()
	if superseded {
		return protocol.Event{}, ErrSuperseded
	}
	if live == nil {
		return protocol.Event{}, io.EOF
	}
	select {
	case event, ok := <-live:
		if !ok {
			f.mu.Lock()
			superseded = f.superseded
			f.mu.Unlock()
			if superseded {
				return protocol.Event{}, ErrSuperseded
			}
			return protocol.Event{}, io.EOF
		}
		return event, nil
	case <-ctx.Done():
		return protocol.Event{}, ctx.Err()
	}
}
