package service

import (
	"context"

	"github.com/xxxsen/coscribe/internal/model"
	"github.com/xxxsen/coscribe/internal/pkg/timeutil"
	"github.com/xxxsen/coscribe/internal/repo"
	"github.com/xxxsen/coscribe/internal/stream"
)

// StreamLog adapts StreamRepo to the bridge's durable log interface.
type StreamLog struct {
	streams *repo.StreamRepo
}

func NewStreamLog(streams *repo.StreamRepo) *StreamLog {
	return &StreamLog{streams: streams}
}

func (l *StreamLog) Append(ctx context.Context, streamID string, seq int64, payload string) error {
	return l.streams.AppendEvent(ctx, &model.StreamEvent{
		StreamID: streamID,
		Seq:      seq,
		Payload:  payload,
		Ctime:    timeutil.NowUnixMilli(),
	})
}

func (l *StreamLog) List(ctx context.Context, streamID string, afterSeq int64) ([]stream.Entry, error) {
	events, err := l.streams.ListEvents(ctx, streamID, afterSeq)
	if err != nil {
		return nil, err
	}
	entries := make([]stream.Entry, 0, len(events))
	for _, event := range events {
		entries = append(entries, stream.Entry{Seq: event.Seq, Payload: event.Payload})
	}
	return entries, nil
}
