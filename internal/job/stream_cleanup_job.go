package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/coscribe/internal/repo"
	"go.uber.org/zap"
)

// StreamCleanupJob deletes stream records and their buffered events once
// they fall outside the retention window.
type StreamCleanupJob struct {
	streams *repo.StreamRepo
	retain  time.Duration
}

func NewStreamCleanupJob(streams *repo.StreamRepo, retain time.Duration) *StreamCleanupJob {
	return &StreamCleanupJob{streams: streams, retain: retain}
}

func (j *StreamCleanupJob) Name() string {
	return "stream_cleanup"
}

func (j *StreamCleanupJob) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-j.retain).UnixMilli()
	deleted, err := j.streams.DeleteBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		logutil.GetLogger(ctx).Info("expired streams removed", zap.Int64("count", deleted))
	}
	return nil
}
