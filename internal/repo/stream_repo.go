package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/coscribe/internal/model"
	"github.com/xxxsen/coscribe/internal/pkg/dbutil"
	appErr "github.com/xxxsen/coscribe/internal/pkg/errors"
)

// StreamRepo persists stream records and their ordered event logs. Records
// are written once before the first event and never updated; event seq is
// assigned by the single writer of each stream.
type StreamRepo struct {
	db *sql.DB
}

func NewStreamRepo(db *sql.DB) *StreamRepo {
	return &StreamRepo{db: db}
}

func (r *StreamRepo) CreateRecord(ctx context.Context, record *model.StreamRecord) error {
	data := map[string]interface{}{
		"stream_id": record.StreamID,
		"chat_id":   record.ChatID,
		"ctime":     record.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("stream_records", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil && dbutil.IsConflict(err) {
		return appErr.ErrConflict
	}
	return err
}

// ListRecordsByChat returns a chat's stream records newest first, used to
// find the run a client should re-attach to.
func (r *StreamRepo) ListRecordsByChat(ctx context.Context, chatID string) ([]model.StreamRecord, error) {
	where := map[string]interface{}{
		"chat_id":  chatID,
		"_orderby": "ctime desc",
	}
	sqlStr, args, err := builder.BuildSelect("stream_records", where, []string{"stream_id", "chat_id", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	records := make([]model.StreamRecord, 0)
	for rows.Next() {
		var record model.StreamRecord
		if err := rows.Scan(&record.StreamID, &record.ChatID, &record.Ctime); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (r *StreamRepo) AppendEvent(ctx context.Context, event *model.StreamEvent) error {
	data := map[string]interface{}{
		"stream_id": event.StreamID,
		"seq":       event.Seq,
		"payload":   event.Payload,
		"ctime":     event.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("stream_events", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// ListEvents returns a stream's events with seq > afterSeq in seq order.
func (r *StreamRepo) ListEvents(ctx context.Context, streamID string, afterSeq int64) ([]model.StreamEvent, error) {
	sqlStr := `
		SELECT stream_id, seq, payload, ctime
		FROM stream_events
		WHERE stream_id = $1 AND seq > $2
		ORDER BY seq ASC
	`
	rows, err := r.db.QueryContext(ctx, sqlStr, streamID, afterSeq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	events := make([]model.StreamEvent, 0)
	for rows.Next() {
		var event model.StreamEvent
		if err := rows.Scan(&event.StreamID, &event.Seq, &event.Payload, &event.Ctime); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (r *StreamRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM stream_events WHERE ctime < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	deleted, _ := result.RowsAffected()
	result, err = r.db.ExecContext(ctx, `DELETE FROM stream_records WHERE ctime < $1`, cutoff)
	if err != nil {
		return deleted, err
	}
	records, _ := result.RowsAffected()
	return deleted + records, nil
}
