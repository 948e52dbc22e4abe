package model

// StreamRecord correlates one generation run with its durable event log.
// Written once before the first event, read back only for resumption.
type StreamRecord struct {
	StreamID string `json:"stream_id"`
	ChatID   string `json:"chat_id"`
	Ctime    int64  `json:"created_at"`
}

// StreamEvent is one durably logged protocol frame. Seq is monotonic per
// stream and assigns replay order.
type StreamEvent struct {
	StreamID string `json:"stream_id"`
	Seq      int64  `json:"seq"`
	Payload  string `json:"payload"`
	Ctime    int64  `json:"created_at"`
}
