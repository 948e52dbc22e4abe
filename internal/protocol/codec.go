package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownEvent marks a frame whose type is outside the closed set.
	// Callers drop the frame and keep reading.
	ErrUnknownEvent = errors.New("unknown event type")
	// ErrMalformedEvent marks a frame that is not a valid protocol object.
	ErrMalformedEvent = errors.New("malformed event")
)

var knownTypes = map[string]struct{}{
	EventKind:       {},
	EventID:         {},
	EventTitle:      {},
	EventContent:    {},
	EventSuggestion: {},
	EventUpdated:    {},
	EventFinish:     {},
	EventTextDelta:  {},
}

// Known reports whether typ belongs to the closed event set.
func Known(typ string) bool {
	_, ok := knownTypes[typ]
	return ok
}

// Encode serializes one event as a single newline-terminated JSON frame.
func Encode(e Event) ([]byte, error) {
	if !Known(e.Type) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, e.Type)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// DecodeLine parses one frame. Unknown types and malformed payloads are
// reported, never fatal: the caller logs and continues with the next frame.
func DecodeLine(line []byte) (Event, error) {
	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return Event{}, fmt.Errorf("%w: empty frame", ErrMalformedEvent)
	}
	var e Event
	if err := json.Unmarshal([]byte(trimmed), &e); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if e.Type == "" {
		return Event{}, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}
	if !Known(e.Type) {
		return Event{}, fmt.Errorf("%w: %s", ErrUnknownEvent, e.Type)
	}
	return e, nil
}
