// Package protocol defines the typed event stream exchanged between a
// generation run and its consumers. The codec is pure serialization: it
// never touches storage, and a malformed frame is an error for the caller
// to drop, not a reason to abort the stream.
package protocol

import "encoding/json"

// Event type names. The data-* namespace carries artifact events; text
// deltas for conversational prose live outside it.
const (
	EventKind       = "data-kind"
	EventID         = "data-id"
	EventTitle      = "data-title"
	EventContent    = "data-content"
	EventSuggestion = "data-suggestion"
	EventUpdated    = "data-updated"
	EventFinish     = "data-finish"
	EventTextDelta  = "text-delta"
)

// Event is one ordered unit of the generation protocol. Transient events
// affect live UI state only and must never be persisted verbatim; only
// their effect (e.g. the resulting content) reaches the document store.
// Content events carry a whole-value replacement, never a diff.
type Event struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Transient bool            `json:"transient,omitempty"`
}

// Suggestion is an inline editorial note with a position range.
type Suggestion struct {
	DocumentID    string `json:"document_id"`
	OriginalText  string `json:"original_text,omitempty"`
	SuggestedText string `json:"suggested_text"`
	Description   string `json:"description,omitempty"`
	PositionStart int    `json:"position_start"`
	PositionEnd   int    `json:"position_end"`
}

func stringEvent(typ, value string, transient bool) Event {
	data, _ := json.Marshal(value)
	return Event{Type: typ, Data: data, Transient: transient}
}

func KindEvent(kind string) Event   { return stringEvent(EventKind, kind, true) }
func IDEvent(id string) Event       { return stringEvent(EventID, id, true) }
func TitleEvent(title string) Event { return stringEvent(EventTitle, title, true) }

// ContentEvent carries the full replacement content of the artifact.
func ContentEvent(content string) Event { return stringEvent(EventContent, content, true) }

func SuggestionEvent(s Suggestion) Event {
	data, _ := json.Marshal(s)
	return Event{Type: EventSuggestion, Data: data, Transient: true}
}

// UpdatedEvent signals that a save completed after an AI-driven update.
func UpdatedEvent() Event { return Event{Type: EventUpdated, Transient: true} }

// FinishEvent is the explicit terminal signal of a run. Consumers also
// infer completion from transport close, so a run that dies before emitting
// it still terminates.
func FinishEvent() Event { return Event{Type: EventFinish, Transient: true} }

func TextDelta(text string) Event { return stringEvent(EventTextDelta, text, false) }

// Text decodes the event payload as a plain string.
func (e Event) Text() (string, error) {
	var s string
	if len(e.Data) == 0 {
		return "", nil
	}
	if err := json.Unmarshal(e.Data, &s); err != nil {
		return "", err
	}
	return s, nil
}

// AsSuggestion decodes the event payload as a Suggestion.
func (e Event) AsSuggestion() (Suggestion, error) {
	var s Suggestion
	err := json.Unmarshal(e.Data, &s)
	return s, err
}
