package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	frame, err := Encode(ContentEvent("# Hello\n\nworld"))
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(frame), "\n"))
	require.Equal(t, 1, strings.Count(string(frame), "\n"))

	decoded, err := DecodeLine(frame)
	require.NoError(t, err)
	require.Equal(t, EventContent, decoded.Type)
	require.True(t, decoded.Transient)
	text, err := decoded.Text()
	require.NoError(t, err)
	require.Equal(t, "# Hello\n\nworld", text)
}

func TestEncodeRejectsUnknownType(t *testing.T) {
	_, err := Encode(Event{Type: "data-bogus"})
	require.ErrorIs(t, err, ErrUnknownEvent)
}

func TestDecodeLineMalformed(t *testing.T) {
	for _, line := range []string{"", "   ", "{not json", `{"data":"x"}`} {
		_, err := DecodeLine([]byte(line))
		require.ErrorIs(t, err, ErrMalformedEvent, "line %q", line)
	}
}

func TestDecodeLineUnknownTypeIsNotMalformed(t *testing.T) {
	_, err := DecodeLine([]byte(`{"type":"data-future","data":"x"}`))
	require.ErrorIs(t, err, ErrUnknownEvent)
	require.NotErrorIs(t, err, ErrMalformedEvent)
}

func TestTransientFlags(t *testing.T) {
	require.True(t, KindEvent("text").Transient)
	require.True(t, IDEvent("doc-1").Transient)
	require.True(t, TitleEvent("t").Transient)
	require.True(t, UpdatedEvent().Transient)
	require.True(t, FinishEvent().Transient)
	require.False(t, TextDelta("hi").Transient)
}

func TestSuggestionRoundTrip(t *testing.T) {
	s := Suggestion{
		DocumentID:    "doc-1",
		OriginalText:  "teh",
		SuggestedText: "the",
		PositionStart: 4,
		PositionEnd:   7,
	}
	frame, err := Encode(SuggestionEvent(s))
	require.NoError(t, err)

	decoded, err := DecodeLine(frame)
	require.NoError(t, err)
	got, err := decoded.AsSuggestion()
	require.NoError(t, err)
	require.Equal(t, s, got)
}
