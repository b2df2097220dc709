package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Peter Parker", "peter parker"},
		{"  peter   PARKER ", "peter parker"},
		{"peter\tparker\n", "peter parker"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeName(tt.in), "input %q", tt.in)
	}
}

func TestIsUnknownName(t *testing.T) {
	assert.True(t, IsUnknownName(""))
	assert.True(t, IsUnknownName(" Unknown "))
	assert.True(t, IsUnknownName("UNKNOWN"))
	assert.False(t, IsUnknownName("Mary Jane"))
}

func TestParseHighlightStatus(t *testing.T) {
	st, err := ParseHighlightStatus("  Completed ")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, st)

	_, err = ParseHighlightStatus("archived")
	assert.True(t, errors.Is(err, ErrInvalidStatus))
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestHighlightValidate(t *testing.T) {
	h := Highlight{ID: "hl_0123456789", Summary: "Demo day", EventDate: "2030-01-02", EventTimestamp: 1893542400, Status: StatusActive}
	require.NoError(t, h.Validate())

	bad := h
	bad.Status = "later"
	assert.ErrorIs(t, bad.Validate(), ErrValidation)

	bad = h
	bad.Summary = " "
	assert.ErrorIs(t, bad.Validate(), ErrValidation)
}

func TestHighlightDedupKeyIgnoresCase(t *testing.T) {
	a := Highlight{PersonName: "Peter Parker", Summary: "Demo Day", EventDate: "2030-01-02"}
	b := Highlight{PersonName: "peter parker", Summary: " demo day ", EventDate: "2030-01-02"}
	assert.Equal(t, a.DedupKey(), b.DedupKey())

	b.EventDate = "2030-01-03"
	assert.NotEqual(t, a.DedupKey(), b.DedupKey())
}

func TestConversationEntryValidate(t *testing.T) {
	e := ConversationEntry{Timestamp: 100, Conversation: []Turn{{Speaker: "Me", Text: "hi"}}}
	require.NoError(t, e.Validate())

	e.Conversation = append(e.Conversation, Turn{Text: "orphan"})
	assert.ErrorIs(t, e.Validate(), ErrValidation)

	assert.ErrorIs(t, (&ConversationEntry{}).Validate(), ErrValidation)
}

func TestTailTurns(t *testing.T) {
	turns := []Turn{{"a", "1"}, {"b", ""}, {"a", "2"}, {"b", "3"}}
	assert.Equal(t, []Turn{{"a", "2"}, {"b", "3"}}, TailTurns(turns, 2))
	assert.Len(t, TailTurns(turns, 0), 3)
}
