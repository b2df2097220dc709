package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/recall/internal/models"
)

type fakeSource map[string][]models.ConversationEntry

func (f fakeSource) Keys(ctx context.Context) ([]string, error) {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	return keys, nil
}

func (f fakeSource) Read(ctx context.Context, name string) ([]models.ConversationEntry, error) {
	e, ok := f[name]
	if !ok {
		return nil, models.ErrNotFound
	}
	return e, nil
}

func turns(pairs ...string) []models.Turn {
	var out []models.Turn
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, models.Turn{Speaker: pairs[i], Text: pairs[i+1]})
	}
	return out
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"peter", "say", "camera"}, Tokenize("What did Peter say, the camera?"))
	assert.Empty(t, Tokenize("What is the"))
	assert.Empty(t, Tokenize(""))
	assert.Equal(t, []string{"demo_day", "2030"}, Tokenize("Demo_Day in 2030!"))
}

func TestIsSelf(t *testing.T) {
	assert.True(t, IsSelf("Me"))
	assert.True(t, IsSelf(" user "))
	assert.True(t, IsSelf("MYSELF"))
	assert.False(t, IsSelf("Peter"))
	assert.False(t, IsSelf(""))
}

func TestQueryFindsRelevantPerson(t *testing.T) {
	src := fakeSource{
		"peter parker": {
			{Timestamp: 100, Conversation: turns("Me", "How was the trip?", "Peter", "Great, I bought a new camera lens.")},
			{Timestamp: 200, Conversation: turns("Me", "Lunch tomorrow?", "Peter", "Sure.")},
		},
		"mary jane": {
			{Timestamp: 150, Conversation: turns("Me", "Rehearsal?", "Mary", "The play opens Friday.")},
		},
	}
	e := NewEngine(src, "http://localhost:8080/")

	matches, err := e.Query(context.Background(), "Who bought a camera?", "")
	require.NoError(t, err)
	require.Len(t, matches, 2)

	top := matches[0]
	assert.Equal(t, "peter parker", top.Name)
	assert.Equal(t, int64(100), top.Timestamp)
	assert.Equal(t, 1, top.HighlightIndex)
	assert.Equal(t, "Peter", top.Speaker)
	assert.Equal(t, "Great, I bought a new camera lens.", top.Snippet)
	assert.InDelta(t, 2*otherSpeakerWeight, top.Score, 1e-9)
	assert.Equal(t, "http://localhost:8080/v1/conversations/peter%20parker?highlight=1&ts=100", top.ProfileURL)
	assert.Equal(t, "http://localhost:8080/v1/people/peter%20parker/face", top.ImageURL)

	assert.Equal(t, "mary jane", matches[1].Name)
	assert.Zero(t, matches[1].Score)
}

func TestSpeakerWeighting(t *testing.T) {
	src := fakeSource{
		"peter": {{Timestamp: 1, Conversation: turns("Me", "guitar", "Peter", "guitar")}},
	}
	matches, err := NewEngine(src, "").Query(context.Background(), "guitar", "")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	assert.InDelta(t, otherSpeakerWeight+selfSpeakerWeight, matches[0].Score, 1e-9)
	assert.Equal(t, 1, matches[0].HighlightIndex)
	assert.InDelta(t, 2.6667, otherSpeakerWeight/selfSpeakerWeight, 1e-3)
}

func TestOtherSpeakerOutranksNewerSelfMention(t *testing.T) {
	src := fakeSource{
		"parker": {
			{Timestamp: 1, Conversation: turns("Other", "I work at google")},
			{Timestamp: 2, Conversation: turns("Me", "google is cool")},
		},
	}
	matches, err := NewEngine(src, "").Query(context.Background(), "google", "")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	assert.Equal(t, int64(1), matches[0].Timestamp)
	assert.InDelta(t, 1.6, matches[0].Score, 1e-9)
	assert.Equal(t, "I work at google", matches[0].Snippet)
	assert.Equal(t, "Other", matches[0].Speaker)
}

func TestNameBoostAddsFive(t *testing.T) {
	conv := turns("Me", "Any news?", "Them", "I started learning guitar.")
	src := fakeSource{
		"peter parker": {{Timestamp: 1, Conversation: conv}},
		"mary jane":    {{Timestamp: 1, Conversation: conv}},
	}
	matches, err := NewEngine(src, "").Query(context.Background(), "Is Peter Parker learning guitar?", "")
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "peter parker", matches[0].Name)
	assert.InDelta(t, nameBoost, matches[0].Score-matches[1].Score, 1e-9)
}

func TestTokenlessQueryReturnsLatestEntryAnchoredAtLastTurn(t *testing.T) {
	src := fakeSource{
		"peter": {
			{Timestamp: 10, Conversation: turns("Me", "a", "Peter", "b", "Me", "c", "Peter", "d")},
			{Timestamp: 20, Conversation: turns("Me", "hello", "Peter", "bye")},
		},
	}
	matches, err := NewEngine(src, "").Query(context.Background(), "what is the", "")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	m := matches[0]
	assert.Equal(t, int64(20), m.Timestamp)
	assert.Equal(t, 1, m.HighlightIndex)
	assert.Equal(t, "bye", m.Snippet)
	assert.Equal(t, 2.0, m.Score)
}

func TestTiesPreferNewerEntries(t *testing.T) {
	src := fakeSource{
		"peter": {
			{Timestamp: 10, Conversation: turns("Peter", "coffee")},
			{Timestamp: 30, Conversation: turns("Peter", "coffee")},
		},
		"mary": {{Timestamp: 20, Conversation: turns("Mary", "coffee")}},
	}
	matches, err := NewEngine(src, "").Query(context.Background(), "coffee", "")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "peter", matches[0].Name)
	assert.Equal(t, int64(30), matches[0].Timestamp)
	assert.Equal(t, "mary", matches[1].Name)
}

func TestEmptyConversationsFallBackToLastEntry(t *testing.T) {
	src := fakeSource{
		"ghost": {{Timestamp: 1}, {Timestamp: 2}},
	}
	matches, err := NewEngine(src, "").Query(context.Background(), "anything", "")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(2), matches[0].Timestamp)
	assert.Zero(t, matches[0].Score)
	assert.Empty(t, matches[0].Snippet)
	assert.Equal(t, -1, matches[0].HighlightIndex)
	assert.NotContains(t, matches[0].ProfileURL, "highlight=")
}

func TestPersonFilter(t *testing.T) {
	src := fakeSource{
		"peter": {{Timestamp: 1, Conversation: turns("Peter", "pizza")}},
		"mary":  {{Timestamp: 1, Conversation: turns("Mary", "pizza pizza")}},
	}
	e := NewEngine(src, "")

	matches, err := e.Query(context.Background(), "pizza", "  PETER ")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "peter", matches[0].Name)

	matches, err = e.Query(context.Background(), "pizza", "nobody")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestExcerpt(t *testing.T) {
	e := NewEngine(nil, "http://x")
	m := &Match{
		Name:      "peter",
		Timestamp: 5,
		Conversation: turns(
			"Me", "hi",
			"Peter", "I got the job at the Bugle.",
			"Me", "congrats",
			"Peter", "Starting Monday.",
			"Me", "nice",
		),
	}

	ex := e.Excerpt(m, []string{"starting monday.", "  I GOT THE JOB AT THE BUGLE. "}, 1)
	require.Len(t, ex, 3)
	assert.Equal(t, 0, ex[0].Index)
	assert.Equal(t, 2, ex[2].Index)
	assert.True(t, ex[1].IsHighlight)
	assert.False(t, ex[0].IsHighlight)
	assert.Equal(t, 1, m.HighlightIndex)
	assert.Equal(t, []int{1, 3}, m.HighlightIndices)
	assert.Contains(t, m.ProfileURL, "highlight=1")

	ex = e.Excerpt(m, []string{"never said"}, 1)
	assert.Empty(t, ex)
	assert.Equal(t, -1, m.HighlightIndex)
	assert.Nil(t, m.HighlightIndices)
	assert.NotContains(t, m.ProfileURL, "highlight=")

	m.Conversation = turns("Peter", "only line")
	ex = e.Excerpt(m, []string{"only line"}, 1)
	require.Len(t, ex, 1)
	assert.True(t, ex[0].IsHighlight)
}
