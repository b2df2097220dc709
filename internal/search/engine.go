// Package search ranks stored conversations against a free-text question.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/your-org/recall/internal/models"
	"github.com/your-org/recall/internal/observability"
)

const (
	otherSpeakerWeight = 1.6
	selfSpeakerWeight  = 0.6
	nameBoost          = 5.0
)

var wordRe = regexp.MustCompile(`\w+`)

var stopwords = toSet(
	"the", "a", "an", "is", "it", "to", "and", "i", "you", "they", "we", "he", "she",
	"them", "of", "in", "on", "for", "with", "at", "what", "who", "when", "where",
	"how", "are", "was", "be", "do", "does", "did", "this", "that", "their",
)

var selfLabels = toSet("me", "myself", "user")

func toSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Tokenize lower-cases text, splits it into word runs and drops stopwords.
func Tokenize(text string) []string {
	var tokens []string
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if !stopwords[w] {
			tokens = append(tokens, w)
		}
	}
	return tokens
}

// IsSelf reports whether speaker labels the device owner.
func IsSelf(speaker string) bool {
	return selfLabels[strings.ToLower(strings.TrimSpace(speaker))]
}

// Source is the read side of the conversation store.
type Source interface {
	Keys(ctx context.Context) ([]string, error)
	Read(ctx context.Context, name string) ([]models.ConversationEntry, error)
}

type Engine struct {
	src       Source
	publicURL string
}

// NewEngine searches src. publicURL prefixes the links put on matches.
func NewEngine(src Source, publicURL string) *Engine {
	return &Engine{src: src, publicURL: strings.TrimRight(publicURL, "/")}
}

// Match is the best entry of one person for a question.
type Match struct {
	Name             string        `json:"name"`
	Snippet          string        `json:"snippet"`
	Speaker          string        `json:"speaker"`
	Timestamp        int64         `json:"timestamp"`
	Score            float64       `json:"score"`
	HighlightIndex   int           `json:"highlight_index"`
	HighlightIndices []int         `json:"highlight_indices,omitempty"`
	Conversation     []models.Turn `json:"conversation"`
	Headline         string        `json:"headline,omitempty"`
	LinkedIn         string        `json:"linkedin,omitempty"`
	Bio              string        `json:"bio,omitempty"`
	ProfileURL       string        `json:"profile_url"`
	ImageURL         string        `json:"image_url"`
}

// Query returns one match per person, best first. A non-empty personFilter
// restricts the search to that person.
func (e *Engine) Query(ctx context.Context, question, personFilter string) ([]Match, error) {
	start := time.Now()
	defer func() { observability.SearchDuration.Observe(time.Since(start).Seconds()) }()

	tokens := Tokenize(question)
	tokenSet := toSet(tokens...)

	var keys []string
	if f := models.NormalizeName(personFilter); f != "" {
		keys = []string{f}
	} else {
		var err error
		keys, err = e.src.Keys(ctx)
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
	}

	var matches []Match
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, err := e.src.Read(ctx, key)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if errors.Is(err, models.ErrCorruptState) {
			slog.Warn("skipping corrupt conversation log", "person", key, "error", err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", key, err)
		}
		if m, ok := e.bestMatch(key, entries, tokens, tokenSet); ok {
			matches = append(matches, m)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Timestamp != b.Timestamp {
			return a.Timestamp > b.Timestamp
		}
		return a.Name < b.Name
	})
	return matches, nil
}

func (e *Engine) bestMatch(key string, entries []models.ConversationEntry, tokens []string, tokenSet map[string]bool) (Match, bool) {
	if len(entries) == 0 {
		return Match{}, false
	}

	best, bestScore, bestAnchor := -1, 0.0, 0
	for i, entry := range entries {
		score, anchor, ok := scoreEntry(entry.Conversation, tokens)
		if !ok {
			continue
		}
		var better bool
		switch {
		case best < 0:
			better = true
		case len(tokens) == 0:
			// Nothing to rank on, so the latest conversation wins.
			better = entry.Timestamp > entries[best].Timestamp
		default:
			better = score > bestScore ||
				(score == bestScore && entry.Timestamp > entries[best].Timestamp)
		}
		if better {
			best, bestScore, bestAnchor = i, score, anchor
		}
	}
	if best < 0 {
		// No entry has a conversation; -1 marks the missing anchor.
		best, bestScore = len(entries)-1, 0
		bestAnchor = len(entries[best].Conversation) - 1
	}

	if bestScore > 0 && nameMentioned(key, tokenSet) {
		bestScore += nameBoost
	}

	entry := entries[best]
	m := Match{
		Name:           key,
		Timestamp:      entry.Timestamp,
		Score:          bestScore,
		HighlightIndex: bestAnchor,
		Conversation:   entry.Conversation,
		Headline:       entry.Headline,
		LinkedIn:       entry.LinkedIn,
		Bio:            entry.Bio,
		ImageURL:       e.imageURL(key),
	}
	if bestAnchor >= 0 && bestAnchor < len(entry.Conversation) {
		m.Snippet = entry.Conversation[bestAnchor].Text
		m.Speaker = entry.Conversation[bestAnchor].Speaker
	}
	m.ProfileURL = e.profileURL(key, m.Timestamp, m.HighlightIndex)
	return m, true
}

// scoreEntry sums weighted token hits over the turns of one conversation and
// picks the first turn with the highest weighted score as anchor. Without
// tokens every conversation scores its turn count, anchored at the last turn.
func scoreEntry(turns []models.Turn, tokens []string) (score float64, anchor int, ok bool) {
	if len(turns) == 0 {
		return 0, 0, false
	}
	if len(tokens) == 0 {
		return float64(len(turns)), len(turns) - 1, true
	}

	top := -1.0
	for i, t := range turns {
		text := strings.ToLower(strings.TrimSpace(t.Text))
		if text == "" {
			continue
		}
		var line float64
		for _, tok := range tokens {
			line += float64(strings.Count(text, tok))
		}
		if line > 0 {
			if IsSelf(t.Speaker) {
				line *= selfSpeakerWeight
			} else {
				line *= otherSpeakerWeight
			}
		}
		score += line
		if line > top {
			top, anchor = line, i
		}
	}
	return score, anchor, true
}

func nameMentioned(key string, tokenSet map[string]bool) bool {
	words := strings.Fields(key)
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if !tokenSet[w] {
			return false
		}
	}
	return true
}

func (e *Engine) imageURL(name string) string {
	return fmt.Sprintf("%s/v1/people/%s/face", e.publicURL, url.PathEscape(name))
}

func (e *Engine) profileURL(name string, ts int64, highlight int) string {
	q := url.Values{}
	q.Set("ts", fmt.Sprint(ts))
	if highlight >= 0 {
		q.Set("highlight", fmt.Sprint(highlight))
	}
	return fmt.Sprintf("%s/v1/conversations/%s?%s", e.publicURL, url.PathEscape(name), q.Encode())
}
