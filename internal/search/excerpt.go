package search

import (
	"sort"
	"strings"
)

type ExcerptTurn struct {
	Index       int    `json:"index"`
	Speaker     string `json:"speaker"`
	Text        string `json:"text"`
	IsHighlight bool   `json:"is_highlight"`
}

// Excerpt locates quoted lines in the match's conversation and returns the
// turns within window of the earliest one. The match's highlight fields and
// profile link are updated to point at the quoted turns; with no quote found
// the excerpt is empty and HighlightIndex is -1.
func (e *Engine) Excerpt(m *Match, quotes []string, window int) []ExcerptTurn {
	if window < 0 {
		window = 0
	}

	hit := make(map[int]bool)
	for _, q := range quotes {
		q = strings.ToLower(strings.TrimSpace(q))
		if q == "" {
			continue
		}
		for i, t := range m.Conversation {
			if strings.ToLower(strings.TrimSpace(t.Text)) == q {
				hit[i] = true
				break
			}
		}
	}

	if len(hit) == 0 {
		m.HighlightIndex = -1
		m.HighlightIndices = nil
		m.ProfileURL = e.profileURL(m.Name, m.Timestamp, -1)
		return nil
	}

	indices := make([]int, 0, len(hit))
	for i := range hit {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	anchor := indices[0]

	m.HighlightIndex = anchor
	m.HighlightIndices = indices
	m.ProfileURL = e.profileURL(m.Name, m.Timestamp, anchor)

	lo := max(0, anchor-window)
	hi := min(len(m.Conversation)-1, anchor+window)
	out := make([]ExcerptTurn, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		t := m.Conversation[i]
		out = append(out, ExcerptTurn{
			Index:       i,
			Speaker:     t.Speaker,
			Text:        t.Text,
			IsHighlight: hit[i],
		})
	}
	return out
}
