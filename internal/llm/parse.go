package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/your-org/recall/internal/models"
)

const notEnoughInformation = "Not enough information."

// stripFences removes a markdown code fence around a model reply.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// drop the info string, e.g. "json"
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func decode(raw string, v any) error {
	body := stripFences(raw)
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("decode model reply: %v: %w", err, models.ErrExternalService)
	}
	return nil
}

func parseDialogue(raw string) (*models.Dialogue, error) {
	var d models.Dialogue
	if err := decode(raw, &d); err != nil {
		return nil, err
	}
	d.GuessedName = strings.TrimSpace(d.GuessedName)
	d.Headline = strings.TrimSpace(d.Headline)

	kw := d.Keywords[:0]
	for _, k := range d.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			kw = append(kw, k)
		}
	}
	if len(kw) > 6 {
		kw = kw[:6]
	}
	d.Keywords = kw
	return &d, nil
}

func parseSummary(raw string) (*Summary, error) {
	var s Summary
	if err := decode(raw, &s); err != nil {
		return nil, err
	}
	s.Answer = strings.TrimSpace(s.Answer)
	s.Suggestion = strings.TrimSpace(s.Suggestion)
	if s.Answer == "" {
		s.Answer = notEnoughInformation
	}
	if len(s.Excerpt) > 3 {
		s.Excerpt = s.Excerpt[:3]
	}
	return &s, nil
}

// Insufficient reports whether the model declined to answer.
func (s *Summary) Insufficient() bool {
	return strings.EqualFold(strings.TrimSpace(s.Answer), notEnoughInformation)
}

// Quotes returns the excerpt texts.
func (s *Summary) Quotes() []string {
	out := make([]string, 0, len(s.Excerpt))
	for _, t := range s.Excerpt {
		if q := strings.TrimSpace(t.Text); q != "" {
			out = append(out, q)
		}
	}
	return out
}

func parseHighlights(raw string) ([]models.HighlightCandidate, error) {
	var reply struct {
		Highlights []models.HighlightCandidate `json:"highlights"`
	}
	if err := decode(raw, &reply); err != nil {
		return nil, err
	}
	return reply.Highlights, nil
}

func parseProfile(raw string) (*models.Profile, error) {
	var p models.Profile
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	p.LinkedIn = strings.TrimSpace(p.LinkedIn)
	p.Bio = strings.TrimSpace(p.Bio)
	if !strings.Contains(strings.ToLower(p.LinkedIn), "linkedin.com/") {
		return nil, nil
	}
	return &p, nil
}
