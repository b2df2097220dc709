package models

import "strings"

type HighlightStatus string

const (
	StatusActive    HighlightStatus = "active"
	StatusCompleted HighlightStatus = "completed"
	StatusDismissed HighlightStatus = "dismissed"
)

// ParseHighlightStatus normalizes s and checks it against the known states.
func ParseHighlightStatus(s string) (HighlightStatus, error) {
	st := HighlightStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusActive, StatusCompleted, StatusDismissed:
		return st, nil
	}
	return "", ErrInvalidStatus
}

type Highlight struct {
	ID             string          `json:"id"`
	PersonName     string          `json:"person_name"`
	PersonHeadline string          `json:"person_headline,omitempty"`
	Summary        string          `json:"summary"`
	Description    string          `json:"description"`
	EventDate      string          `json:"event_date"`
	EventTimestamp int64           `json:"event_timestamp"`
	SourceQuote    string          `json:"source_quote,omitempty"`
	Category       string          `json:"category"`
	Confidence     float64         `json:"confidence"`
	Status         HighlightStatus `json:"status"`
	CreatedAt      int64           `json:"created_at"`
	UpdatedAt      int64           `json:"updated_at"`
	CompletedAt    *int64          `json:"completed_at,omitempty"`
	DismissedAt    *int64          `json:"dismissed_at,omitempty"`
}

func (h *Highlight) Validate() error {
	if h.ID == "" {
		return Invalid("highlight has no id")
	}
	if strings.TrimSpace(h.Summary) == "" {
		return Invalid("highlight %s has no summary", h.ID)
	}
	if strings.TrimSpace(h.EventDate) == "" || h.EventTimestamp == 0 {
		return Invalid("highlight %s has no event date", h.ID)
	}
	if _, err := ParseHighlightStatus(string(h.Status)); err != nil {
		return Invalid("highlight %s has status %q", h.ID, h.Status)
	}
	return nil
}

// DedupKey identifies a highlight regardless of casing of its text fields.
func (h *Highlight) DedupKey() string {
	return strings.ToLower(strings.TrimSpace(h.PersonName)) + "\x00" +
		strings.ToLower(strings.TrimSpace(h.Summary)) + "\x00" +
		strings.TrimSpace(h.EventDate)
}

// HighlightCandidate is a raw proposal from the extractor, before cleaning.
type HighlightCandidate struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	EventDate   string   `json:"event_date"`
	SourceQuote string   `json:"source_quote"`
	Category    string   `json:"category"`
	Confidence  *float64 `json:"confidence"`
}

// UpcomingHighlight is a highlight annotated with time remaining.
type UpcomingHighlight struct {
	Highlight
	DaysUntil  int64 `json:"days_until"`
	HoursUntil int64 `json:"hours_until"`
}
