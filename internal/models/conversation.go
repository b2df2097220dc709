package models

import "strings"

type Turn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Segment is one timed span of speech-to-text output.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Dialogue is the structured form of a transcript.
type Dialogue struct {
	GuessedName          string   `json:"guessed_name"`
	Conversation         []Turn   `json:"conversation"`
	Keywords             []string `json:"keywords"`
	Headline             string   `json:"headline"`
	HasLinkedInPotential bool     `json:"has_linkedin_potential"`
}

// ConversationEntry is one stored interaction. Entries are immutable after
// append apart from the profile fields of the latest one.
type ConversationEntry struct {
	Timestamp    int64    `json:"timestamp"`
	Conversation []Turn   `json:"conversation"`
	Keywords     []string `json:"keywords,omitempty"`
	Headline     string   `json:"headline,omitempty"`
	LinkedIn     string   `json:"linkedin,omitempty"`
	Bio          string   `json:"bio,omitempty"`
}

func (e *ConversationEntry) Validate() error {
	if e.Timestamp <= 0 {
		return Invalid("conversation entry has no timestamp")
	}
	for i, t := range e.Conversation {
		if strings.TrimSpace(t.Speaker) == "" && strings.TrimSpace(t.Text) != "" {
			return Invalid("turn %d has text but no speaker", i)
		}
	}
	return nil
}

// Profile is enrichment data attached to a person's latest entry.
type Profile struct {
	LinkedIn string `json:"linkedin"`
	Bio      string `json:"bio"`
}

// TailTurns returns up to n trailing turns with non-empty text.
func TailTurns(turns []Turn, n int) []Turn {
	var out []Turn
	for _, t := range turns {
		if strings.TrimSpace(t.Text) != "" {
			out = append(out, t)
		}
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}
