package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/your-org/recall/internal/models"
	"github.com/your-org/recall/internal/search"
)

const noConversationsAnswer = "I couldn't find any saved conversations about that."

// Answer is the assistant's reply to one question.
type Answer struct {
	Question   string               `json:"question"`
	Answer     string               `json:"answer"`
	Suggestion string               `json:"suggestion,omitempty"`
	Generated  bool                 `json:"generated"`
	Match      *search.Match        `json:"match,omitempty"`
	Excerpt    []search.ExcerptTurn `json:"excerpt"`
	Others     []search.Match       `json:"other_matches,omitempty"`
}

// AskAssistant finds the conversation most relevant to question and answers
// from it. person, when set, limits the search to one person.
func (s *Service) AskAssistant(ctx context.Context, question, person string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, models.Invalid("question is empty")
	}

	matches, err := s.Search.Query(ctx, question, person)
	if err != nil {
		return nil, fmt.Errorf("ask assistant: %w", err)
	}
	out := &Answer{Question: question, Excerpt: []search.ExcerptTurn{}}
	if len(matches) == 0 {
		out.Answer = noConversationsAnswer
		return out, nil
	}

	top := matches[0]
	out.Others = matches[1:]

	if s.Summarizer != nil && len(top.Conversation) > 0 {
		tail := models.TailTurns(top.Conversation, s.opts.SummaryTail)
		sum, err := s.Summarizer.Summarize(ctx, question, tail)
		if err != nil {
			slog.Warn("assistant summary failed, using snippet", "person", top.Name, "error", err)
		} else if sum != nil && sum.Answer != "" {
			out.Answer = sum.Answer
			out.Suggestion = sum.Suggestion
			out.Generated = true
			if ex := s.Search.Excerpt(&top, sum.Quotes(), s.opts.ExcerptWindow); ex != nil {
				out.Excerpt = ex
			}
		}
	}

	if out.Answer == "" {
		out.Answer = fallbackAnswer(top)
	}
	out.Match = &top
	return out, nil
}

func fallbackAnswer(m search.Match) string {
	if m.Snippet == "" {
		return fmt.Sprintf("You talked with %s, but nothing specific matched.", m.Name)
	}
	return fmt.Sprintf("%s (%s) mentioned \"%s\".", m.Name, m.Speaker, m.Snippet)
}
