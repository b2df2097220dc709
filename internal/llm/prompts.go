package llm

import (
	"fmt"
	"strings"

	"github.com/your-org/recall/internal/highlights"
	"github.com/your-org/recall/internal/models"
)

const structureInstructions = `You structure a transcript of a conversation recorded by "Me" with one other person.
The first speaker is always Me.

Tasks:
1. Find the other person's name. Use direct introductions ("I'm X", "my name is X", "call me X"),
   greetings from Me ("nice to meet you, X", "hi X") and answers to "what's your name?".
   Prefer the name the person asks to be called. A name of someone who is only talked about is
   not the other person. If Me introduces themselves, that name is not the other person.
   If no name is given, use "Unknown". Never invent a name.
2. Split the transcript into turns. Label Me's lines "Me" and the other person's lines with
   their name ("Unknown" if not found). Keep the words as spoken.
3. List up to 6 search keywords about the other person: companies, schools, places, job titles.
4. Write a short professional headline under 50 characters, such as "SWE @ Google" or
   "Student at MIT". Use "Contact" when nothing is known.
5. Set has_linkedin_potential to true if any employer, school, job title or career detail comes up.

Return JSON only:
{"guessed_name": "...", "headline": "...", "conversation": [{"speaker": "...", "text": "..."}],
 "keywords": ["..."], "has_linkedin_potential": false}`

func structurePrompt(segments []models.Segment) string {
	var sb strings.Builder
	sb.WriteString(structureInstructions)
	sb.WriteString("\n\nTranscript:\n")
	n := 0
	for _, s := range segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		n++
		fmt.Fprintf(&sb, "%d. [%.2fs-%.2fs] %s\n", n, s.Start, s.End, text)
	}
	return sb.String()
}

const summaryInstructions = `You answer questions about a past conversation between Me and another person.
Return JSON only:
{"answer": "<concise response>", "excerpt": [{"speaker": "...", "text": "..."}], "suggestion": "<follow-up or empty>"}

Rules:
- Excerpt lines are copied verbatim from the log, at most 3, with context around the key line when possible.
- If the log does not answer the question, set answer to exactly "Not enough information.",
  return an empty excerpt and use suggestion to point at topics the log does cover.
- Do not add facts that are not in the log.`

func summaryPrompt(question string, tail []models.Turn) string {
	var sb strings.Builder
	sb.WriteString(summaryInstructions)
	fmt.Fprintf(&sb, "\n\nQuestion: %q\n\nConversation log:\n", question)
	writeTurns(&sb, tail)
	return sb.String()
}

const highlightInstructions = `You extract reminders from a conversation.
Today's date is %s (UTC). The conversation is between Me and %s.

Return JSON only:
{"highlights": [{"title": "brief label", "description": "why it matters",
  "event_date": "YYYY-MM-DD or YYYY-MM-DDTHH:MM with timezone if known",
  "category": "birthday | meeting | trip | delivery | follow_up | other",
  "confidence": 0.0, "source_quote": "line copied verbatim"}]}

Rules:
- Only events today or later.
- Turn relative times ("in 2 days", "next Friday") into absolute dates from today's date.
- Skip anything past or without a concrete time.
- Return an empty array when nothing is upcoming.`

func highlightPrompt(req highlights.ExtractRequest) string {
	person := strings.TrimSpace(req.PersonName)
	if person == "" {
		person = "Unknown"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, highlightInstructions, req.ReferenceDate.UTC().Format("2006-01-02"), person)
	if h := strings.TrimSpace(req.Headline); h != "" {
		fmt.Fprintf(&sb, "\n%s is described as: %s", person, h)
	}
	sb.WriteString("\n\nConversation:\n")
	writeTurns(&sb, req.Transcript)
	return sb.String()
}

const enrichInstructions = `Suggest the public LinkedIn profile of %s, someone Me met in person.
Use only the details below. If you are not confident the profile belongs to this person,
return an empty linkedin value.

Return JSON only:
{"linkedin": "https://www.linkedin.com/in/... or empty", "bio": "one sentence about the person"}`

func enrichPrompt(name string, keywords []string, tail []models.Turn) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, enrichInstructions, name)
	if len(keywords) > 0 {
		fmt.Fprintf(&sb, "\n\nKeywords: %s", strings.Join(keywords, ", "))
	}
	sb.WriteString("\n\nConversation:\n")
	writeTurns(&sb, tail)
	return sb.String()
}

func writeTurns(sb *strings.Builder, turns []models.Turn) {
	for _, t := range turns {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		speaker := strings.TrimSpace(t.Speaker)
		if speaker == "" {
			speaker = "Unknown"
		}
		fmt.Fprintf(sb, "%s: %s\n", speaker, text)
	}
}
