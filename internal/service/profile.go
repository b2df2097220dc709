package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/your-org/recall/internal/models"
)

const (
	ProfileAlreadySet = "already_set"
	ProfileDisabled   = "disabled"
	ProfileNoMatch    = "no_match"
	ProfileError      = "error"
	ProfileUpdated    = "updated"
)

type ProfileResult struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	LinkedIn string `json:"linkedin,omitempty"`
	Bio      string `json:"bio,omitempty"`
}

// EnrichProfile looks up a public profile for the latest conversation with
// name. An existing profile is kept unless force is set. Enricher failures
// are reported through Status, not as errors.
func (s *Service) EnrichProfile(ctx context.Context, name string, force bool) (*ProfileResult, error) {
	entries, err := s.GetConversation(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("enrich %q: %w", name, models.ErrNotFound)
	}
	latest := entries[len(entries)-1]
	out := &ProfileResult{
		Name:     models.NormalizeName(name),
		LinkedIn: latest.LinkedIn,
		Bio:      latest.Bio,
	}

	switch {
	case latest.LinkedIn != "" && !force:
		out.Status = ProfileAlreadySet
		return out, nil
	case s.Enricher == nil:
		out.Status = ProfileDisabled
		return out, nil
	}

	tail := models.TailTurns(latest.Conversation, s.opts.SummaryTail)
	p, err := s.Enricher.EnrichProfile(ctx, name, latest.Keywords, tail)
	if err != nil {
		slog.Warn("profile enrichment failed", "person", name, "error", err)
		out.Status = ProfileError
		return out, nil
	}
	if p == nil {
		out.Status = ProfileNoMatch
		return out, nil
	}

	if _, err := s.Memory.SetLatestProfile(ctx, name, *p); err != nil {
		return nil, fmt.Errorf("enrich %q: %w", name, err)
	}
	out.Status = ProfileUpdated
	out.LinkedIn, out.Bio = p.LinkedIn, p.Bio
	return out, nil
}
