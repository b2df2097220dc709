// Package highlights extracts time-bound reminders from conversations and
// keeps them through their active, completed and dismissed states.
package highlights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/recall/internal/models"
	"github.com/your-org/recall/internal/observability"
)

const (
	storeKey          = "highlights/all"
	defaultConfidence = 0.6
	defaultCategory   = "other"
	secondsPerDay     = 86400
)

// Extractor proposes highlights for a transcript tail.
type Extractor interface {
	ExtractHighlights(ctx context.Context, req ExtractRequest) ([]models.HighlightCandidate, error)
}

type ExtractRequest struct {
	PersonName    string
	Headline      string
	Transcript    []models.Turn
	ReferenceDate time.Time
}

type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte) error
}

type Options struct {
	MaxTranscriptLines int
	MaxReturned        int
	ExpiryGrace        time.Duration
}

// Manager owns the highlight set. Every load-modify-write runs under mu.
type Manager struct {
	kv        KV
	extractor Extractor
	opts      Options

	mu  sync.Mutex
	now func() time.Time
}

func NewManager(kv KV, extractor Extractor, opts Options) *Manager {
	if opts.MaxTranscriptLines <= 0 {
		opts.MaxTranscriptLines = 40
	}
	if opts.MaxReturned <= 0 {
		opts.MaxReturned = 50
	}
	if opts.ExpiryGrace <= 0 {
		opts.ExpiryGrace = 24 * time.Hour
	}
	return &Manager{
		kv:        kv,
		extractor: extractor,
		opts:      opts,
		now:       time.Now,
	}
}

// SetClock replaces the time source.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// DetectAndStore asks the extractor for highlights in entry and merges them
// into the store. It returns the highlights created or refreshed.
func (m *Manager) DetectAndStore(ctx context.Context, person string, entry models.ConversationEntry, ref time.Time) ([]models.Highlight, error) {
	if m.extractor == nil {
		return nil, nil
	}
	tail := models.TailTurns(entry.Conversation, m.opts.MaxTranscriptLines)
	if len(tail) == 0 {
		return nil, nil
	}
	if ref.IsZero() {
		ref = m.clock()
	}

	candidates, err := m.extractor.ExtractHighlights(ctx, ExtractRequest{
		PersonName:    person,
		Headline:      entry.Headline,
		Transcript:    tail,
		ReferenceDate: ref,
	})
	if err != nil {
		return nil, fmt.Errorf("extract highlights: %v: %w", err, models.ErrExternalService)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.load(ctx)
	switch {
	case errors.Is(err, models.ErrNotFound):
		all, err = nil, nil
	case errors.Is(err, models.ErrCorruptState):
		slog.Warn("corrupt highlight store replaced", "error", err)
		all, err = nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("detect highlights: %w", err)
	}

	now := m.now()
	all, _ = m.dropStale(all, now)
	nowTS := now.Unix()

	byKey := make(map[string]int, len(all))
	for i := range all {
		byKey[all[i].DedupKey()] = i
	}

	var touched []models.Highlight
	for _, c := range candidates {
		h, ok := m.fromCandidate(person, entry.Headline, c, nowTS)
		if !ok {
			continue
		}
		if i, exists := byKey[h.DedupKey()]; exists {
			cur := &all[i]
			cur.PersonName = h.PersonName
			cur.Summary = h.Summary
			cur.PersonHeadline = h.PersonHeadline
			cur.Description = h.Description
			cur.EventTimestamp = h.EventTimestamp
			cur.SourceQuote = h.SourceQuote
			cur.Category = h.Category
			cur.Confidence = h.Confidence
			cur.UpdatedAt = nowTS
			touched = append(touched, *cur)
			observability.HighlightsStored.WithLabelValues("merged").Inc()
			continue
		}
		all = append(all, h)
		byKey[h.DedupKey()] = len(all) - 1
		touched = append(touched, h)
		observability.HighlightsStored.WithLabelValues("created").Inc()
	}

	if err := m.save(ctx, all); err != nil {
		return nil, fmt.Errorf("detect highlights: %w", err)
	}
	return touched, nil
}

// fromCandidate cleans a raw proposal. It rejects candidates without title
// or date, with an unreadable date, or dated in the past.
func (m *Manager) fromCandidate(person, headline string, c models.HighlightCandidate, nowTS int64) (models.Highlight, bool) {
	title := strings.TrimSpace(c.Title)
	date := strings.TrimSpace(c.EventDate)
	if title == "" || date == "" {
		return models.Highlight{}, false
	}
	when, err := ParseEventDate(date)
	if err != nil {
		slog.Debug("highlight dropped", "title", title, "error", err)
		return models.Highlight{}, false
	}
	ts := when.Unix()
	if ts < nowTS {
		return models.Highlight{}, false
	}

	desc := strings.TrimSpace(c.Description)
	if desc == "" {
		desc = title
	}
	category := strings.ToLower(strings.TrimSpace(c.Category))
	if category == "" {
		category = defaultCategory
	}
	confidence := defaultConfidence
	if c.Confidence != nil {
		confidence = *c.Confidence
	}

	h := models.Highlight{
		ID:             newID(),
		PersonName:     strings.TrimSpace(person),
		PersonHeadline: strings.TrimSpace(headline),
		Summary:        title,
		Description:    desc,
		EventDate:      date,
		EventTimestamp: ts,
		SourceQuote:    strings.TrimSpace(c.SourceQuote),
		Category:       category,
		Confidence:     confidence,
		Status:         models.StatusActive,
		CreatedAt:      nowTS,
		UpdatedAt:      nowTS,
	}
	if err := h.Validate(); err != nil {
		slog.Debug("highlight dropped", "title", title, "error", err)
		return models.Highlight{}, false
	}
	return h, true
}

// ListUpcoming purges highlights past their grace period, then returns the
// active ones not yet due, soonest first.
func (m *Manager) ListUpcoming(ctx context.Context, limit int) ([]models.UpcomingHighlight, error) {
	if limit <= 0 || limit > m.opts.MaxReturned {
		limit = m.opts.MaxReturned
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.load(ctx)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list highlights: %w", err)
	}

	now := m.now()
	all, removed := m.dropStale(all, now)
	if removed > 0 {
		if err := m.save(ctx, all); err != nil {
			return nil, fmt.Errorf("list highlights: %w", err)
		}
	}

	nowTS := now.Unix()
	var out []models.UpcomingHighlight
	for _, h := range all {
		if h.Status != models.StatusActive || h.EventTimestamp < nowTS {
			continue
		}
		rem := h.EventTimestamp - nowTS
		out = append(out, models.UpcomingHighlight{
			Highlight:  h,
			DaysUntil:  rem / secondsPerDay,
			HoursUntil: (rem % secondsPerDay) / 3600,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EventTimestamp < out[j].EventTimestamp
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SetStatus moves a highlight to status. completed_at is kept from the first
// completion; the timestamp of the other terminal state is cleared.
func (m *Manager) SetStatus(ctx context.Context, id, status string) (*models.Highlight, error) {
	st, err := models.ParseHighlightStatus(status)
	if err != nil {
		return nil, fmt.Errorf("set status %q: %w", status, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.load(ctx)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("highlight %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}

	idx := -1
	for i := range all {
		if all[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("highlight %s: %w", id, models.ErrNotFound)
	}

	nowTS := m.now().Unix()
	h := &all[idx]
	h.Status = st
	h.UpdatedAt = nowTS
	switch st {
	case models.StatusCompleted:
		if h.CompletedAt == nil {
			h.CompletedAt = &nowTS
		}
		h.DismissedAt = nil
	case models.StatusDismissed:
		if h.DismissedAt == nil {
			h.DismissedAt = &nowTS
		}
		h.CompletedAt = nil
	case models.StatusActive:
		h.CompletedAt = nil
		h.DismissedAt = nil
	}

	if err := m.save(ctx, all); err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}
	out := *h
	return &out, nil
}

func (m *Manager) dropStale(all []models.Highlight, now time.Time) ([]models.Highlight, int) {
	cutoff := now.Add(-m.opts.ExpiryGrace).Unix()
	kept := all[:0]
	for _, h := range all {
		if h.EventTimestamp >= cutoff {
			kept = append(kept, h)
		}
	}
	removed := len(all) - len(kept)
	if removed > 0 {
		observability.HighlightsExpired.Add(float64(removed))
	}
	return kept, removed
}

func (m *Manager) clock() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now()
}

func (m *Manager) load(ctx context.Context) ([]models.Highlight, error) {
	data, err := m.kv.Get(ctx, storeKey)
	if err != nil {
		return nil, err
	}
	var all []models.Highlight
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("decode highlights: %v: %w", err, models.ErrCorruptState)
	}
	valid := all[:0]
	for _, h := range all {
		if err := h.Validate(); err != nil {
			slog.Warn("dropping malformed highlight", "id", h.ID, "error", err)
			continue
		}
		valid = append(valid, h)
	}
	return valid, nil
}

func (m *Manager) save(ctx context.Context, all []models.Highlight) error {
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].EventTimestamp < all[j].EventTimestamp
	})
	data, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("encode highlights: %w", err)
	}
	return m.kv.Set(ctx, storeKey, data)
}

func newID() string {
	return "hl_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:10]
}
