// Package service exposes the recall operations to the HTTP API, the MCP
// server and the worker. It composes the registry, the conversation memory,
// search and highlights.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/your-org/recall/internal/highlights"
	"github.com/your-org/recall/internal/llm"
	"github.com/your-org/recall/internal/models"
	"github.com/your-org/recall/internal/registry"
	"github.com/your-org/recall/internal/search"
)

type Registry interface {
	Identify(ctx context.Context, query []float32, threshold float64) (*registry.Identification, error)
	Enroll(ctx context.Context, req registry.EnrollRequest) (*models.Person, error)
	ListPersons(ctx context.Context) ([]models.Person, error)
	LatestFace(ctx context.Context, name string) (*models.FaceEmbedding, error)
	Rename(ctx context.Context, oldName, newName string) error
}

type Memory interface {
	Append(ctx context.Context, name string, entry models.ConversationEntry) (models.ConversationEntry, error)
	Read(ctx context.Context, name string) ([]models.ConversationEntry, error)
	Keys(ctx context.Context) ([]string, error)
	SetLatestProfile(ctx context.Context, name string, profile models.Profile) (models.ConversationEntry, error)
	Rename(ctx context.Context, oldName, newName string) error
}

type Searcher interface {
	Query(ctx context.Context, question, personFilter string) ([]search.Match, error)
	Excerpt(m *search.Match, quotes []string, window int) []search.ExcerptTurn
}

type Highlights interface {
	DetectAndStore(ctx context.Context, person string, entry models.ConversationEntry, ref time.Time) ([]models.Highlight, error)
	ListUpcoming(ctx context.Context, limit int) ([]models.UpcomingHighlight, error)
	SetStatus(ctx context.Context, id, status string) (*models.Highlight, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, question string, tail []models.Turn) (*llm.Summary, error)
}

type Enricher interface {
	EnrichProfile(ctx context.Context, name string, keywords []string, tail []models.Turn) (*models.Profile, error)
}

type VideoProcessor interface {
	Process(ctx context.Context, videoPath string) *models.ProcessResult
}

type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, data []byte, store bool) (*models.FaceCapture, error)
}

// ObjectStore holds face crops and uploaded videos.
type ObjectStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
	PutStream(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	DownloadFile(ctx context.Context, key, path string) error
	DeleteObject(ctx context.Context, key string) error
}

type JobQueue interface {
	PublishJob(ctx context.Context, job models.VideoJob) error
	PublishResult(ctx context.Context, res models.JobResult) error
}

// Deps are the collaborators. Summarizer, Enricher, Analyzer, Objects and
// Jobs are optional; the operations needing them report that they are
// unavailable.
type Deps struct {
	Registry   Registry
	Memory     Memory
	Search     Searcher
	Highlights Highlights
	Processor  VideoProcessor
	Summarizer Summarizer
	Enricher   Enricher
	Analyzer   ImageAnalyzer
	Objects    ObjectStore
	Jobs       JobQueue
}

type Options struct {
	IdentifyThreshold float64
	SummaryTail       int
	ExcerptWindow     int
	PublicURL         string
	TempDir           string
}

type Service struct {
	Deps
	opts Options
}

func New(d Deps, opts Options) *Service {
	if opts.SummaryTail <= 0 {
		opts.SummaryTail = 24
	}
	if opts.ExcerptWindow < 0 {
		opts.ExcerptWindow = 1
	}
	opts.PublicURL = strings.TrimRight(opts.PublicURL, "/")
	return &Service{Deps: d, opts: opts}
}

// ErrUnavailable is returned when an optional collaborator is not wired.
var ErrUnavailable = errors.New("feature not configured")

// PersonSummary is one row of the people list.
type PersonSummary struct {
	Name          string `json:"name"`
	Key           string `json:"key"`
	PersonID      string `json:"person_id,omitempty"`
	FaceCount     int    `json:"face_count"`
	Headline      string `json:"headline,omitempty"`
	LinkedIn      string `json:"linkedin,omitempty"`
	Conversations int    `json:"conversations"`
	LastSeen      int64  `json:"last_seen,omitempty"`
	ImageURL      string `json:"image_url,omitempty"`
}

// ListPeople merges enrolled persons with everyone that has a conversation
// log, most recently seen first.
func (s *Service) ListPeople(ctx context.Context) ([]PersonSummary, error) {
	byKey := make(map[string]*PersonSummary)
	get := func(key string) *PersonSummary {
		p, ok := byKey[key]
		if !ok {
			p = &PersonSummary{Name: key, Key: key}
			byKey[key] = p
		}
		return p
	}

	persons, err := s.Registry.ListPersons(ctx)
	if err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}
	for _, p := range persons {
		row := get(p.Key)
		row.Name = p.DisplayName
		row.PersonID = p.ID
		row.FaceCount = p.FaceCount
		if p.FaceCount > 0 {
			row.ImageURL = s.faceURL(p.Key)
		}
		if ts := p.UpdatedAt.Unix(); ts > row.LastSeen {
			row.LastSeen = ts
		}
	}

	keys, err := s.Memory.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}
	for _, key := range keys {
		entries, err := s.Memory.Read(ctx, key)
		if err != nil {
			slog.Warn("skipping unreadable conversation log", "person", key, "error", err)
			continue
		}
		row := get(key)
		row.Conversations = len(entries)
		if n := len(entries); n > 0 {
			last := entries[n-1]
			row.Headline = last.Headline
			row.LinkedIn = last.LinkedIn
			row.LastSeen = max(row.LastSeen, last.Timestamp)
		}
	}

	out := make([]PersonSummary, 0, len(byKey))
	for _, p := range byKey {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastSeen != out[j].LastSeen {
			return out[i].LastSeen > out[j].LastSeen
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func (s *Service) GetConversation(ctx context.Context, name string) ([]models.ConversationEntry, error) {
	if models.NormalizeName(name) == "" {
		return nil, models.Invalid("person name is empty")
	}
	entries, err := s.Memory.Read(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("get conversation %q: %w", name, err)
	}
	return entries, nil
}

// FaceImage returns the JPEG of the newest stored crop of name.
func (s *Service) FaceImage(ctx context.Context, name string) ([]byte, error) {
	if s.Objects == nil {
		return nil, ErrUnavailable
	}
	face, err := s.Registry.LatestFace(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("face of %q: %w", name, err)
	}
	data, err := s.Objects.GetObject(ctx, face.CropKey)
	if err != nil {
		return nil, fmt.Errorf("face of %q: %w", name, err)
	}
	return data, nil
}

// RenamePerson renames the conversation log and registry entry together. A
// person known only to the registry is renamed there alone.
func (s *Service) RenamePerson(ctx context.Context, oldName, newName string) error {
	err := s.Memory.Rename(ctx, oldName, newName)
	if errors.Is(err, models.ErrNotFound) {
		err = s.Registry.Rename(ctx, oldName, newName)
	}
	if err != nil {
		return fmt.Errorf("rename person: %w", err)
	}
	return nil
}

func (s *Service) ListHighlights(ctx context.Context, limit int) ([]models.UpcomingHighlight, error) {
	return s.Highlights.ListUpcoming(ctx, limit)
}

func (s *Service) SetHighlightStatus(ctx context.Context, id, status string) (*models.Highlight, error) {
	return s.Highlights.SetStatus(ctx, id, status)
}

func (s *Service) faceURL(key string) string {
	return s.opts.PublicURL + "/v1/people/" + url.PathEscape(key) + "/face"
}
