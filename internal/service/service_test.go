package service

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/recall/internal/config"
	"github.com/your-org/recall/internal/highlights"
	"github.com/your-org/recall/internal/llm"
	"github.com/your-org/recall/internal/memory"
	"github.com/your-org/recall/internal/models"
	"github.com/your-org/recall/internal/registry"
	"github.com/your-org/recall/internal/search"
	"github.com/your-org/recall/internal/storage"
)

type fakeSummarizer struct {
	sum      *llm.Summary
	err      error
	lastTail []models.Turn
}

func (f *fakeSummarizer) Summarize(ctx context.Context, question string, tail []models.Turn) (*llm.Summary, error) {
	f.lastTail = tail
	return f.sum, f.err
}

type fakeEnricher struct {
	profile *models.Profile
	err     error
	calls   int
}

func (f *fakeEnricher) EnrichProfile(ctx context.Context, name string, keywords []string, tail []models.Turn) (*models.Profile, error) {
	f.calls++
	return f.profile, f.err
}

type fakeExtractor struct {
	calls int
}

func (f *fakeExtractor) ExtractHighlights(ctx context.Context, req highlights.ExtractRequest) ([]models.HighlightCandidate, error) {
	f.calls++
	return nil, nil
}

type fakeProcessor struct {
	res  *models.ProcessResult
	seen []string
}

func (f *fakeProcessor) Process(ctx context.Context, videoPath string) *models.ProcessResult {
	f.seen = append(f.seen, videoPath)
	out := *f.res
	return &out
}

type fakeAnalyzer struct {
	capture *models.FaceCapture
	err     error
	stored  []bool
}

func (f *fakeAnalyzer) AnalyzeImage(ctx context.Context, data []byte, store bool) (*models.FaceCapture, error) {
	f.stored = append(f.stored, store)
	return f.capture, f.err
}

type fakeObjects struct {
	mu          sync.Mutex
	objects     map[string][]byte
	deleted     []string
	downloadErr error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (f *fakeObjects) GetObject(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, models.ErrNotFound
	}
	return data, nil
}

func (f *fakeObjects) PutStream(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.objects[key] = data
	f.mu.Unlock()
	return nil
}

func (f *fakeObjects) DownloadFile(ctx context.Context, key, path string) error {
	if f.downloadErr != nil {
		return f.downloadErr
	}
	data, err := f.GetObject(ctx, key)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func (f *fakeObjects) DeleteObject(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

type fakeJobs struct {
	jobs       []models.VideoJob
	results    []models.JobResult
	publishErr error
}

func (f *fakeJobs) PublishJob(ctx context.Context, job models.VideoJob) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeJobs) PublishResult(ctx context.Context, res models.JobResult) error {
	f.results = append(f.results, res)
	return nil
}

type harness struct {
	svc       *Service
	reg       *registry.Registry
	mem       *memory.Store
	extractor *fakeExtractor
}

func newHarness(t *testing.T, extra Deps) *harness {
	t.Helper()
	kv, err := storage.NewBadgerStore(config.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	reg := registry.New(kv, 0)
	mem := memory.NewStore(kv, reg)
	ex := &fakeExtractor{}

	d := extra
	d.Registry = reg
	d.Memory = mem
	d.Search = search.NewEngine(mem, "http://recall.test")
	d.Highlights = highlights.NewManager(kv, ex, highlights.Options{})

	svc := New(d, Options{
		IdentifyThreshold: 0.1,
		SummaryTail:       24,
		ExcerptWindow:     1,
		PublicURL:         "http://recall.test/",
		TempDir:           t.TempDir(),
	})
	return &harness{svc: svc, reg: reg, mem: mem, extractor: ex}
}

func (h *harness) remember(t *testing.T, name string, ts int64, turns ...models.Turn) {
	t.Helper()
	_, err := h.mem.Append(context.Background(), name, models.ConversationEntry{Timestamp: ts, Conversation: turns})
	require.NoError(t, err)
}

func TestAskAssistantRejectsEmptyQuestion(t *testing.T) {
	h := newHarness(t, Deps{})
	_, err := h.svc.AskAssistant(context.Background(), "   ", "")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestAskAssistantWithoutConversations(t *testing.T) {
	h := newHarness(t, Deps{})
	ans, err := h.svc.AskAssistant(context.Background(), "who likes photography?", "")
	require.NoError(t, err)
	assert.Equal(t, noConversationsAnswer, ans.Answer)
	assert.Nil(t, ans.Match)
	assert.Empty(t, ans.Excerpt)
}

func TestAskAssistantUsesSummary(t *testing.T) {
	sum := &fakeSummarizer{sum: &llm.Summary{
		Answer:     "Peter takes photos for the Bugle.",
		Suggestion: "Ask about his latest shoot.",
		Excerpt:    []models.Turn{{Speaker: "Peter", Text: "I take photos for the Bugle"}},
	}}
	h := newHarness(t, Deps{Summarizer: sum})
	h.remember(t, "Peter Parker", 100,
		models.Turn{Speaker: "Me", Text: "What do you do?"},
		models.Turn{Speaker: "Peter", Text: "I take photos for the Bugle"},
		models.Turn{Speaker: "Me", Text: "Nice"},
	)
	h.remember(t, "Mary Jane", 200, models.Turn{Speaker: "Mary", Text: "I act in plays"})

	ans, err := h.svc.AskAssistant(context.Background(), "who takes photos?", "")
	require.NoError(t, err)
	assert.True(t, ans.Generated)
	assert.Equal(t, "Peter takes photos for the Bugle.", ans.Answer)
	assert.Equal(t, "Ask about his latest shoot.", ans.Suggestion)
	require.NotNil(t, ans.Match)
	assert.Equal(t, "peter parker", ans.Match.Name)
	assert.Len(t, sum.lastTail, 3)

	require.NotEmpty(t, ans.Excerpt)
	var quoted bool
	for _, et := range ans.Excerpt {
		if et.IsHighlight {
			quoted = true
			assert.Equal(t, "I take photos for the Bugle", et.Text)
		}
	}
	assert.True(t, quoted)
}

func TestAskAssistantFallsBackToSnippet(t *testing.T) {
	sum := &fakeSummarizer{err: errors.New("quota exceeded")}
	h := newHarness(t, Deps{Summarizer: sum})
	h.remember(t, "Peter Parker", 100, models.Turn{Speaker: "Peter", Text: "I take photos for the Bugle"})

	ans, err := h.svc.AskAssistant(context.Background(), "photos", "")
	require.NoError(t, err)
	assert.False(t, ans.Generated)
	assert.Equal(t, `peter parker (Peter) mentioned "I take photos for the Bugle".`, ans.Answer)
}

func TestAskAssistantPersonFilter(t *testing.T) {
	h := newHarness(t, Deps{})
	h.remember(t, "Peter Parker", 100, models.Turn{Speaker: "Peter", Text: "photos"})
	h.remember(t, "Mary Jane", 100, models.Turn{Speaker: "Mary", Text: "photos too"})

	ans, err := h.svc.AskAssistant(context.Background(), "photos", "Mary Jane")
	require.NoError(t, err)
	require.NotNil(t, ans.Match)
	assert.Equal(t, "mary jane", ans.Match.Name)
	assert.Empty(t, ans.Others)
}

func TestProcessVideoStoresConversation(t *testing.T) {
	proc := &fakeProcessor{res: &models.ProcessResult{
		Name:         "Peter Parker",
		FaceStatus:   models.FaceStatusNew,
		Conversation: []models.Turn{{Speaker: "Peter", Text: "See you at the exhibition"}},
		Keywords:     []string{"exhibition"},
		Headline:     "Photographer",
		Timestamp:    1_700_000_000,
	}}
	h := newHarness(t, Deps{Processor: proc})

	res, err := h.svc.ProcessVideo(context.Background(), "/tmp/a.mp4")
	require.NoError(t, err)
	assert.Equal(t, "Peter Parker", res.Name)
	assert.Equal(t, []string{"/tmp/a.mp4"}, proc.seen)
	assert.Equal(t, 1, h.extractor.calls)

	entries, err := h.svc.GetConversation(context.Background(), "peter parker")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1_700_000_000), entries[0].Timestamp)
	assert.Equal(t, "Photographer", entries[0].Headline)
	assert.Equal(t, []string{"exhibition"}, entries[0].Keywords)
}

func TestProcessVideoKeepsPartialResult(t *testing.T) {
	proc := &fakeProcessor{res: &models.ProcessResult{
		Name:         "Unknown",
		FaceError:    "detect face: no face found",
		Conversation: []models.Turn{{Speaker: "Unknown", Text: "hello"}},
		Timestamp:    50,
	}}
	h := newHarness(t, Deps{Processor: proc})

	_, err := h.svc.ProcessVideo(context.Background(), "/tmp/b.mp4")
	require.NoError(t, err)

	entries, err := h.svc.GetConversation(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestProcessVideoBothSidesFailed(t *testing.T) {
	proc := &fakeProcessor{res: &models.ProcessResult{
		Name:            "Unknown",
		FaceError:       "detect face: boom",
		TranscriptError: "transcribe: boom",
		Timestamp:       50,
	}}
	h := newHarness(t, Deps{Processor: proc})

	res, err := h.svc.ProcessVideo(context.Background(), "/tmp/c.mp4")
	require.Error(t, err)
	require.NotNil(t, res)

	keys, err := h.mem.Keys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Zero(t, h.extractor.calls)
}

func TestProcessVideoUnconfigured(t *testing.T) {
	h := newHarness(t, Deps{})
	_, err := h.svc.ProcessVideo(context.Background(), "/tmp/x.mp4")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSubmitVideoAndHandleJob(t *testing.T) {
	objects := newFakeObjects()
	jobs := &fakeJobs{}
	proc := &fakeProcessor{res: &models.ProcessResult{
		Name:         "Peter Parker",
		Conversation: []models.Turn{{Speaker: "Peter", Text: "hi"}},
		Timestamp:    10,
	}}
	h := newHarness(t, Deps{Processor: proc, Objects: objects, Jobs: jobs})
	ctx := context.Background()

	job, err := h.svc.SubmitVideo(ctx, "../clips/meeting.mp4", strings.NewReader("video bytes"), 11)
	require.NoError(t, err)
	assert.Equal(t, "meeting.mp4", job.Filename)
	assert.Equal(t, "uploads/"+job.JobID+".mp4", job.ObjectKey)
	require.Len(t, jobs.jobs, 1)
	assert.Contains(t, objects.objects, job.ObjectKey)

	require.NoError(t, h.svc.HandleJob(ctx, *job))
	require.Len(t, jobs.results, 1)
	res := jobs.results[0]
	assert.Equal(t, job.JobID, res.JobID)
	assert.Equal(t, models.JobStatusDone, res.Status)
	require.NotNil(t, res.Result)
	assert.Equal(t, "Peter Parker", res.Result.Name)
	assert.Equal(t, []string{job.ObjectKey}, objects.deleted)
	require.Len(t, proc.seen, 1)
	_, statErr := os.Stat(proc.seen[0])
	assert.True(t, os.IsNotExist(statErr), "downloaded video is removed")
}

func TestHandleJobDownloadFailure(t *testing.T) {
	objects := newFakeObjects()
	objects.downloadErr = errors.New("bucket gone")
	jobs := &fakeJobs{}
	proc := &fakeProcessor{res: &models.ProcessResult{}}
	h := newHarness(t, Deps{Processor: proc, Objects: objects, Jobs: jobs})

	require.NoError(t, h.svc.HandleJob(context.Background(), models.VideoJob{JobID: "j1", ObjectKey: "uploads/j1.mp4"}))
	require.Len(t, jobs.results, 1)
	assert.Equal(t, models.JobStatusFailed, jobs.results[0].Status)
	assert.Contains(t, jobs.results[0].Error, "bucket gone")
	assert.Empty(t, proc.seen)
}

func TestSubmitVideoQueueFailureRemovesUpload(t *testing.T) {
	objects := newFakeObjects()
	jobs := &fakeJobs{publishErr: errors.New("nats down")}
	h := newHarness(t, Deps{Objects: objects, Jobs: jobs})

	_, err := h.svc.SubmitVideo(context.Background(), "a.mp4", strings.NewReader("x"), 1)
	require.Error(t, err)
	assert.Empty(t, objects.objects)
	assert.Len(t, objects.deleted, 1)
}

func TestRenamePersonRegistryOnly(t *testing.T) {
	h := newHarness(t, Deps{})
	ctx := context.Background()
	_, err := h.svc.EnrollFace(ctx, []float32{1, 0, 0}, "Mary")
	require.NoError(t, err)

	require.NoError(t, h.svc.RenamePerson(ctx, "mary", "Mary Jane"))

	ok, err := h.reg.Exists(ctx, "mary jane")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRenamePersonMovesLogAndFace(t *testing.T) {
	h := newHarness(t, Deps{})
	ctx := context.Background()
	_, err := h.svc.EnrollFace(ctx, []float32{1, 0, 0}, "Pete")
	require.NoError(t, err)
	h.remember(t, "Pete", 1, models.Turn{Speaker: "Pete", Text: "hi"})

	require.NoError(t, h.svc.RenamePerson(ctx, "pete", "Peter Parker"))

	_, err = h.svc.GetConversation(ctx, "pete")
	assert.ErrorIs(t, err, models.ErrNotFound)
	entries, err := h.svc.GetConversation(ctx, "peter parker")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	ok, err := h.reg.Exists(ctx, "peter parker")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRenamePersonUnknown(t *testing.T) {
	h := newHarness(t, Deps{})
	err := h.svc.RenamePerson(context.Background(), "nobody", "somebody")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListPeopleMergesSources(t *testing.T) {
	h := newHarness(t, Deps{})
	ctx := context.Background()
	_, err := h.svc.EnrollFace(ctx, []float32{1, 0, 0}, "Peter Parker")
	require.NoError(t, err)
	h.remember(t, "Peter Parker", 100, models.Turn{Speaker: "Peter", Text: "hi"})
	h.remember(t, "Mary Jane", 50, models.Turn{Speaker: "Mary", Text: "hey"})

	people, err := h.svc.ListPeople(ctx)
	require.NoError(t, err)
	require.Len(t, people, 2)

	byKey := map[string]PersonSummary{}
	for _, p := range people {
		byKey[p.Key] = p
	}
	peter := byKey["peter parker"]
	assert.Equal(t, "Peter Parker", peter.Name)
	assert.Equal(t, 1, peter.FaceCount)
	assert.Equal(t, 1, peter.Conversations)
	assert.Equal(t, "http://recall.test/v1/people/peter%20parker/face", peter.ImageURL)

	mary := byKey["mary jane"]
	assert.Zero(t, mary.FaceCount)
	assert.Empty(t, mary.ImageURL)
	assert.Equal(t, int64(50), mary.LastSeen)
}

func TestEnrichProfileStatuses(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		h := newHarness(t, Deps{})
		h.remember(t, "Peter", 1, models.Turn{Speaker: "Peter", Text: "hi"})
		res, err := h.svc.EnrichProfile(ctx, "Peter", false)
		require.NoError(t, err)
		assert.Equal(t, ProfileDisabled, res.Status)
	})

	t.Run("not found", func(t *testing.T) {
		h := newHarness(t, Deps{Enricher: &fakeEnricher{}})
		_, err := h.svc.EnrichProfile(ctx, "Nobody", false)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("updated then already set", func(t *testing.T) {
		en := &fakeEnricher{profile: &models.Profile{LinkedIn: "https://linkedin.com/in/peter", Bio: "Photographer"}}
		h := newHarness(t, Deps{Enricher: en})
		h.remember(t, "Peter", 1, models.Turn{Speaker: "Peter", Text: "hi"})

		res, err := h.svc.EnrichProfile(ctx, "Peter", false)
		require.NoError(t, err)
		assert.Equal(t, ProfileUpdated, res.Status)
		assert.Equal(t, "https://linkedin.com/in/peter", res.LinkedIn)

		entries, err := h.svc.GetConversation(ctx, "peter")
		require.NoError(t, err)
		assert.Equal(t, "Photographer", entries[0].Bio)

		res, err = h.svc.EnrichProfile(ctx, "Peter", false)
		require.NoError(t, err)
		assert.Equal(t, ProfileAlreadySet, res.Status)
		assert.Equal(t, 1, en.calls)

		res, err = h.svc.EnrichProfile(ctx, "Peter", true)
		require.NoError(t, err)
		assert.Equal(t, ProfileUpdated, res.Status)
		assert.Equal(t, 2, en.calls)
	})

	t.Run("no match", func(t *testing.T) {
		h := newHarness(t, Deps{Enricher: &fakeEnricher{}})
		h.remember(t, "Peter", 1, models.Turn{Speaker: "Peter", Text: "hi"})
		res, err := h.svc.EnrichProfile(ctx, "Peter", false)
		require.NoError(t, err)
		assert.Equal(t, ProfileNoMatch, res.Status)
	})

	t.Run("enricher error", func(t *testing.T) {
		h := newHarness(t, Deps{Enricher: &fakeEnricher{err: errors.New("timeout")}})
		h.remember(t, "Peter", 1, models.Turn{Speaker: "Peter", Text: "hi"})
		res, err := h.svc.EnrichProfile(ctx, "Peter", false)
		require.NoError(t, err)
		assert.Equal(t, ProfileError, res.Status)
	})
}

func TestIdentifyFace(t *testing.T) {
	h := newHarness(t, Deps{})
	ctx := context.Background()

	_, err := h.svc.IdentifyFace(ctx, []float32{1, 0, 0})
	assert.ErrorIs(t, err, models.ErrEmptyRegistry)

	_, err = h.svc.EnrollFace(ctx, []float32{1, 0, 0}, "Peter Parker")
	require.NoError(t, err)

	id, err := h.svc.IdentifyFace(ctx, []float32{0.99, 0.05, 0})
	require.NoError(t, err)
	assert.True(t, id.Known)
	assert.Equal(t, "Peter Parker", id.Best.DisplayName)

	id, err = h.svc.IdentifyFace(ctx, []float32{0, 1, 0})
	require.NoError(t, err)
	assert.False(t, id.Known)
}

func TestImageEndpointsUseAnalyzer(t *testing.T) {
	an := &fakeAnalyzer{capture: &models.FaceCapture{Embedding: []float32{0, 0, 1}, CropKey: "faces/x.jpg", Width: 220, Height: 240}}
	h := newHarness(t, Deps{Analyzer: an})
	ctx := context.Background()

	p, err := h.svc.EnrollImage(ctx, []byte("jpeg"), "Gwen Stacy")
	require.NoError(t, err)
	assert.Equal(t, "Gwen Stacy", p.DisplayName)

	face, err := h.reg.LatestFace(ctx, "gwen stacy")
	require.NoError(t, err)
	assert.Equal(t, "faces/x.jpg", face.CropKey)
	assert.Equal(t, "manual", face.Source)

	id, err := h.svc.IdentifyImage(ctx, []byte("jpeg"))
	require.NoError(t, err)
	assert.True(t, id.Known)
	assert.Equal(t, []bool{true, false}, an.stored)

	_, err = h.svc.EnrollImage(ctx, []byte("jpeg"), "  ")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestImageEndpointsUnavailable(t *testing.T) {
	h := newHarness(t, Deps{})
	_, err := h.svc.IdentifyImage(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = h.svc.FaceImage(context.Background(), "peter")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFaceImage(t *testing.T) {
	objects := newFakeObjects()
	objects.objects["faces/p.jpg"] = []byte("jpeg bytes")
	an := &fakeAnalyzer{capture: &models.FaceCapture{Embedding: []float32{1, 0}, CropKey: "faces/p.jpg"}}
	h := newHarness(t, Deps{Analyzer: an, Objects: objects})
	ctx := context.Background()

	_, err := h.svc.EnrollImage(ctx, []byte("jpeg"), "Peter")
	require.NoError(t, err)

	data, err := h.svc.FaceImage(ctx, "peter")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg bytes"), data)

	_, err = h.svc.FaceImage(ctx, "mary")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
