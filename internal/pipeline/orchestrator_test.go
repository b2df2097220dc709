package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/recall/internal/models"
	"github.com/your-org/recall/internal/registry"
)

type fakeTranscriber struct {
	segments []models.Segment
	err      error
	delay    time.Duration
	panicMsg string
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, _ string) ([]models.Segment, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.segments, f.err
}

type fakeStructurer struct {
	dialogue *models.Dialogue
	err      error
}

func (f *fakeStructurer) Structure(context.Context, []models.Segment) (*models.Dialogue, error) {
	return f.dialogue, f.err
}

type fakeDetector struct {
	capture *models.FaceCapture
	err     error
}

func (f *fakeDetector) DetectFace(context.Context, string) (*models.FaceCapture, error) {
	return f.capture, f.err
}

type fakeMatcher struct {
	mu        sync.Mutex
	ident     *registry.Identification
	identErr  error
	enrollErr error
	enrolled  []registry.EnrollRequest
}

func (f *fakeMatcher) Identify(context.Context, []float32, float64) (*registry.Identification, error) {
	return f.ident, f.identErr
}

func (f *fakeMatcher) Enroll(_ context.Context, req registry.EnrollRequest) (*models.Person, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enrollErr != nil {
		return nil, f.enrollErr
	}
	f.enrolled = append(f.enrolled, req)
	return &models.Person{ID: "p-new", DisplayName: req.Name}, nil
}

func speech() []models.Segment {
	return []models.Segment{{Start: 0, End: 2, Text: "Hi, I'm Peter."}}
}

func peterDialogue() *models.Dialogue {
	return &models.Dialogue{
		GuessedName: "Peter",
		Conversation: []models.Turn{
			{Speaker: "Peter", Text: "Hi, I'm Peter."},
			{Speaker: "", Text: "  nice to meet you "},
			{Speaker: "Me", Text: "   "},
		},
		Headline: "Photographer",
	}
}

func newFace() *fakeDetector {
	return &fakeDetector{capture: &models.FaceCapture{
		Embedding: []float32{0.1, 0.2, 0.3},
		CropKey:   "faces/crop.jpg",
		Width:     120,
		Height:    140,
	}}
}

func TestRendezvousFirstSignalWins(t *testing.T) {
	rv := NewRendezvous[string]()
	_, ok := rv.Value()
	assert.False(t, ok)

	assert.True(t, rv.Signal("first"))
	assert.False(t, rv.Signal("second"))

	v, ok := rv.Wait(context.Background(), time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, "first", v)
}

func TestRendezvousTimeoutAndCancel(t *testing.T) {
	rv := NewRendezvous[int]()
	_, ok := rv.Wait(context.Background(), 10*time.Millisecond)
	assert.False(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok = rv.Wait(ctx, time.Minute)
	assert.False(t, ok)
}

func TestRendezvousWakesAllWaiters(t *testing.T) {
	rv := NewRendezvous[int]()
	var wg sync.WaitGroup
	got := make([]int, 5)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _ := rv.Wait(context.Background(), time.Second)
			got[i] = v
		}(i)
	}
	rv.Signal(7)
	wg.Wait()
	assert.Equal(t, []int{7, 7, 7, 7, 7}, got)
}

func TestProcessKnownFace(t *testing.T) {
	m := &fakeMatcher{ident: &registry.Identification{
		Best:  models.PersonDistance{PersonID: "p1", DisplayName: "Mary Jane", Distance: 0.2},
		Known: true,
	}}
	o := NewOrchestrator(&fakeTranscriber{segments: speech()}, &fakeStructurer{dialogue: peterDialogue()}, newFace(), m,
		Config{LiveMatchThreshold: 0.55, RendezvousTimeout: time.Second})

	res := o.Process(context.Background(), "v.mp4")
	assert.Equal(t, "Mary Jane", res.Name)
	assert.Equal(t, models.FaceStatusExisting, res.FaceStatus)
	assert.Equal(t, "p1", res.PersonID)
	require.NotNil(t, res.Distance)
	assert.InDelta(t, 0.2, *res.Distance, 1e-9)
	assert.False(t, res.AutoEnrolled)
	assert.Empty(t, m.enrolled)

	assert.Equal(t, "Peter", res.GuessedName)
	require.Len(t, res.Conversation, 2)
	assert.Equal(t, "Unknown", res.Conversation[1].Speaker)
	assert.Equal(t, "nice to meet you", res.Conversation[1].Text)
}

func TestProcessNewFaceEnrollsGuessedName(t *testing.T) {
	m := &fakeMatcher{ident: &registry.Identification{
		Best:  models.PersonDistance{PersonID: "p1", DisplayName: "Mary Jane", Distance: 0.9},
		Known: false,
	}}
	tr := &fakeTranscriber{segments: speech(), delay: 20 * time.Millisecond}
	o := NewOrchestrator(tr, &fakeStructurer{dialogue: peterDialogue()}, newFace(), m,
		Config{LiveMatchThreshold: 0.55, RendezvousTimeout: time.Second})

	res := o.Process(context.Background(), "v.mp4")
	assert.Equal(t, models.FaceStatusNew, res.FaceStatus)
	assert.True(t, res.AutoEnrolled)
	assert.Equal(t, "Peter", res.Name)
	assert.Equal(t, "p-new", res.PersonID)
	require.Len(t, m.enrolled, 1)
	assert.Equal(t, "faces/crop.jpg", m.enrolled[0].CropKey)
	assert.Equal(t, "auto", m.enrolled[0].Source)
}

func TestProcessEmptyRegistryCountsAsNew(t *testing.T) {
	m := &fakeMatcher{identErr: models.ErrEmptyRegistry}
	o := NewOrchestrator(&fakeTranscriber{segments: speech()}, &fakeStructurer{dialogue: peterDialogue()}, newFace(), m,
		Config{LiveMatchThreshold: 0.55, RendezvousTimeout: time.Second})

	res := o.Process(context.Background(), "v.mp4")
	assert.Empty(t, res.FaceError)
	assert.Equal(t, models.FaceStatusNew, res.FaceStatus)
	assert.Nil(t, res.Distance)
	assert.True(t, res.AutoEnrolled)
}

func TestProcessTranscriptFailureStillSignals(t *testing.T) {
	m := &fakeMatcher{identErr: models.ErrEmptyRegistry}
	o := NewOrchestrator(&fakeTranscriber{err: errors.New("whisper down")}, &fakeStructurer{}, newFace(), m,
		Config{LiveMatchThreshold: 0.55, RendezvousTimeout: time.Minute})

	start := time.Now()
	res := o.Process(context.Background(), "v.mp4")
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.Contains(t, res.TranscriptError, "whisper down")
	assert.Empty(t, res.FaceError)
	assert.Equal(t, models.FaceStatusNew, res.FaceStatus)
	assert.False(t, res.AutoEnrolled)
	assert.Empty(t, m.enrolled)
	assert.Equal(t, "Unknown", res.Name)
}

func TestProcessTranscriptPanicIsContained(t *testing.T) {
	m := &fakeMatcher{identErr: models.ErrEmptyRegistry}
	o := NewOrchestrator(&fakeTranscriber{panicMsg: "boom"}, &fakeStructurer{}, newFace(), m,
		Config{LiveMatchThreshold: 0.55, RendezvousTimeout: time.Minute})

	res := o.Process(context.Background(), "v.mp4")
	assert.Contains(t, res.TranscriptError, "boom")
	assert.Equal(t, models.FaceStatusNew, res.FaceStatus)
}

func TestProcessRendezvousTimeout(t *testing.T) {
	m := &fakeMatcher{identErr: models.ErrEmptyRegistry}
	tr := &fakeTranscriber{segments: speech(), delay: 200 * time.Millisecond}
	o := NewOrchestrator(tr, &fakeStructurer{dialogue: peterDialogue()}, newFace(), m,
		Config{LiveMatchThreshold: 0.55, RendezvousTimeout: 10 * time.Millisecond})

	res := o.Process(context.Background(), "v.mp4")
	assert.False(t, res.AutoEnrolled)
	assert.Empty(t, m.enrolled)
	assert.Empty(t, res.FaceName)
	assert.Equal(t, "Peter", res.GuessedName)
	assert.Equal(t, "Peter", res.Name)
}

func TestProcessFaceFailureKeepsTranscript(t *testing.T) {
	o := NewOrchestrator(&fakeTranscriber{segments: speech()}, &fakeStructurer{dialogue: peterDialogue()},
		&fakeDetector{err: errors.New("no frames")}, &fakeMatcher{},
		Config{LiveMatchThreshold: 0.55, RendezvousTimeout: time.Second})

	res := o.Process(context.Background(), "v.mp4")
	assert.Contains(t, res.FaceError, "no frames")
	assert.Empty(t, res.TranscriptError)
	assert.Equal(t, "Peter", res.Name)
	assert.Len(t, res.Conversation, 2)
}

func TestProcessNoFaceFound(t *testing.T) {
	o := NewOrchestrator(&fakeTranscriber{segments: speech()}, &fakeStructurer{dialogue: peterDialogue()},
		&fakeDetector{}, &fakeMatcher{},
		Config{LiveMatchThreshold: 0.55, RendezvousTimeout: time.Second})

	res := o.Process(context.Background(), "v.mp4")
	assert.Contains(t, res.FaceError, "no face found")
}

func TestProcessUnknownGuessSkipsEnrollment(t *testing.T) {
	m := &fakeMatcher{identErr: models.ErrEmptyRegistry}
	d := peterDialogue()
	d.GuessedName = "unknown"
	o := NewOrchestrator(&fakeTranscriber{segments: speech()}, &fakeStructurer{dialogue: d}, newFace(), m,
		Config{LiveMatchThreshold: 0.55, RendezvousTimeout: time.Second})

	res := o.Process(context.Background(), "v.mp4")
	assert.False(t, res.AutoEnrolled)
	assert.Empty(t, m.enrolled)
	assert.Equal(t, "Unknown", res.Name)
}

func TestProcessMissingCropSkipsEnrollment(t *testing.T) {
	m := &fakeMatcher{identErr: models.ErrEmptyRegistry}
	det := newFace()
	det.capture.CropKey = ""
	o := NewOrchestrator(&fakeTranscriber{segments: speech()}, &fakeStructurer{dialogue: peterDialogue()}, det, m,
		Config{LiveMatchThreshold: 0.55, RendezvousTimeout: time.Second})

	res := o.Process(context.Background(), "v.mp4")
	assert.False(t, res.AutoEnrolled)
	assert.Empty(t, m.enrolled)
}

func TestProcessEnrollErrorReported(t *testing.T) {
	m := &fakeMatcher{identErr: models.ErrEmptyRegistry, enrollErr: errors.New("disk full")}
	o := NewOrchestrator(&fakeTranscriber{segments: speech()}, &fakeStructurer{dialogue: peterDialogue()}, newFace(), m,
		Config{LiveMatchThreshold: 0.55, RendezvousTimeout: time.Second})

	res := o.Process(context.Background(), "v.mp4")
	assert.False(t, res.AutoEnrolled)
	assert.Contains(t, res.EnrollError, "disk full")
	assert.Empty(t, res.FaceError)
}

func TestProcessSilentVideo(t *testing.T) {
	o := NewOrchestrator(&fakeTranscriber{segments: []models.Segment{{Text: "  "}}}, &fakeStructurer{err: errors.New("should not be called")},
		newFace(), &fakeMatcher{identErr: models.ErrEmptyRegistry},
		Config{LiveMatchThreshold: 0.55, RendezvousTimeout: time.Second})

	res := o.Process(context.Background(), "v.mp4")
	assert.Empty(t, res.TranscriptError)
	assert.Empty(t, res.Conversation)
	assert.Equal(t, "Unknown", res.Name)
}

func TestProcessUnconfigured(t *testing.T) {
	o := NewOrchestrator(nil, nil, nil, nil, Config{})
	res := o.Process(context.Background(), "v.mp4")
	assert.NotEmpty(t, res.TranscriptError)
	assert.NotEmpty(t, res.FaceError)
	assert.Equal(t, "Unknown", res.Name)
}
