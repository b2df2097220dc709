// Package vision finds, crops and embeds faces with ONNX Runtime models.
package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/recall/internal/config"
	"github.com/your-org/recall/internal/media"
	"github.com/your-org/recall/internal/models"
	"github.com/your-org/recall/internal/observability"
)

const (
	cropQuality       = 95
	minCropSide       = 200
	trackMinIoU       = 0.3
	trackMaxGap       = 2
	detectorModelFile = "det_10g.onnx"
	embedderModelFile = "w600k_r50.onnx"
	cropKeyTimeLayout = "20060102"
	cropContentType   = "image/jpeg"
)

// CropStore receives face crops. MinIO implements it.
type CropStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// Analyzer picks the main face of a video or image and embeds it.
type Analyzer struct {
	det   *Detector
	emb   *Embedder
	crops CropStore
	cfg   config.VisionConfig
}

// InitRuntime loads the ONNX Runtime shared library. The returned func tears
// the environment down.
func InitRuntime(libPath string) (func(), error) {
	if libPath == "" {
		libPath = defaultLibPath()
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("init onnx runtime: %w", err)
	}
	return func() { _ = ort.DestroyEnvironment() }, nil
}

func defaultLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}

// NewAnalyzer loads both models from cfg.ModelsDir. The runtime must be
// initialized first.
func NewAnalyzer(cfg config.VisionConfig, crops CropStore) (*Analyzer, error) {
	detPath := filepath.Join(cfg.ModelsDir, detectorModelFile)
	embPath := filepath.Join(cfg.ModelsDir, embedderModelFile)

	slog.Info("loading face detector", "path", detPath)
	det, err := NewDetector(detPath, float32(cfg.DetectionThreshold))
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}
	slog.Info("loading face embedder", "path", embPath)
	emb, err := NewEmbedder(embPath)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}
	return &Analyzer{det: det, emb: emb, crops: crops, cfg: cfg}, nil
}

func (a *Analyzer) Close() {
	a.det.Close()
	a.emb.Close()
}

// DetectFace samples videoPath, follows faces across frames and returns the
// sharpest view of the face present in most frames. The crop is uploaded;
// if that fails the capture is still returned, without a crop key.
func (a *Analyzer) DetectFace(ctx context.Context, videoPath string) (*models.FaceCapture, error) {
	start := time.Now()
	tr := newTracker(trackMinIoU, trackMaxGap)

	n, err := media.SampleFrames(ctx, videoPath, media.FrameOptions{
		Interval:  a.cfg.FrameInterval,
		Width:     a.cfg.FrameWidth,
		MaxFrames: a.cfg.MaxFrames,
	}, func(i int, _ time.Duration, data []byte) error {
		img, err := DecodeImage(data)
		if err != nil {
			return err
		}
		faces, err := a.det.Detect(img)
		if err != nil {
			return err
		}
		faces = a.bigEnough(faces)
		for k, t := range tr.update(i, faces) {
			t.offer(a.view(img, faces[k].Box, i))
		}
		return nil
	})
	observability.StageDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	best := tr.primary()
	if err != nil && (best == nil || ctx.Err() != nil) {
		return nil, fmt.Errorf("sample frames: %w", err)
	}
	if best == nil {
		return nil, fmt.Errorf("no face in %d frames: %w", n, models.ErrEmptyInput)
	}
	if err != nil {
		slog.Warn("frame sampling ended early", "video", videoPath, "frames", n, "error", err)
	}

	return a.capture(ctx, best.best, true)
}

// AnalyzeImage embeds the largest face of an encoded image. The crop is
// uploaded only when store is set.
func (a *Analyzer) AnalyzeImage(ctx context.Context, data []byte, store bool) (*models.FaceCapture, error) {
	img, err := DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, models.ErrValidation)
	}
	faces, err := a.det.Detect(img)
	if err != nil {
		return nil, err
	}
	if len(faces) == 0 {
		return nil, fmt.Errorf("no face detected: %w", models.ErrEmptyInput)
	}
	largest := faces[0]
	for _, f := range faces[1:] {
		if f.Area() > largest.Area() {
			largest = f
		}
	}
	if min(largest.Box.Dx(), largest.Box.Dy()) < a.cfg.MinFaceSize {
		slog.Warn("face is small, consider a higher resolution image", "width", largest.Box.Dx(), "height", largest.Box.Dy())
	}
	return a.capture(ctx, a.view(img, largest.Box, 0), store)
}

func (a *Analyzer) bigEnough(faces []Face) []Face {
	kept := faces[:0]
	for _, f := range faces {
		if min(f.Box.Dx(), f.Box.Dy()) >= a.cfg.MinFaceSize {
			kept = append(kept, f)
		}
	}
	return kept
}

func (a *Analyzer) view(img image.Image, box image.Rectangle, frame int) *candidate {
	padded := crop(img, padBox(box, img.Bounds(), a.cfg.CropMargin))
	return &candidate{
		face:      crop(img, box),
		padded:    padded,
		sharpness: sharpness(padded),
		frame:     frame,
	}
}

func (a *Analyzer) capture(ctx context.Context, c *candidate, store bool) (*models.FaceCapture, error) {
	if c == nil {
		return nil, errors.New("no face view")
	}
	vec, err := a.emb.Embed(c.face)
	if err != nil {
		return nil, err
	}

	out := upscaleSmall(c.padded, minCropSide)
	fc := &models.FaceCapture{
		Embedding: vec,
		Width:     out.Bounds().Dx(),
		Height:    out.Bounds().Dy(),
		Sharpness: c.sharpness,
	}
	if !store || a.crops == nil {
		return fc, nil
	}

	data, err := encodeJPEG(out, cropQuality)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("faces/%s/%s.jpg", time.Now().UTC().Format(cropKeyTimeLayout), uuid.NewString())
	if err := a.crops.PutObject(ctx, key, data, cropContentType); err != nil {
		slog.Warn("store face crop", "key", key, "error", err)
		return fc, nil
	}
	fc.CropKey = key
	return fc, nil
}
