package vision

import (
	"fmt"
	"image"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	embInputSize = 112
	// EmbeddingDim is the length of ArcFace w600k_r50 vectors.
	EmbeddingDim = 512
)

// Embedder wraps the ArcFace model. Output vectors are L2-normalized.
type Embedder struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func NewEmbedder(modelPath string) (*Embedder, error) {
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, embInputSize, embInputSize))
	if err != nil {
		return nil, fmt.Errorf("create embedder input: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, EmbeddingDim))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("create embedder output: %w", err)
	}
	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"}, []string{"683"},
		[]ort.Value{input}, []ort.Value{output},
		nil,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}
	return &Embedder{session: session, input: input, output: output}, nil
}

// Embed computes the embedding of a face crop.
func (e *Embedder) Embed(face image.Image) ([]float32, error) {
	data := toCHW(face, embInputSize, embInputSize, 127.5, 127.5)

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.input.GetData(), data)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedding: %w", err)
	}
	vec := make([]float32, EmbeddingDim)
	copy(vec, e.output.GetData())
	l2Normalize(vec)
	return vec, nil
}

func (e *Embedder) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.input != nil {
		e.input.Destroy()
	}
	if e.output != nil {
		e.output.Destroy()
	}
}

func l2Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
