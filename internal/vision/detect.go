package vision

import (
	"fmt"
	"image"
	"sort"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Face is one detection in source image coordinates.
type Face struct {
	Box   image.Rectangle
	Score float32
}

// Area is the pixel area of the box.
func (f Face) Area() int {
	return f.Box.Dx() * f.Box.Dy()
}

// Detector wraps the RetinaFace det_10g model. A session owns fixed
// input/output tensors, so Detect calls are serialized.
type Detector struct {
	mu        sync.Mutex
	session   *ort.AdvancedSession
	input     *ort.Tensor[float32]
	outputs   []*ort.Tensor[float32]
	threshold float32
	size      int
}

var detStrides = []int{8, 16, 32}

const (
	detInputSize  = 640
	detAnchors    = 2
	detNMSOverlap = 0.4
)

// det_10g output names per stride, scores then boxes.
var (
	detScoreOutputs = []string{"448", "471", "494"}
	detBoxOutputs   = []string{"451", "474", "497"}
)

func NewDetector(modelPath string, threshold float32) (*Detector, error) {
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, detInputSize, detInputSize))
	if err != nil {
		return nil, fmt.Errorf("create detector input: %w", err)
	}

	d := &Detector{input: input, threshold: threshold, size: detInputSize}

	names := make([]string, 0, 2*len(detStrides))
	values := make([]ort.Value, 0, 2*len(detStrides))
	add := func(name string, cols int64, stride int) error {
		n := int64((detInputSize / stride) * (detInputSize / stride) * detAnchors)
		t, err := ort.NewEmptyTensor[float32](ort.NewShape(n, cols))
		if err != nil {
			return fmt.Errorf("create detector output %s: %w", name, err)
		}
		d.outputs = append(d.outputs, t)
		names = append(names, name)
		values = append(values, t)
		return nil
	}
	for i, s := range detStrides {
		if err := add(detScoreOutputs[i], 1, s); err != nil {
			d.Close()
			return nil, err
		}
	}
	for i, s := range detStrides {
		if err := add(detBoxOutputs[i], 4, s); err != nil {
			d.Close()
			return nil, err
		}
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"}, names,
		[]ort.Value{input}, values,
		nil,
	)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create detector session: %w", err)
	}
	d.session = session
	return d, nil
}

// Detect returns the faces in img above the score threshold, best first.
func (d *Detector) Detect(img image.Image) ([]Face, error) {
	b := img.Bounds()
	data := toCHW(img, d.size, d.size, 127.5, 128)

	d.mu.Lock()
	defer d.mu.Unlock()

	copy(d.input.GetData(), data)
	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}
	faces := d.decode(b)
	return suppress(faces, detNMSOverlap), nil
}

// decode turns anchor offsets into boxes scaled back to bounds.
func (d *Detector) decode(bounds image.Rectangle) []Face {
	sx := float32(bounds.Dx()) / float32(d.size)
	sy := float32(bounds.Dy()) / float32(d.size)
	n := len(detStrides)

	var faces []Face
	for si, stride := range detStrides {
		scores := d.outputs[si].GetData()
		boxes := d.outputs[n+si].GetData()
		cells := d.size / stride
		st := float32(stride)

		for i, score := range scores {
			if score < d.threshold {
				continue
			}
			cell := i / detAnchors
			ax := float32(cell%cells) * st
			ay := float32(cell/cells) * st

			r := image.Rect(
				int((ax-boxes[i*4]*st)*sx),
				int((ay-boxes[i*4+1]*st)*sy),
				int((ax+boxes[i*4+2]*st)*sx),
				int((ay+boxes[i*4+3]*st)*sy),
			).Add(bounds.Min).Intersect(bounds)
			if r.Empty() {
				continue
			}
			faces = append(faces, Face{Box: r, Score: score})
		}
	}
	return faces
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.input != nil {
		d.input.Destroy()
	}
	for _, t := range d.outputs {
		t.Destroy()
	}
}

// suppress is greedy non-maximum suppression.
func suppress(faces []Face, overlap float64) []Face {
	sort.SliceStable(faces, func(i, j int) bool { return faces[i].Score > faces[j].Score })

	var kept []Face
next:
	for _, f := range faces {
		for _, k := range kept {
			if iou(f.Box, k.Box) > overlap {
				continue next
			}
		}
		kept = append(kept, f)
	}
	return kept
}

func iou(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - ia
	if union <= 0 {
		return 0
	}
	return ia / union
}
