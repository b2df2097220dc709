package media

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJPEG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}))
	return buf.Bytes()
}

func TestReadJPEGFramesSplitsStream(t *testing.T) {
	a := testJPEG(t, 16, 8, color.RGBA{R: 200, A: 255})
	b := testJPEG(t, 24, 12, color.RGBA{G: 200, A: 255})

	var stream bytes.Buffer
	stream.WriteString("garbage")
	stream.Write(a)
	stream.Write(b)

	var frames [][]byte
	n, err := readJPEGFrames(&stream, func(i int, f []byte) {
		assert.Equal(t, len(frames), i)
		frames = append(frames, f)
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)
	assert.Equal(t, a, frames[0])
	assert.Equal(t, b, frames[1])

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(frames[1]))
	require.NoError(t, err)
	assert.Equal(t, 24, cfg.Width)
}

func TestReadJPEGFramesDropsTruncatedTail(t *testing.T) {
	a := testJPEG(t, 8, 8, color.White)
	stream := append(append([]byte{}, a...), a[:len(a)/2]...)

	n, err := readJPEGFrames(bytes.NewReader(stream), func(int, []byte) {})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReadJPEGFramesEmpty(t *testing.T) {
	n, err := readJPEGFrames(strings.NewReader(""), func(int, []byte) {})
	require.NoError(t, err)
	assert.Zero(t, n)
}
