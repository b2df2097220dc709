package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	_ "image/png"
)

// toCHW resizes img to w x h and lays it out as normalized planar RGB:
// (pixel - mean) / std.
func toCHW(img image.Image, w, h int, mean, std float32) []float32 {
	src := resize(img, w, h)
	plane := w * h
	out := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := src.PixOffset(x, y)
			i := y*w + x
			out[i] = (float32(src.Pix[off]) - mean) / std
			out[plane+i] = (float32(src.Pix[off+1]) - mean) / std
			out[2*plane+i] = (float32(src.Pix[off+2]) - mean) / std
		}
	}
	return out
}

// resize is nearest-neighbour scaling into a fresh RGBA.
func resize(img image.Image, w, h int) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if b.Empty() {
		return dst
	}
	for y := 0; y < h; y++ {
		sy := b.Min.Y + y*b.Dy()/h
		for x := 0; x < w; x++ {
			dst.Set(x, y, img.At(b.Min.X+x*b.Dx()/w, sy))
		}
	}
	return dst
}

// padBox grows box by margin of its size on every side, clipped to bounds.
func padBox(box, bounds image.Rectangle, margin float64) image.Rectangle {
	mx := int(margin * float64(box.Dx()))
	my := int(margin * float64(box.Dy()))
	return image.Rect(box.Min.X-mx, box.Min.Y-my, box.Max.X+mx, box.Max.Y+my).Intersect(bounds)
}

// crop copies r out of img into an image anchored at the origin.
func crop(img image.Image, r image.Rectangle) *image.RGBA {
	r = r.Intersect(img.Bounds())
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

// sharpness is the variance of the 4-neighbour Laplacian over the grayscale
// image. Higher is sharper.
func sharpness(img image.Image) float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0
	}
	gray := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)

	at := func(x, y int) float64 { return float64(gray.Pix[y*gray.Stride+x]) }

	var sum, sumSq float64
	n := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			v := at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1) - 4*at(x, y)
			sum += v
			sumSq += v * v
			n++
		}
	}
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}

// upscaleSmall doubles crops whose shorter side is under minSide.
func upscaleSmall(img *image.RGBA, minSide int) *image.RGBA {
	b := img.Bounds()
	if min(b.Dx(), b.Dy()) >= minSide {
		return img
	}
	return resize(img, b.Dx()*2, b.Dy()*2)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeImage reads a JPEG or PNG.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}
