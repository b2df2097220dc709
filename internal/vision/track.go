package vision

import "image"

// candidate is the sharpest view of a track seen so far.
type candidate struct {
	face      *image.RGBA // tight box, fed to the embedder
	padded    *image.RGBA // box plus margin, stored as the crop
	sharpness float64
	frame     int
}

// track follows one face across sampled frames by box overlap.
type track struct {
	id        int
	box       image.Rectangle
	hits      int
	totalArea int
	lastFrame int
	best      *candidate
}

func (t *track) offer(c *candidate) {
	if t.best == nil || c.sharpness > t.best.sharpness {
		t.best = c
	}
}

// tracker is a minimal IoU tracker. A track that goes unmatched for more
// than maxGap frames is retired and never matched again.
type tracker struct {
	tracks []*track
	minIoU float64
	maxGap int
	nextID int
}

func newTracker(minIoU float64, maxGap int) *tracker {
	return &tracker{minIoU: minIoU, maxGap: maxGap}
}

// update assigns each face to a live track or opens a new one. The result
// is parallel to faces.
func (t *tracker) update(frame int, faces []Face) []*track {
	out := make([]*track, len(faces))
	taken := make(map[*track]bool)

	for i, f := range faces {
		var match *track
		bestIoU := t.minIoU
		for _, tr := range t.tracks {
			if taken[tr] || frame-tr.lastFrame > t.maxGap+1 {
				continue
			}
			if v := iou(f.Box, tr.box); v > bestIoU {
				bestIoU = v
				match = tr
			}
		}
		if match == nil {
			t.nextID++
			match = &track{id: t.nextID}
			t.tracks = append(t.tracks, match)
		}
		match.box = f.Box
		match.hits++
		match.totalArea += f.Area()
		match.lastFrame = frame
		taken[match] = true
		out[i] = match
	}
	return out
}

// primary is the track seen in most frames; ties go to the larger faces,
// then to the earlier track.
func (t *tracker) primary() *track {
	var best *track
	for _, tr := range t.tracks {
		if tr.best == nil {
			continue
		}
		switch {
		case best == nil,
			tr.hits > best.hits,
			tr.hits == best.hits && tr.totalArea > best.totalArea:
			best = tr
		}
	}
	return best
}
