// Package media wraps the ffmpeg binary: frame sampling for face detection
// and audio extraction for transcription.
package media

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"time"
)

const maxFrameBytes = 10 * 1024 * 1024

// FrameFunc receives each sampled JPEG frame with its position in the video.
type FrameFunc func(index int, at time.Duration, jpeg []byte) error

type FrameOptions struct {
	Interval  time.Duration
	Width     int
	MaxFrames int
}

// SampleFrames decodes videoPath and hands one JPEG per Interval to fn. An
// error from fn is logged and sampling goes on.
func SampleFrames(ctx context.Context, videoPath string, opts FrameOptions, fn FrameFunc) (int, error) {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Width <= 0 {
		opts.Width = 640
	}

	fps := 1 / opts.Interval.Seconds()
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=%s,scale=%d:-2", strconv.FormatFloat(fps, 'f', -1, 64), opts.Width),
	}
	if opts.MaxFrames > 0 {
		args = append(args, "-frames:v", strconv.Itoa(opts.MaxFrames))
	}
	args = append(args,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "3",
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start ffmpeg: %w", err)
	}

	n, readErr := readJPEGFrames(stdout, func(i int, frame []byte) {
		at := time.Duration(i) * opts.Interval
		if err := fn(i, at, frame); err != nil {
			slog.Warn("frame handler failed", "video", videoPath, "frame", i, "error", err)
		}
	})
	if readErr != nil {
		_ = cmd.Process.Kill()
	}
	waitErr := cmd.Wait()

	switch {
	case ctx.Err() != nil:
		return n, ctx.Err()
	case readErr != nil:
		return n, fmt.Errorf("read frames: %w", readErr)
	case waitErr != nil:
		return n, fmt.Errorf("ffmpeg: %w: %s", waitErr, bytes.TrimSpace(stderr.Bytes()))
	}
	return n, nil
}

// ExtractAudio writes the audio track of videoPath to outPath as 16 kHz mono
// WAV.
func ExtractAudio(ctx context.Context, videoPath, outPath string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", videoPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("extract audio: %w: %s", err, bytes.TrimSpace(out))
	}
	return nil
}

// readJPEGFrames splits a stream of concatenated JPEG images.
func readJPEGFrames(r io.Reader, fn func(index int, frame []byte)) (int, error) {
	reader := bufio.NewReaderSize(r, 512*1024)
	n := 0
	for {
		if err := findJPEGStart(reader); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}
		frame, err := readUntilJPEGEnd(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				// truncated trailing frame
				return n, nil
			}
			return n, err
		}
		fn(n, frame)
		n++
	}
}

func findJPEGStart(r *bufio.Reader) error {
	prev := byte(0)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if prev == 0xFF && b == 0xD8 {
			return nil
		}
		prev = b
	}
}

func readUntilJPEGEnd(r *bufio.Reader) ([]byte, error) {
	frame := []byte{0xFF, 0xD8}
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		frame = append(frame, b)
		n := len(frame)
		if n >= 4 && frame[n-2] == 0xFF && b == 0xD9 {
			return frame, nil
		}
		if n > maxFrameBytes {
			return nil, fmt.Errorf("jpeg frame exceeds %d bytes", maxFrameBytes)
		}
	}
}
