package service

import (
	"context"
	"fmt"

	"github.com/your-org/recall/internal/models"
	"github.com/your-org/recall/internal/observability"
	"github.com/your-org/recall/internal/registry"
)

// IdentifyFace ranks the registry against embedding with the explicit
// identification threshold.
func (s *Service) IdentifyFace(ctx context.Context, embedding []float32) (*registry.Identification, error) {
	id, err := s.Registry.Identify(ctx, embedding, s.opts.IdentifyThreshold)
	if err != nil {
		return nil, fmt.Errorf("identify face: %w", err)
	}
	return id, nil
}

// IdentifyImage detects the largest face in an image and identifies it.
func (s *Service) IdentifyImage(ctx context.Context, image []byte) (*registry.Identification, error) {
	if s.Analyzer == nil {
		return nil, ErrUnavailable
	}
	fc, err := s.Analyzer.AnalyzeImage(ctx, image, false)
	if err != nil {
		observability.IdentifyOutcomes.WithLabelValues("no_face").Inc()
		return nil, fmt.Errorf("identify image: %w", err)
	}
	return s.IdentifyFace(ctx, fc.Embedding)
}

// EnrollFace adds a raw embedding under name.
func (s *Service) EnrollFace(ctx context.Context, embedding []float32, name string) (*models.Person, error) {
	return s.Registry.Enroll(ctx, registry.EnrollRequest{
		Embedding: embedding,
		Name:      name,
		Source:    "manual",
	})
}

// EnrollImage detects the largest face in an image, stores its crop and
// enrolls it under name.
func (s *Service) EnrollImage(ctx context.Context, image []byte, name string) (*models.Person, error) {
	if s.Analyzer == nil {
		return nil, ErrUnavailable
	}
	if models.NormalizeName(name) == "" {
		return nil, models.Invalid("enroll: name is empty")
	}
	fc, err := s.Analyzer.AnalyzeImage(ctx, image, true)
	if err != nil {
		return nil, fmt.Errorf("enroll image: %w", err)
	}
	return s.Registry.Enroll(ctx, registry.EnrollRequest{
		Embedding: fc.Embedding,
		Name:      name,
		CropKey:   fc.CropKey,
		Width:     fc.Width,
		Height:    fc.Height,
		Sharpness: fc.Sharpness,
		Source:    "manual",
	})
}
