package api

import (
	"context"

	"digitflow/internal/corrections"
)

// CorrectionReader abstracts correction persistence interactions needed for
// API queries.
type CorrectionReader interface {
	List(ctx context.Context, filter corrections.Filter) ([]corrections.Correction, error)
	Stats(ctx context.Context) (corrections.Stats, error)
}

// CorrectionService exposes read-only correction operations returning API DTOs.
type CorrectionService struct {
	store CorrectionReader
}

// NewCorrectionService constructs a CorrectionService around the provided reader.
func NewCorrectionService(store CorrectionReader) *CorrectionService {
	if store == nil {
		return nil
	}
	return &CorrectionService{store: store}
}

// List returns corrections matching filter.
func (s *CorrectionService) List(ctx context.Context, filter corrections.Filter) ([]Correction, error) {
	if s == nil || s.store == nil {
		return []Correction{}, nil
	}
	items, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return FromCorrections(items), nil
}

// Stats returns correction counts. A nil service reports Available=false.
func (s *CorrectionService) Stats(ctx context.Context) (CorrectionStats, error) {
	if s == nil || s.store == nil {
		return CorrectionStats{}, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return CorrectionStats{}, err
	}
	return FromStats(stats), nil
}
