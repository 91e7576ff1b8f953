package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"truemarket-api/internal/clock"
	"truemarket-api/internal/model"
	"truemarket-api/internal/repository"
)

// ReaperService marks skins that stopped appearing in scrapes as sold.
// A listing that vanishes from the market was almost certainly bought.
type ReaperService struct {
	skinRepo repository.SkinRepository
	clock    clock.Clock

	// staleAfter is how long a skin may go unseen before it is presumed sold.
	staleAfter time.Duration
}

// NewReaperService creates a reaper service.
func NewReaperService(skinRepo repository.SkinRepository, clk clock.Clock, staleAfter time.Duration) *ReaperService {
	if staleAfter == 0 {
		staleAfter = 2 * time.Hour
	}
	return &ReaperService{
		skinRepo:   skinRepo,
		clock:      clk,
		staleAfter: staleAfter,
	}
}

// RunOnce flips every AVAILABLE skin unseen past the threshold to SOLD
// and returns how many were flipped.
func (s *ReaperService) RunOnce(ctx context.Context) (int64, error) {
	now := s.clock.Now()
	cutoff := now.Add(-s.staleAfter)

	stale, err := s.skinRepo.FindStale(ctx, model.StatusAvailable, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find stale skins: %w", err)
	}

	var flipped int64
	for _, skin := range stale {
		skin.Status = model.StatusSold
		skin.UpdatedAt = now

		if err := s.skinRepo.Upsert(ctx, skin); err != nil {
			log.Printf("[ReaperService] Failed to mark skin %s sold: %v", skin.ID, err)
			continue
		}
		flipped++
	}

	if flipped > 0 {
		log.Printf("[ReaperService] Marked %d stale skins as sold", flipped)
	}
	return flipped, nil
}
