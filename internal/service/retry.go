package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"truemarket-api/internal/clock"
	"truemarket-api/internal/model"
	"truemarket-api/internal/repository"
)

// RetryConfig holds backoff tuning for failed conversions.
type RetryConfig struct {
	// InitialDelay is the base of the exponential backoff.
	InitialDelay time.Duration

	// MaxAttempts is the attempt count at which a conversion becomes
	// permanently failed.
	MaxAttempts int
}

// DefaultRetryConfig returns default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialDelay: 5 * time.Minute,
		MaxAttempts:  10,
	}
}

// RetryResult summarizes one retry sweep.
type RetryResult struct {
	Succeeded int
	Failed    int
	Permanent int
}

// RetryService replays parked listings whose retry time has come.
type RetryService struct {
	convRepo repository.ConversionRepository
	ingest   *IngestService
	clock    clock.Clock
	config   RetryConfig
}

// NewRetryService creates a retry service.
func NewRetryService(convRepo repository.ConversionRepository, ingest *IngestService, clk clock.Clock, config RetryConfig) *RetryService {
	if config.InitialDelay == 0 {
		config.InitialDelay = 5 * time.Minute
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 10
	}
	return &RetryService{
		convRepo: convRepo,
		ingest:   ingest,
		clock:    clk,
		config:   config,
	}
}

// RunOnce replays every conversion that is due. A record that replays
// cleanly is deleted; one that fails again has its attempt count bumped
// and its next retry pushed out. Per-record failures are logged and do
// not stop the sweep.
func (s *RetryService) RunOnce(ctx context.Context) (RetryResult, error) {
	now := s.clock.Now()

	ready, err := s.convRepo.FindReady(ctx, now)
	if err != nil {
		return RetryResult{}, fmt.Errorf("find ready conversions: %w", err)
	}

	var result RetryResult
	for _, conv := range ready {
		if err := s.replay(ctx, conv); err != nil {
			s.recordFailure(ctx, conv, err, &result)
			continue
		}

		if err := s.convRepo.DeleteByID(ctx, conv.ID); err != nil {
			log.Printf("[RetryService] Failed to delete replayed conversion %s: %v", conv.ID, err)
			continue
		}
		result.Succeeded++
	}

	if len(ready) > 0 {
		log.Printf("[RetryService] Sweep done: %d succeeded, %d rescheduled, %d permanently failed",
			result.Succeeded, result.Failed, result.Permanent)
	}
	return result, nil
}

func (s *RetryService) replay(ctx context.Context, conv model.PendingConversion) error {
	var listing model.Listing
	if err := json.Unmarshal(conv.ListingJSON, &listing); err != nil {
		return fmt.Errorf("unmarshal parked listing: %w", err)
	}

	_, err := s.ingest.Replay(ctx, listing)
	return err
}

func (s *RetryService) recordFailure(ctx context.Context, conv model.PendingConversion, cause error, result *RetryResult) {
	conv.IncrementAttempt(cause.Error(), s.config.InitialDelay, s.config.MaxAttempts, s.clock.Now())

	if err := s.convRepo.Save(ctx, conv); err != nil {
		log.Printf("[RetryService] Failed to update conversion %s: %v", conv.ID, err)
		return
	}

	if conv.PermanentlyFailed {
		log.Printf("[RetryService] Conversion %s permanently failed after %d attempts: %v", conv.ID, conv.AttemptCount, cause)
		result.Permanent++
		return
	}

	log.Printf("[RetryService] Conversion %s attempt %d failed, next retry at %s: %v",
		conv.ID, conv.AttemptCount, conv.NextRetryAt.Format(time.RFC3339), cause)
	result.Failed++
}
