package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"truemarket-api/internal/clock"
	"truemarket-api/internal/model"
	"truemarket-api/internal/repository"
	"truemarket-api/pkg/uid"
)

// IngestService turns raw market listings into stored skins and queues
// price refresh work for them.
type IngestService struct {
	skinRepo  repository.SkinRepository
	convRepo  repository.ConversionRepository
	converter *CurrencyConverter
	tasks     *TaskService
	clock     clock.Clock

	// retryInitialDelay schedules the first retry of a failed conversion.
	retryInitialDelay time.Duration
}

// NewIngestService creates an ingestion service.
func NewIngestService(
	skinRepo repository.SkinRepository,
	convRepo repository.ConversionRepository,
	converter *CurrencyConverter,
	tasks *TaskService,
	clk clock.Clock,
	retryInitialDelay time.Duration,
) *IngestService {
	if retryInitialDelay == 0 {
		retryInitialDelay = 5 * time.Minute
	}
	return &IngestService{
		skinRepo:          skinRepo,
		convRepo:          convRepo,
		converter:         converter,
		tasks:             tasks,
		clock:             clk,
		retryInitialDelay: retryInitialDelay,
	}
}

// Ingest processes one listing: converts its price to USD, upserts the
// skin, and requests a price refresh when the latest snapshot is expired.
// Every sighting of a known skin is written again so last_seen_at acts as
// a liveness heartbeat.
//
// When the price cannot be converted because no rate is available, the
// listing is parked as a pending conversion for the retry sweeper and the
// conversion error is returned.
func (s *IngestService) Ingest(ctx context.Context, listing model.Listing) (model.Skin, error) {
	return s.ingest(ctx, listing, true)
}

// Replay reprocesses a previously parked listing. Conversion failures are
// returned to the caller for backoff bookkeeping instead of being parked
// a second time.
func (s *IngestService) Replay(ctx context.Context, listing model.Listing) (model.Skin, error) {
	return s.ingest(ctx, listing, false)
}

func (s *IngestService) ingest(ctx context.Context, listing model.Listing, parkOnRateFailure bool) (model.Skin, error) {
	now := s.clock.Now()

	var priceUSD *int64
	if listing.Price != nil {
		converted, err := s.converter.ToUSD(ctx, *listing.Price, listing.Currency)
		if err != nil {
			if parkOnRateFailure && errors.Is(err, model.ErrRateUnavailable) {
				if parkErr := s.parkConversion(ctx, listing, err); parkErr != nil {
					return model.Skin{}, fmt.Errorf("park failed conversion: %w", parkErr)
				}
			}
			return model.Skin{}, err
		}
		priceUSD = &converted
	}

	skin, err := model.NewSkin(listing, priceUSD, now)
	if err != nil {
		return model.Skin{}, err
	}

	existing, err := s.skinRepo.FindByID(ctx, skin.ID)
	if err != nil {
		return model.Skin{}, fmt.Errorf("find skin: %w", err)
	}
	if existing != nil {
		skin.CreatedAt = existing.CreatedAt
	}

	if err := s.skinRepo.Upsert(ctx, skin); err != nil {
		return model.Skin{}, fmt.Errorf("upsert skin: %w", err)
	}

	needs, err := s.tasks.NeedsRefresh(ctx, skin.Name, skin.Wear)
	if err != nil {
		return model.Skin{}, err
	}
	if needs {
		if _, err := s.tasks.RequestRefresh(ctx, skin.Name, skin.Wear); err != nil {
			return model.Skin{}, err
		}
	}

	return skin, nil
}

// parkConversion serializes the listing so the retry sweeper can replay
// it once a rate is available again.
func (s *IngestService) parkConversion(ctx context.Context, listing model.Listing, cause error) error {
	payload, err := json.Marshal(listing)
	if err != nil {
		return fmt.Errorf("marshal listing: %w", err)
	}

	conv := model.NewPendingConversion(
		uid.New(),
		payload,
		*listing.Price,
		listing.Currency,
		listing.ID,
		cause.Error(),
		s.retryInitialDelay,
		s.clock.Now(),
	)

	if err := s.convRepo.Save(ctx, conv); err != nil {
		return fmt.Errorf("save pending conversion: %w", err)
	}

	log.Printf("[IngestService] Parked listing %s (%s %d): %v", listing.ID, listing.Currency, *listing.Price, cause)
	return nil
}
