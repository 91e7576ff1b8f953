package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"truemarket-api/internal/model"
)

func newRetryFixture(t *testing.T) (*RetryService, *ingestFixture) {
	t.Helper()

	f := newIngestFixture(t)
	svc := NewRetryService(f.convRepo, f.svc, f.clock, DefaultRetryConfig())
	return svc, f
}

func TestRetryRoundTrip(t *testing.T) {
	retry, f := newRetryFixture(t)
	ctx := context.Background()

	// Park a listing while the feed is down.
	f.feed.fail(errors.New("connection refused"))
	if _, err := f.svc.Ingest(ctx, listingFixture()); !errors.Is(err, model.ErrRateUnavailable) {
		t.Fatal("expected rate unavailable")
	}

	// Feed recovers; the sweep replays the listing once its retry is due.
	f.feed.fail(nil)
	f.clock.Advance(6 * time.Minute)

	result, err := retry.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce error = %v", err)
	}
	if result.Succeeded != 1 || result.Failed != 0 || result.Permanent != 0 {
		t.Errorf("result = %+v, want 1 succeeded", result)
	}

	// The parked record is gone and the skin looks exactly like a direct
	// ingestion.
	count, _ := f.convRepo.Count(ctx)
	if count != 0 {
		t.Errorf("conversion count = %d, want 0", count)
	}

	skin, _ := f.skins.FindByID(ctx, "listing-1")
	if skin == nil {
		t.Fatal("skin not stored after replay")
	}
	if skin.Price == nil || *skin.Price != 8000 {
		t.Errorf("Price = %v, want 8000", skin.Price)
	}
	if skin.Currency != "USD" {
		t.Errorf("Currency = %s, want USD", skin.Currency)
	}
	if skin.Wear != model.WearFieldTested {
		t.Errorf("Wear = %s, want FIELD_TESTED", skin.Wear)
	}

	waiting, _ := f.taskRepo.FindWaitingFIFO(ctx)
	if len(waiting) != 1 {
		t.Errorf("waiting tasks = %d, want 1", len(waiting))
	}
}

func TestRetryNotDueYet(t *testing.T) {
	retry, f := newRetryFixture(t)
	ctx := context.Background()

	f.feed.fail(errors.New("connection refused"))
	if _, err := f.svc.Ingest(ctx, listingFixture()); !errors.Is(err, model.ErrRateUnavailable) {
		t.Fatal("expected rate unavailable")
	}
	f.feed.fail(nil)

	// Before the 5 minute delay the record is not swept.
	f.clock.Advance(time.Minute)
	result, err := retry.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce error = %v", err)
	}
	if result.Succeeded != 0 {
		t.Errorf("result = %+v, want nothing swept", result)
	}

	count, _ := f.convRepo.Count(ctx)
	if count != 1 {
		t.Errorf("conversion count = %d, want 1", count)
	}
}

func TestRetryBacksOffOnRepeatedFailure(t *testing.T) {
	retry, f := newRetryFixture(t)
	ctx := context.Background()

	f.feed.fail(errors.New("connection refused"))
	if _, err := f.svc.Ingest(ctx, listingFixture()); !errors.Is(err, model.ErrRateUnavailable) {
		t.Fatal("expected rate unavailable")
	}

	f.clock.Advance(6 * time.Minute)
	result, err := retry.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce error = %v", err)
	}
	if result.Failed != 1 || result.Succeeded != 0 {
		t.Errorf("result = %+v, want 1 failed", result)
	}

	parked, _ := f.convRepo.FindReady(ctx, f.clock.Now().Add(24*time.Hour))
	if len(parked) != 1 {
		t.Fatalf("parked conversions = %d, want 1", len(parked))
	}
	conv := parked[0]
	if conv.AttemptCount != 2 {
		t.Errorf("AttemptCount = %d, want 2", conv.AttemptCount)
	}
	if want := f.clock.Now().Add(10 * time.Minute); conv.NextRetryAt == nil || !conv.NextRetryAt.Equal(want) {
		t.Errorf("NextRetryAt = %v, want %v", conv.NextRetryAt, want)
	}
}

func TestRetryBecomesPermanent(t *testing.T) {
	retry, f := newRetryFixture(t)
	ctx := context.Background()

	f.feed.fail(errors.New("connection refused"))
	if _, err := f.svc.Ingest(ctx, listingFixture()); !errors.Is(err, model.ErrRateUnavailable) {
		t.Fatal("expected rate unavailable")
	}

	// Fail through every retry until the record goes terminal.
	for i := 0; i < 9; i++ {
		f.clock.Advance(24 * time.Hour)
		if _, err := retry.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce error = %v", err)
		}
	}

	failed, _ := f.convRepo.FindPermanentlyFailed(ctx)
	if len(failed) != 1 {
		t.Fatalf("permanently failed = %d, want 1", len(failed))
	}
	if failed[0].AttemptCount != 10 {
		t.Errorf("AttemptCount = %d, want 10", failed[0].AttemptCount)
	}

	// Terminal records are never swept again.
	f.clock.Advance(24 * time.Hour)
	result, err := retry.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce error = %v", err)
	}
	if result.Succeeded+result.Failed+result.Permanent != 0 {
		t.Errorf("terminal record swept: %+v", result)
	}
}
