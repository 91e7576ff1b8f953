package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"truemarket-api/internal/model"
)

type ingestFixture struct {
	svc      *IngestService
	tasks    *TaskService
	skins    *memSkinRepo
	taskRepo *memTaskRepo
	convRepo *memConversionRepo
	feed     *fakeRateFeed
	clock    *fakeClock
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()

	clk := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	skins := newMemSkinRepo()
	taskRepo := newMemTaskRepo()
	historyRepo := newMemHistoryRepo()
	convRepo := newMemConversionRepo()
	feed := newFakeRateFeed(map[string]string{"BRL": "0.20"})

	converter := NewCurrencyConverter(feed, clk, 24*time.Hour)
	tasks := NewTaskService(taskRepo, historyRepo, converter, clk, DefaultTaskConfig())
	svc := NewIngestService(skins, convRepo, converter, tasks, clk, 5*time.Minute)

	return &ingestFixture{
		svc:      svc,
		tasks:    tasks,
		skins:    skins,
		taskRepo: taskRepo,
		convRepo: convRepo,
		feed:     feed,
		clock:    clk,
	}
}

func listingFixture() model.Listing {
	price := int64(40000) // BRL
	return model.Listing{
		ID:       "listing-1",
		Name:     "AK-47 | Redline (Field-Tested)",
		Price:    &price,
		Currency: "BRL",
		Store:    "skin.market.bitskins",
		Link:     "https://bitskins.com/item/listing-1",
	}
}

func TestIngestStoresSkinAndQueuesTask(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	skin, err := f.svc.Ingest(ctx, listingFixture())
	if err != nil {
		t.Fatalf("Ingest error = %v", err)
	}

	if skin.Wear != model.WearFieldTested {
		t.Errorf("Wear = %s, want FIELD_TESTED", skin.Wear)
	}
	if skin.Status != model.StatusAvailable {
		t.Errorf("Status = %s, want AVAILABLE", skin.Status)
	}
	if skin.Price == nil || *skin.Price != 8000 {
		t.Errorf("Price = %v, want 8000 USD cents", skin.Price)
	}
	if skin.Currency != "USD" {
		t.Errorf("Currency = %s, want USD", skin.Currency)
	}
	if skin.MarketSource != model.SourceBitskins {
		t.Errorf("MarketSource = %s, want BITSKINS", skin.MarketSource)
	}

	stored, _ := f.skins.FindByID(ctx, "listing-1")
	if stored == nil {
		t.Fatal("skin not stored")
	}

	waiting, _ := f.taskRepo.FindWaitingFIFO(ctx)
	if len(waiting) != 1 {
		t.Fatalf("waiting tasks = %d, want 1", len(waiting))
	}
	if waiting[0].SkinName != "AK-47 | Redline (Field-Tested)" || waiting[0].Wear != model.WearFieldTested {
		t.Errorf("task = %s (%s)", waiting[0].SkinName, waiting[0].Wear)
	}
}

func TestIngestHeartbeatUpsert(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	first, err := f.svc.Ingest(ctx, listingFixture())
	if err != nil {
		t.Fatalf("Ingest error = %v", err)
	}

	f.clock.Advance(10 * time.Minute)
	second, err := f.svc.Ingest(ctx, listingFixture())
	if err != nil {
		t.Fatalf("second Ingest error = %v", err)
	}

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed on re-ingest: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if !second.LastSeenAt.After(first.LastSeenAt) {
		t.Errorf("LastSeenAt not advanced: %v -> %v", first.LastSeenAt, second.LastSeenAt)
	}

	count, _ := f.skins.Count(ctx)
	if count != 1 {
		t.Errorf("skin count = %d, want 1", count)
	}
}

func TestIngestNoPriceSkipsConversion(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	listing := listingFixture()
	listing.Price = nil
	listing.Currency = ""

	skin, err := f.svc.Ingest(ctx, listing)
	if err != nil {
		t.Fatalf("Ingest error = %v", err)
	}
	if skin.Price != nil {
		t.Errorf("Price = %v, want nil", skin.Price)
	}
	if skin.Currency != "" {
		t.Errorf("Currency = %q, want empty", skin.Currency)
	}
	if f.feed.callCount() != 0 {
		t.Errorf("feed called %d times, want 0", f.feed.callCount())
	}
}

func TestIngestParksOnRateUnavailable(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	f.feed.fail(errors.New("connection refused"))

	_, err := f.svc.Ingest(ctx, listingFixture())
	if !errors.Is(err, model.ErrRateUnavailable) {
		t.Fatalf("Ingest error = %v, want ErrRateUnavailable", err)
	}

	// The skin is not stored, but the listing is parked for retry.
	count, _ := f.skins.Count(ctx)
	if count != 0 {
		t.Errorf("skin count = %d, want 0", count)
	}

	parked, _ := f.convRepo.FindReady(ctx, f.clock.Now().Add(time.Hour))
	if len(parked) != 1 {
		t.Fatalf("parked conversions = %d, want 1", len(parked))
	}
	conv := parked[0]
	if conv.OriginalPrice != 40000 || conv.Currency != "BRL" || conv.SkinID != "listing-1" {
		t.Errorf("parked conversion = %+v", conv)
	}
	if conv.AttemptCount != 1 {
		t.Errorf("AttemptCount = %d, want 1", conv.AttemptCount)
	}
	if want := f.clock.Now().Add(5 * time.Minute); conv.NextRetryAt == nil || !conv.NextRetryAt.Equal(want) {
		t.Errorf("NextRetryAt = %v, want %v", conv.NextRetryAt, want)
	}
}

func TestIngestRejectsBadWear(t *testing.T) {
	f := newIngestFixture(t)

	listing := listingFixture()
	listing.Name = "AK-47 | Redline"

	_, err := f.svc.Ingest(context.Background(), listing)
	if !errors.Is(err, model.ErrNoWearLabel) {
		t.Errorf("Ingest error = %v, want ErrNoWearLabel", err)
	}
}
