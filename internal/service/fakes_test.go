package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"truemarket-api/internal/model"

	"github.com/shopspring/decimal"
)

// fakeClock is a settable clock for deterministic tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeRateFeed serves fixed rates and can be flipped into failure mode.
type fakeRateFeed struct {
	mu    sync.Mutex
	rates map[string]decimal.Decimal
	err   error
	calls int
}

func newFakeRateFeed(rates map[string]string) *fakeRateFeed {
	parsed := make(map[string]decimal.Decimal, len(rates))
	for currency, rate := range rates {
		parsed[currency] = decimal.RequireFromString(rate)
	}
	return &fakeRateFeed{rates: parsed}
}

func (f *fakeRateFeed) FetchUSDRate(ctx context.Context, currency string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return decimal.Zero, f.err
	}
	rate, ok := f.rates[currency]
	if !ok {
		return decimal.Zero, errors.New("no such currency")
	}
	return rate, nil
}

func (f *fakeRateFeed) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeRateFeed) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// memSkinRepo is an in-memory SkinRepository.
type memSkinRepo struct {
	mu    sync.Mutex
	skins map[string]model.Skin
}

func newMemSkinRepo() *memSkinRepo {
	return &memSkinRepo{skins: make(map[string]model.Skin)}
}

func (r *memSkinRepo) Upsert(ctx context.Context, skin model.Skin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skins[skin.ID] = skin
	return nil
}

func (r *memSkinRepo) FindByID(ctx context.Context, id string) (*model.Skin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	skin, ok := r.skins[id]
	if !ok {
		return nil, nil
	}
	return &skin, nil
}

func (r *memSkinRepo) ExistsByID(ctx context.Context, id string) (bool, error) {
	skin, err := r.FindByID(ctx, id)
	return skin != nil, err
}

func (r *memSkinRepo) FindAll(ctx context.Context) ([]model.Skin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Skin, 0, len(r.skins))
	for _, skin := range r.skins {
		out = append(out, skin)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memSkinRepo) FindPage(ctx context.Context, page, limit int) ([]model.Skin, int64, error) {
	all, err := r.FindAll(ctx)
	if err != nil {
		return nil, 0, err
	}
	total := int64(len(all))
	start := (page - 1) * limit
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r *memSkinRepo) FindStale(ctx context.Context, status model.SkinStatus, before time.Time) ([]model.Skin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Skin
	for _, skin := range r.skins {
		if skin.Status == status && skin.LastSeenAt.Before(before) {
			out = append(out, skin)
		}
	}
	return out, nil
}

func (r *memSkinRepo) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.skins)), nil
}

// memHistoryRepo is an in-memory PriceHistoryRepository.
type memHistoryRepo struct {
	mu        sync.Mutex
	histories []model.PriceHistory
}

func newMemHistoryRepo() *memHistoryRepo {
	return &memHistoryRepo{}
}

func (r *memHistoryRepo) Save(ctx context.Context, h model.PriceHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.histories = append(r.histories, h)
	return nil
}

func (r *memHistoryRepo) FindLatest(ctx context.Context, skinName string, wear model.Wear) (*model.PriceHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *model.PriceHistory
	for i := range r.histories {
		h := r.histories[i]
		if h.SkinName != skinName || h.Wear != wear {
			continue
		}
		if latest == nil || h.RecordedAt.After(latest.RecordedAt) {
			latest = &h
		}
	}
	return latest, nil
}

func (r *memHistoryRepo) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.histories)), nil
}

// memTaskRepo is an in-memory TaskRepository.
type memTaskRepo struct {
	mu    sync.Mutex
	tasks []model.HistoryUpdateTask
}

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{}
}

func (r *memTaskRepo) CreateWaiting(ctx context.Context, t model.HistoryUpdateTask) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tasks {
		if existing.Status == model.TaskWaiting && existing.SkinName == t.SkinName && existing.Wear == t.Wear {
			return false, nil
		}
	}
	r.tasks = append(r.tasks, t)
	return true, nil
}

func (r *memTaskRepo) ExistsWaiting(ctx context.Context, skinName string, wear model.Wear) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		if t.Status == model.TaskWaiting && t.SkinName == skinName && t.Wear == wear {
			return true, nil
		}
	}
	return false, nil
}

func (r *memTaskRepo) FindByID(ctx context.Context, id string) (*model.HistoryUpdateTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.tasks {
		if r.tasks[i].ID == id {
			t := r.tasks[i]
			return &t, nil
		}
	}
	return nil, nil
}

func (r *memTaskRepo) FindWaitingFIFO(ctx context.Context) ([]model.HistoryUpdateTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.HistoryUpdateTask
	for _, t := range r.tasks {
		if t.Status == model.TaskWaiting {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memTaskRepo) Complete(ctx context.Context, id string, finishedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.tasks {
		if r.tasks[i].ID == id {
			r.tasks[i].Complete(finishedAt)
			return nil
		}
	}
	return model.ErrTaskNotFound
}

func (r *memTaskRepo) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.tasks[:0]
	var deleted int64
	for _, t := range r.tasks {
		if t.Status == model.TaskCompleted && t.FinishedAt != nil && t.FinishedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, t)
	}
	r.tasks = kept
	return deleted, nil
}

func (r *memTaskRepo) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.tasks)), nil
}

// memConversionRepo is an in-memory ConversionRepository.
type memConversionRepo struct {
	mu          sync.Mutex
	conversions map[string]model.PendingConversion
}

func newMemConversionRepo() *memConversionRepo {
	return &memConversionRepo{conversions: make(map[string]model.PendingConversion)}
}

func (r *memConversionRepo) Save(ctx context.Context, c model.PendingConversion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversions[c.ID] = c
	return nil
}

func (r *memConversionRepo) FindReady(ctx context.Context, now time.Time) ([]model.PendingConversion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.PendingConversion
	for _, c := range r.conversions {
		if c.PermanentlyFailed || c.NextRetryAt == nil {
			continue
		}
		if !c.NextRetryAt.After(now) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memConversionRepo) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conversions, id)
	return nil
}

func (r *memConversionRepo) FindPermanentlyFailed(ctx context.Context) ([]model.PendingConversion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.PendingConversion
	for _, c := range r.conversions {
		if c.PermanentlyFailed {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memConversionRepo) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.conversions)), nil
}
