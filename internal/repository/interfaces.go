package repository

import (
	"context"
	"time"

	"truemarket-api/internal/model"
)

// SkinRepository defines skin data access methods.
type SkinRepository interface {
	// Upsert writes the full skin record. A sighting of a known skin is
	// still a write: updated_at and last_seen_at are the heartbeat.
	Upsert(ctx context.Context, skin model.Skin) error

	// FindByID retrieves a skin by its source-assigned ID. Returns
	// (nil, nil) when absent.
	FindByID(ctx context.Context, id string) (*model.Skin, error)

	// ExistsByID checks whether a skin is already known.
	ExistsByID(ctx context.Context, id string) (bool, error)

	// FindAll returns every skin.
	FindAll(ctx context.Context) ([]model.Skin, error)

	// FindPage returns one page of skins ordered by updated_at descending.
	FindPage(ctx context.Context, page, limit int) ([]model.Skin, int64, error)

	// FindStale returns skins in the given status last seen before the cutoff.
	FindStale(ctx context.Context, status model.SkinStatus, before time.Time) ([]model.Skin, error)

	// Count returns the number of stored skins.
	Count(ctx context.Context) (int64, error)
}

// PriceHistoryRepository defines price history data access methods.
// Records are append-only.
type PriceHistoryRepository interface {
	// Save appends a price history snapshot.
	Save(ctx context.Context, h model.PriceHistory) error

	// FindLatest returns the newest snapshot for a (skin name, wear) pair
	// by recorded_at descending, or (nil, nil) when none exists.
	FindLatest(ctx context.Context, skinName string, wear model.Wear) (*model.PriceHistory, error)

	// Count returns the number of stored snapshots.
	Count(ctx context.Context) (int64, error)
}

// TaskRepository defines history update task data access methods.
type TaskRepository interface {
	// CreateWaiting inserts a WAITING task unless one already exists for
	// the same (skin name, wear) pair. The check and the insert are one
	// conditional statement against the store, so concurrent callers
	// cannot both create one. Returns false when a task already existed.
	CreateWaiting(ctx context.Context, t model.HistoryUpdateTask) (bool, error)

	// ExistsWaiting checks for a WAITING task for the pair.
	ExistsWaiting(ctx context.Context, skinName string, wear model.Wear) (bool, error)

	// FindByID retrieves a task, or (nil, nil) when absent.
	FindByID(ctx context.Context, id string) (*model.HistoryUpdateTask, error)

	// FindWaitingFIFO returns all WAITING tasks by created_at ascending.
	FindWaitingFIFO(ctx context.Context) ([]model.HistoryUpdateTask, error)

	// Complete marks a task COMPLETED with the given finish time.
	Complete(ctx context.Context, id string, finishedAt time.Time) error

	// DeleteCompletedBefore deletes COMPLETED tasks finished before the
	// cutoff and returns how many were removed.
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Count returns the number of stored tasks.
	Count(ctx context.Context) (int64, error)
}

// ConversionRepository defines pending conversion data access methods.
type ConversionRepository interface {
	// Save inserts or updates a pending conversion by ID.
	Save(ctx context.Context, c model.PendingConversion) error

	// FindReady returns conversions due for retry: next_retry_at <= now
	// and not permanently failed.
	FindReady(ctx context.Context, now time.Time) ([]model.PendingConversion, error)

	// DeleteByID removes a conversion after a successful retry.
	DeleteByID(ctx context.Context, id string) error

	// FindPermanentlyFailed returns terminal records kept for operators.
	FindPermanentlyFailed(ctx context.Context) ([]model.PendingConversion, error)

	// Count returns the number of stored conversions.
	Count(ctx context.Context) (int64, error)
}

// Store bundles the four repositories of one backing database.
type Store interface {
	Skins() SkinRepository
	PriceHistories() PriceHistoryRepository
	Tasks() TaskRepository
	Conversions() ConversionRepository

	// Close closes the underlying connection.
	Close() error
}
