package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"truemarket-api/internal/clock"
	"truemarket-api/internal/model"
	"truemarket-api/internal/repository"
	"truemarket-api/pkg/uid"
)

// TaskConfig holds tuning for the history task coordinator.
type TaskConfig struct {
	// HistoryExpiration is how long a price snapshot stays current before
	// a new refresh task is requested.
	HistoryExpiration time.Duration

	// CompletedRetention is how long COMPLETED tasks are kept before
	// being purged.
	CompletedRetention time.Duration
}

// DefaultTaskConfig returns default task configuration.
func DefaultTaskConfig() TaskConfig {
	return TaskConfig{
		HistoryExpiration:  30 * time.Second,
		CompletedRetention: 24 * time.Hour,
	}
}

// TaskService coordinates price refresh work between the ingestion side
// and the external workers that pull tasks and report Steam prices back.
type TaskService struct {
	taskRepo    repository.TaskRepository
	historyRepo repository.PriceHistoryRepository
	converter   *CurrencyConverter
	clock       clock.Clock
	config      TaskConfig
}

// NewTaskService creates a task service.
func NewTaskService(
	taskRepo repository.TaskRepository,
	historyRepo repository.PriceHistoryRepository,
	converter *CurrencyConverter,
	clk clock.Clock,
	config TaskConfig,
) *TaskService {
	if config.HistoryExpiration == 0 {
		config.HistoryExpiration = 30 * time.Second
	}
	if config.CompletedRetention == 0 {
		config.CompletedRetention = 24 * time.Hour
	}
	return &TaskService{
		taskRepo:    taskRepo,
		historyRepo: historyRepo,
		converter:   converter,
		clock:       clk,
		config:      config,
	}
}

// NeedsRefresh reports whether the latest price snapshot for the pair is
// missing or older than the expiration window. A snapshot exactly at the
// window boundary is still current.
func (s *TaskService) NeedsRefresh(ctx context.Context, skinName string, wear model.Wear) (bool, error) {
	latest, err := s.historyRepo.FindLatest(ctx, skinName, wear)
	if err != nil {
		return false, fmt.Errorf("find latest history: %w", err)
	}
	if latest == nil {
		return true, nil
	}
	return s.clock.Now().After(latest.RecordedAt.Add(s.config.HistoryExpiration)), nil
}

// RequestRefresh creates a WAITING task for the pair unless one already
// exists. Returns true when a new task was created. The existence check
// is advisory; the insert itself is conditional, so racing callers end up
// with exactly one WAITING task.
func (s *TaskService) RequestRefresh(ctx context.Context, skinName string, wear model.Wear) (bool, error) {
	exists, err := s.taskRepo.ExistsWaiting(ctx, skinName, wear)
	if err != nil {
		return false, fmt.Errorf("check waiting task: %w", err)
	}
	if exists {
		return false, nil
	}

	task := model.NewWaitingTask(uid.New(), skinName, wear, s.clock.Now())
	created, err := s.taskRepo.CreateWaiting(ctx, task)
	if err != nil {
		return false, fmt.Errorf("create waiting task: %w", err)
	}
	return created, nil
}

// ListPending returns all WAITING tasks oldest first, so workers drain
// the queue in arrival order.
func (s *TaskService) ListPending(ctx context.Context) ([]model.HistoryUpdateTask, error) {
	return s.taskRepo.FindWaitingFIFO(ctx)
}

// PriceReport is a worker's answer to a refresh task. Prices are minor
// units of Currency; the optional reference prices may be absent.
type PriceReport struct {
	SkinName            string `json:"skin_name"`
	Wear                string `json:"wear"`
	AveragePrice        int64  `json:"average_price"`
	LastSalePrice       *int64 `json:"last_sale_price,omitempty"`
	LowestBuyOrderPrice *int64 `json:"lowest_buy_order_price,omitempty"`
	Currency            string `json:"currency,omitempty"`
}

// Complete records a worker's price report against a task: converts the
// prices to USD, appends a history snapshot, and marks the task done.
// Returns model.ErrTaskNotFound for unknown IDs and model.ErrTaskMismatch
// when the report names a different pair than the task.
func (s *TaskService) Complete(ctx context.Context, taskID string, report PriceReport) (*model.PriceHistory, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("find task: %w", err)
	}
	if task == nil || task.Status != model.TaskWaiting {
		return nil, model.ErrTaskNotFound
	}

	wear, err := model.ParseWear(report.Wear)
	if err != nil {
		return nil, err
	}
	if task.SkinName != report.SkinName || task.Wear != wear {
		return nil, fmt.Errorf("%w: task is for %s (%s)", model.ErrTaskMismatch, task.SkinName, task.Wear)
	}

	avg, err := s.converter.ToUSD(ctx, report.AveragePrice, report.Currency)
	if err != nil {
		return nil, fmt.Errorf("convert average price: %w", err)
	}
	lastSale, err := s.convertOptional(ctx, report.LastSalePrice, report.Currency)
	if err != nil {
		return nil, fmt.Errorf("convert last sale price: %w", err)
	}
	lowestOrder, err := s.convertOptional(ctx, report.LowestBuyOrderPrice, report.Currency)
	if err != nil {
		return nil, fmt.Errorf("convert lowest buy order price: %w", err)
	}

	now := s.clock.Now()
	history := model.NewPriceHistory(uid.New(), task.SkinName, task.Wear, avg, lastSale, lowestOrder, now)
	if err := s.historyRepo.Save(ctx, history); err != nil {
		return nil, fmt.Errorf("save history: %w", err)
	}

	if err := s.taskRepo.Complete(ctx, task.ID, now); err != nil {
		return nil, fmt.Errorf("complete task: %w", err)
	}

	log.Printf("[TaskService] Completed task %s for %s (%s), avg price %d", task.ID, task.SkinName, task.Wear, avg)
	return &history, nil
}

func (s *TaskService) convertOptional(ctx context.Context, amount *int64, currency string) (*int64, error) {
	if amount == nil {
		return nil, nil
	}
	converted, err := s.converter.ToUSD(ctx, *amount, currency)
	if err != nil {
		return nil, err
	}
	return &converted, nil
}

// PurgeCompleted deletes COMPLETED tasks older than the retention window.
func (s *TaskService) PurgeCompleted(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-s.config.CompletedRetention)
	return s.taskRepo.DeleteCompletedBefore(ctx, cutoff)
}
