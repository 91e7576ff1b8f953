package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"truemarket-api/internal/model"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

// MySQLStore implements Store using MySQL.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore connects to MySQL using the given DSN.
// The DSN must include parseTime=true so DATETIME columns scan to time.Time.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	if err := createMySQLTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[MySQLStore] Initialized")
	return &MySQLStore{db: db}, nil
}

func createMySQLTables(db *sql.DB) error {
	// MySQL has no partial indexes; the generated waiting_key column is
	// NULL for non-WAITING rows, and NULLs never collide in a unique key.
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS skins (
			id VARCHAR(128) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			asset_id VARCHAR(128),
			float_value DOUBLE,
			wear VARCHAR(32) NOT NULL,
			paint_seed INT,
			paint_index INT,
			stickers_json TEXT,
			price BIGINT,
			currency VARCHAR(8),
			market_source VARCHAR(32),
			link TEXT,
			status VARCHAR(16) NOT NULL,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL,
			last_seen_at DATETIME(6) NOT NULL,
			INDEX idx_skins_status_last_seen (status, last_seen_at),
			INDEX idx_skins_name_wear (name, wear)
		)`,
		`CREATE TABLE IF NOT EXISTS price_histories (
			id VARCHAR(64) PRIMARY KEY,
			skin_name VARCHAR(255) NOT NULL,
			wear VARCHAR(32) NOT NULL,
			average_price BIGINT NOT NULL,
			last_sale_price BIGINT,
			lowest_buy_order_price BIGINT,
			recorded_at DATETIME(6) NOT NULL,
			created_at DATETIME(6) NOT NULL,
			INDEX idx_histories_pair_recorded (skin_name, wear, recorded_at)
		)`,
		`CREATE TABLE IF NOT EXISTS history_update_tasks (
			id VARCHAR(64) PRIMARY KEY,
			skin_name VARCHAR(255) NOT NULL,
			wear VARCHAR(32) NOT NULL,
			status VARCHAR(16) NOT NULL,
			created_at DATETIME(6) NOT NULL,
			finished_at DATETIME(6),
			waiting_key VARCHAR(300) GENERATED ALWAYS AS
				(IF(status = 'WAITING', CONCAT(skin_name, '|', wear), NULL)) STORED,
			UNIQUE KEY uq_tasks_waiting (waiting_key),
			INDEX idx_tasks_status_created (status, created_at),
			INDEX idx_tasks_status_finished (status, finished_at)
		)`,
		`CREATE TABLE IF NOT EXISTS pending_conversions (
			id VARCHAR(64) PRIMARY KEY,
			listing_json TEXT NOT NULL,
			original_price BIGINT NOT NULL,
			currency VARCHAR(8) NOT NULL,
			skin_id VARCHAR(128) NOT NULL,
			attempt_count INT NOT NULL,
			last_error TEXT,
			created_at DATETIME(6) NOT NULL,
			next_retry_at DATETIME(6),
			permanently_failed BOOLEAN NOT NULL DEFAULT FALSE,
			INDEX idx_conversions_retry (permanently_failed, next_retry_at)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Skins returns the skin repository.
func (s *MySQLStore) Skins() SkinRepository { return (*mysqlSkinRepo)(s) }

// PriceHistories returns the price history repository.
func (s *MySQLStore) PriceHistories() PriceHistoryRepository { return (*mysqlHistoryRepo)(s) }

// Tasks returns the task repository.
func (s *MySQLStore) Tasks() TaskRepository { return (*mysqlTaskRepo)(s) }

// Conversions returns the pending conversion repository.
func (s *MySQLStore) Conversions() ConversionRepository { return (*mysqlConversionRepo)(s) }

// Close closes the database connection.
func (s *MySQLStore) Close() error { return s.db.Close() }

type mysqlSkinRepo MySQLStore

func (r *mysqlSkinRepo) Upsert(ctx context.Context, skin model.Skin) error {
	query := `
		INSERT INTO skins (` + skinColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name),
			asset_id = VALUES(asset_id),
			float_value = VALUES(float_value),
			wear = VALUES(wear),
			paint_seed = VALUES(paint_seed),
			paint_index = VALUES(paint_index),
			stickers_json = VALUES(stickers_json),
			price = VALUES(price),
			currency = VALUES(currency),
			market_source = VALUES(market_source),
			link = VALUES(link),
			status = VALUES(status),
			updated_at = VALUES(updated_at),
			last_seen_at = VALUES(last_seen_at)`

	args, err := skinArgs(skin)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert skin: %w", err)
	}
	return nil
}

func (r *mysqlSkinRepo) FindByID(ctx context.Context, id string) (*model.Skin, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+skinColumns+` FROM skins WHERE id = ?`, id)
	skin, err := scanSkin(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get skin: %w", err)
	}
	return skin, nil
}

func (r *mysqlSkinRepo) ExistsByID(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM skins WHERE id = ?)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check skin existence: %w", err)
	}
	return exists, nil
}

func (r *mysqlSkinRepo) FindAll(ctx context.Context) ([]model.Skin, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+skinColumns+` FROM skins`)
	if err != nil {
		return nil, fmt.Errorf("failed to list skins: %w", err)
	}
	defer rows.Close()
	return collectSkins(rows)
}

func (r *mysqlSkinRepo) FindPage(ctx context.Context, page, limit int) ([]model.Skin, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM skins`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count skins: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+skinColumns+` FROM skins ORDER BY updated_at DESC LIMIT ? OFFSET ?`,
		limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to page skins: %w", err)
	}
	defer rows.Close()

	skins, err := collectSkins(rows)
	return skins, total, err
}

func (r *mysqlSkinRepo) FindStale(ctx context.Context, status model.SkinStatus, before time.Time) ([]model.Skin, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+skinColumns+` FROM skins WHERE status = ? AND last_seen_at < ?`,
		string(status), before)
	if err != nil {
		return nil, fmt.Errorf("failed to find stale skins: %w", err)
	}
	defer rows.Close()
	return collectSkins(rows)
}

func (r *mysqlSkinRepo) Count(ctx context.Context) (int64, error) {
	return countRows(ctx, r.db, `SELECT COUNT(*) FROM skins`)
}

type mysqlHistoryRepo MySQLStore

func (r *mysqlHistoryRepo) Save(ctx context.Context, h model.PriceHistory) error {
	query := `
		INSERT INTO price_histories (` + historyColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		h.ID, h.SkinName, string(h.Wear), h.AveragePrice,
		nullInt64(h.LastSalePrice), nullInt64(h.LowestBuyOrderPrice),
		h.RecordedAt, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save price history: %w", err)
	}
	return nil
}

func (r *mysqlHistoryRepo) FindLatest(ctx context.Context, skinName string, wear model.Wear) (*model.PriceHistory, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM price_histories
		 WHERE skin_name = ? AND wear = ?
		 ORDER BY recorded_at DESC LIMIT 1`,
		skinName, string(wear))
	h, err := scanHistory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest price history: %w", err)
	}
	return h, nil
}

func (r *mysqlHistoryRepo) Count(ctx context.Context) (int64, error) {
	return countRows(ctx, r.db, `SELECT COUNT(*) FROM price_histories`)
}

type mysqlTaskRepo MySQLStore

func (r *mysqlTaskRepo) CreateWaiting(ctx context.Context, t model.HistoryUpdateTask) (bool, error) {
	// INSERT IGNORE reports zero affected rows when the waiting_key
	// unique index already holds this (skin_name, wear) pair.
	query := `
		INSERT IGNORE INTO history_update_tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, NULL)`
	res, err := r.db.ExecContext(ctx, query,
		t.ID, t.SkinName, string(t.Wear), string(t.Status), t.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to create task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return n > 0, nil
}

func (r *mysqlTaskRepo) ExistsWaiting(ctx context.Context, skinName string, wear model.Wear) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM history_update_tasks WHERE skin_name = ? AND wear = ? AND status = 'WAITING')`,
		skinName, string(wear)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check waiting task: %w", err)
	}
	return exists, nil
}

func (r *mysqlTaskRepo) FindByID(ctx context.Context, id string) (*model.HistoryUpdateTask, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM history_update_tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

func (r *mysqlTaskRepo) FindWaitingFIFO(ctx context.Context) ([]model.HistoryUpdateTask, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM history_update_tasks WHERE status = 'WAITING' ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (r *mysqlTaskRepo) Complete(ctx context.Context, id string, finishedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE history_update_tasks SET status = 'COMPLETED', finished_at = ? WHERE id = ?`,
		finishedAt, id)
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	return nil
}

func (r *mysqlTaskRepo) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM history_update_tasks WHERE status = 'COMPLETED' AND finished_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge completed tasks: %w", err)
	}
	return res.RowsAffected()
}

func (r *mysqlTaskRepo) Count(ctx context.Context) (int64, error) {
	return countRows(ctx, r.db, `SELECT COUNT(*) FROM history_update_tasks`)
}

type mysqlConversionRepo MySQLStore

func (r *mysqlConversionRepo) Save(ctx context.Context, c model.PendingConversion) error {
	query := `
		INSERT INTO pending_conversions (` + conversionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			attempt_count = VALUES(attempt_count),
			last_error = VALUES(last_error),
			next_retry_at = VALUES(next_retry_at),
			permanently_failed = VALUES(permanently_failed)`
	if _, err := r.db.ExecContext(ctx, query, conversionArgs(c)...); err != nil {
		return fmt.Errorf("failed to save pending conversion: %w", err)
	}
	return nil
}

func (r *mysqlConversionRepo) FindReady(ctx context.Context, now time.Time) ([]model.PendingConversion, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+conversionColumns+` FROM pending_conversions
		 WHERE permanently_failed = FALSE AND next_retry_at IS NOT NULL AND next_retry_at <= ?`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to find ready conversions: %w", err)
	}
	defer rows.Close()
	return collectConversions(rows)
}

func (r *mysqlConversionRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pending_conversions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete pending conversion: %w", err)
	}
	return nil
}

func (r *mysqlConversionRepo) FindPermanentlyFailed(ctx context.Context) ([]model.PendingConversion, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+conversionColumns+` FROM pending_conversions WHERE permanently_failed = TRUE ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to find permanently failed conversions: %w", err)
	}
	defer rows.Close()
	return collectConversions(rows)
}

func (r *mysqlConversionRepo) Count(ctx context.Context) (int64, error) {
	return countRows(ctx, r.db, `SELECT COUNT(*) FROM pending_conversions`)
}
