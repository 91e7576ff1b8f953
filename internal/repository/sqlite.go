package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"truemarket-api/internal/model"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteStore implements Store using SQLite.
// Thread-safe with WAL mode for high-concurrency reads.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (or creates) the SQLite database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createSQLiteTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[SQLiteStore] Initialized with database: %s", dbPath)
	return &SQLiteStore{db: db}, nil
}

func createSQLiteTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS skins (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		asset_id TEXT,
		float_value REAL,
		wear TEXT NOT NULL,
		paint_seed INTEGER,
		paint_index INTEGER,
		stickers_json TEXT,
		price INTEGER,
		currency TEXT,
		market_source TEXT,
		link TEXT,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		last_seen_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_skins_status_last_seen ON skins(status, last_seen_at);
	CREATE INDEX IF NOT EXISTS idx_skins_name_wear ON skins(name, wear);

	CREATE TABLE IF NOT EXISTS price_histories (
		id TEXT PRIMARY KEY,
		skin_name TEXT NOT NULL,
		wear TEXT NOT NULL,
		average_price INTEGER NOT NULL,
		last_sale_price INTEGER,
		lowest_buy_order_price INTEGER,
		recorded_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_histories_pair_recorded ON price_histories(skin_name, wear, recorded_at);

	CREATE TABLE IF NOT EXISTS history_update_tasks (
		id TEXT PRIMARY KEY,
		skin_name TEXT NOT NULL,
		wear TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		finished_at DATETIME
	);
	CREATE UNIQUE INDEX IF NOT EXISTS uq_tasks_waiting ON history_update_tasks(skin_name, wear) WHERE status = 'WAITING';
	CREATE INDEX IF NOT EXISTS idx_tasks_status_created ON history_update_tasks(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_tasks_status_finished ON history_update_tasks(status, finished_at);

	CREATE TABLE IF NOT EXISTS pending_conversions (
		id TEXT PRIMARY KEY,
		listing_json TEXT NOT NULL,
		original_price INTEGER NOT NULL,
		currency TEXT NOT NULL,
		skin_id TEXT NOT NULL,
		attempt_count INTEGER NOT NULL,
		last_error TEXT,
		created_at DATETIME NOT NULL,
		next_retry_at DATETIME,
		permanently_failed BOOLEAN NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_conversions_retry ON pending_conversions(permanently_failed, next_retry_at);
	`
	_, err := db.Exec(query)
	return err
}

// Skins returns the skin repository.
func (s *SQLiteStore) Skins() SkinRepository { return (*sqliteSkinRepo)(s) }

// PriceHistories returns the price history repository.
func (s *SQLiteStore) PriceHistories() PriceHistoryRepository { return (*sqliteHistoryRepo)(s) }

// Tasks returns the task repository.
func (s *SQLiteStore) Tasks() TaskRepository { return (*sqliteTaskRepo)(s) }

// Conversions returns the pending conversion repository.
func (s *SQLiteStore) Conversions() ConversionRepository { return (*sqliteConversionRepo)(s) }

// Close closes the database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

type sqliteSkinRepo SQLiteStore

func (r *sqliteSkinRepo) Upsert(ctx context.Context, skin model.Skin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
		INSERT INTO skins (` + skinColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			asset_id = excluded.asset_id,
			float_value = excluded.float_value,
			wear = excluded.wear,
			paint_seed = excluded.paint_seed,
			paint_index = excluded.paint_index,
			stickers_json = excluded.stickers_json,
			price = excluded.price,
			currency = excluded.currency,
			market_source = excluded.market_source,
			link = excluded.link,
			status = excluded.status,
			updated_at = excluded.updated_at,
			last_seen_at = excluded.last_seen_at`

	args, err := skinArgs(skin)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert skin: %w", err)
	}
	return nil
}

func (r *sqliteSkinRepo) FindByID(ctx context.Context, id string) (*model.Skin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

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

func (r *sqliteSkinRepo) ExistsByID(ctx context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM skins WHERE id = ?)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check skin existence: %w", err)
	}
	return exists, nil
}

func (r *sqliteSkinRepo) FindAll(ctx context.Context) ([]model.Skin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, `SELECT `+skinColumns+` FROM skins`)
	if err != nil {
		return nil, fmt.Errorf("failed to list skins: %w", err)
	}
	defer rows.Close()
	return collectSkins(rows)
}

func (r *sqliteSkinRepo) FindPage(ctx context.Context, page, limit int) ([]model.Skin, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

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

func (r *sqliteSkinRepo) FindStale(ctx context.Context, status model.SkinStatus, before time.Time) ([]model.Skin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+skinColumns+` FROM skins WHERE status = ? AND last_seen_at < ?`,
		string(status), before)
	if err != nil {
		return nil, fmt.Errorf("failed to find stale skins: %w", err)
	}
	defer rows.Close()
	return collectSkins(rows)
}

func (r *sqliteSkinRepo) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return countRows(ctx, r.db, `SELECT COUNT(*) FROM skins`)
}

type sqliteHistoryRepo SQLiteStore

func (r *sqliteHistoryRepo) Save(ctx context.Context, h model.PriceHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

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

func (r *sqliteHistoryRepo) FindLatest(ctx context.Context, skinName string, wear model.Wear) (*model.PriceHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

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

func (r *sqliteHistoryRepo) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return countRows(ctx, r.db, `SELECT COUNT(*) FROM price_histories`)
}

type sqliteTaskRepo SQLiteStore

func (r *sqliteTaskRepo) CreateWaiting(ctx context.Context, t model.HistoryUpdateTask) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Conflict target matches the partial unique index on WAITING rows,
	// so check and insert are a single atomic statement.
	query := `
		INSERT INTO history_update_tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, NULL)
		ON CONFLICT(skin_name, wear) WHERE status = 'WAITING' DO NOTHING`
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

func (r *sqliteTaskRepo) ExistsWaiting(ctx context.Context, skinName string, wear model.Wear) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM history_update_tasks WHERE skin_name = ? AND wear = ? AND status = 'WAITING')`,
		skinName, string(wear)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check waiting task: %w", err)
	}
	return exists, nil
}

func (r *sqliteTaskRepo) FindByID(ctx context.Context, id string) (*model.HistoryUpdateTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

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

func (r *sqliteTaskRepo) FindWaitingFIFO(ctx context.Context) ([]model.HistoryUpdateTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM history_update_tasks WHERE status = 'WAITING' ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (r *sqliteTaskRepo) Complete(ctx context.Context, id string, finishedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx,
		`UPDATE history_update_tasks SET status = 'COMPLETED', finished_at = ? WHERE id = ?`,
		finishedAt, id)
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	return nil
}

func (r *sqliteTaskRepo) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM history_update_tasks WHERE status = 'COMPLETED' AND finished_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge completed tasks: %w", err)
	}
	return res.RowsAffected()
}

func (r *sqliteTaskRepo) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return countRows(ctx, r.db, `SELECT COUNT(*) FROM history_update_tasks`)
}

type sqliteConversionRepo SQLiteStore

func (r *sqliteConversionRepo) Save(ctx context.Context, c model.PendingConversion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
		INSERT INTO pending_conversions (` + conversionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			attempt_count = excluded.attempt_count,
			last_error = excluded.last_error,
			next_retry_at = excluded.next_retry_at,
			permanently_failed = excluded.permanently_failed`
	if _, err := r.db.ExecContext(ctx, query, conversionArgs(c)...); err != nil {
		return fmt.Errorf("failed to save pending conversion: %w", err)
	}
	return nil
}

func (r *sqliteConversionRepo) FindReady(ctx context.Context, now time.Time) ([]model.PendingConversion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+conversionColumns+` FROM pending_conversions
		 WHERE permanently_failed = 0 AND next_retry_at IS NOT NULL AND next_retry_at <= ?`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to find ready conversions: %w", err)
	}
	defer rows.Close()
	return collectConversions(rows)
}

func (r *sqliteConversionRepo) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM pending_conversions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete pending conversion: %w", err)
	}
	return nil
}

func (r *sqliteConversionRepo) FindPermanentlyFailed(ctx context.Context) ([]model.PendingConversion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+conversionColumns+` FROM pending_conversions WHERE permanently_failed = 1 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to find permanently failed conversions: %w", err)
	}
	defer rows.Close()
	return collectConversions(rows)
}

func (r *sqliteConversionRepo) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return countRows(ctx, r.db, `SELECT COUNT(*) FROM pending_conversions`)
}
