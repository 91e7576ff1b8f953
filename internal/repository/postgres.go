package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"truemarket-api/internal/model"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostgresStore implements Store using PostgreSQL.
// Optimized for high-throughput with connection pooling.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL using the given DSN.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	if err := createPostgresTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[PostgresStore] Initialized")
	return &PostgresStore{db: db}, nil
}

func createPostgresTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS skins (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		asset_id TEXT,
		float_value DOUBLE PRECISION,
		wear TEXT NOT NULL,
		paint_seed INTEGER,
		paint_index INTEGER,
		stickers_json TEXT,
		price BIGINT,
		currency TEXT,
		market_source TEXT,
		link TEXT,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		last_seen_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_skins_status_last_seen ON skins(status, last_seen_at);
	CREATE INDEX IF NOT EXISTS idx_skins_name_wear ON skins(name, wear);

	CREATE TABLE IF NOT EXISTS price_histories (
		id TEXT PRIMARY KEY,
		skin_name TEXT NOT NULL,
		wear TEXT NOT NULL,
		average_price BIGINT NOT NULL,
		last_sale_price BIGINT,
		lowest_buy_order_price BIGINT,
		recorded_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_histories_pair_recorded ON price_histories(skin_name, wear, recorded_at DESC);

	CREATE TABLE IF NOT EXISTS history_update_tasks (
		id TEXT PRIMARY KEY,
		skin_name TEXT NOT NULL,
		wear TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ
	);
	CREATE UNIQUE INDEX IF NOT EXISTS uq_tasks_waiting ON history_update_tasks(skin_name, wear) WHERE status = 'WAITING';
	CREATE INDEX IF NOT EXISTS idx_tasks_status_created ON history_update_tasks(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_tasks_status_finished ON history_update_tasks(status, finished_at);

	CREATE TABLE IF NOT EXISTS pending_conversions (
		id TEXT PRIMARY KEY,
		listing_json TEXT NOT NULL,
		original_price BIGINT NOT NULL,
		currency TEXT NOT NULL,
		skin_id TEXT NOT NULL,
		attempt_count INTEGER NOT NULL,
		last_error TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		next_retry_at TIMESTAMPTZ,
		permanently_failed BOOLEAN NOT NULL DEFAULT FALSE
	);
	CREATE INDEX IF NOT EXISTS idx_conversions_retry ON pending_conversions(permanently_failed, next_retry_at);
	`
	_, err := db.Exec(query)
	return err
}

// Skins returns the skin repository.
func (s *PostgresStore) Skins() SkinRepository { return (*pgSkinRepo)(s) }

// PriceHistories returns the price history repository.
func (s *PostgresStore) PriceHistories() PriceHistoryRepository { return (*pgHistoryRepo)(s) }

// Tasks returns the task repository.
func (s *PostgresStore) Tasks() TaskRepository { return (*pgTaskRepo)(s) }

// Conversions returns the pending conversion repository.
func (s *PostgresStore) Conversions() ConversionRepository { return (*pgConversionRepo)(s) }

// Close closes the database connection.
func (s *PostgresStore) Close() error { return s.db.Close() }

type pgSkinRepo PostgresStore

func (r *pgSkinRepo) Upsert(ctx context.Context, skin model.Skin) error {
	query := `
		INSERT INTO skins (` + skinColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			asset_id = EXCLUDED.asset_id,
			float_value = EXCLUDED.float_value,
			wear = EXCLUDED.wear,
			paint_seed = EXCLUDED.paint_seed,
			paint_index = EXCLUDED.paint_index,
			stickers_json = EXCLUDED.stickers_json,
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			market_source = EXCLUDED.market_source,
			link = EXCLUDED.link,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			last_seen_at = EXCLUDED.last_seen_at`

	args, err := skinArgs(skin)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert skin: %w", err)
	}
	return nil
}

func (r *pgSkinRepo) FindByID(ctx context.Context, id string) (*model.Skin, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+skinColumns+` FROM skins WHERE id = $1`, id)
	skin, err := scanSkin(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get skin: %w", err)
	}
	return skin, nil
}

func (r *pgSkinRepo) ExistsByID(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM skins WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check skin existence: %w", err)
	}
	return exists, nil
}

func (r *pgSkinRepo) FindAll(ctx context.Context) ([]model.Skin, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+skinColumns+` FROM skins`)
	if err != nil {
		return nil, fmt.Errorf("failed to list skins: %w", err)
	}
	defer rows.Close()
	return collectSkins(rows)
}

func (r *pgSkinRepo) FindPage(ctx context.Context, page, limit int) ([]model.Skin, int64, error) {
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
		`SELECT `+skinColumns+` FROM skins ORDER BY updated_at DESC LIMIT $1 OFFSET $2`,
		limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to page skins: %w", err)
	}
	defer rows.Close()

	skins, err := collectSkins(rows)
	return skins, total, err
}

func (r *pgSkinRepo) FindStale(ctx context.Context, status model.SkinStatus, before time.Time) ([]model.Skin, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+skinColumns+` FROM skins WHERE status = $1 AND last_seen_at < $2`,
		string(status), before)
	if err != nil {
		return nil, fmt.Errorf("failed to find stale skins: %w", err)
	}
	defer rows.Close()
	return collectSkins(rows)
}

func (r *pgSkinRepo) Count(ctx context.Context) (int64, error) {
	return countRows(ctx, r.db, `SELECT COUNT(*) FROM skins`)
}

type pgHistoryRepo PostgresStore

func (r *pgHistoryRepo) Save(ctx context.Context, h model.PriceHistory) error {
	query := `
		INSERT INTO price_histories (` + historyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(ctx, query,
		h.ID, h.SkinName, string(h.Wear), h.AveragePrice,
		nullInt64(h.LastSalePrice), nullInt64(h.LowestBuyOrderPrice),
		h.RecordedAt, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save price history: %w", err)
	}
	return nil
}

func (r *pgHistoryRepo) FindLatest(ctx context.Context, skinName string, wear model.Wear) (*model.PriceHistory, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM price_histories
		 WHERE skin_name = $1 AND wear = $2
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

func (r *pgHistoryRepo) Count(ctx context.Context) (int64, error) {
	return countRows(ctx, r.db, `SELECT COUNT(*) FROM price_histories`)
}

type pgTaskRepo PostgresStore

func (r *pgTaskRepo) CreateWaiting(ctx context.Context, t model.HistoryUpdateTask) (bool, error) {
	// Conflict target matches the partial unique index on WAITING rows.
	query := `
		INSERT INTO history_update_tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, NULL)
		ON CONFLICT (skin_name, wear) WHERE status = 'WAITING' DO NOTHING`
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

func (r *pgTaskRepo) ExistsWaiting(ctx context.Context, skinName string, wear model.Wear) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM history_update_tasks WHERE skin_name = $1 AND wear = $2 AND status = 'WAITING')`,
		skinName, string(wear)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check waiting task: %w", err)
	}
	return exists, nil
}

func (r *pgTaskRepo) FindByID(ctx context.Context, id string) (*model.HistoryUpdateTask, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM history_update_tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

func (r *pgTaskRepo) FindWaitingFIFO(ctx context.Context) ([]model.HistoryUpdateTask, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM history_update_tasks WHERE status = 'WAITING' ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (r *pgTaskRepo) Complete(ctx context.Context, id string, finishedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE history_update_tasks SET status = 'COMPLETED', finished_at = $1 WHERE id = $2`,
		finishedAt, id)
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	return nil
}

func (r *pgTaskRepo) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM history_update_tasks WHERE status = 'COMPLETED' AND finished_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge completed tasks: %w", err)
	}
	return res.RowsAffected()
}

func (r *pgTaskRepo) Count(ctx context.Context) (int64, error) {
	return countRows(ctx, r.db, `SELECT COUNT(*) FROM history_update_tasks`)
}

type pgConversionRepo PostgresStore

func (r *pgConversionRepo) Save(ctx context.Context, c model.PendingConversion) error {
	query := `
		INSERT INTO pending_conversions (` + conversionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			attempt_count = EXCLUDED.attempt_count,
			last_error = EXCLUDED.last_error,
			next_retry_at = EXCLUDED.next_retry_at,
			permanently_failed = EXCLUDED.permanently_failed`
	if _, err := r.db.ExecContext(ctx, query, conversionArgs(c)...); err != nil {
		return fmt.Errorf("failed to save pending conversion: %w", err)
	}
	return nil
}

func (r *pgConversionRepo) FindReady(ctx context.Context, now time.Time) ([]model.PendingConversion, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+conversionColumns+` FROM pending_conversions
		 WHERE permanently_failed = FALSE AND next_retry_at IS NOT NULL AND next_retry_at <= $1`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to find ready conversions: %w", err)
	}
	defer rows.Close()
	return collectConversions(rows)
}

func (r *pgConversionRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pending_conversions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete pending conversion: %w", err)
	}
	return nil
}

func (r *pgConversionRepo) FindPermanentlyFailed(ctx context.Context) ([]model.PendingConversion, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+conversionColumns+` FROM pending_conversions WHERE permanently_failed = TRUE ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to find permanently failed conversions: %w", err)
	}
	defer rows.Close()
	return collectConversions(rows)
}

func (r *pgConversionRepo) Count(ctx context.Context) (int64, error) {
	return countRows(ctx, r.db, `SELECT COUNT(*) FROM pending_conversions`)
}
