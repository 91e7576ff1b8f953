package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"truemarket-api/internal/model"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// skinColumns is the select list shared by all backends; scanSkin must
// stay in sync with it.
const skinColumns = `id, name, asset_id, float_value, wear, paint_seed, paint_index, stickers_json, price, currency, market_source, link, status, created_at, updated_at, last_seen_at`

func scanSkin(row rowScanner) (*model.Skin, error) {
	var (
		s            model.Skin
		assetID      sql.NullString
		floatValue   sql.NullFloat64
		paintSeed    sql.NullInt64
		paintIndex   sql.NullInt64
		stickersJSON sql.NullString
		price        sql.NullInt64
		currency     sql.NullString
		source       sql.NullString
		link         sql.NullString
	)

	err := row.Scan(&s.ID, &s.Name, &assetID, &floatValue, &s.Wear, &paintSeed,
		&paintIndex, &stickersJSON, &price, &currency, &source, &link,
		&s.Status, &s.CreatedAt, &s.UpdatedAt, &s.LastSeenAt)
	if err != nil {
		return nil, err
	}

	s.AssetID = assetID.String
	s.Currency = currency.String
	s.MarketSource = model.MarketSource(source.String)
	s.Link = link.String
	if floatValue.Valid {
		f := floatValue.Float64
		s.FloatValue = &f
	}
	if paintSeed.Valid {
		v := int(paintSeed.Int64)
		s.PaintSeed = &v
	}
	if paintIndex.Valid {
		v := int(paintIndex.Int64)
		s.PaintIndex = &v
	}
	if price.Valid {
		p := price.Int64
		s.Price = &p
	}
	if stickersJSON.Valid && stickersJSON.String != "" {
		if err := json.Unmarshal([]byte(stickersJSON.String), &s.Stickers); err != nil {
			return nil, fmt.Errorf("failed to decode stickers for skin %s: %w", s.ID, err)
		}
	}
	return &s, nil
}

// skinArgs builds the insert/update argument list in skinColumns order.
func skinArgs(s model.Skin) ([]interface{}, error) {
	var stickers interface{}
	if len(s.Stickers) > 0 {
		data, err := json.Marshal(s.Stickers)
		if err != nil {
			return nil, fmt.Errorf("failed to encode stickers for skin %s: %w", s.ID, err)
		}
		stickers = string(data)
	}

	return []interface{}{
		s.ID, s.Name, nullString(s.AssetID), nullFloat(s.FloatValue),
		string(s.Wear), nullInt(s.PaintSeed), nullInt(s.PaintIndex), stickers,
		nullInt64(s.Price), nullString(s.Currency), nullString(string(s.MarketSource)),
		nullString(s.Link), string(s.Status), s.CreatedAt, s.UpdatedAt, s.LastSeenAt,
	}, nil
}

const historyColumns = `id, skin_name, wear, average_price, last_sale_price, lowest_buy_order_price, recorded_at, created_at`

func scanHistory(row rowScanner) (*model.PriceHistory, error) {
	var (
		h         model.PriceHistory
		lastSale  sql.NullInt64
		lowestBuy sql.NullInt64
	)
	err := row.Scan(&h.ID, &h.SkinName, &h.Wear, &h.AveragePrice, &lastSale,
		&lowestBuy, &h.RecordedAt, &h.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lastSale.Valid {
		v := lastSale.Int64
		h.LastSalePrice = &v
	}
	if lowestBuy.Valid {
		v := lowestBuy.Int64
		h.LowestBuyOrderPrice = &v
	}
	return &h, nil
}

const taskColumns = `id, skin_name, wear, status, created_at, finished_at`

func scanTask(row rowScanner) (*model.HistoryUpdateTask, error) {
	var (
		t        model.HistoryUpdateTask
		finished sql.NullTime
	)
	err := row.Scan(&t.ID, &t.SkinName, &t.Wear, &t.Status, &t.CreatedAt, &finished)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		v := finished.Time
		t.FinishedAt = &v
	}
	return &t, nil
}

const conversionColumns = `id, listing_json, original_price, currency, skin_id, attempt_count, last_error, created_at, next_retry_at, permanently_failed`

func scanConversion(row rowScanner) (*model.PendingConversion, error) {
	var (
		c           model.PendingConversion
		listingJSON string
		nextRetry   sql.NullTime
	)
	err := row.Scan(&c.ID, &listingJSON, &c.OriginalPrice, &c.Currency, &c.SkinID,
		&c.AttemptCount, &c.LastError, &c.CreatedAt, &nextRetry, &c.PermanentlyFailed)
	if err != nil {
		return nil, err
	}
	c.ListingJSON = []byte(listingJSON)
	if nextRetry.Valid {
		v := nextRetry.Time
		c.NextRetryAt = &v
	}
	return &c, nil
}

func conversionArgs(c model.PendingConversion) []interface{} {
	var nextRetry interface{}
	if c.NextRetryAt != nil {
		nextRetry = *c.NextRetryAt
	}
	return []interface{}{
		c.ID, string(c.ListingJSON), c.OriginalPrice, c.Currency, c.SkinID,
		c.AttemptCount, c.LastError, c.CreatedAt, nextRetry, c.PermanentlyFailed,
	}
}

func collectSkins(rows *sql.Rows) ([]model.Skin, error) {
	var skins []model.Skin
	for rows.Next() {
		s, err := scanSkin(rows)
		if err != nil {
			return nil, err
		}
		skins = append(skins, *s)
	}
	return skins, rows.Err()
}

func collectTasks(rows *sql.Rows) ([]model.HistoryUpdateTask, error) {
	var tasks []model.HistoryUpdateTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func collectConversions(rows *sql.Rows) ([]model.PendingConversion, error) {
	var conversions []model.PendingConversion
	for rows.Next() {
		c, err := scanConversion(rows)
		if err != nil {
			return nil, err
		}
		conversions = append(conversions, *c)
	}
	return conversions, rows.Err()
}

func countRows(ctx context.Context, db *sql.DB, query string) (int64, error) {
	var count int64
	if err := db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return count, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func nullInt(i *int) interface{} {
	if i == nil {
		return nil
	}
	return *i
}

func nullInt64(i *int64) interface{} {
	if i == nil {
		return nil
	}
	return *i
}
