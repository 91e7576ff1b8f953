package model

// Listing is the raw market payload as delivered by the scrapers.
// It is also the shape serialized into a pending conversion so a failed
// listing can be reprocessed verbatim once a rate becomes available.
type Listing struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	AssetID    string    `json:"asset_id,omitempty"`
	FloatValue *float64  `json:"float_value,omitempty"`
	PaintSeed  *int      `json:"paint_seed,omitempty"`
	PaintIndex *int      `json:"paint_index,omitempty"`
	Stickers   []Sticker `json:"stickers,omitempty"`
	Price      *int64    `json:"price,omitempty"` // minor units, original currency
	Currency   string    `json:"currency,omitempty"`
	Store      string    `json:"store,omitempty"` // source name or routing key
	Link       string    `json:"link,omitempty"`
}
