package model

import "time"

// PriceHistory is one immutable snapshot of Steam pricing for a
// (skin name, wear) pair. Latest is by RecordedAt descending.
type PriceHistory struct {
	ID                  string     `json:"id"`
	SkinName            string     `json:"skin_name"`
	Wear                Wear       `json:"wear"`
	AveragePrice        int64      `json:"average_price"` // USD minor units
	LastSalePrice       *int64     `json:"last_sale_price,omitempty"`
	LowestBuyOrderPrice *int64     `json:"lowest_buy_order_price,omitempty"`
	RecordedAt          time.Time  `json:"recorded_at"`
	CreatedAt           time.Time  `json:"created_at"`
}

// NewPriceHistory creates a snapshot recorded now.
func NewPriceHistory(id, skinName string, wear Wear, averagePrice int64, lastSale, lowestBuyOrder *int64, now time.Time) PriceHistory {
	return PriceHistory{
		ID:                  id,
		SkinName:            skinName,
		Wear:                wear,
		AveragePrice:        averagePrice,
		LastSalePrice:       lastSale,
		LowestBuyOrderPrice: lowestBuyOrder,
		RecordedAt:          now,
		CreatedAt:           now,
	}
}
