package model

import (
	"fmt"
	"strings"
	"time"
)

// SkinStatus tracks marketplace availability. Skins are never deleted;
// the reaper flips AVAILABLE to SOLD when the heartbeat goes quiet.
type SkinStatus string

const (
	StatusAvailable   SkinStatus = "AVAILABLE"
	StatusSold        SkinStatus = "SOLD"
	StatusUnavailable SkinStatus = "UNAVAILABLE"
)

// MarketSource identifies which marketplace a listing came from.
type MarketSource string

const (
	SourceSteam     MarketSource = "STEAM"
	SourceBitskins  MarketSource = "BITSKINS"
	SourceDashskins MarketSource = "DASHSKINS"
)

const routingKeyPrefix = "skin.market."

// ParseMarketSource accepts either a bare source name ("bitskins") or a
// full routing key ("skin.market.bitskins").
func ParseMarketSource(s string) (MarketSource, error) {
	name := strings.ToUpper(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), routingKeyPrefix))
	switch MarketSource(name) {
	case SourceSteam, SourceBitskins, SourceDashskins:
		return MarketSource(name), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMarketSource, s)
}

// RoutingKey returns the message routing key for the source.
func (m MarketSource) RoutingKey() string {
	return routingKeyPrefix + strings.ToLower(string(m))
}

// Sticker is an applique attached to a skin.
type Sticker struct {
	Name string  `json:"name"`
	Wear float64 `json:"wear,omitempty"`
}

// Skin is a concrete marketplace listing of an item.
type Skin struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	AssetID      string       `json:"asset_id,omitempty"`
	FloatValue   *float64     `json:"float_value,omitempty"`
	Wear         Wear         `json:"wear"`
	PaintSeed    *int         `json:"paint_seed,omitempty"`
	PaintIndex   *int         `json:"paint_index,omitempty"`
	Stickers     []Sticker    `json:"stickers,omitempty"`
	Price        *int64       `json:"price,omitempty"` // minor units
	Currency     string       `json:"currency,omitempty"`
	MarketSource MarketSource `json:"market_source,omitempty"`
	Link         string       `json:"link,omitempty"`
	Status       SkinStatus   `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	LastSeenAt   time.Time    `json:"last_seen_at"`
}

// NewSkin builds a skin from a listing sighting, deriving the wear
// category from the float value or, failing that, from the name.
// A listing with neither is invalid.
func NewSkin(listing Listing, priceUSD *int64, now time.Time) (Skin, error) {
	var wear Wear
	var err error
	if listing.FloatValue != nil {
		wear, err = WearFromFloat(*listing.FloatValue)
	} else {
		wear, err = WearFromName(listing.Name)
	}
	if err != nil {
		return Skin{}, err
	}

	currency := ""
	if priceUSD != nil {
		currency = "USD"
	}

	source := MarketSource("")
	if listing.Store != "" {
		source, err = ParseMarketSource(listing.Store)
		if err != nil {
			return Skin{}, err
		}
	}

	return Skin{
		ID:           listing.ID,
		Name:         listing.Name,
		AssetID:      listing.AssetID,
		FloatValue:   listing.FloatValue,
		Wear:         wear,
		PaintSeed:    listing.PaintSeed,
		PaintIndex:   listing.PaintIndex,
		Stickers:     listing.Stickers,
		Price:        priceUSD,
		Currency:     currency,
		MarketSource: source,
		Link:         listing.Link,
		Status:       StatusAvailable,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastSeenAt:   now,
	}, nil
}
