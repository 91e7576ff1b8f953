package model

import (
	"math"
	"time"
)

// PendingConversion is a currency conversion that failed because the rate
// feed was unavailable. The original listing payload is kept so the
// listing can be reprocessed exactly as if it had just arrived.
//
// Invariant: PermanentlyFailed == true iff NextRetryAt == nil iff
// AttemptCount has reached the configured maximum.
type PendingConversion struct {
	ID                string     `json:"id"`
	ListingJSON       []byte     `json:"listing_json"`
	OriginalPrice     int64      `json:"original_price"` // minor units
	Currency          string     `json:"currency"`
	SkinID            string     `json:"skin_id"`
	AttemptCount      int        `json:"attempt_count"`
	LastError         string     `json:"last_error"`
	CreatedAt         time.Time  `json:"created_at"`
	NextRetryAt       *time.Time `json:"next_retry_at,omitempty"`
	PermanentlyFailed bool       `json:"permanently_failed"`
}

// NewPendingConversion records a first failed attempt, scheduling the
// retry one initial delay from now.
func NewPendingConversion(id string, listingJSON []byte, originalPrice int64, currency, skinID, errMsg string, initialDelay time.Duration, now time.Time) PendingConversion {
	next := now.Add(initialDelay)
	return PendingConversion{
		ID:            id,
		ListingJSON:   listingJSON,
		OriginalPrice: originalPrice,
		Currency:      currency,
		SkinID:        skinID,
		AttemptCount:  1,
		LastError:     errMsg,
		CreatedAt:     now,
		NextRetryAt:   &next,
	}
}

// IncrementAttempt records another failure. Once the attempt count reaches
// maxAttempts the record becomes terminal: permanently failed, never
// swept again. Otherwise the next retry backs off exponentially:
// initialDelay * 2^(attempts-1), no jitter, no cap.
func (p *PendingConversion) IncrementAttempt(errMsg string, initialDelay time.Duration, maxAttempts int, now time.Time) {
	p.AttemptCount++
	p.LastError = errMsg

	if p.AttemptCount >= maxAttempts {
		p.PermanentlyFailed = true
		p.NextRetryAt = nil
		return
	}

	delay := time.Duration(float64(initialDelay) * math.Pow(2, float64(p.AttemptCount-1)))
	next := now.Add(delay)
	p.NextRetryAt = &next
}
