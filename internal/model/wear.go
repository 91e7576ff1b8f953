package model

import (
	"fmt"
	"strings"
)

// Wear is the discrete condition category of a skin, derived from its
// float value or from the label embedded in its name.
type Wear string

const (
	WearFactoryNew    Wear = "FACTORY_NEW"
	WearMinimalWear   Wear = "MINIMAL_WEAR"
	WearFieldTested   Wear = "FIELD_TESTED"
	WearWellWorn      Wear = "WELL_WORN"
	WearBattleScarred Wear = "BATTLE_SCARRED"
)

// wearBand is a half-open float range [min, max) mapped to a category.
// The 1.0 edge is folded into Battle-Scarred below.
type wearBand struct {
	wear        Wear
	displayName string
	min, max    float64
}

var wearBands = []wearBand{
	{WearFactoryNew, "Factory New", 0.00, 0.07},
	{WearMinimalWear, "Minimal Wear", 0.07, 0.15},
	{WearFieldTested, "Field-Tested", 0.15, 0.38},
	{WearWellWorn, "Well-Worn", 0.38, 0.45},
	{WearBattleScarred, "Battle-Scarred", 0.45, 1.00},
}

// DisplayName returns the marketplace label, e.g. "Field-Tested".
func (w Wear) DisplayName() string {
	for _, b := range wearBands {
		if b.wear == w {
			return b.displayName
		}
	}
	return string(w)
}

// Valid reports whether w is one of the five known categories.
func (w Wear) Valid() bool {
	for _, b := range wearBands {
		if b.wear == w {
			return true
		}
	}
	return false
}

// WearFromFloat classifies a float value into a wear category.
// Bands are half-open except that exactly 1.0 is Battle-Scarred.
func WearFromFloat(f float64) (Wear, error) {
	if f < 0.0 || f > 1.0 {
		return "", fmt.Errorf("%w: %v", ErrFloatOutOfRange, f)
	}
	for _, b := range wearBands {
		if f >= b.min && f < b.max {
			return b.wear, nil
		}
	}
	return WearBattleScarred, nil
}

// WearFromName extracts the wear category from the last parenthesized
// substring of a skin name, e.g. "AK-47 | Redline (Field-Tested)".
func WearFromName(name string) (Wear, error) {
	name = strings.TrimSpace(name)
	open := strings.LastIndex(name, "(")
	closing := strings.LastIndex(name, ")")
	if open == -1 || closing == -1 || open >= closing {
		return "", fmt.Errorf("%w: %q", ErrNoWearLabel, name)
	}
	return WearFromLabel(name[open+1 : closing])
}

// WearFromLabel maps a display label to its category, case and hyphen
// insensitively ("field tested" == "Field-Tested").
func WearFromLabel(label string) (Wear, error) {
	normalized := strings.ToLower(strings.TrimSpace(label))
	normalized = strings.ReplaceAll(normalized, "-", " ")
	if normalized == "" {
		return "", fmt.Errorf("%w: empty label", ErrUnknownWearLabel)
	}
	for _, b := range wearBands {
		if strings.ReplaceAll(strings.ToLower(b.displayName), "-", " ") == normalized {
			return b.wear, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownWearLabel, label)
}

// ParseWear accepts either the enum form ("FIELD_TESTED") or a display
// label ("Field-Tested"), as workers report both.
func ParseWear(s string) (Wear, error) {
	w := Wear(strings.ToUpper(strings.TrimSpace(s)))
	if w.Valid() {
		return w, nil
	}
	return WearFromLabel(s)
}
