// Package pki derives concrete artifacts from certificate requests and
// stored records: validity day counts, PEM bundles, and PKCS#12 containers.
package pki

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidValidity marks a validity option the caller must correct.
var ErrInvalidValidity = errors.New("invalid validity option")

// Day counts for the named validity presets.
var validityPresets = map[string]int64{
	"1y":  365,
	"3y":  365 * 3,
	"5y":  365 * 5,
	"10y": 365 * 10,
}

// ResolveValidityDays maps a validity option to a concrete day count.
// Preset options ignore customDays entirely; "custom" requires a day count
// strictly greater than zero. An empty option defaults to "1y".
func ResolveValidityDays(option string, customDays int64) (int64, error) {
	option = strings.ToLower(option)
	if option == "" {
		option = "1y"
	}

	if days, ok := validityPresets[option]; ok {
		return days, nil
	}

	if option == "custom" {
		if customDays <= 0 {
			return 0, fmt.Errorf("%w: custom validity requires a day count greater than 0", ErrInvalidValidity)
		}
		return customDays, nil
	}

	return 0, fmt.Errorf("%w: %q", ErrInvalidValidity, option)
}
