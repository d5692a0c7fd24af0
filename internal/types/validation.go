package types

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Validation constraint constants.
const (
	MinLat            = -90.0
	MaxLat            = 90.0
	MinLon            = -180.0
	MaxLon            = 180.0
	MaxRadiusKm       = 20000.0
	MaxNicknameLength = 50
	MaxQueryLength    = 300
)

var hexColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// ValidatePoint checks coordinate ranges.
func ValidatePoint(p Point) error {
	if math.IsNaN(p.Lat) || p.Lat < MinLat || p.Lat > MaxLat {
		return NewAppErrorWithDetails(ErrCodeValidationInvalidLat,
			fmt.Sprintf("latitude must be between %.0f and %.0f", MinLat, MaxLat),
			nil, map[string]any{"lat": detailFloat(p.Lat)})
	}
	if math.IsNaN(p.Lon) || p.Lon < MinLon || p.Lon > MaxLon {
		return NewAppErrorWithDetails(ErrCodeValidationInvalidLon,
			fmt.Sprintf("longitude must be between %.0f and %.0f", MinLon, MaxLon),
			nil, map[string]any{"lon": detailFloat(p.Lon)})
	}
	return nil
}

// ValidateRadius checks that a ring radius is non-negative and bounded.
func ValidateRadius(km float64) error {
	if math.IsNaN(km) || km < 0 || km > MaxRadiusKm {
		return NewAppErrorWithDetails(ErrCodeValidationInvalidRadius,
			fmt.Sprintf("radius must be between 0 and %.0f km", MaxRadiusKm),
			nil, map[string]any{"radius_km": detailFloat(km)})
	}
	return nil
}

// detailFloat keeps error details JSON-encodable: NaN and the infinities
// become strings.
func detailFloat(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return v
}

// ValidateColor accepts #RRGGBB hex colors.
func ValidateColor(color string) error {
	if !hexColorPattern.MatchString(color) {
		return NewAppErrorWithDetails(ErrCodeValidationInvalidColor,
			"color must be a #RRGGBB hex value", nil, map[string]any{"color": color})
	}
	return nil
}

// ValidateRadii checks every ring of a set.
func ValidateRadii(r Radii) error {
	for _, spec := range r {
		if err := ValidateRadius(spec.RadiusKm); err != nil {
			return err
		}
		if err := ValidateColor(spec.Color); err != nil {
			return err
		}
	}
	return nil
}

// NormalizeNickname trims the nickname and enforces its length limit. An
// empty result is allowed and means "do not log".
func NormalizeNickname(nickname string) (string, error) {
	n := strings.TrimSpace(nickname)
	if utf8.RuneCountInString(n) > MaxNicknameLength {
		return "", NewAppErrorWithDetails(ErrCodeValidationInvalidNickname,
			fmt.Sprintf("nickname must be at most %d characters", MaxNicknameLength),
			nil, map[string]any{"length": utf8.RuneCountInString(n)})
	}
	return n, nil
}
