package types

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePoint(t *testing.T) {
	tests := []struct {
		name  string
		point Point
		code  ErrorCode
	}{
		{"tokyo", Point{Lat: 35.68, Lon: 139.76}, ""},
		{"north pole", Point{Lat: 90, Lon: 0}, ""},
		{"antimeridian", Point{Lat: 0, Lon: -180}, ""},
		{"lat too high", Point{Lat: 90.01, Lon: 0}, ErrCodeValidationInvalidLat},
		{"lat too low", Point{Lat: -91, Lon: 0}, ErrCodeValidationInvalidLat},
		{"lon too high", Point{Lat: 0, Lon: 180.5}, ErrCodeValidationInvalidLon},
		{"lat NaN", Point{Lat: math.NaN(), Lon: 0}, ErrCodeValidationInvalidLat},
		{"lon NaN", Point{Lat: 0, Lon: math.NaN()}, ErrCodeValidationInvalidLon},
		{"lat infinite", Point{Lat: math.Inf(1), Lon: 0}, ErrCodeValidationInvalidLat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePoint(tt.point)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.code, CodeOf(err))
		})
	}
}

func TestValidateRadius(t *testing.T) {
	assert.NoError(t, ValidateRadius(0))
	assert.NoError(t, ValidateRadius(2.5))
	assert.Equal(t, ErrCodeValidationInvalidRadius, CodeOf(ValidateRadius(-0.1)))
	assert.Equal(t, ErrCodeValidationInvalidRadius, CodeOf(ValidateRadius(MaxRadiusKm+1)))
	assert.Equal(t, ErrCodeValidationInvalidRadius, CodeOf(ValidateRadius(math.NaN())))
}

func TestValidationDetailsAreEncodable(t *testing.T) {
	errs := []error{
		ValidatePoint(Point{Lat: math.NaN(), Lon: 0}),
		ValidatePoint(Point{Lat: 0, Lon: math.Inf(-1)}),
		ValidateRadius(math.NaN()),
		ValidateRadius(math.Inf(1)),
	}
	for _, err := range errs {
		var appErr *AppError
		require.ErrorAs(t, err, &appErr)
		_, marshalErr := json.Marshal(appErr.Details)
		assert.NoError(t, marshalErr, appErr.Message)
	}
	assert.Equal(t, map[string]any{"lat": "NaN"}, errs[0].(*AppError).Details)
}

func TestValidateColor(t *testing.T) {
	assert.NoError(t, ValidateColor("#1E90FF"))
	assert.NoError(t, ValidateColor("#abcdef"))
	for _, bad := range []string{"", "1E90FF", "#1E90F", "#GGGGGG", "red"} {
		assert.Equal(t, ErrCodeValidationInvalidColor, CodeOf(ValidateColor(bad)), bad)
	}
}

func TestValidateRadii(t *testing.T) {
	assert.NoError(t, ValidateRadii(DefaultRadii()))

	bad := DefaultRadii()
	bad[2].RadiusKm = -1
	assert.Equal(t, ErrCodeValidationInvalidRadius, CodeOf(ValidateRadii(bad)))
}

func TestNormalizeNickname(t *testing.T) {
	n, err := NormalizeNickname("  alice ")
	require.NoError(t, err)
	assert.Equal(t, "alice", n)

	n, err = NormalizeNickname("")
	require.NoError(t, err)
	assert.Empty(t, n)

	_, err = NormalizeNickname(strings.Repeat("あ", MaxNicknameLength+1))
	assert.Equal(t, ErrCodeValidationInvalidNickname, CodeOf(err))
}
