// Package session owns per-session AreaState values. State changes go through
// the pure transition functions in this file; Manager serializes them per
// session and orchestrates geocoding and history commits around them.
package session

import (
	"math"
	"strings"

	"circlemap/internal/geocode"
	"circlemap/internal/types"
)

// RestorePolicy selects how a history snapshot is merged into a state.
type RestorePolicy string

const (
	// RestoreOverwrite replaces center, address and radii.
	RestoreOverwrite RestorePolicy = "overwrite"
	// RestoreKeepUnsaved replaces center and address but keeps radii that were
	// edited since the last commit or restore.
	RestoreKeepUnsaved RestorePolicy = "keep_unsaved"
)

// DefaultCoordEpsilon is the smallest coordinate change treated as a move.
const DefaultCoordEpsilon = 1e-6

// ApplyResolution replaces center and address with a resolver result and
// remembers the query that produced them.
func ApplyResolution(s types.AreaState, query string, res geocode.Resolution) types.AreaState {
	s.Center = res.Point
	s.Address = res.Address
	s.LastCommittedQuery = strings.TrimSpace(query)
	return s
}

// SetCenter applies a manually entered center. Moves within eps of the
// current center are ignored. The caller refreshes the address.
func SetCenter(s types.AreaState, p types.Point, eps float64) types.AreaState {
	next, _ := Click(s, p, eps)
	return next
}

// Click applies a map click and reports whether the center moved by more
// than eps on either axis.
func Click(s types.AreaState, p types.Point, eps float64) (types.AreaState, bool) {
	if !moved(s.Center, p, eps) {
		return s, false
	}
	s.Center = p
	return s, true
}

func moved(from, to types.Point, eps float64) bool {
	return math.Abs(from.Lat-to.Lat) > eps || math.Abs(from.Lon-to.Lon) > eps
}

// SetRadii replaces the three rings. Ids and line styles stay pinned to the
// fixed id mapping; an empty color keeps the ring's current color.
func SetRadii(s types.AreaState, km [types.RadiusCount]float64, colors [types.RadiusCount]string) (types.AreaState, error) {
	current := s.Radii.Colors()
	for i, c := range colors {
		if c == "" {
			colors[i] = current[i]
		}
	}
	next := types.NewRadii(km, colors)
	if err := types.ValidateRadii(next); err != nil {
		return s, err
	}
	if next != s.Radii {
		s.Radii = next
		s.RadiiDirty = true
	}
	return s, nil
}

// SetNickname replaces the nickname after trimming it.
func SetNickname(s types.AreaState, nickname string) (types.AreaState, error) {
	n, err := types.NormalizeNickname(nickname)
	if err != nil {
		return s, err
	}
	s.Nickname = n
	return s, nil
}

// ApplySnapshot merges a restored history record into s according to policy.
// The nickname is left to the caller.
func ApplySnapshot(s types.AreaState, snap types.Snapshot, policy RestorePolicy) types.AreaState {
	s.Center = snap.Center
	s.Address = snap.Address
	if policy == RestoreKeepUnsaved && s.RadiiDirty {
		return s
	}
	s.Radii = s.Radii.WithKilometers(snap.RadiiKm)
	s.RadiiDirty = false
	return s
}
