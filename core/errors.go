package core

import (
	"errors"
	"fmt"
	"math"

	"github.com/signalsfoundry/spectrum-optimizer/model"
)

var (
	ErrNoCells     = errors.New("no cell sites")
	ErrNoSpectrum  = errors.New("no available spectrum")
	ErrInvalidUser = errors.New("invalid user requirement")
	ErrInvalidCell = errors.New("invalid cell site")
)

// ValidateCells rejects cells without an ID, duplicate IDs, and positions
// outside the WGS84 range.
func ValidateCells(cells []model.CellSite) error {
	seen := make(map[string]struct{}, len(cells))
	for i, c := range cells {
		if c.ID == "" {
			return fmt.Errorf("%w: cell %d has empty id", ErrInvalidCell, i)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidCell, c.ID)
		}
		seen[c.ID] = struct{}{}
		if math.IsNaN(c.Latitude) || math.Abs(c.Latitude) > 90 ||
			math.IsNaN(c.Longitude) || math.Abs(c.Longitude) > 180 {
			return fmt.Errorf("%w: %q has position (%v, %v)", ErrInvalidCell, c.ID, c.Latitude, c.Longitude)
		}
	}
	return nil
}

// ValidateUsers rejects users without an ID and negative or non-finite
// throughput requirements.
func ValidateUsers(users []model.UserRequirement) error {
	for i, u := range users {
		if u.UserID == "" {
			return fmt.Errorf("%w: user %d has empty user_id", ErrInvalidUser, i)
		}
		req := u.RequiredThroughputMbps
		if math.IsNaN(req) || math.IsInf(req, 0) || req < 0 {
			return fmt.Errorf("%w: %q requires %v Mbps", ErrInvalidUser, u.UserID, req)
		}
		if u.DistanceM < 0 || math.IsNaN(u.DistanceM) {
			return fmt.Errorf("%w: %q has distance %v m", ErrInvalidUser, u.UserID, u.DistanceM)
		}
	}
	return nil
}
