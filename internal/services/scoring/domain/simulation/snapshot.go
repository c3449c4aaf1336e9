// Package simulation previews the multi-dimensional score a future task
// completion would earn.
package simulation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/questline/internal/platform/errors"
)

// Cohort is the generation mode used to produce a preview.
type Cohort string

const (
	CohortRandomRange        Cohort = "random_range"
	CohortAverageScore       Cohort = "average_score"
	CohortDynamicCalculation Cohort = "dynamic_calculation"
)

// ParseCohort validates a cohort name. Blank input selects the dynamic cohort.
func ParseCohort(raw string) (Cohort, error) {
	switch c := Cohort(strings.ToLower(strings.TrimSpace(raw))); c {
	case "":
		return CohortDynamicCalculation, nil
	case CohortRandomRange, CohortAverageScore, CohortDynamicCalculation:
		return c, nil
	default:
		return "", apperrors.WithMetadata(apperrors.CodeSimulationCohortInvalid, "unknown cohort", map[string]string{"Cohort": raw})
	}
}

// Dimension indexes one named scalar contribution to a total score.
type Dimension int

const (
	DimBP Dimension = iota
	DimLBE
	DimTD
	DimPP
	DimS
	dimensionCount
)

var dimensionNames = [dimensionCount]string{"DIM_BP", "DIM_LBE", "DIM_TD", "DIM_PP", "DIM_S"}

// AllDimensions lists the dimensions in wire order.
var AllDimensions = [dimensionCount]Dimension{DimBP, DimLBE, DimTD, DimPP, DimS}

// String returns the wire name of d.
func (d Dimension) String() string {
	if d < 0 || d >= dimensionCount {
		return fmt.Sprintf("Dimension(%d)", int(d))
	}
	return dimensionNames[d]
}

// Dimensions holds one non-negative integer per dimension in wire order.
type Dimensions [dimensionCount]int

// Total sums every dimension.
func (d Dimensions) Total() int {
	total := 0
	for _, v := range d {
		total += v
	}
	return total
}

// Breakdown returns the dimensions keyed by wire name.
func (d Dimensions) Breakdown() map[string]int {
	out := make(map[string]int, len(d))
	for _, dim := range AllDimensions {
		out[dim.String()] = d[dim]
	}
	return out
}

// DimensionsFromBreakdown reads a breakdown map produced by Breakdown. The
// second result is false when any dimension is missing.
func DimensionsFromBreakdown(breakdown map[string]int) (Dimensions, bool) {
	var d Dimensions
	for _, dim := range AllDimensions {
		v, ok := breakdown[dim.String()]
		if !ok {
			return Dimensions{}, false
		}
		d[dim] = v
	}
	return d, true
}

// MarshalJSON encodes the dimensions as an ordered array of single-key objects.
func (d Dimensions) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('[')
	for i, dim := range AllDimensions {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "{%q:%d}", dim.String(), d[dim])
	}
	b.WriteByte(']')
	return []byte(b.String()), nil
}

// UnmarshalJSON decodes the ordered array form, rejecting entries out of
// order, missing, or negative.
func (d *Dimensions) UnmarshalJSON(data []byte) error {
	var entries []map[string]int
	if err := json.Unmarshal(data, &entries); err != nil {
		return apperrors.Wrap(apperrors.CodeSnapshotMalformed, "decode dimensions", err)
	}
	if len(entries) != int(dimensionCount) {
		return apperrors.New(apperrors.CodeSnapshotMalformed, fmt.Sprintf("expected %d dimensions, got %d", dimensionCount, len(entries)))
	}
	var out Dimensions
	for i, dim := range AllDimensions {
		entry := entries[i]
		v, ok := entry[dim.String()]
		if !ok || len(entry) != 1 {
			return apperrors.New(apperrors.CodeSnapshotMalformed, fmt.Sprintf("dimension %d must be %s", i, dim))
		}
		if v < 0 {
			return apperrors.New(apperrors.CodeSnapshotMalformed, fmt.Sprintf("dimension %s is negative", dim))
		}
		out[dim] = v
	}
	*d = out
	return nil
}

// ExpirationLayout is the wire layout of a snapshot's expiration date.
const ExpirationLayout = "2006-01-02T15:04:05.000000-07:00"

// Snapshot is one previewed score for a (game, user, task).
type Snapshot struct {
	ExternalUserID string
	ExternalTaskID string
	Cohort         Cohort
	Dimensions     Dimensions
	ExpiresAt      time.Time
}

// Total sums the snapshot's dimensions.
func (s Snapshot) Total() int {
	return s.Dimensions.Total()
}

// Expired reports whether the snapshot can no longer be redeemed at now.
func (s Snapshot) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type wireSnapshot struct {
	ExternalUserID       string     `json:"externalUserId"`
	ExternalTaskID       string     `json:"externalTaskId"`
	Cohort               Cohort     `json:"cohort"`
	Dimensions           Dimensions `json:"dimensions"`
	TotalSimulatedPoints int        `json:"totalSimulatedPoints"`
	ExpirationDate       string     `json:"expirationDate"`
}

// MarshalJSON encodes the wire form. The total is always derived from the
// dimensions.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireSnapshot{
		ExternalUserID:       s.ExternalUserID,
		ExternalTaskID:       s.ExternalTaskID,
		Cohort:               s.Cohort,
		Dimensions:           s.Dimensions,
		TotalSimulatedPoints: s.Total(),
		ExpirationDate:       s.ExpiresAt.UTC().Format(ExpirationLayout),
	})
}

// UnmarshalJSON decodes the wire form. A total that disagrees with the
// dimensions is rejected as malformed.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var w wireSnapshot
	if err := json.Unmarshal(data, &w); err != nil {
		if _, ok := apperrors.As(err); ok {
			return err
		}
		return apperrors.Wrap(apperrors.CodeSnapshotMalformed, "decode snapshot", err)
	}
	if _, err := ParseCohort(string(w.Cohort)); err != nil || w.Cohort == "" {
		return apperrors.WithMetadata(apperrors.CodeSnapshotMalformed, "snapshot cohort is invalid", map[string]string{"Cohort": string(w.Cohort)})
	}
	expiresAt, err := time.Parse(ExpirationLayout, w.ExpirationDate)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeSnapshotMalformed, "decode expiration date", err)
	}
	if w.TotalSimulatedPoints != w.Dimensions.Total() {
		return apperrors.New(apperrors.CodeSnapshotMalformed, "total does not match dimensions")
	}
	*s = Snapshot{
		ExternalUserID: w.ExternalUserID,
		ExternalTaskID: w.ExternalTaskID,
		Cohort:         w.Cohort,
		Dimensions:     w.Dimensions,
		ExpiresAt:      expiresAt.UTC(),
	}
	return nil
}

// FindSnapshot returns the snapshot previewing externalTaskID.
func FindSnapshot(snapshots []Snapshot, externalTaskID string) (Snapshot, bool) {
	for _, s := range snapshots {
		if s.ExternalTaskID == externalTaskID {
			return s, true
		}
	}
	return Snapshot{}, false
}
