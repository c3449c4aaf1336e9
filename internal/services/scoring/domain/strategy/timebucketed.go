package strategy

import (
	"context"
	"math"
	"time"

	"github.com/louisbranch/questline/internal/services/scoring/storage"
)

const (
	TimeBucketedID = "time_bucketed"

	CaseWithinHour   = "within_hour"
	CaseWithinDay    = "within_day"
	CaseWithinWeek   = "within_week"
	CaseFirstOrStale = "first_or_stale"
)

// elapsedBucket scales base points by time since the user's previous
// completion of the same task.
type elapsedBucket struct {
	below  time.Duration
	factor float64
	label  string
}

var elapsedBuckets = []elapsedBucket{
	{below: time.Hour, factor: 0.25, label: CaseWithinHour},
	{below: 24 * time.Hour, factor: 0.5, label: CaseWithinDay},
	{below: 7 * 24 * time.Hour, factor: 1, label: CaseWithinWeek},
}

const staleFactor = 1.5

// TimeBucketed weights base points by task complexity and discourages rapid
// repeats.
type TimeBucketed struct {
	records    storage.RecordReader
	clock      func() time.Time
	descriptor Descriptor
}

// NewTimeBucketed creates the time-bucketed strategy.
func NewTimeBucketed(records storage.RecordReader, opts ...Option) (*TimeBucketed, error) {
	if records == nil {
		return nil, errRecordsRequired
	}
	o := applyOptions(opts)
	return &TimeBucketed{
		records: records,
		clock:   o.clock,
		descriptor: NewDescriptor(TimeBucketedID, "Time bucketed",
			"Base points times task complexity, scaled by time since the last completion.", "1",
			Variable{Name: "base_points", Kind: KindInt, Default: "10"},
			Variable{Name: "complexity", Kind: KindFloat, Default: "1.0", Description: "Per-task weight, usually set as a task override."},
		),
	}, nil
}

// Describe returns the strategy descriptor.
func (s *TimeBucketed) Describe() Descriptor { return s.descriptor }

// CalculatePoints scores the completion by elapsed-time bucket.
func (s *TimeBucketed) CalculatePoints(ctx context.Context, in Input) (Result, error) {
	if err := validateInput(in); err != nil {
		return Result{}, err
	}
	values, err := s.descriptor.Values(in.Overrides)
	if err != nil {
		return Result{}, err
	}
	byUser, err := completionsByUser(ctx, s.records, in.GameID, in.Task.ExternalTaskID)
	if err != nil {
		return Result{}, err
	}

	factor, label := staleFactor, CaseFirstOrStale
	if times := byUser[in.ExternalUserID]; len(times) > 0 {
		elapsed := s.clock().Sub(times[len(times)-1])
		for _, b := range elapsedBuckets {
			if elapsed < b.below {
				factor, label = b.factor, b.label
				break
			}
		}
	}
	points := math.Round(float64(values.Int("base_points")) * values.Float("complexity") * factor)
	return Result{Points: max(0, int(points)), Case: label}, nil
}

var _ Strategy = (*TimeBucketed)(nil)
