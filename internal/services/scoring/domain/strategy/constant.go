package strategy

import (
	"context"

	"github.com/louisbranch/questline/internal/services/scoring/storage"
)

const (
	ConstantID = "constant"

	CaseBasic         = "basic"
	CaseIntervalBonus = "interval_bonus"
)

// Constant awards fixed points per completion, with a bonus on every
// interval-th completion of the same task by the same user.
type Constant struct {
	records    storage.RecordReader
	descriptor Descriptor
}

// NewConstant creates the constant-interval strategy.
func NewConstant(records storage.RecordReader) (*Constant, error) {
	if records == nil {
		return nil, errRecordsRequired
	}
	return &Constant{
		records: records,
		descriptor: NewDescriptor(ConstantID, "Constant interval",
			"Fixed points per completion plus a bonus every interval completions.", "1",
			Variable{Name: "basic_points", Kind: KindInt, Default: "1", Description: "Points for every completion."},
			Variable{Name: "bonus_points", Kind: KindInt, Default: "10", Description: "Extra points on interval completions."},
			Variable{Name: "interval", Kind: KindInt, Default: "5", Description: "Completions between bonuses; 0 disables the bonus."},
		),
	}, nil
}

// Describe returns the strategy descriptor.
func (s *Constant) Describe() Descriptor { return s.descriptor }

// CalculatePoints scores the user's next completion of the task.
func (s *Constant) CalculatePoints(ctx context.Context, in Input) (Result, error) {
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

	n := len(byUser[in.ExternalUserID]) + 1
	points := values.Int("basic_points")
	if interval := values.Int("interval"); interval > 0 && n%interval == 0 {
		return Result{Points: points + values.Int("bonus_points"), Case: CaseIntervalBonus}, nil
	}
	return Result{Points: points, Case: CaseBasic}, nil
}

var _ Strategy = (*Constant)(nil)
