package strategy

import (
	"context"
	"time"

	"github.com/louisbranch/questline/internal/services/scoring/storage"
)

const (
	ComparativeID = "comparative"

	CaseNoGlobalHistory = "no_global_history"
	CaseNoUserHistory   = "no_user_history"
	CaseMuchFaster      = "much_faster"
	CaseFaster          = "faster"
	CaseSlower          = "slower"
	CaseMuchSlower      = "much_slower"
)

// Comparative compares how often the user repeats a task with how often
// everyone repeats it. Each case's points are a variable named after it.
type Comparative struct {
	records    storage.RecordReader
	clock      func() time.Time
	descriptor Descriptor
}

// NewComparative creates the comparative-performance strategy.
func NewComparative(records storage.RecordReader, opts ...Option) (*Comparative, error) {
	if records == nil {
		return nil, errRecordsRequired
	}
	o := applyOptions(opts)
	return &Comparative{
		records: records,
		clock:   o.clock,
		descriptor: NewDescriptor(ComparativeID, "Comparative performance",
			"Compares the user's mean time between completions with the global mean.", "1",
			Variable{Name: CaseNoGlobalHistory, Kind: KindInt, Default: "10"},
			Variable{Name: CaseNoUserHistory, Kind: KindInt, Default: "8"},
			Variable{Name: CaseMuchFaster, Kind: KindInt, Default: "4", Description: "User mean below half the global mean."},
			Variable{Name: CaseFaster, Kind: KindInt, Default: "6", Description: "User mean below the global mean."},
			Variable{Name: CaseSlower, Kind: KindInt, Default: "8", Description: "User mean up to twice the global mean."},
			Variable{Name: CaseMuchSlower, Kind: KindInt, Default: "10", Description: "User mean above twice the global mean."},
		),
	}, nil
}

// Describe returns the strategy descriptor.
func (s *Comparative) Describe() Descriptor { return s.descriptor }

// CalculatePoints classifies this completion against the global pace.
func (s *Comparative) CalculatePoints(ctx context.Context, in Input) (Result, error) {
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

	var global []time.Duration
	for _, times := range byUser {
		global = append(global, gaps(times)...)
	}
	label := classifyPace(
		meanDuration(gaps(append(byUser[in.ExternalUserID], s.clock()))),
		meanDuration(global),
		len(byUser[in.ExternalUserID]) > 0,
	)
	return Result{Points: values.Int(label), Case: label}, nil
}

func classifyPace(userMean, globalMean time.Duration, hasUserHistory bool) string {
	switch {
	case globalMean <= 0:
		return CaseNoGlobalHistory
	case !hasUserHistory:
		return CaseNoUserHistory
	}
	ratio := float64(userMean) / float64(globalMean)
	switch {
	case ratio < 0.5:
		return CaseMuchFaster
	case ratio < 1:
		return CaseFaster
	case ratio <= 2:
		return CaseSlower
	default:
		return CaseMuchSlower
	}
}

var _ Strategy = (*Comparative)(nil)
