package scoring

import (
	"context"
	"errors"

	"github.com/louisbranch/questline/internal/services/scoring/domain/simulation"
	"github.com/louisbranch/questline/internal/services/scoring/domain/strategy"
)

// DimensionalID identifies the dimensional strategy.
const DimensionalID = "dimensional"

// DimensionalStrategy scores completions by redeeming dimensional previews.
type DimensionalStrategy struct {
	orchestrator *Orchestrator
	descriptor   strategy.Descriptor
}

// NewDimensionalStrategy wraps orchestrator as a registry strategy.
func NewDimensionalStrategy(orchestrator *Orchestrator) (*DimensionalStrategy, error) {
	if orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	def := simulation.DefaultParams()
	return &DimensionalStrategy{
		orchestrator: orchestrator,
		descriptor: strategy.NewDescriptor(DimensionalID, "Dimensional simulation",
			"Redeems committed five-dimension previews, regenerating them when stale.", "1",
			strategy.Variable{Name: "base_points", Kind: strategy.KindInt, Default: "10"},
			strategy.Variable{Name: "cooldown", Kind: strategy.KindDuration, Default: def.Cooldown.String(), Description: "Age after which a completed task previews as zero."},
			strategy.Variable{Name: "snapshot_ttl", Kind: strategy.KindDuration, Default: def.TTL.String()},
			strategy.Variable{Name: "streak_divisor", Kind: strategy.KindInt, Default: "5"},
			strategy.Variable{Name: "cohort", Kind: strategy.KindString, Default: string(simulation.CohortDynamicCalculation)},
		),
	}, nil
}

// Describe returns the strategy descriptor.
func (s *DimensionalStrategy) Describe() strategy.Descriptor { return s.descriptor }

// Request resolves in into an orchestrator request.
func (s *DimensionalStrategy) Request(in strategy.Input) (Request, error) {
	values, err := s.descriptor.Values(in.Overrides)
	if err != nil {
		return Request{}, err
	}
	cohort, err := simulation.ParseCohort(values.String("cohort"))
	if err != nil {
		return Request{}, err
	}
	return Request{
		GameID:         in.GameID,
		Task:           in.Task,
		Tasks:          in.Tasks,
		ExternalUserID: in.ExternalUserID,
		Payload:        in.Payload,
		Redeem:         in.Redeem,
		Cohort:         cohort,
		Params: simulation.Params{
			BasePoints:    values.Int("base_points"),
			Cooldown:      values.Duration("cooldown"),
			TTL:           values.Duration("snapshot_ttl"),
			StreakDivisor: values.Int("streak_divisor"),
		},
	}, nil
}

// CalculatePoints redeems the presented preview.
func (s *DimensionalStrategy) CalculatePoints(ctx context.Context, in strategy.Input) (strategy.Result, error) {
	req, err := s.Request(in)
	if err != nil {
		return strategy.Result{}, err
	}
	outcome, err := s.orchestrator.CalculatePoints(ctx, req)
	if err != nil {
		return strategy.Result{}, err
	}
	result := strategy.Result{
		Points:     outcome.Points,
		Case:       outcome.Case,
		Snapshots:  outcome.Snapshots,
		Commitment: outcome.Commitment,
		Claimed:    outcome.Claimed,
	}
	if outcome.Points >= 0 {
		result.Breakdown = outcome.Snapshot.Dimensions.Breakdown()
	}
	return result, nil
}

// Release drops the redemption claim made for in.
func (s *DimensionalStrategy) Release(ctx context.Context, in strategy.Input) error {
	req, err := s.Request(in)
	if err != nil {
		return err
	}
	return s.orchestrator.Release(ctx, req)
}

// Preview issues a committed preview for every task in the input.
func (s *DimensionalStrategy) Preview(ctx context.Context, in strategy.Input) ([]simulation.Snapshot, string, error) {
	req, err := s.Request(in)
	if err != nil {
		return nil, "", err
	}
	return s.orchestrator.Preview(ctx, req)
}

var _ strategy.Strategy = (*DimensionalStrategy)(nil)
