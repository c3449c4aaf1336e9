// Package scoring redeems score previews into awarded points.
package scoring

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/questline/internal/platform/errors"
	"github.com/louisbranch/questline/internal/services/scoring/domain/commitment"
	"github.com/louisbranch/questline/internal/services/scoring/domain/simulation"
	"github.com/louisbranch/questline/internal/services/scoring/domain/strategy"
	"github.com/louisbranch/questline/internal/services/scoring/domain/task"
	"github.com/louisbranch/questline/internal/services/scoring/storage"
)

const tracerName = "github.com/louisbranch/questline/internal/services/scoring/domain/scoring"

// Outcome labels.
const (
	CaseFresh             = "fresh"
	CaseReused            = "reused"
	CaseReusedExpired     = "reused-expired"
	CaseReplayed          = "replayed"
	CaseInvalidCommitment = "invalid commitment"
)

// InvalidCommitmentPoints is returned when a presented commitment does not
// match its snapshots.
const InvalidCommitmentPoints = -1

// Request describes one redemption.
type Request struct {
	GameID         string
	Task           task.Task
	Tasks          []task.Task
	ExternalUserID string
	Payload        strategy.Payload
	// Redeem claims the presented commitment. Otherwise a prior claim is
	// only looked up.
	Redeem bool
	// Cohort selects how regenerated previews are produced. Blank means
	// dynamic_calculation.
	Cohort simulation.Cohort
	Params simulation.Params
}

// Outcome is the resolved award.
type Outcome struct {
	Points int
	Case   string
	// Snapshot is the preview the points came from. It is zero for an
	// invalid commitment.
	Snapshot simulation.Snapshot
	// Snapshots and Commitment are set when a new preview was generated.
	Snapshots  []simulation.Snapshot
	Commitment string
	// Claimed is set when this call newly claimed the presented commitment.
	Claimed bool
}

// Regenerated reports whether the outcome carries a new preview.
func (o Outcome) Regenerated() bool {
	return len(o.Snapshots) > 0
}

// Orchestrator verifies, expires and redeems previews.
type Orchestrator struct {
	simulator   *simulation.Simulator
	codec       *commitment.Codec
	redemptions storage.RedemptionStore
	clock       func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source used for expiry.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithRedemptions enables replay detection through store.
func WithRedemptions(store storage.RedemptionStore) Option {
	return func(o *Orchestrator) {
		o.redemptions = store
	}
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(simulator *simulation.Simulator, codec *commitment.Codec, opts ...Option) (*Orchestrator, error) {
	if simulator == nil {
		return nil, errors.New("simulator is required")
	}
	if codec == nil {
		return nil, errors.New("commitment codec is required")
	}
	o := &Orchestrator{
		simulator: simulator,
		codec:     codec,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Preview simulates every task for the user and commits to the result.
func (o *Orchestrator) Preview(ctx context.Context, req Request) ([]simulation.Snapshot, string, error) {
	tasks := req.Tasks
	if _, ok := task.Find(tasks, req.Task.ExternalTaskID); !ok && len(tasks) > 0 {
		tasks = append(append([]task.Task(nil), tasks...), req.Task)
	}
	snapshots, err := o.simulator.Preview(ctx, simulation.Request{
		GameID:         req.GameID,
		Task:           req.Task,
		Tasks:          tasks,
		ExternalUserID: req.ExternalUserID,
		Cohort:         req.Cohort,
		Params:         req.Params,
	})
	if err != nil {
		return nil, "", err
	}
	digest, err := o.codec.Compute(req.GameID, req.ExternalUserID, snapshots)
	if err != nil {
		return nil, "", err
	}
	return snapshots, digest, nil
}

// CalculatePoints resolves the award for req.
//
// Only dimensions re-validated against the commitment are trusted. A
// mismatched commitment yields InvalidCommitmentPoints rather than an error.
// Expired or replayed previews are regenerated server side. A replay is
// labelled CaseReplayed so it stays distinct from a first redemption.
func (o *Orchestrator) CalculatePoints(ctx context.Context, req Request) (Outcome, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "scoring.CalculatePoints",
		trace.WithAttributes(
			attribute.String("game_id", req.GameID),
			attribute.String("external_task_id", req.Task.ExternalTaskID),
			attribute.Int("presented_snapshots", len(req.Payload.Snapshots)),
		),
	)
	defer span.End()

	outcome, err := o.calculate(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "calculate points failed")
		return Outcome{}, err
	}
	span.SetAttributes(attribute.String("case", outcome.Case), attribute.Int("points", outcome.Points))
	return outcome, nil
}

func (o *Orchestrator) calculate(ctx context.Context, req Request) (Outcome, error) {
	if len(req.Payload.Snapshots) == 0 {
		return o.regenerate(ctx, req, CaseFresh)
	}

	ok, err := o.codec.Verify(req.GameID, req.ExternalUserID, req.Payload.Snapshots, req.Payload.Commitment)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{Points: InvalidCommitmentPoints, Case: CaseInvalidCommitment}, nil
	}

	selected, found := simulation.FindSnapshot(req.Payload.Snapshots, req.Task.ExternalTaskID)
	if !found {
		return o.regenerate(ctx, req, CaseFresh)
	}

	redeemed, claimed, err := o.redeem(ctx, req)
	if err != nil {
		return Outcome{}, err
	}
	if redeemed {
		return o.regenerate(ctx, req, CaseReplayed)
	}

	var outcome Outcome
	if selected.Expired(o.clock()) {
		outcome, err = o.regenerate(ctx, req, CaseReusedExpired)
		if err != nil {
			o.release(ctx, req, claimed)
			return Outcome{}, err
		}
	} else {
		outcome = Outcome{Points: selected.Total(), Case: CaseReused, Snapshot: selected}
	}
	outcome.Claimed = claimed
	return outcome, nil
}

// redeem reports whether the presented commitment was already redeemed and,
// when req.Redeem is set, whether this call claimed it.
func (o *Orchestrator) redeem(ctx context.Context, req Request) (redeemed, claimed bool, err error) {
	if o.redemptions == nil {
		return false, false, nil
	}
	key := redemptionKey(req)
	if !req.Redeem {
		redeemed, err = o.redemptions.Redeemed(ctx, key)
		if err != nil {
			return false, false, apperrors.Wrap(apperrors.CodeUnknown, "check redemption", err)
		}
		return redeemed, false, nil
	}
	redeemed, err = o.redemptions.ClaimRedemption(ctx, key, o.clock().UTC())
	if err != nil {
		return false, false, apperrors.Wrap(apperrors.CodeUnknown, "claim redemption", err)
	}
	return redeemed, !redeemed, nil
}

// Release drops a claim made by CalculatePoints whose award was not stored.
func (o *Orchestrator) Release(ctx context.Context, req Request) error {
	if o.redemptions == nil {
		return nil
	}
	if err := o.redemptions.ReleaseRedemption(ctx, redemptionKey(req)); err != nil {
		return apperrors.Wrap(apperrors.CodeUnknown, "release redemption", err)
	}
	return nil
}

func (o *Orchestrator) release(ctx context.Context, req Request, claimed bool) {
	if !claimed {
		return
	}
	if err := o.Release(ctx, req); err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
	}
}

func redemptionKey(req Request) storage.RedemptionKey {
	return storage.RedemptionKey{
		GameID:         req.GameID,
		ExternalTaskID: req.Task.ExternalTaskID,
		ExternalUserID: req.ExternalUserID,
		Commitment:     req.Payload.Commitment,
	}
}

func (o *Orchestrator) regenerate(ctx context.Context, req Request, label string) (Outcome, error) {
	snapshots, digest, err := o.Preview(ctx, req)
	if err != nil {
		return Outcome{}, err
	}
	selected, _ := simulation.FindSnapshot(snapshots, req.Task.ExternalTaskID)
	return Outcome{
		Points:     selected.Total(),
		Case:       label,
		Snapshot:   selected,
		Snapshots:  snapshots,
		Commitment: digest,
	}, nil
}
