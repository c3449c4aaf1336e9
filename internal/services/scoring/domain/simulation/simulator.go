package simulation

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/questline/internal/platform/errors"
	"github.com/louisbranch/questline/internal/services/scoring/domain/task"
	"github.com/louisbranch/questline/internal/services/scoring/storage"
)

const tracerName = "github.com/louisbranch/questline/internal/services/scoring/domain/simulation"

// Params tunes the dimensional algorithms.
type Params struct {
	BasePoints int
	// Cooldown is how old a user's record for the same task must be before
	// previews for it are zeroed.
	Cooldown time.Duration
	// TTL is how long a preview stays redeemable.
	TTL time.Duration
	// StreakDivisor scales consecutive active days in the streak exponent.
	StreakDivisor int
}

// DefaultParams returns the production tuning.
func DefaultParams() Params {
	return Params{
		BasePoints:    10,
		Cooldown:      5 * time.Minute,
		TTL:           30 * time.Minute,
		StreakDivisor: 5,
	}
}

// normalized fills unset fields from DefaultParams. A zero Params is the
// default tuning.
func (p Params) normalized() Params {
	def := DefaultParams()
	if p == (Params{}) {
		return def
	}
	if p.BasePoints < 0 {
		p.BasePoints = 0
	}
	if p.Cooldown < 0 {
		p.Cooldown = def.Cooldown
	}
	if p.TTL <= 0 {
		p.TTL = def.TTL
	}
	if p.StreakDivisor <= 0 {
		p.StreakDivisor = def.StreakDivisor
	}
	return p
}

// Request describes one preview.
type Request struct {
	GameID         string
	Task           task.Task
	Tasks          []task.Task
	ExternalUserID string
	Cohort         Cohort
	Params         Params
}

func (r Request) validate() error {
	missing := make([]string, 0, 4)
	if strings.TrimSpace(r.GameID) == "" {
		missing = append(missing, "game")
	}
	if strings.TrimSpace(r.Task.ExternalTaskID) == "" {
		missing = append(missing, "task")
	}
	if len(r.Tasks) == 0 {
		missing = append(missing, "tasks")
	}
	if strings.TrimSpace(r.ExternalUserID) == "" {
		missing = append(missing, "user")
	}
	if len(missing) == 0 {
		return nil
	}
	return apperrors.WithMetadata(apperrors.CodeSimulationInputMissing, "missing data", map[string]string{
		"Fields": strings.Join(missing, ", "),
	})
}

// Simulator produces SimulationSnapshots from completion history.
type Simulator struct {
	records storage.RecordReader
	clock   func() time.Time
	intN    func(int) int
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Simulator) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIntN overrides the random source used by the random_range cohort. It
// must return a value in [0, n).
func WithIntN(intN func(int) int) Option {
	return func(s *Simulator) {
		if intN != nil {
			s.intN = intN
		}
	}
}

// NewSimulator creates a simulator over the given history.
func NewSimulator(records storage.RecordReader, opts ...Option) (*Simulator, error) {
	if records == nil {
		return nil, errors.New("record reader is required")
	}
	s := &Simulator{
		records: records,
		clock:   time.Now,
		intN:    rand.IntN,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Simulate previews the score for req.Task.
func (s *Simulator) Simulate(ctx context.Context, req Request) (Snapshot, error) {
	snapshots, err := s.simulate(ctx, req, []task.Task{req.Task})
	if err != nil {
		return Snapshot{}, err
	}
	return snapshots[0], nil
}

// Preview previews every task in req.Tasks, loading history once.
func (s *Simulator) Preview(ctx context.Context, req Request) ([]Snapshot, error) {
	return s.simulate(ctx, req, req.Tasks)
}

func (s *Simulator) simulate(ctx context.Context, req Request, targets []task.Task) ([]Snapshot, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.Cohort == "" {
		req.Cohort = CohortDynamicCalculation
	}
	if _, err := ParseCohort(string(req.Cohort)); err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "simulation.Preview",
		trace.WithAttributes(
			attribute.String("game_id", req.GameID),
			attribute.String("cohort", string(req.Cohort)),
			attribute.Int("targets", len(targets)),
		),
	)
	defer span.End()

	hist, err := s.loadHistory(ctx, req.GameID, req.ExternalUserID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load history failed")
		return nil, err
	}

	params := req.Params.normalized()
	now := s.clock().UTC()
	expiresAt := now.Add(params.TTL).Truncate(time.Microsecond)

	out := make([]Snapshot, 0, len(targets))
	for _, target := range targets {
		snap := Snapshot{
			ExternalUserID: req.ExternalUserID,
			ExternalTaskID: target.ExternalTaskID,
			Cohort:         req.Cohort,
			ExpiresAt:      expiresAt,
		}
		if !hist.cooledDown(target.ExternalTaskID, now, params.Cooldown) {
			snap.Dimensions = s.dimensions(req.Cohort, target, req.Tasks, hist, params, now)
		}
		out = append(out, snap)
	}
	return out, nil
}

func (s *Simulator) dimensions(cohort Cohort, t task.Task, tasks []task.Task, hist history, params Params, now time.Time) Dimensions {
	switch cohort {
	case CohortRandomRange:
		return randomRange(hist.breakdowns(), s.intN)
	case CohortAverageScore:
		return averageScore(hist.breakdowns())
	default:
		return dynamicCalculation(t, tasks, hist, params, now)
	}
}

type history struct {
	game []storage.CompletionRecord
	user []storage.CompletionRecord
}

func (s *Simulator) loadHistory(ctx context.Context, gameID, externalUserID string) (history, error) {
	game, err := s.records.ListGameRecords(ctx, gameID)
	if err != nil {
		return history{}, err
	}
	user, err := s.records.ListUserRecords(ctx, gameID, externalUserID)
	if err != nil {
		return history{}, err
	}
	return history{game: game, user: user}, nil
}

// cooledDown reports whether the user already completed the task longer
// than cooldown ago.
func (h history) cooledDown(externalTaskID string, now time.Time, cooldown time.Duration) bool {
	for _, r := range h.user {
		if r.ExternalTaskID == externalTaskID && now.Sub(r.CreatedAt) > cooldown {
			return true
		}
	}
	return false
}

func (h history) breakdowns() []Dimensions {
	out := make([]Dimensions, 0, len(h.game))
	for _, r := range h.game {
		if d, ok := DimensionsFromBreakdown(r.Breakdown); ok {
			out = append(out, d)
		}
	}
	return out
}
