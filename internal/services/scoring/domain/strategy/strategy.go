// Package strategy defines pluggable point-calculation strategies and the
// registry that resolves them by id.
//
// Strategies are side-effect free with respect to awarded points: they read
// history and return a result, and the caller decides whether to persist it.
// The one write a strategy may make is claiming a redeemed preview, and only
// when the input asks for it.
package strategy

import (
	"context"
	"time"

	"github.com/louisbranch/questline/internal/platform/encoding"
	"github.com/louisbranch/questline/internal/services/scoring/domain/simulation"
	"github.com/louisbranch/questline/internal/services/scoring/domain/task"
)

// Strategy calculates points for a task completion.
type Strategy interface {
	// Describe returns the immutable descriptor loaded at construction.
	Describe() Descriptor

	// CalculatePoints scores one completion of in.Task by in.ExternalUserID.
	CalculatePoints(ctx context.Context, in Input) (Result, error)
}

// Payload carries a previously issued preview back for redemption.
type Payload struct {
	Snapshots  []simulation.Snapshot
	Commitment string
}

// Input is the context a strategy scores against.
type Input struct {
	GameID         string
	Task           task.Task
	Tasks          []task.Task
	ExternalUserID string
	Payload        Payload
	// Overrides holds per-game and per-task variable overrides, task values
	// winning. Names the strategy does not declare are ignored.
	Overrides map[string]string
	// Redeem claims the presented preview so it cannot be redeemed again.
	// Without it, prior redemptions are only looked up.
	Redeem bool
}

// Result is the outcome of one calculation.
type Result struct {
	// Points is the award; -1 marks a rejected preview commitment.
	Points int
	// Case labels which branch of the strategy produced Points.
	Case string
	// Snapshots and Commitment are set when the strategy issued a new
	// preview.
	Snapshots  []simulation.Snapshot
	Commitment string
	// Breakdown holds per-dimension points for dimensional strategies.
	Breakdown map[string]int
	// Claimed reports that this call newly claimed the presented preview.
	// The claim must be released when the award is not stored.
	Claimed bool
}

// Descriptor describes a strategy and its tunables.
type Descriptor struct {
	ID          string
	Name        string
	Description string
	Version     string
	Variables   []Variable
	// Fingerprint is a content hash over id, version and variables, used to
	// detect algorithm drift between deployments.
	Fingerprint string
}

// NewDescriptor validates variable defaults and computes the fingerprint.
// It panics on invalid declarations since those are programming errors.
func NewDescriptor(id, name, description, version string, variables ...Variable) Descriptor {
	for _, v := range variables {
		if err := v.Kind.validate(v.Default); err != nil {
			panic("strategy " + id + ": variable " + v.Name + ": " + err.Error())
		}
	}
	fingerprint, err := encoding.ContentHash(struct {
		ID        string     `json:"id"`
		Version   string     `json:"version"`
		Variables []Variable `json:"variables"`
	}{ID: id, Version: version, Variables: variables})
	if err != nil {
		panic("strategy " + id + ": fingerprint: " + err.Error())
	}
	return Descriptor{
		ID:          id,
		Name:        name,
		Description: description,
		Version:     version,
		Variables:   append([]Variable(nil), variables...),
		Fingerprint: fingerprint,
	}
}

// Values resolves the descriptor's defaults with overrides applied.
func (d Descriptor) Values(overrides map[string]string) (Values, error) {
	return NewValues(d.Variables).With(overrides)
}

// Option configures the built-in strategies.
type Option func(*options)

type options struct {
	clock func() time.Time
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
