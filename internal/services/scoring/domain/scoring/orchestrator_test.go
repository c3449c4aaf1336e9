package scoring

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/louisbranch/questline/internal/platform/errors"
	"github.com/louisbranch/questline/internal/services/scoring/domain/commitment"
	"github.com/louisbranch/questline/internal/services/scoring/domain/simulation"
	"github.com/louisbranch/questline/internal/services/scoring/domain/strategy"
	"github.com/louisbranch/questline/internal/services/scoring/domain/task"
	"github.com/louisbranch/questline/internal/services/scoring/storage/memory"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

type fixture struct {
	clock        *testClock
	store        *memory.Store
	codec        *commitment.Codec
	orchestrator *Orchestrator
}

func newFixture(t *testing.T, withRedemptions bool) fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2026, time.March, 10, 14, 0, 0, 0, time.UTC)}
	store := memory.New()
	sim, err := simulation.NewSimulator(store, simulation.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	ring, err := commitment.NewKeyring(map[string][]byte{"v1": []byte("secret")}, "v1")
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	codec, err := commitment.NewCodec(ring)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	opts := []Option{WithClock(clock.Now)}
	if withRedemptions {
		opts = append(opts, WithRedemptions(store))
	}
	orchestrator, err := NewOrchestrator(sim, codec, opts...)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return fixture{clock: clock, store: store, codec: codec, orchestrator: orchestrator}
}

func baseRequest() Request {
	tasks := []task.Task{
		{GameID: "game-1", ExternalTaskID: "A-1"},
		{GameID: "game-1", ExternalTaskID: "A-2"},
	}
	return Request{
		GameID:         "game-1",
		Task:           tasks[0],
		Tasks:          tasks,
		ExternalUserID: "user-1",
		Params:         simulation.DefaultParams(),
	}
}

func previewed(t *testing.T, f fixture) Request {
	t.Helper()
	req := baseRequest()
	snapshots, digest, err := f.orchestrator.Preview(context.Background(), req)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	req.Payload = strategy.Payload{Snapshots: snapshots, Commitment: digest}
	return req
}

func TestNewOrchestratorRequiresCollaborators(t *testing.T) {
	f := newFixture(t, false)
	if _, err := NewOrchestrator(nil, f.codec); err == nil {
		t.Fatal("expected error for nil simulator")
	}
	sim, _ := simulation.NewSimulator(f.store)
	if _, err := NewOrchestrator(sim, nil); err == nil {
		t.Fatal("expected error for nil codec")
	}
}

func TestCalculatePointsWithoutSnapshotsIsFresh(t *testing.T) {
	f := newFixture(t, true)
	outcome, err := f.orchestrator.CalculatePoints(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if outcome.Case != CaseFresh {
		t.Fatalf("case = %q, want %q", outcome.Case, CaseFresh)
	}
	if !outcome.Regenerated() || len(outcome.Snapshots) != 2 {
		t.Fatalf("expected regenerated snapshots, got %d", len(outcome.Snapshots))
	}
	if outcome.Points != outcome.Snapshot.Total() || outcome.Points <= 0 {
		t.Fatalf("points = %d, snapshot total = %d", outcome.Points, outcome.Snapshot.Total())
	}
	ok, err := f.codec.Verify("game-1", "user-1", outcome.Snapshots, outcome.Commitment)
	if err != nil || !ok {
		t.Fatalf("expected regenerated commitment to verify, ok=%v err=%v", ok, err)
	}
}

func TestCalculatePointsReusesValidPreview(t *testing.T) {
	f := newFixture(t, true)
	req := previewed(t, f)
	want, _ := simulation.FindSnapshot(req.Payload.Snapshots, "A-1")

	outcome, err := f.orchestrator.CalculatePoints(context.Background(), req)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if outcome.Case != CaseReused {
		t.Fatalf("case = %q, want %q", outcome.Case, CaseReused)
	}
	if outcome.Points != want.Total() {
		t.Fatalf("points = %d, want %d", outcome.Points, want.Total())
	}
	if outcome.Regenerated() {
		t.Fatal("expected no regenerated snapshots for a reused preview")
	}
}

func TestCalculatePointsDetectsTamper(t *testing.T) {
	f := newFixture(t, true)
	req := previewed(t, f)
	req.Payload.Snapshots[0].Dimensions[simulation.DimS] += 50

	outcome, err := f.orchestrator.CalculatePoints(context.Background(), req)
	if err != nil {
		t.Fatalf("expected tamper to be a value, got error %v", err)
	}
	if outcome.Points != InvalidCommitmentPoints || outcome.Case != CaseInvalidCommitment {
		t.Fatalf("got (%d, %q), want (-1, %q)", outcome.Points, outcome.Case, CaseInvalidCommitment)
	}
}

func TestCalculatePointsDetectsForeignUser(t *testing.T) {
	f := newFixture(t, true)
	req := previewed(t, f)
	req.ExternalUserID = "user-2"

	outcome, err := f.orchestrator.CalculatePoints(context.Background(), req)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if outcome.Points != InvalidCommitmentPoints {
		t.Fatalf("expected preview bound to another user to be rejected, got %d", outcome.Points)
	}
}

func TestCalculatePointsRegeneratesExpiredPreview(t *testing.T) {
	f := newFixture(t, true)
	req := previewed(t, f)
	stale, _ := simulation.FindSnapshot(req.Payload.Snapshots, "A-1")
	f.clock.now = stale.ExpiresAt.Add(time.Second)

	outcome, err := f.orchestrator.CalculatePoints(context.Background(), req)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if outcome.Case != CaseReusedExpired {
		t.Fatalf("case = %q, want %q", outcome.Case, CaseReusedExpired)
	}
	if outcome.Points < 0 {
		t.Fatalf("expected non-negative points, got %d", outcome.Points)
	}
	if !outcome.Regenerated() {
		t.Fatal("expected regenerated snapshots")
	}
	if !outcome.Snapshot.ExpiresAt.After(stale.ExpiresAt) {
		t.Fatal("expected the award to come from a new preview, not the stale one")
	}
}

func TestCalculatePointsReplayIsLabelled(t *testing.T) {
	f := newFixture(t, true)
	req := previewed(t, f)
	req.Redeem = true

	first, err := f.orchestrator.CalculatePoints(context.Background(), req)
	if err != nil {
		t.Fatalf("first redemption: %v", err)
	}
	if first.Case != CaseReused || !first.Claimed {
		t.Fatalf("first redemption = (%q, claimed=%v), want (%q, true)", first.Case, first.Claimed, CaseReused)
	}
	second, err := f.orchestrator.CalculatePoints(context.Background(), req)
	if err != nil {
		t.Fatalf("second redemption: %v", err)
	}
	if second.Case != CaseReplayed || !second.Regenerated() {
		t.Fatalf("expected replay to regenerate as %q, got case %q", CaseReplayed, second.Case)
	}
	if second.Claimed {
		t.Fatal("replay must not report a new claim")
	}

	fresh, err := f.orchestrator.CalculatePoints(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("no-payload calculation: %v", err)
	}
	if fresh.Case == second.Case {
		t.Fatalf("replay and fresh calculation share case %q", fresh.Case)
	}
}

func TestCalculatePointsLookupDoesNotClaim(t *testing.T) {
	f := newFixture(t, true)
	req := previewed(t, f)

	for i := 0; i < 2; i++ {
		outcome, err := f.orchestrator.CalculatePoints(context.Background(), req)
		if err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
		if outcome.Case != CaseReused || outcome.Claimed {
			t.Fatalf("lookup %d = (%q, claimed=%v), want (%q, false)", i, outcome.Case, outcome.Claimed, CaseReused)
		}
	}

	req.Redeem = true
	outcome, err := f.orchestrator.CalculatePoints(context.Background(), req)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if outcome.Case != CaseReused || outcome.Regenerated() || !outcome.Claimed {
		t.Fatalf("redeem after lookups = (%q, regenerated=%v, claimed=%v)", outcome.Case, outcome.Regenerated(), outcome.Claimed)
	}

	req.Redeem = false
	outcome, err = f.orchestrator.CalculatePoints(context.Background(), req)
	if err != nil {
		t.Fatalf("lookup after redeem: %v", err)
	}
	if outcome.Case != CaseReplayed {
		t.Fatalf("lookup after redeem case = %q, want %q", outcome.Case, CaseReplayed)
	}
}

func TestReleaseAllowsRedeemingAgain(t *testing.T) {
	f := newFixture(t, true)
	req := previewed(t, f)
	req.Redeem = true

	if _, err := f.orchestrator.CalculatePoints(context.Background(), req); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if err := f.orchestrator.Release(context.Background(), req); err != nil {
		t.Fatalf("release: %v", err)
	}
	outcome, err := f.orchestrator.CalculatePoints(context.Background(), req)
	if err != nil {
		t.Fatalf("redeem after release: %v", err)
	}
	if outcome.Case != CaseReused || !outcome.Claimed {
		t.Fatalf("redeem after release = (%q, claimed=%v)", outcome.Case, outcome.Claimed)
	}
}

func TestCalculatePointsWithoutRedemptionStoreSkipsReplayCheck(t *testing.T) {
	f := newFixture(t, false)
	req := previewed(t, f)
	req.Redeem = true
	for i := 0; i < 2; i++ {
		outcome, err := f.orchestrator.CalculatePoints(context.Background(), req)
		if err != nil {
			t.Fatalf("calculate: %v", err)
		}
		if outcome.Case != CaseReused {
			t.Fatalf("redemption %d case = %q", i, outcome.Case)
		}
	}
}

func TestCalculatePointsTaskMissingFromPreview(t *testing.T) {
	f := newFixture(t, true)
	req := previewed(t, f)
	req.Task = task.Task{GameID: "game-1", ExternalTaskID: "B-1"}

	outcome, err := f.orchestrator.CalculatePoints(context.Background(), req)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if outcome.Case != CaseFresh || outcome.Snapshot.ExternalTaskID != "B-1" {
		t.Fatalf("expected fresh preview for B-1, got %q for %q", outcome.Case, outcome.Snapshot.ExternalTaskID)
	}
}

func TestCalculatePointsMissingInput(t *testing.T) {
	f := newFixture(t, true)
	req := baseRequest()
	req.ExternalUserID = ""
	_, err := f.orchestrator.CalculatePoints(context.Background(), req)
	if apperrors.CodeOf(err) != apperrors.CodeSimulationInputMissing {
		t.Fatalf("expected missing input error, got %v", err)
	}
}
