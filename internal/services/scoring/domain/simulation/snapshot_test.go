package simulation

import (
	"encoding/json"
	"testing"
	"time"

	apperrors "github.com/louisbranch/questline/internal/platform/errors"
)

func TestSnapshotWireForm(t *testing.T) {
	snap := Snapshot{
		ExternalUserID: "user-1",
		ExternalTaskID: "A-1",
		Cohort:         CohortDynamicCalculation,
		Dimensions:     Dimensions{10, 5, 10, 8, 20},
		ExpiresAt:      time.Date(2026, time.March, 10, 14, 30, 0, 123456789, time.UTC),
	}
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"externalUserId":"user-1","externalTaskId":"A-1","cohort":"dynamic_calculation",` +
		`"dimensions":[{"DIM_BP":10},{"DIM_LBE":5},{"DIM_TD":10},{"DIM_PP":8},{"DIM_S":20}],` +
		`"totalSimulatedPoints":53,"expirationDate":"2026-03-10T14:30:00.123456+00:00"}`
	if string(data) != want {
		t.Fatalf("wire form mismatch\n got: %s\nwant: %s", data, want)
	}

	var decoded Snapshot
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Dimensions != snap.Dimensions {
		t.Fatalf("dimensions = %v", decoded.Dimensions)
	}
	if !decoded.ExpiresAt.Equal(snap.ExpiresAt.Truncate(time.Microsecond)) {
		t.Fatalf("expires at = %v", decoded.ExpiresAt)
	}
}

func TestSnapshotDecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{
			name: "total disagrees",
			data: `{"externalUserId":"u","externalTaskId":"A-1","cohort":"average_score","dimensions":[{"DIM_BP":1},{"DIM_LBE":1},{"DIM_TD":1},{"DIM_PP":1},{"DIM_S":1}],"totalSimulatedPoints":50,"expirationDate":"2026-03-10T14:30:00.000000+00:00"}`,
		},
		{
			name: "out of order",
			data: `{"externalUserId":"u","externalTaskId":"A-1","cohort":"average_score","dimensions":[{"DIM_LBE":1},{"DIM_BP":1},{"DIM_TD":1},{"DIM_PP":1},{"DIM_S":1}],"totalSimulatedPoints":5,"expirationDate":"2026-03-10T14:30:00.000000+00:00"}`,
		},
		{
			name: "missing dimension",
			data: `{"externalUserId":"u","externalTaskId":"A-1","cohort":"average_score","dimensions":[{"DIM_BP":1},{"DIM_LBE":1},{"DIM_TD":1},{"DIM_PP":1}],"totalSimulatedPoints":4,"expirationDate":"2026-03-10T14:30:00.000000+00:00"}`,
		},
		{
			name: "negative dimension",
			data: `{"externalUserId":"u","externalTaskId":"A-1","cohort":"average_score","dimensions":[{"DIM_BP":-1},{"DIM_LBE":1},{"DIM_TD":1},{"DIM_PP":1},{"DIM_S":1}],"totalSimulatedPoints":3,"expirationDate":"2026-03-10T14:30:00.000000+00:00"}`,
		},
		{
			name: "unknown cohort",
			data: `{"externalUserId":"u","externalTaskId":"A-1","cohort":"lottery","dimensions":[{"DIM_BP":1},{"DIM_LBE":1},{"DIM_TD":1},{"DIM_PP":1},{"DIM_S":1}],"totalSimulatedPoints":5,"expirationDate":"2026-03-10T14:30:00.000000+00:00"}`,
		},
		{
			name: "bad expiration",
			data: `{"externalUserId":"u","externalTaskId":"A-1","cohort":"average_score","dimensions":[{"DIM_BP":1},{"DIM_LBE":1},{"DIM_TD":1},{"DIM_PP":1},{"DIM_S":1}],"totalSimulatedPoints":5,"expirationDate":"tomorrow"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var snap Snapshot
			err := json.Unmarshal([]byte(tt.data), &snap)
			if apperrors.CodeOf(err) != apperrors.CodeSnapshotMalformed {
				t.Fatalf("expected malformed snapshot error, got %v", err)
			}
		})
	}
}

func TestSnapshotExpired(t *testing.T) {
	at := time.Date(2026, time.March, 10, 14, 0, 0, 0, time.UTC)
	snap := Snapshot{ExpiresAt: at}
	if snap.Expired(at.Add(-time.Second)) {
		t.Fatal("expected snapshot to be live before expiry")
	}
	if !snap.Expired(at) {
		t.Fatal("expected snapshot to be expired at expiry")
	}
}

func TestParseCohort(t *testing.T) {
	if c, err := ParseCohort(""); err != nil || c != CohortDynamicCalculation {
		t.Fatalf("blank cohort = %q, %v", c, err)
	}
	if c, err := ParseCohort(" Random_Range "); err != nil || c != CohortRandomRange {
		t.Fatalf("random cohort = %q, %v", c, err)
	}
	if _, err := ParseCohort("lottery"); err == nil {
		t.Fatal("expected error for unknown cohort")
	}
}

func TestDimensionsFromBreakdown(t *testing.T) {
	d := Dimensions{1, 2, 3, 4, 5}
	got, ok := DimensionsFromBreakdown(d.Breakdown())
	if !ok || got != d {
		t.Fatalf("round trip = %v, %v", got, ok)
	}
	if _, ok := DimensionsFromBreakdown(map[string]int{"DIM_BP": 1}); ok {
		t.Fatal("expected partial breakdown to be rejected")
	}
}
