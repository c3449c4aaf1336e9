package task

import (
	"testing"
	"time"
)

func TestPointOfInterest(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"POI_1-T_1", "POI_1"},
		{"POI_1-T_2-extra", "POI_1"},
		{" POI_2-T_1 ", "POI_2"},
		{"solo", "solo"},
		{"-leading", "-leading"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := PointOfInterest(tc.id); got != tc.want {
			t.Fatalf("PointOfInterest(%q) = %q, want %q", tc.id, got, tc.want)
		}
	}
}

func TestSharingPointOfInterest(t *testing.T) {
	tasks := []Task{
		{ExternalTaskID: "A-1"},
		{ExternalTaskID: "A-2"},
		{ExternalTaskID: "B-1"},
	}

	got := SharingPointOfInterest(Task{ExternalTaskID: "A-1"}, tasks)
	if len(got) != 2 {
		t.Fatalf("expected 2 tasks sharing A, got %d", len(got))
	}

	missing := SharingPointOfInterest(Task{ExternalTaskID: "A-9"}, tasks)
	if len(missing) != 3 {
		t.Fatalf("expected target appended to its group, got %d", len(missing))
	}
	if missing[2].ExternalTaskID != "A-9" {
		t.Fatalf("expected appended target last, got %s", missing[2].ExternalTaskID)
	}
}

func TestFind(t *testing.T) {
	tasks := []Task{{ExternalTaskID: "A-1"}, {ExternalTaskID: "A-2"}}
	if got, ok := Find(tasks, "A-2"); !ok || got.ExternalTaskID != "A-2" {
		t.Fatalf("expected to find A-2, got %+v %v", got, ok)
	}
	if _, ok := Find(tasks, "A-3"); ok {
		t.Fatal("expected A-3 to be missing")
	}
}

func TestBucketOf(t *testing.T) {
	day := time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		hour int
		want TimeBucket
	}{
		{0, BucketNight},
		{5, BucketNight},
		{6, BucketMorning},
		{11, BucketMorning},
		{12, BucketAfternoon},
		{17, BucketAfternoon},
		{18, BucketEvening},
		{23, BucketEvening},
	}
	for _, tc := range tests {
		if got := BucketOf(day.Add(time.Duration(tc.hour) * time.Hour)); got != tc.want {
			t.Fatalf("hour %d: got %s, want %s", tc.hour, got, tc.want)
		}
	}

	offset := time.FixedZone("UTC-3", -3*60*60)
	if got := BucketOf(time.Date(2026, time.March, 3, 5, 0, 0, 0, offset)); got != BucketMorning {
		t.Fatalf("expected buckets to use UTC hour, got %s", got)
	}
}
