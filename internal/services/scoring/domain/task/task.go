// Package task models the gamified tasks that completion events are scored
// against, and the groupings the scoring algorithms derive from them.
package task

import (
	"strings"
	"time"
)

// Task is one scoreable action inside a game.
type Task struct {
	GameID         string
	ExternalTaskID string
	// Variables holds per-task strategy overrides.
	Variables map[string]string
}

// poiSeparator splits "<point-of-interest>-<task>" external task ids.
const poiSeparator = "-"

// PointOfInterest returns the location grouping encoded in an external task
// id. Ids take the form "<poi>-<task>"; ids without a separator form their
// own group.
func PointOfInterest(externalTaskID string) string {
	id := strings.TrimSpace(externalTaskID)
	if i := strings.Index(id, poiSeparator); i > 0 {
		return id[:i]
	}
	return id
}

// SharingPointOfInterest returns the tasks grouped with t, t included even
// when tasks does not list it.
func SharingPointOfInterest(t Task, tasks []Task) []Task {
	poi := PointOfInterest(t.ExternalTaskID)
	out := make([]Task, 0, len(tasks)+1)
	seen := false
	for _, candidate := range tasks {
		if PointOfInterest(candidate.ExternalTaskID) != poi {
			continue
		}
		if candidate.ExternalTaskID == t.ExternalTaskID {
			if seen {
				continue
			}
			seen = true
		}
		out = append(out, candidate)
	}
	if !seen {
		out = append(out, t)
	}
	return out
}

// Find returns the task with externalTaskID from tasks.
func Find(tasks []Task, externalTaskID string) (Task, bool) {
	for _, t := range tasks {
		if t.ExternalTaskID == externalTaskID {
			return t, true
		}
	}
	return Task{}, false
}

// TimeBucket is a six-hour slice of the UTC day.
type TimeBucket string

const (
	BucketNight     TimeBucket = "night"
	BucketMorning   TimeBucket = "morning"
	BucketAfternoon TimeBucket = "afternoon"
	BucketEvening   TimeBucket = "evening"
)

// BucketOf returns the time-of-day bucket containing at.
func BucketOf(at time.Time) TimeBucket {
	switch hour := at.UTC().Hour(); {
	case hour < 6:
		return BucketNight
	case hour < 12:
		return BucketMorning
	case hour < 18:
		return BucketAfternoon
	default:
		return BucketEvening
	}
}
