package simulation

import (
	"math"
	"sort"
	"time"

	"github.com/louisbranch/questline/internal/services/scoring/domain/task"
	"github.com/louisbranch/questline/internal/services/scoring/storage"
)

const (
	defaultRangeMin = 0
	defaultRangeMax = 10
	defaultAverage  = 5
	minAlpha        = 0.1
	maxAlpha        = 0.5
)

func randomRange(observed []Dimensions, intN func(int) int) Dimensions {
	var out Dimensions
	for _, dim := range AllDimensions {
		lo, hi := defaultRangeMin, defaultRangeMax
		if len(observed) > 0 {
			lo, hi = observed[0][dim], observed[0][dim]
			for _, d := range observed[1:] {
				lo = min(lo, d[dim])
				hi = max(hi, d[dim])
			}
		}
		out[dim] = lo + intN(hi-lo+1)
	}
	return out
}

func averageScore(observed []Dimensions) Dimensions {
	var out Dimensions
	for _, dim := range AllDimensions {
		if len(observed) == 0 {
			out[dim] = defaultAverage
			continue
		}
		sum := 0
		for _, d := range observed {
			sum += d[dim]
		}
		out[dim] = roundPoints(float64(sum) / float64(len(observed)))
	}
	return out
}

func dynamicCalculation(t task.Task, tasks []task.Task, hist history, params Params, now time.Time) Dimensions {
	base := float64(params.BasePoints)
	poiTasks := task.SharingPointOfInterest(t, tasks)

	var d Dimensions
	d[DimBP] = basePoints(base, poiTasks, hist.game)
	d[DimLBE] = locationBonus(base, t, poiTasks, hist.game)
	d[DimTD] = timeDiversity(base, t, hist.game, now)
	d[DimPP] = performancePace(base, recordTimes(hist.user), now)
	d[DimS] = streak(base, ConsecutiveDays(recordTimes(hist.user), now), params.StreakDivisor)
	return d
}

// basePoints discounts base by the share of the point of interest's tasks
// anyone has already completed.
func basePoints(base float64, poiTasks []task.Task, game []storage.CompletionRecord) int {
	inPOI := make(map[string]bool, len(poiTasks))
	for _, pt := range poiTasks {
		inPOI[pt.ExternalTaskID] = true
	}
	completed := make(map[string]bool)
	for _, r := range game {
		if inPOI[r.ExternalTaskID] {
			completed[r.ExternalTaskID] = true
		}
	}
	return roundPoints(base * (1 - float64(len(completed))/float64(len(poiTasks))))
}

// locationBonus grants half the base when t has fewer records than the
// average task at its point of interest.
func locationBonus(base float64, t task.Task, poiTasks []task.Task, game []storage.CompletionRecord) int {
	counts := make(map[string]int, len(poiTasks))
	for _, pt := range poiTasks {
		counts[pt.ExternalTaskID] = 0
	}
	total := 0
	for _, r := range game {
		if _, ok := counts[r.ExternalTaskID]; ok {
			counts[r.ExternalTaskID]++
			total++
		}
	}
	average := float64(total) / float64(len(counts))
	if float64(counts[t.ExternalTaskID]) < average {
		return roundPoints(base / 2)
	}
	return 0
}

// timeDiversity rewards completing t in a time-of-day bucket where it is
// rarely completed.
func timeDiversity(base float64, t task.Task, game []storage.CompletionRecord, now time.Time) int {
	bucket := task.BucketOf(now)
	current, other := 0, 0
	for _, r := range game {
		if r.ExternalTaskID != t.ExternalTaskID {
			continue
		}
		if task.BucketOf(r.CreatedAt) == bucket {
			current++
		} else {
			other++
		}
	}
	if other == 0 {
		return roundPoints(base)
	}
	return roundPoints(base * math.Max(0, 1-float64(current)/float64(other)))
}

// performancePace compares the exponentially smoothed gap between the
// user's actions, this one included, with their mean gap.
func performancePace(base float64, times []time.Time, now time.Time) int {
	series := append(append([]time.Time(nil), times...), now)
	sort.Slice(series, func(i, j int) bool { return series[i].Before(series[j]) })

	gaps := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		gaps = append(gaps, series[i].Sub(series[i-1]).Seconds())
	}
	ratio := paceRatio(gaps)
	return roundPoints(base * math.Max(0, ratio))
}

// paceRatio is neutral (1) with fewer than two gaps: a single smoothed gap
// equals its own mean whatever the smoothing factor.
func paceRatio(gaps []float64) float64 {
	if len(gaps) < 2 {
		return 1
	}
	alpha := smoothingFactor(len(gaps))
	smoothed := gaps[0]
	sum := gaps[0]
	for _, g := range gaps[1:] {
		smoothed = alpha*g + (1-alpha)*smoothed
		sum += g
	}
	mean := sum / float64(len(gaps))
	if mean == 0 {
		return 1
	}
	return smoothed / mean
}

func smoothingFactor(samples int) float64 {
	return math.Min(maxAlpha, math.Max(minAlpha, 2/float64(samples+1)))
}

func streak(base float64, days, divisor int) int {
	return roundPoints(base * math.Pow(2, float64(days)/float64(divisor)))
}

// ConsecutiveDays counts UTC days with at least one action, walking back
// from the day containing now and stopping at the first day without one.
func ConsecutiveDays(times []time.Time, now time.Time) int {
	active := make(map[string]bool, len(times))
	for _, at := range times {
		active[at.UTC().Format(time.DateOnly)] = true
	}
	days := 0
	for day := now.UTC(); active[day.Format(time.DateOnly)]; day = day.AddDate(0, 0, -1) {
		days++
	}
	return days
}

func recordTimes(records []storage.CompletionRecord) []time.Time {
	out := make([]time.Time, 0, len(records))
	for _, r := range records {
		out = append(out, r.CreatedAt)
	}
	return out
}

func roundPoints(v float64) int {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return int(math.Round(v))
}
