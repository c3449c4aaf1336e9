package strategy

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "github.com/louisbranch/questline/internal/platform/errors"
	"github.com/louisbranch/questline/internal/services/scoring/storage"
)

var errRecordsRequired = errors.New("record reader is required")

func validateInput(in Input) error {
	missing := make([]string, 0, 3)
	if strings.TrimSpace(in.GameID) == "" {
		missing = append(missing, "game")
	}
	if strings.TrimSpace(in.Task.ExternalTaskID) == "" {
		missing = append(missing, "task")
	}
	if strings.TrimSpace(in.ExternalUserID) == "" {
		missing = append(missing, "user")
	}
	if len(missing) == 0 {
		return nil
	}
	return apperrors.WithMetadata(apperrors.CodeSimulationInputMissing, "missing data", map[string]string{
		"Fields": strings.Join(missing, ", "),
	})
}

// completionsByUser groups a task's completion times by user.
func completionsByUser(ctx context.Context, records storage.RecordReader, gameID, externalTaskID string) (map[string][]time.Time, error) {
	list, err := records.ListTaskRecords(ctx, gameID, externalTaskID)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]time.Time)
	for _, r := range list {
		out[r.ExternalUserID] = append(out[r.ExternalUserID], r.CreatedAt)
	}
	return out, nil
}

// gaps returns the durations between consecutive ascending times.
func gaps(times []time.Time) []time.Duration {
	if len(times) < 2 {
		return nil
	}
	out := make([]time.Duration, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		out = append(out, times[i].Sub(times[i-1]))
	}
	return out
}

func meanDuration(values []time.Duration) time.Duration {
	if len(values) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range values {
		sum += v
	}
	return sum / time.Duration(len(values))
}
