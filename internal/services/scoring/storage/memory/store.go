// Package memory provides an in-process implementation of the scoring
// storage contracts. Counters are only consistent within one process, so the
// memory backend suits single-instance deployments and tests.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/questline/internal/services/scoring/storage"
)

type counterID struct {
	scopeType   string
	scopeValue  string
	windowName  string
	windowStart int64
}

type counter struct {
	count     int64
	windowEnd time.Time
}

// Store keeps scoring state in process memory.
type Store struct {
	mu          sync.Mutex
	counters    map[counterID]*counter
	records     []storage.CompletionRecord
	redemptions map[storage.RedemptionKey]time.Time
	games       map[string]storage.GameRecord
	tasks       map[string][]storage.TaskRecord
	audit       []storage.AuditEvent
}

// New creates an empty store.
func New() *Store {
	return &Store{
		counters:    make(map[counterID]*counter),
		redemptions: make(map[storage.RedemptionKey]time.Time),
		games:       make(map[string]storage.GameRecord),
		tasks:       make(map[string][]storage.TaskRecord),
	}
}

// IncrementCounter increments the counter for key and returns the new count.
func (s *Store) IncrementCounter(ctx context.Context, key storage.CounterKey) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	id := counterID{
		scopeType:   key.ScopeType,
		scopeValue:  key.ScopeValue,
		windowName:  key.WindowName,
		windowStart: key.WindowStart.UTC().UnixNano(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[id]
	if !ok {
		c = &counter{windowEnd: key.WindowEnd}
		s.counters[id] = c
	}
	c.count++
	return c.count, nil
}

// PruneCounters drops counters whose window ended before the cutoff.
func (s *Store) PruneCounters(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var pruned int64
	for id, c := range s.counters {
		if !c.windowEnd.IsZero() && c.windowEnd.Before(before) {
			delete(s.counters, id)
			pruned++
		}
	}
	return pruned, nil
}

// AppendCompletionRecord stores one completion.
func (s *Store) AppendCompletionRecord(ctx context.Context, record storage.CompletionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(record.GameID) == "" {
		return fmt.Errorf("game id is required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	record.Breakdown = maps.Clone(record.Breakdown)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// ListGameRecords returns every record of a game.
func (s *Store) ListGameRecords(ctx context.Context, gameID string) ([]storage.CompletionRecord, error) {
	return s.filterRecords(ctx, func(r storage.CompletionRecord) bool {
		return r.GameID == gameID
	})
}

// ListTaskRecords returns every record of one task.
func (s *Store) ListTaskRecords(ctx context.Context, gameID, externalTaskID string) ([]storage.CompletionRecord, error) {
	return s.filterRecords(ctx, func(r storage.CompletionRecord) bool {
		return r.GameID == gameID && r.ExternalTaskID == externalTaskID
	})
}

// ListUserRecords returns every record of one user in a game.
func (s *Store) ListUserRecords(ctx context.Context, gameID, externalUserID string) ([]storage.CompletionRecord, error) {
	return s.filterRecords(ctx, func(r storage.CompletionRecord) bool {
		return r.GameID == gameID && r.ExternalUserID == externalUserID
	})
}

func (s *Store) filterRecords(ctx context.Context, keep func(storage.CompletionRecord) bool) ([]storage.CompletionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := make([]storage.CompletionRecord, 0)
	for _, r := range s.records {
		if keep(r) {
			r.Breakdown = maps.Clone(r.Breakdown)
			out = append(out, r)
		}
	}
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ClaimRedemption records key and reports whether it was already present.
func (s *Store) ClaimRedemption(ctx context.Context, key storage.RedemptionKey, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.redemptions[key]; ok {
		return true, nil
	}
	s.redemptions[key] = at
	return false, nil
}

// Redeemed reports whether key was claimed.
func (s *Store) Redeemed(ctx context.Context, key storage.RedemptionKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.redemptions[key]
	return ok, nil
}

// ReleaseRedemption removes the claim for key.
func (s *Store) ReleaseRedemption(ctx context.Context, key storage.RedemptionKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.redemptions, key)
	s.mu.Unlock()
	return nil
}

// PutGame creates or replaces a game.
func (s *Store) PutGame(ctx context.Context, game storage.GameRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(game.ID) == "" {
		return fmt.Errorf("game id is required")
	}
	game.Variables = maps.Clone(game.Variables)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[game.ID] = game
	return nil
}

// GetGame returns one game.
func (s *Store) GetGame(ctx context.Context, gameID string) (storage.GameRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.GameRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return storage.GameRecord{}, storage.ErrNotFound
	}
	game.Variables = maps.Clone(game.Variables)
	return game, nil
}

// PutTask creates or replaces a task in its game.
func (s *Store) PutTask(ctx context.Context, task storage.TaskRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(task.GameID) == "" || strings.TrimSpace(task.ExternalTaskID) == "" {
		return fmt.Errorf("game id and external task id are required")
	}
	task.Variables = maps.Clone(task.Variables)
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks := s.tasks[task.GameID]
	for i := range tasks {
		if tasks[i].ExternalTaskID == task.ExternalTaskID {
			tasks[i] = task
			return nil
		}
	}
	s.tasks[task.GameID] = append(tasks, task)
	return nil
}

// ListTasks returns a game's tasks ordered by external task id.
func (s *Store) ListTasks(ctx context.Context, gameID string) ([]storage.TaskRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := make([]storage.TaskRecord, 0, len(s.tasks[gameID]))
	for _, t := range s.tasks[gameID] {
		t.Variables = maps.Clone(t.Variables)
		out = append(out, t)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalTaskID < out[j].ExternalTaskID })
	return out, nil
}

// AppendAuditEvent stores one audit event.
func (s *Store) AppendAuditEvent(ctx context.Context, evt storage.AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, evt)
	return nil
}

// AuditEvents returns a copy of the stored audit events.
func (s *Store) AuditEvents() []storage.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.AuditEvent, len(s.audit))
	copy(out, s.audit)
	return out
}

var (
	_ storage.CounterStore    = (*Store)(nil)
	_ storage.CounterPruner   = (*Store)(nil)
	_ storage.RecordReader    = (*Store)(nil)
	_ storage.RecordWriter    = (*Store)(nil)
	_ storage.RedemptionStore = (*Store)(nil)
	_ storage.CatalogStore    = (*Store)(nil)
	_ storage.AuditEventStore = (*Store)(nil)
)
