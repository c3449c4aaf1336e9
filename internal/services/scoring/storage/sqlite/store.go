// Package sqlite provides a SQLite-backed scoring storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/questline/internal/platform/id"
	sqlitemigrate "github.com/louisbranch/questline/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/questline/internal/services/scoring/storage"
	"github.com/louisbranch/questline/internal/services/scoring/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists scoring state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite scoring store and applies embedded migrations.
//
// The pool holds a single connection so counter upserts serialize inside the
// process; WAL and the busy timeout cover other processes sharing the file.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := "file:" + cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// IncrementCounter atomically increments and returns the counter for key.
func (s *Store) IncrementCounter(ctx context.Context, key storage.CounterKey) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	if strings.TrimSpace(key.ScopeType) == "" || strings.TrimSpace(key.WindowName) == "" {
		return 0, fmt.Errorf("scope type and window name are required")
	}
	var count int64
	err := s.sqlDB.QueryRowContext(
		ctx,
		`INSERT INTO rate_limit_counters (
		   scope_type,
		   scope_value,
		   window_name,
		   window_start,
		   window_end,
		   count
		 ) VALUES (?, ?, ?, ?, ?, 1)
		 ON CONFLICT (scope_type, scope_value, window_name, window_start)
		 DO UPDATE SET count = count + 1
		 RETURNING count`,
		key.ScopeType,
		key.ScopeValue,
		key.WindowName,
		toMillis(key.WindowStart),
		toMillis(key.WindowEnd),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	return count, nil
}

// PruneCounters deletes counters whose window ended before the cutoff.
func (s *Store) PruneCounters(ctx context.Context, before time.Time) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM rate_limit_counters WHERE window_end < ?`, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("prune counters: %w", err)
	}
	return res.RowsAffected()
}

// ClaimRedemption inserts key and reports whether it already existed.
func (s *Store) ClaimRedemption(ctx context.Context, key storage.RedemptionKey, at time.Time) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	res, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO redemptions (game_id, external_task_id, external_user_id, commitment, redeemed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		key.GameID,
		key.ExternalTaskID,
		key.ExternalUserID,
		key.Commitment,
		toMillis(at),
	)
	if err != nil {
		return false, fmt.Errorf("claim redemption: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim redemption rows: %w", err)
	}
	return inserted == 0, nil
}

// Redeemed reports whether key was claimed.
func (s *Store) Redeemed(ctx context.Context, key storage.RedemptionKey) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	var found int
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT EXISTS (
			SELECT 1 FROM redemptions
			WHERE game_id = ? AND external_task_id = ? AND external_user_id = ? AND commitment = ?
		)`,
		key.GameID,
		key.ExternalTaskID,
		key.ExternalUserID,
		key.Commitment,
	).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("check redemption: %w", err)
	}
	return found == 1, nil
}

// ReleaseRedemption deletes the claim for key.
func (s *Store) ReleaseRedemption(ctx context.Context, key storage.RedemptionKey) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM redemptions
		 WHERE game_id = ? AND external_task_id = ? AND external_user_id = ? AND commitment = ?`,
		key.GameID,
		key.ExternalTaskID,
		key.ExternalUserID,
		key.Commitment,
	)
	if err != nil {
		return fmt.Errorf("release redemption: %w", err)
	}
	return nil
}

// AppendCompletionRecord stores one completion.
func (s *Store) AppendCompletionRecord(ctx context.Context, record storage.CompletionRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	gameID := strings.TrimSpace(record.GameID)
	if gameID == "" {
		return fmt.Errorf("game id is required")
	}
	if strings.TrimSpace(record.ExternalTaskID) == "" || strings.TrimSpace(record.ExternalUserID) == "" {
		return fmt.Errorf("external task id and external user id are required")
	}
	recordID := strings.TrimSpace(record.ID)
	if recordID == "" {
		generated, err := id.NewID()
		if err != nil {
			return fmt.Errorf("generate record id: %w", err)
		}
		recordID = generated
	}
	createdAt := record.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var breakdown sql.NullString
	if record.Breakdown != nil {
		data, err := json.Marshal(record.Breakdown)
		if err != nil {
			return fmt.Errorf("encode breakdown: %w", err)
		}
		breakdown = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO completion_records (
		   id,
		   game_id,
		   external_task_id,
		   external_user_id,
		   points,
		   case_label,
		   breakdown_json,
		   created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		recordID,
		gameID,
		record.ExternalTaskID,
		record.ExternalUserID,
		record.Points,
		record.CaseLabel,
		breakdown,
		toMillis(createdAt),
	)
	if err != nil {
		return fmt.Errorf("append completion record: %w", err)
	}
	return nil
}

const completionColumns = `id, game_id, external_task_id, external_user_id, points, case_label, breakdown_json, created_at`

// ListGameRecords returns every record of a game.
func (s *Store) ListGameRecords(ctx context.Context, gameID string) ([]storage.CompletionRecord, error) {
	return s.listRecords(ctx,
		`SELECT `+completionColumns+` FROM completion_records
		 WHERE game_id = ? ORDER BY created_at, id`,
		gameID)
}

// ListTaskRecords returns every record of one task.
func (s *Store) ListTaskRecords(ctx context.Context, gameID, externalTaskID string) ([]storage.CompletionRecord, error) {
	return s.listRecords(ctx,
		`SELECT `+completionColumns+` FROM completion_records
		 WHERE game_id = ? AND external_task_id = ? ORDER BY created_at, id`,
		gameID, externalTaskID)
}

// ListUserRecords returns every record of one user in a game.
func (s *Store) ListUserRecords(ctx context.Context, gameID, externalUserID string) ([]storage.CompletionRecord, error) {
	return s.listRecords(ctx,
		`SELECT `+completionColumns+` FROM completion_records
		 WHERE game_id = ? AND external_user_id = ? ORDER BY created_at, id`,
		gameID, externalUserID)
}

func (s *Store) listRecords(ctx context.Context, query string, args ...any) ([]storage.CompletionRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list completion records: %w", err)
	}
	defer rows.Close()

	records := make([]storage.CompletionRecord, 0)
	for rows.Next() {
		var (
			record    storage.CompletionRecord
			breakdown sql.NullString
			createdAt int64
		)
		if err := rows.Scan(
			&record.ID,
			&record.GameID,
			&record.ExternalTaskID,
			&record.ExternalUserID,
			&record.Points,
			&record.CaseLabel,
			&breakdown,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan completion record: %w", err)
		}
		if breakdown.Valid {
			if err := json.Unmarshal([]byte(breakdown.String), &record.Breakdown); err != nil {
				return nil, fmt.Errorf("decode breakdown: %w", err)
			}
		}
		record.CreatedAt = fromMillis(createdAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completion records: %w", err)
	}
	return records, nil
}

// PutGame creates or replaces a game.
func (s *Store) PutGame(ctx context.Context, game storage.GameRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	gameID := strings.TrimSpace(game.ID)
	if gameID == "" {
		return fmt.Errorf("game id is required")
	}
	strategyID := strings.TrimSpace(game.StrategyID)
	if strategyID == "" {
		return fmt.Errorf("strategy id is required")
	}
	variables, err := encodeVariables(game.Variables)
	if err != nil {
		return err
	}
	createdAt := game.CreatedAt.UTC()
	updatedAt := game.UpdatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO games (id, strategy_id, variables_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   strategy_id = excluded.strategy_id,
		   variables_json = excluded.variables_json,
		   updated_at = excluded.updated_at`,
		gameID,
		strategyID,
		variables,
		toMillis(createdAt),
		toMillis(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("put game: %w", err)
	}
	return nil
}

// GetGame returns one game.
func (s *Store) GetGame(ctx context.Context, gameID string) (storage.GameRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.GameRecord{}, err
	}
	var (
		game      storage.GameRecord
		variables string
		createdAt int64
		updatedAt int64
	)
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, strategy_id, variables_json, created_at, updated_at FROM games WHERE id = ?`,
		strings.TrimSpace(gameID),
	).Scan(&game.ID, &game.StrategyID, &variables, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.GameRecord{}, storage.ErrNotFound
		}
		return storage.GameRecord{}, fmt.Errorf("get game: %w", err)
	}
	if game.Variables, err = decodeVariables(variables); err != nil {
		return storage.GameRecord{}, err
	}
	game.CreatedAt = fromMillis(createdAt)
	game.UpdatedAt = fromMillis(updatedAt)
	return game, nil
}

// PutTask creates or replaces a task in its game.
func (s *Store) PutTask(ctx context.Context, task storage.TaskRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	gameID := strings.TrimSpace(task.GameID)
	externalTaskID := strings.TrimSpace(task.ExternalTaskID)
	if gameID == "" || externalTaskID == "" {
		return fmt.Errorf("game id and external task id are required")
	}
	variables, err := encodeVariables(task.Variables)
	if err != nil {
		return err
	}
	createdAt := task.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO tasks (game_id, external_task_id, variables_json, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (game_id, external_task_id) DO UPDATE SET
		   variables_json = excluded.variables_json`,
		gameID,
		externalTaskID,
		variables,
		toMillis(createdAt),
	)
	if err != nil {
		return fmt.Errorf("put task: %w", err)
	}
	return nil
}

// ListTasks returns a game's tasks ordered by external task id.
func (s *Store) ListTasks(ctx context.Context, gameID string) ([]storage.TaskRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT game_id, external_task_id, variables_json, created_at
		 FROM tasks WHERE game_id = ? ORDER BY external_task_id`,
		strings.TrimSpace(gameID),
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]storage.TaskRecord, 0)
	for rows.Next() {
		var (
			task      storage.TaskRecord
			variables string
			createdAt int64
		)
		if err := rows.Scan(&task.GameID, &task.ExternalTaskID, &variables, &createdAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if task.Variables, err = decodeVariables(variables); err != nil {
			return nil, err
		}
		task.CreatedAt = fromMillis(createdAt)
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// AppendAuditEvent stores one audit event.
func (s *Store) AppendAuditEvent(ctx context.Context, evt storage.AuditEvent) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	eventName := strings.TrimSpace(evt.EventName)
	if eventName == "" {
		return fmt.Errorf("event name is required")
	}
	severity := strings.TrimSpace(evt.Severity)
	if severity == "" {
		severity = "INFO"
	}
	timestamp := evt.Timestamp.UTC()
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	var attributes sql.NullString
	if len(evt.Attributes) > 0 {
		data, err := json.Marshal(evt.Attributes)
		if err != nil {
			return fmt.Errorf("encode audit attributes: %w", err)
		}
		attributes = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO audit_events (
		   timestamp,
		   event_name,
		   severity,
		   game_id,
		   external_task_id,
		   external_user_id,
		   request_id,
		   trace_id,
		   span_id,
		   attributes_json
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		toMillis(timestamp),
		eventName,
		severity,
		strings.TrimSpace(evt.GameID),
		strings.TrimSpace(evt.ExternalTaskID),
		strings.TrimSpace(evt.ExternalUserID),
		strings.TrimSpace(evt.RequestID),
		strings.TrimSpace(evt.TraceID),
		strings.TrimSpace(evt.SpanID),
		attributes,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns the most recent audit events, newest first.
func (s *Store) ListAuditEvents(ctx context.Context, limit int) ([]storage.AuditEvent, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT timestamp, event_name, severity, game_id, external_task_id, external_user_id,
		        request_id, trace_id, span_id, attributes_json
		 FROM audit_events ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	events := make([]storage.AuditEvent, 0)
	for rows.Next() {
		var (
			evt        storage.AuditEvent
			timestamp  int64
			attributes sql.NullString
		)
		if err := rows.Scan(
			&timestamp,
			&evt.EventName,
			&evt.Severity,
			&evt.GameID,
			&evt.ExternalTaskID,
			&evt.ExternalUserID,
			&evt.RequestID,
			&evt.TraceID,
			&evt.SpanID,
			&attributes,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if attributes.Valid {
			if err := json.Unmarshal([]byte(attributes.String), &evt.Attributes); err != nil {
				return nil, fmt.Errorf("decode audit attributes: %w", err)
			}
		}
		evt.Timestamp = fromMillis(timestamp)
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func encodeVariables(variables map[string]string) (string, error) {
	if len(variables) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(variables)
	if err != nil {
		return "", fmt.Errorf("encode variables: %w", err)
	}
	return string(data), nil
}

func decodeVariables(raw string) (map[string]string, error) {
	variables := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return variables, nil
	}
	if err := json.Unmarshal([]byte(raw), &variables); err != nil {
		return nil, fmt.Errorf("decode variables: %w", err)
	}
	return variables, nil
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
