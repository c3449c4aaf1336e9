// Package scoring exposes the scoring service over gRPC.
package scoring

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/louisbranch/questline/internal/platform/errors"
	"github.com/louisbranch/questline/internal/platform/grpc/pagination"
	"github.com/louisbranch/questline/internal/platform/id"
	grpcmeta "github.com/louisbranch/questline/internal/services/scoring/api/grpc/metadata"
	scoringdomain "github.com/louisbranch/questline/internal/services/scoring/domain/scoring"
	"github.com/louisbranch/questline/internal/services/scoring/domain/simulation"
	"github.com/louisbranch/questline/internal/services/scoring/domain/strategy"
	"github.com/louisbranch/questline/internal/services/scoring/domain/task"
	"github.com/louisbranch/questline/internal/services/scoring/observability/audit"
	"github.com/louisbranch/questline/internal/services/scoring/storage"
)

const (
	defaultListStrategiesPageSize = 10
	maxListStrategiesPageSize     = 50
)

// Previewer is implemented by strategies that issue committed previews.
type Previewer interface {
	Preview(ctx context.Context, in strategy.Input) ([]simulation.Snapshot, string, error)
}

// Releaser is implemented by strategies that claim redeemed previews.
type Releaser interface {
	Release(ctx context.Context, in strategy.Input) error
}

// Service implements ScoringServiceServer.
type Service struct {
	catalog  storage.CatalogStore
	records  storage.RecordWriter
	registry *strategy.Registry
	emitter  *audit.Emitter
	clock    func() time.Time
	newID    func() (string, error)
}

// NewService creates a scoring service over the catalog, the record writer
// and the strategy registry. A nil emitter disables auditing.
func NewService(catalog storage.CatalogStore, records storage.RecordWriter, registry *strategy.Registry, emitter *audit.Emitter) *Service {
	return &Service{
		catalog:  catalog,
		records:  records,
		registry: registry,
		emitter:  emitter,
		clock:    time.Now,
		newID:    id.NewID,
	}
}

// Simulate issues a committed preview of every task in the game for the
// user. The game's strategy must support previews.
func (s *Service) Simulate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "simulate request is required")
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	strat, input, err := s.resolve(ctx, in)
	if err != nil {
		return nil, s.handle(ctx, err)
	}
	previewer, ok := strat.(Previewer)
	if !ok {
		return nil, status.Errorf(codes.FailedPrecondition, "strategy %s does not issue previews", strat.Describe().ID)
	}
	if cohort := stringField(in, "cohort"); cohort != "" {
		input.Overrides["cohort"] = cohort
	}

	snapshots, digest, err := previewer.Preview(ctx, input)
	if err != nil {
		return nil, s.handle(ctx, err)
	}
	wire, err := snapshotsValue(snapshots)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode snapshots: %v", err)
	}
	return newResponse(map[string]any{
		"snapshots":  wire,
		"commitment": digest,
	})
}

// CalculatePoints scores a completion without persisting it.
func (s *Service) CalculatePoints(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "calculate points request is required")
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	strat, result, _, err := s.calculate(ctx, in, false)
	if err != nil {
		return nil, s.handle(ctx, err)
	}
	return resultResponse(strat, result, nil)
}

// CompleteTask scores a completion and appends the award to the history
// later simulations read. Rejected commitments are audited and not stored.
func (s *Service) CompleteTask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "complete task request is required")
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	if s.records == nil {
		return nil, status.Error(codes.Internal, "record store is not configured")
	}
	strat, result, input, err := s.calculate(ctx, in, true)
	if err != nil {
		return nil, s.handle(ctx, err)
	}

	extra := map[string]any{}
	if result.Points >= 0 {
		recordID, err := s.newID()
		if err != nil {
			return nil, status.Errorf(codes.Internal, "generate record id: %v", err)
		}
		record := storage.CompletionRecord{
			ID:             recordID,
			GameID:         input.GameID,
			ExternalTaskID: input.Task.ExternalTaskID,
			ExternalUserID: input.ExternalUserID,
			Points:         result.Points,
			CaseLabel:      result.Case,
			Breakdown:      result.Breakdown,
			CreatedAt:      s.now(),
		}
		if err := s.records.AppendCompletionRecord(ctx, record); err != nil {
			s.releaseClaim(ctx, strat, input, result)
			return nil, status.Errorf(codes.Internal, "append completion record: %v", err)
		}
		extra["record_id"] = recordID
	}
	s.auditOutcome(ctx, strat, input, result)
	return resultResponse(strat, result, extra)
}

// ListStrategies returns a page of registered strategy descriptors ordered
// by id or name. The page token is the offset of the next page.
func (s *Service) ListStrategies(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s == nil || s.registry == nil {
		return nil, status.Error(codes.Internal, "strategy registry is not configured")
	}
	pageSize := pagination.ClampPageSize(int32(intField(in, "page_size")), pagination.PageSizeConfig{
		Default: defaultListStrategiesPageSize,
		Max:     maxListStrategiesPageSize,
	})
	offset, err := pagination.ParseOffsetToken(stringField(in, "page_token"))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	orderBy, err := pagination.NormalizeOrderBy(stringField(in, "order_by"), pagination.OrderByConfig{
		Default: "id",
		Allowed: []string{"id", "name"},
	})
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	descriptors := s.registry.List()
	if orderBy == "name" {
		sort.SliceStable(descriptors, func(i, j int) bool {
			return descriptors[i].Name < descriptors[j].Name
		})
	}
	start, end, nextToken := pagination.Window(offset, pageSize, len(descriptors))
	page := make([]any, 0, end-start)
	for _, d := range descriptors[start:end] {
		page = append(page, descriptorValue(d))
	}
	return newResponse(map[string]any{
		"strategies":      page,
		"next_page_token": nextToken,
	})
}

// RegisterGame creates or replaces a game's strategy binding. Overrides are
// validated against the strategy's declared variables.
func (s *Service) RegisterGame(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "register game request is required")
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	gameID := stringField(in, "game_id")
	strategyID := stringField(in, "strategy_id")
	if gameID == "" {
		return nil, status.Error(codes.InvalidArgument, "game id is required")
	}
	if strategyID == "" {
		return nil, status.Error(codes.InvalidArgument, "strategy id is required")
	}
	strat, err := s.registry.Resolve(strategyID)
	if err != nil {
		return nil, s.handle(ctx, err)
	}
	variables := variablesField(in, "variables")
	if _, err := strat.Describe().Values(variables); err != nil {
		return nil, s.handle(ctx, err)
	}

	now := s.now()
	game := storage.GameRecord{
		ID:         gameID,
		StrategyID: strat.Describe().ID,
		Variables:  variables,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if existing, err := s.catalog.GetGame(ctx, gameID); err == nil {
		game.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, status.Errorf(codes.Internal, "get game: %v", err)
	}
	if err := s.catalog.PutGame(ctx, game); err != nil {
		return nil, status.Errorf(codes.Internal, "put game: %v", err)
	}
	return newResponse(map[string]any{
		"game_id":     game.ID,
		"strategy_id": game.StrategyID,
		"fingerprint": strat.Describe().Fingerprint,
		"variables":   variablesValue(game.Variables),
	})
}

// RegisterTask creates or replaces a task of an existing game.
func (s *Service) RegisterTask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "register task request is required")
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	gameID := stringField(in, "game_id")
	externalTaskID := stringField(in, "external_task_id")
	if gameID == "" {
		return nil, status.Error(codes.InvalidArgument, "game id is required")
	}
	if externalTaskID == "" {
		return nil, status.Error(codes.InvalidArgument, "external task id is required")
	}
	game, err := s.catalog.GetGame(ctx, gameID)
	if err != nil {
		return nil, s.handle(ctx, err)
	}
	strat, err := s.registry.Resolve(game.StrategyID)
	if err != nil {
		return nil, s.handle(ctx, err)
	}
	variables := variablesField(in, "variables")
	if _, err := strat.Describe().Values(strategy.MergeOverrides(game.Variables, variables)); err != nil {
		return nil, s.handle(ctx, err)
	}

	record := storage.TaskRecord{
		GameID:         gameID,
		ExternalTaskID: externalTaskID,
		Variables:      variables,
		CreatedAt:      s.now(),
	}
	if err := s.catalog.PutTask(ctx, record); err != nil {
		return nil, status.Errorf(codes.Internal, "put task: %v", err)
	}
	return newResponse(map[string]any{
		"game_id":           record.GameID,
		"external_task_id":  record.ExternalTaskID,
		"point_of_interest": task.PointOfInterest(record.ExternalTaskID),
		"variables":         variablesValue(record.Variables),
	})
}

func (s *Service) ready() error {
	if s == nil || s.catalog == nil || s.registry == nil {
		return status.Error(codes.Internal, "scoring service is not configured")
	}
	return nil
}

// resolve loads the game's strategy and builds its input. Variables merge
// game then task, task values winning.
func (s *Service) resolve(ctx context.Context, in *structpb.Struct) (strategy.Strategy, strategy.Input, error) {
	gameID := stringField(in, "game_id")
	externalTaskID := stringField(in, "external_task_id")
	externalUserID := stringField(in, "external_user_id")
	missing := make([]string, 0, 3)
	if gameID == "" {
		missing = append(missing, "game")
	}
	if externalTaskID == "" {
		missing = append(missing, "task")
	}
	if externalUserID == "" {
		missing = append(missing, "user")
	}
	if len(missing) > 0 {
		return nil, strategy.Input{}, apperrors.WithMetadata(apperrors.CodeSimulationInputMissing, "missing data", map[string]string{
			"Fields": strings.Join(missing, ", "),
		})
	}

	game, err := s.catalog.GetGame(ctx, gameID)
	if err != nil {
		return nil, strategy.Input{}, err
	}
	strat, err := s.registry.Resolve(game.StrategyID)
	if err != nil {
		return nil, strategy.Input{}, err
	}
	records, err := s.catalog.ListTasks(ctx, gameID)
	if err != nil {
		return nil, strategy.Input{}, err
	}
	tasks := make([]task.Task, 0, len(records))
	for _, r := range records {
		tasks = append(tasks, task.Task{GameID: r.GameID, ExternalTaskID: r.ExternalTaskID, Variables: r.Variables})
	}
	current, ok := task.Find(tasks, externalTaskID)
	if !ok {
		current = task.Task{GameID: gameID, ExternalTaskID: externalTaskID}
	}

	return strat, strategy.Input{
		GameID:         gameID,
		Task:           current,
		Tasks:          tasks,
		ExternalUserID: externalUserID,
		Overrides:      strategy.MergeOverrides(game.Variables, current.Variables),
	}, nil
}

// calculate scores the request. With redeem set the presented preview is
// claimed; otherwise prior claims are only looked up.
func (s *Service) calculate(ctx context.Context, in *structpb.Struct, redeem bool) (strategy.Strategy, strategy.Result, strategy.Input, error) {
	strat, input, err := s.resolve(ctx, in)
	if err != nil {
		return nil, strategy.Result{}, strategy.Input{}, err
	}
	payload, err := payloadField(in)
	if err != nil {
		return nil, strategy.Result{}, strategy.Input{}, err
	}
	input.Payload = payload
	input.Redeem = redeem
	result, err := strat.CalculatePoints(ctx, input)
	if err != nil {
		return nil, strategy.Result{}, strategy.Input{}, err
	}
	return strat, result, input, nil
}

// releaseClaim frees a preview claimed for an award that was not stored.
func (s *Service) releaseClaim(ctx context.Context, strat strategy.Strategy, input strategy.Input, result strategy.Result) {
	if !result.Claimed {
		return
	}
	releaser, ok := strat.(Releaser)
	if !ok {
		return
	}
	if err := releaser.Release(ctx, input); err != nil {
		log.Printf("release redemption for %s/%s: %v", input.GameID, input.Task.ExternalTaskID, err)
	}
}

func (s *Service) auditOutcome(ctx context.Context, strat strategy.Strategy, input strategy.Input, result strategy.Result) {
	evt := storage.AuditEvent{
		EventName:      audit.EventTaskCompleted,
		GameID:         input.GameID,
		ExternalTaskID: input.Task.ExternalTaskID,
		ExternalUserID: input.ExternalUserID,
		RequestID:      grpcmeta.RequestIDFromContext(ctx),
		Attributes: map[string]any{
			"strategy_id": strat.Describe().ID,
			"fingerprint": strat.Describe().Fingerprint,
			"case":        result.Case,
			"points":      result.Points,
		},
	}
	switch {
	case result.Case == scoringdomain.CaseInvalidCommitment:
		evt.EventName = audit.EventCommitmentRejected
		evt.Severity = string(audit.SeverityWarn)
	case result.Case == scoringdomain.CaseReplayed:
		evt.EventName = audit.EventPreviewReplayed
		evt.Severity = string(audit.SeverityWarn)
	case len(result.Snapshots) > 0:
		evt.EventName = audit.EventPreviewRegenerated
	}
	if err := s.emitter.Emit(ctx, evt); err != nil {
		log.Printf("audit emit %s: %v", evt.EventName, err)
	}
}

func (s *Service) handle(ctx context.Context, err error) error {
	return apperrors.HandleError(err, grpcmeta.LocaleFromContext(ctx))
}

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func resultResponse(strat strategy.Strategy, result strategy.Result, extra map[string]any) (*structpb.Struct, error) {
	fields := map[string]any{
		"points":      result.Points,
		"case":        result.Case,
		"strategy_id": strat.Describe().ID,
	}
	if result.Breakdown != nil {
		fields["breakdown"] = breakdownValue(result.Breakdown)
	}
	if len(result.Snapshots) > 0 {
		wire, err := snapshotsValue(result.Snapshots)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "encode snapshots: %v", err)
		}
		fields["snapshots"] = wire
		fields["commitment"] = result.Commitment
	}
	for key, value := range extra {
		fields[key] = value
	}
	return newResponse(fields)
}

func newResponse(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

var _ ScoringServiceServer = (*Service)(nil)
