package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"circlemap/internal/types"
)

// Address listing limits.
const (
	DefaultRecentLimit = 10
	MaxRecentLimit     = 100
)

// Commit outcomes reported to the Recorder.
const (
	OutcomeCommitted = "committed"
	OutcomeFailed    = "failed"
)

// Recorder receives commit outcomes. *metrics.Collector satisfies it.
type Recorder interface {
	HistoryCommit(outcome string)
}

type noopRecorder struct{}

func (noopRecorder) HistoryCommit(string) {}

// Service implements commit and restore on top of a Log.
type Service struct {
	log      Log
	now      func() time.Time
	recorder Recorder
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the timestamp source for committed records.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRecorder sets the commit outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a Service over log.
func NewService(log Log, opts ...Option) *Service {
	s := &Service{
		log:      log,
		now:      time.Now,
		recorder: noopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Commit appends one record built from state. The state itself is never
// modified; callers decide what a failure means for the user.
func (s *Service) Commit(ctx context.Context, state types.AreaState) error {
	rec := types.NewHistoryRecord(state, s.now().UTC())
	if err := s.log.Append(ctx, rec); err != nil {
		s.recorder.HistoryCommit(OutcomeFailed)
		types.LoggerFromContext(ctx, s.logger).Warn("history commit failed",
			"nickname", rec.Nickname,
			"address", rec.Address,
			"error", err,
		)
		return persistError("failed to record history", err)
	}
	s.recorder.HistoryCommit(OutcomeCommitted)
	return nil
}

// RestoreLatest returns the snapshot of the most recently appended record for
// nickname (exact match).
func (s *Service) RestoreLatest(ctx context.Context, nickname string) (types.Snapshot, error) {
	if nickname == "" {
		return types.Snapshot{}, types.NewAppError(types.ErrCodeValidationMissingField,
			"nickname is required", nil)
	}

	if lf, ok := s.log.(latestFinder); ok {
		rec, found, err := lf.LatestByNickname(ctx, nickname)
		if err != nil {
			return types.Snapshot{}, persistError("failed to read history", err)
		}
		if !found {
			return types.Snapshot{}, notFound("no history for nickname", "nickname", nickname)
		}
		return rec.Snapshot(), nil
	}

	recs, err := s.log.ReadAll(ctx)
	if err != nil {
		return types.Snapshot{}, persistError("failed to read history", err)
	}
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].Nickname == nickname {
			return recs[i].Snapshot(), nil
		}
	}
	return types.Snapshot{}, notFound("no history for nickname", "nickname", nickname)
}

// RestoreByAddress returns the snapshot of the most recent record whose
// address equals address.
func (s *Service) RestoreByAddress(ctx context.Context, address string) (types.Snapshot, error) {
	if address == "" {
		return types.Snapshot{}, types.NewAppError(types.ErrCodeValidationMissingField,
			"address is required", nil)
	}
	recs, err := s.log.ReadAll(ctx)
	if err != nil {
		return types.Snapshot{}, persistError("failed to read history", err)
	}
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].Address == address {
			return recs[i].Snapshot(), nil
		}
	}
	return types.Snapshot{}, notFound("no history for address", "address", address)
}

// ListRecentAddresses returns distinct addresses, most recent first. A limit
// of zero or less selects DefaultRecentLimit; larger values are capped at
// MaxRecentLimit.
func (s *Service) ListRecentAddresses(ctx context.Context, limit int) ([]string, error) {
	limit = clampLimit(limit)
	recs, err := s.log.ReadAll(ctx)
	if err != nil {
		return nil, persistError("failed to read history", err)
	}

	seen := make(map[string]struct{}, limit)
	out := make([]string, 0, limit)
	for i := len(recs) - 1; i >= 0 && len(out) < limit; i-- {
		addr := recs[i].Address
		if addr == "" {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultRecentLimit
	case limit > MaxRecentLimit:
		return MaxRecentLimit
	default:
		return limit
	}
}

func persistError(msg string, cause error) *types.AppError {
	return types.NewAppError(types.ErrCodeInternalPersist, msg, fmt.Errorf("%w: %w", ErrPersist, cause))
}

func notFound(msg, key, value string) *types.AppError {
	return types.NewAppErrorWithDetails(types.ErrCodeNotFoundHistory, msg, ErrNotFound,
		map[string]any{key: value})
}
