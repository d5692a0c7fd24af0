// Package history keeps the append-only search log that backs "resume last
// session" and "pick from history".
package history

import (
	"context"
	"errors"
	"sync"

	"circlemap/internal/types"
)

// Sentinel outcomes. Errors returned by Service wrap one of these inside a
// types.AppError so callers can use errors.Is.
var (
	ErrPersist  = errors.New("history: persist failed")
	ErrNotFound = errors.New("history: no matching record")
)

// Log is an append-only record store. ReadAll returns records in append order.
type Log interface {
	Append(ctx context.Context, rec types.HistoryRecord) error
	ReadAll(ctx context.Context) ([]types.HistoryRecord, error)
}

// latestFinder is an optional fast path for logs that can look up the most
// recent record per nickname without a full read.
type latestFinder interface {
	LatestByNickname(ctx context.Context, nickname string) (types.HistoryRecord, bool, error)
}

// MemoryLog is an in-process Log used when no database is configured.
type MemoryLog struct {
	mu      sync.RWMutex
	records []types.HistoryRecord
}

// NewMemoryLog creates an empty MemoryLog.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

// Append adds rec to the end of the log.
func (m *MemoryLog) Append(ctx context.Context, rec types.HistoryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
	return nil
}

// ReadAll returns a copy of every record in append order.
func (m *MemoryLog) ReadAll(ctx context.Context) ([]types.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.HistoryRecord, len(m.records))
	copy(out, m.records)
	return out, nil
}

// Len returns the number of records.
func (m *MemoryLog) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
