package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"circlemap/internal/types"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Rows ---

// historyMockRows implements pgx.Rows over in-memory history records.
type historyMockRows struct {
	data    []types.HistoryRecord
	idx     int
	closed  bool
	scanErr error
	errVal  error
}

func newHistoryRows(recs ...types.HistoryRecord) *historyMockRows {
	return &historyMockRows{data: recs, idx: -1}
}

func (r *historyMockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *historyMockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	rec := r.data[r.idx]
	*dest[0].(*time.Time) = rec.Timestamp
	*dest[1].(*string) = rec.Nickname
	*dest[2].(*string) = rec.Address
	*dest[3].(*float64) = rec.Lat
	*dest[4].(*float64) = rec.Lon
	*dest[5].(*float64) = rec.R1
	*dest[6].(*float64) = rec.R2
	*dest[7].(*float64) = rec.R3
	return nil
}

func (r *historyMockRows) Close()                                       { r.closed = true }
func (r *historyMockRows) Err() error                                   { return r.errVal }
func (r *historyMockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *historyMockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *historyMockRows) RawValues() [][]byte                          { return nil }
func (r *historyMockRows) Values() ([]any, error)                       { return nil, nil }
func (r *historyMockRows) Conn() *pgx.Conn                              { return nil }

func sampleRecord(nickname, address string, at time.Time) types.HistoryRecord {
	return types.HistoryRecord{
		Timestamp: at, Nickname: nickname, Address: address,
		Lat: 35.6812, Lon: 139.7671, R1: 1, R2: 2.5, R3: 5,
	}
}

func TestHistoryRepository_EnsureSchema(t *testing.T) {
	db := new(mockDBTX)
	repo := NewHistoryRepository(db)

	db.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "CREATE TABLE IF NOT EXISTS search_history")
	}), mock.Anything).Return(pgconn.NewCommandTag("CREATE TABLE"), nil)

	require.NoError(t, repo.EnsureSchema(context.Background()))
	db.AssertExpectations(t)
}

func TestHistoryRepository_Append(t *testing.T) {
	db := new(mockDBTX)
	repo := NewHistoryRepository(db)
	at := time.Date(2024, 4, 1, 9, 30, 0, 0, time.UTC)
	rec := sampleRecord("taro", "東京駅", at)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"),
		[]any{at, "taro", "東京駅", 35.6812, 139.7671, 1.0, 2.5, 5.0}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	require.NoError(t, repo.Append(context.Background(), rec))
	db.AssertExpectations(t)
}

func TestHistoryRepository_Append_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewHistoryRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.Append(context.Background(), sampleRecord("taro", "x", time.Now()))
	require.Error(t, err)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalPersist, appErr.Code)
}

func TestHistoryRepository_ReadAll(t *testing.T) {
	db := new(mockDBTX)
	repo := NewHistoryRepository(db)
	t0 := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	rows := newHistoryRows(
		sampleRecord("taro", "東京駅", t0),
		sampleRecord("hanako", "新宿駅", t0.Add(time.Minute)),
	)
	db.On("Query", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "ORDER BY id ASC")
	}), mock.Anything).Return(rows, nil)

	got, err := repo.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "taro", got[0].Nickname)
	assert.Equal(t, "新宿駅", got[1].Address)
	assert.True(t, rows.closed)
}

func TestHistoryRepository_ReadAll_Empty(t *testing.T) {
	db := new(mockDBTX)
	repo := NewHistoryRepository(db)
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(newHistoryRows(), nil)

	got, err := repo.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHistoryRepository_ReadAll_Errors(t *testing.T) {
	t.Run("query", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return(nil, errors.New("relation does not exist"))

		_, err := NewHistoryRepository(db).ReadAll(context.Background())
		assert.Equal(t, types.ErrCodeInternalPersist, types.CodeOf(err))
	})

	t.Run("scan", func(t *testing.T) {
		db := new(mockDBTX)
		rows := newHistoryRows(sampleRecord("taro", "x", time.Now()))
		rows.scanErr = errors.New("bad column")
		db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

		_, err := NewHistoryRepository(db).ReadAll(context.Background())
		assert.ErrorContains(t, err, "scan")
	})

	t.Run("iteration", func(t *testing.T) {
		db := new(mockDBTX)
		rows := newHistoryRows()
		rows.errVal = errors.New("conn reset")
		db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

		_, err := NewHistoryRepository(db).ReadAll(context.Background())
		assert.ErrorContains(t, err, "iterate")
	})
}

func TestHistoryRepository_LatestByNickname(t *testing.T) {
	db := new(mockDBTX)
	repo := NewHistoryRepository(db)
	at := time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)
	db.On("Query", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "ORDER BY id DESC")
	}), []any{"taro"}).Return(newHistoryRows(sampleRecord("taro", "東京駅", at)), nil)

	rec, found, err := repo.LatestByNickname(context.Background(), "taro")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, at, rec.Timestamp)
	assert.Equal(t, "東京駅", rec.Address)
}

func TestHistoryRepository_LatestByNickname_None(t *testing.T) {
	db := new(mockDBTX)
	repo := NewHistoryRepository(db)
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(newHistoryRows(), nil)

	_, found, err := repo.LatestByNickname(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOpenPool_InvalidURL(t *testing.T) {
	_, err := OpenPool(context.Background(), "://not-a-url", PoolOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse database url")
}
