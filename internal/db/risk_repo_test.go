package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cardiometrix/internal/types"
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

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

// --- Mock Rows for status listing ---

type statusMockRows struct {
	data   []string
	idx    int
	closed bool
	errVal error
}

func (r *statusMockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx <= len(r.data)
}

func (r *statusMockRows) Scan(dest ...any) error {
	*dest[0].(*types.NudgeStatus) = types.NudgeStatus(r.data[r.idx-1])
	return nil
}

func (r *statusMockRows) Close()                                      { r.closed = true }
func (r *statusMockRows) Err() error                                  { return r.errVal }
func (r *statusMockRows) CommandTag() pgconn.CommandTag               { return pgconn.CommandTag{} }
func (r *statusMockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *statusMockRows) RawValues() [][]byte                         { return nil }
func (r *statusMockRows) Values() ([]any, error)                      { return nil, nil }
func (r *statusMockRows) Conn() *pgx.Conn                             { return nil }

// --- RiskRepository tests ---

func TestRiskRepository_UpsertRiskDaily_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewRiskRepository(db)

	risk := 0.41
	snapshot := types.RiskDaily{
		UserID:       "u-1",
		AsOfDate:     "2026-03-31",
		Risk:         &risk,
		Band:         types.BandAmber,
		ModelVersion: "cvd-risk-v1",
		Drivers: []types.Driver{
			{Name: "bp_sys_trend_14d", Direction: types.DirectionUp, Contribution: 0.2},
		},
		Features:   types.FeatureVectorV1{AsOfDate: "2026-03-31"},
		ComputedAt: time.Now().UTC(),
	}

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.UpsertRiskDaily(context.Background(), snapshot)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestRiskRepository_UpsertRiskDaily_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewRiskRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.UpsertRiskDaily(context.Background(), types.RiskDaily{UserID: "u-1", AsOfDate: "2026-03-31"})
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestRiskRepository_GetRiskDaily_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewRiskRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetRiskDaily(context.Background(), "u-1", "2026-03-31")
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundRiskDaily, appErr.Code)
}

func TestRiskRepository_GetRiskDaily_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewRiskRepository(db)

	risk := 0.33
	computedAt := time.Date(2026, 3, 31, 6, 0, 0, 0, time.UTC)
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*dest[0].(*string) = "u-1"
			*dest[1].(*string) = "2026-03-31"
			*dest[2].(**float64) = &risk
			*dest[3].(*types.RiskBand) = types.BandAmber
			*dest[4].(*[]byte) = []byte(`[{"name":"bp_sys_trend_14d","value":1.1,"direction":"up","contribution":0.2}]`)
			*dest[5].(*string) = "cvd-risk-v1"
			*dest[6].(**string) = nil
			*dest[7].(*[]byte) = []byte(`{"as_of_date":"2026-03-31","bp_sys_trend_14d":1.1,"bp_sys_var_7d":0,"bp_dia_trend_14d":0,"bp_dia_var_7d":0,"hrv_z_7d":0,"rhr_z_7d":0,"steps_z_7d":0,"sleep_debt_hours_7d":0,"weight_trend_14d":0,"glucose_trend_14d":0,"a1c_latest":null,"ldl_latest":null,"adherence_nudge_7d":0.5}`)
			*dest[8].(*time.Time) = computedAt
			return nil
		}})

	s, err := repo.GetRiskDaily(context.Background(), "u-1", "2026-03-31")
	require.NoError(t, err)
	assert.Equal(t, types.BandAmber, s.Band)
	require.NotNil(t, s.Risk)
	assert.Equal(t, 0.33, *s.Risk)
	require.Len(t, s.Drivers, 1)
	assert.Equal(t, "bp_sys_trend_14d", s.Drivers[0].Name)
	assert.Equal(t, 1.1, s.Features.BPSysTrend14d)
	assert.Empty(t, s.Error)
}

// --- NudgeRepository tests ---

func TestNudgeRepository_UpdateStatus_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewNudgeRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.UpdateStatus(context.Background(), "u-1", "2026-03-31", types.NudgeDone)
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundNudge, appErr.Code)
}

func TestNudgeRepository_UpdateStatus_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewNudgeRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.UpdateStatus(context.Background(), "u-1", "2026-03-31", types.NudgeSnoozed)
	require.NoError(t, err)
}

func TestNudgeRepository_ListStatuses(t *testing.T) {
	db := new(mockDBTX)
	repo := NewNudgeRepository(db)

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&statusMockRows{data: []string{"done", "pending", "snoozed"}}, nil)

	statuses, err := repo.ListStatuses(context.Background(), "u-1", "2026-03-24", "2026-03-30")
	require.NoError(t, err)
	assert.Equal(t, []types.NudgeStatus{types.NudgeDone, types.NudgePending, types.NudgeSnoozed}, statuses)
}
