package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/stepwise/api/schemas"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

// ArgumentMatcherFunc is a helper to create inline mock matchers.
type ArgumentMatcherFunc func(interface{}) bool

func (f ArgumentMatcherFunc) Match(v interface{}) bool {
	return f(v)
}

var anyTime = ArgumentMatcherFunc(func(v interface{}) bool {
	_, ok := v.(time.Time)
	return ok
})

func newMockStore(t *testing.T, logger *zap.Logger) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, logger)
	require.NoError(t, err)
	return s, mockPool
}

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestEnsureSchema(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	mockPool.ExpectExec(flexibleSQLMatcher(sqlCreateSchema)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestLookupSelector(t *testing.T) {
	ctx := context.Background()

	t.Run("should normalize the key and return the selector", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlLookupSelector)).
			WithArgs("email address").
			WillReturnRows(pgxmock.NewRows([]string{"selector"}).AddRow("#email"))

		sel, found, err := s.LookupSelector(ctx, "  Email Address ")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "#email", sel)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should report not found without error", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlLookupSelector)).
			WithArgs("phone").
			WillReturnRows(pgxmock.NewRows([]string{"selector"}))

		_, found, err := s.LookupSelector(ctx, "Phone")
		require.NoError(t, err)
		assert.False(t, found)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should wrap query errors", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		queryErr := errors.New("connection reset")
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlLookupSelector)).
			WithArgs("phone").
			WillReturnError(queryErr)

		_, found, err := s.LookupSelector(ctx, "phone")
		assert.False(t, found)
		assert.ErrorIs(t, err, queryErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestImportMappings(t *testing.T) {
	ctx := context.Background()

	t.Run("should upsert complete mappings in one batch", func(t *testing.T) {
		observedCore, observedLogs := observer.New(zapcore.WarnLevel)
		s, mockPool := newMockStore(t, zap.New(observedCore))

		mockPool.ExpectBegin()
		batchExp := mockPool.ExpectBatch()
		batchExp.ExpectExec(flexibleSQLMatcher(sqlUpsertMapping)).
			WithArgs("email", "Email", "#email", anyTime).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		batchExp.ExpectExec(flexibleSQLMatcher(sqlUpsertMapping)).
			WithArgs("create account", "Create Account", "#create_account", anyTime).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		n, err := s.ImportMappings(ctx, []schemas.TargetMapping{
			{TargetText: "Email", Selector: "#email"},
			{TargetText: "", Selector: "#orphan"},
			{TargetText: "Create Account", Selector: "#create_account"},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, 1, observedLogs.FilterMessage("Skipping incomplete mapping").Len())
		assert.Zero(t, observedLogs.FilterMessage("Failed to rollback transaction").Len())
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should fail when begin fails", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		beginErr := errors.New("too many connections")
		mockPool.ExpectBegin().WillReturnError(beginErr)

		_, err := s.ImportMappings(ctx, []schemas.TargetMapping{{TargetText: "Email", Selector: "#email"}})
		assert.ErrorIs(t, err, beginErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPersistRun(t *testing.T) {
	ctx := context.Background()
	started := time.Date(2025, 10, 26, 10, 0, 0, 0, time.UTC)
	report := &schemas.RunReport{
		RunID:      uuid.NewString(),
		Steps:      "steps.json",
		Page:       "signup.html",
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
		Outcomes: []schemas.StepOutcome{
			{Index: 0, StepID: "type:Email:a@b.com", Action: "type", TargetText: "Email", Status: "performed", Stage: "heuristic", Selector: "#em"},
			{Index: 1, StepID: "click:Missing:", Action: "click", TargetText: "Missing", Status: "skipped-no-element"},
		},
	}

	t.Run("should insert the run and copy outcomes", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).
			WithArgs(report.RunID, "steps.json", "signup.html", report.StartedAt, report.FinishedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(pgx.Identifier{"step_outcomes"}, outcomeColumns).
			WillReturnResult(2)
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.PersistRun(ctx, report))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should rollback when the copy count mismatches", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).
			WithArgs(report.RunID, "steps.json", "signup.html", report.StartedAt, report.FinishedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(pgx.Identifier{"step_outcomes"}, outcomeColumns).
			WillReturnResult(1)
		mockPool.ExpectRollback()

		err := s.PersistRun(ctx, report)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mismatch")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), "postgres://%zz", time.Second, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid database url")
}
