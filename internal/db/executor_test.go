package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockExecutor(t *testing.T, maxRows int) (*Executor, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return NewExecutor(&DB{DB: mockDB}, maxRows, 30*time.Second), mock
}

func TestExecuteReadOnlyQuery(t *testing.T) {
	e, mock := newMockExecutor(t, 100)

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL statement_timeout = \d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM customers LIMIT 100`).
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "city"}).
			AddRow(1, "Austin").
			AddRow(2, []byte("Boston")))
	mock.ExpectRollback()

	rs, err := e.Execute(context.Background(), "SELECT * FROM customers LIMIT 100")
	require.NoError(t, err)

	assert.Equal(t, []string{"customer_id", "city"}, rs.Columns)
	assert.Equal(t, 2, rs.RowCount)
	assert.False(t, rs.Truncated)
	// Driver byte slices come back as strings.
	assert.Equal(t, "Boston", rs.Rows[1]["city"])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteTruncatesAtMaxRows(t *testing.T) {
	e, mock := newMockExecutor(t, 2)

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL statement_timeout = \d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM orders`).
		WillReturnRows(sqlmock.NewRows([]string{"order_id"}).
			AddRow(1).AddRow(2).AddRow(3))
	mock.ExpectRollback()

	rs, err := e.Execute(context.Background(), "SELECT * FROM orders")
	require.NoError(t, err)
	assert.Equal(t, 2, rs.RowCount)
	assert.True(t, rs.Truncated)
}

func TestExecuteClassifiesQueryErrors(t *testing.T) {
	tests := []struct {
		name     string
		queryErr error
		wantErr  error
	}{
		{
			name:     "statement timeout",
			queryErr: &pq.Error{Code: "57014", Message: "canceling statement due to statement timeout"},
			wantErr:  ErrTimeout,
		},
		{
			name:     "connection failure",
			queryErr: &pq.Error{Code: "08006", Message: "connection failure"},
			wantErr:  ErrConnection,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, mock := newMockExecutor(t, 100)

			mock.ExpectBegin()
			mock.ExpectExec(`SET LOCAL statement_timeout = \d+`).
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery(`SELECT`).WillReturnError(tt.queryErr)
			mock.ExpectRollback()

			_, err := e.Execute(context.Background(), "SELECT * FROM customers")
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"context deadline", context.DeadlineExceeded, ErrTimeout},
		{"bad connection", driver.ErrBadConn, ErrConnection},
		{"closed connection", sql.ErrConnDone, ErrConnection},
		{"query canceled", &pq.Error{Code: "57014"}, ErrTimeout},
		{"connection exception class", &pq.Error{Code: "08001"}, ErrConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, classifyError(tt.err), tt.wantErr)
		})
	}

	// Anything else stays a plain execution failure.
	err := classifyError(&pq.Error{Code: "42601", Message: "syntax error"})
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrConnection)
	assert.Contains(t, err.Error(), "query execution failed")
}
