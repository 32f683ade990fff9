package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Sentinel errors the pipeline maps onto its taxonomy.
var (
	ErrTimeout    = errors.New("query execution timed out")
	ErrConnection = errors.New("database connection failed")
)

// ResultSet holds the rows of one executed query. It lives for the duration
// of a single request and is never cached.
type ResultSet struct {
	Columns   []string
	Rows      []map[string]any
	RowCount  int
	Truncated bool
}

// Executor runs validated SQL inside a read-only, time-bounded transaction.
type Executor struct {
	db      *DB
	maxRows int
	timeout time.Duration
}

func NewExecutor(db *DB, maxRows int, timeout time.Duration) *Executor {
	return &Executor{db: db, maxRows: maxRows, timeout: timeout}
}

// Execute runs the statement and returns at most maxRows rows. The
// connection is released on every exit path; the transaction is always
// rolled back since nothing here writes.
func (e *Executor) Execute(ctx context.Context, sqlText string) (*ResultSet, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, classifyError(err)
	}
	defer tx.Rollback()

	// Server-side guard in addition to the context deadline.
	timeoutMS := e.timeout.Milliseconds()
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", timeoutMS)); err != nil {
		return nil, classifyError(err)
	}

	rows, err := tx.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, classifyError(err)
	}

	rs := &ResultSet{Columns: columns}
	values := make([]any, len(columns))
	scanTargets := make([]any, len(columns))
	for i := range values {
		scanTargets[i] = &values[i]
	}

	for rows.Next() {
		if rs.RowCount >= e.maxRows {
			rs.Truncated = true
			break
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, classifyError(err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		rs.Rows = append(rs.Rows, row)
		rs.RowCount++
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}

	return rs, nil
}

// normalizeValue converts driver byte slices into strings so results
// serialize cleanly.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// classifyError maps driver errors onto the executor's sentinels so callers
// never see raw database faults.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		// 57014 is query_canceled, raised by statement_timeout.
		case pqErr.Code == "57014":
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		// Class 08 covers connection exceptions.
		case strings.HasPrefix(string(pqErr.Code), "08"):
			return fmt.Errorf("%w: %v", ErrConnection, err)
		}
	}
	return fmt.Errorf("query execution failed: %w", err)
}
