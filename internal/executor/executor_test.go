/*-------------------------------------------------------------------------
 *
 * NLSQL Agent
 *
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package executor

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	_ "modernc.org/sqlite"
)

// newTestDB opens an in-memory sqlite database seeded with order rows
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE orders (id INTEGER PRIMARY KEY, amount REAL)`)
	if err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	for i := 1; i <= 10; i++ {
		if _, err := db.Exec(`INSERT INTO orders (id, amount) VALUES (?, ?)`, i, float64(i)*1.5); err != nil {
			t.Fatalf("failed to seed row: %v", err)
		}
	}
	return db
}

func TestRunReturnsRows(t *testing.T) {
	db := newTestDB(t)
	e := New(db, Limits{MaxRows: 100, Timeout: 5 * time.Second})

	outcome, err := e.Run(context.Background(), "SELECT id, amount FROM orders ORDER BY id")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(outcome.Columns) != 2 || outcome.Columns[0] != "id" || outcome.Columns[1] != "amount" {
		t.Errorf("unexpected columns: %v", outcome.Columns)
	}
	if outcome.RowCount() != 10 {
		t.Errorf("expected 10 rows, got %d", outcome.RowCount())
	}
	if outcome.Truncated {
		t.Error("result within the cap should not be flagged truncated")
	}
}

func TestRunRowCap(t *testing.T) {
	db := newTestDB(t)
	e := New(db, Limits{MaxRows: 3, Timeout: 5 * time.Second})

	outcome, err := e.Run(context.Background(), "SELECT id FROM orders ORDER BY id")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if outcome.RowCount() != 3 {
		t.Errorf("expected 3 rows at the cap, got %d", outcome.RowCount())
	}
	if !outcome.Truncated {
		t.Error("result past the cap must be flagged truncated")
	}
}

func TestRunExactlyAtCapNotTruncated(t *testing.T) {
	db := newTestDB(t)
	e := New(db, Limits{MaxRows: 10, Timeout: 5 * time.Second})

	outcome, err := e.Run(context.Background(), "SELECT id FROM orders")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if outcome.RowCount() != 10 {
		t.Errorf("expected 10 rows, got %d", outcome.RowCount())
	}
	if outcome.Truncated {
		t.Error("result exactly at the cap should not be flagged truncated")
	}
}

func TestSetLimitsAppliesToLaterRuns(t *testing.T) {
	db := newTestDB(t)
	e := New(db, Limits{MaxRows: 3, Timeout: 5 * time.Second})

	outcome, err := e.Run(context.Background(), "SELECT id FROM orders ORDER BY id")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if outcome.RowCount() != 3 || !outcome.Truncated {
		t.Fatalf("expected 3 truncated rows before reload, got %d (truncated=%v)",
			outcome.RowCount(), outcome.Truncated)
	}

	// A configuration reload raises the cap; the next run honors it
	e.SetLimits(Limits{MaxRows: 100, Timeout: 5 * time.Second})

	outcome, err = e.Run(context.Background(), "SELECT id FROM orders ORDER BY id")
	if err != nil {
		t.Fatalf("Run after SetLimits failed: %v", err)
	}
	if outcome.RowCount() != 10 {
		t.Errorf("expected 10 rows after raising the cap, got %d", outcome.RowCount())
	}
	if outcome.Truncated {
		t.Error("result within the raised cap should not be flagged truncated")
	}
}

func TestSetLimitsZeroFieldsFallBackToDefaults(t *testing.T) {
	db := newTestDB(t)
	e := New(db, Limits{})

	limits := e.Limits()
	if limits.MaxRows != 500 {
		t.Errorf("default MaxRows = %d, want 500", limits.MaxRows)
	}
	if limits.Timeout != 15*time.Second {
		t.Errorf("default Timeout = %v, want 15s", limits.Timeout)
	}
}

func TestRunEmptyResult(t *testing.T) {
	db := newTestDB(t)
	e := New(db, Limits{MaxRows: 100, Timeout: 5 * time.Second})

	outcome, err := e.Run(context.Background(), "SELECT id FROM orders WHERE id > 1000")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if outcome.RowCount() != 0 {
		t.Errorf("expected empty result, got %d rows", outcome.RowCount())
	}
	if len(outcome.Columns) != 1 {
		t.Errorf("columns should survive an empty result: %v", outcome.Columns)
	}
}

func TestRunSyntaxError(t *testing.T) {
	db := newTestDB(t)
	e := New(db, Limits{MaxRows: 100, Timeout: 5 * time.Second})

	_, err := e.Run(context.Background(), "SELECT id FORM orders")
	if err == nil {
		t.Fatal("expected syntax error")
	}
	if CategoryOf(err) != CategorySyntax {
		t.Errorf("expected syntax category, got %s: %v", CategoryOf(err), err)
	}
}

func TestRunRejectsNonSelect(t *testing.T) {
	db := newTestDB(t)
	e := New(db, Limits{MaxRows: 100, Timeout: 5 * time.Second})

	_, err := e.Run(context.Background(), "DELETE FROM orders")
	if err == nil {
		t.Fatal("expected rejection of non-SELECT statement")
	}
	if CategoryOf(err) != CategoryPermission {
		t.Errorf("expected permission category, got %s", CategoryOf(err))
	}

	// WITH is a query verb and passes the guard
	outcome, err := e.Run(context.Background(), "WITH t AS (SELECT id FROM orders) SELECT * FROM t")
	if err != nil {
		t.Fatalf("WITH query failed: %v", err)
	}
	if outcome.RowCount() != 10 {
		t.Errorf("expected 10 rows from CTE, got %d", outcome.RowCount())
	}
}

func TestRunTimeout(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id FROM orders").
		WillDelayFor(2 * time.Second).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	e := New(db, Limits{MaxRows: 100, Timeout: 100 * time.Millisecond})
	_, runErr := e.Run(context.Background(), "SELECT id FROM orders")
	if runErr == nil {
		t.Fatal("expected timeout error")
	}
	if CategoryOf(runErr) != CategoryTimeout {
		t.Errorf("expected timeout category, got %s: %v", CategoryOf(runErr), runErr)
	}
}

func TestRunUserCancellation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id FROM orders").
		WillDelayFor(2 * time.Second).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	e := New(db, Limits{MaxRows: 100, Timeout: 5 * time.Second})
	_, runErr := e.Run(ctx, "SELECT id FROM orders")
	if runErr == nil {
		t.Fatal("expected cancellation error")
	}
	if CategoryOf(runErr) != CategoryOther {
		t.Errorf("cancellation should classify as other, got %s", CategoryOf(runErr))
	}
}

func TestClassifyPermissionDenied(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"sqlite readonly", errors.New("attempt to write a readonly database"), CategoryPermission},
		{"postgres read-only", errors.New("ERROR: cannot execute INSERT in a read-only transaction (SQLSTATE 25006)"), CategoryPermission},
		{"postgres permission", errors.New("ERROR: permission denied for table orders"), CategoryPermission},
		{"sqlite syntax", errors.New(`SQL logic error: near "FORM": syntax error (1)`), CategorySyntax},
		{"unknown", errors.New("disk I/O error"), CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(context.Background(), tt.err)
			if got.Category != tt.want {
				t.Errorf("classify(%v) = %s, want %s", tt.err, got.Category, tt.want)
			}
		})
	}
}
