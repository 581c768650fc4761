package jobs

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

type countRow struct {
	count int64
}

func (r countRow) Scan(dest ...any) error {
	*(dest[0].(*int64)) = r.count
	return nil
}

// fakeAuditDB answers each audit query with a canned count, keyed on a
// distinctive fragment of the SQL.
type fakeAuditDB struct {
	outOfRange   int64
	overReserved int64
	orphaned     int64
}

func (db *fakeAuditDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	switch {
	case strings.Contains(sql, "available_qty < 0"):
		return countRow{db.outOfRange}
	case strings.Contains(sql, "SUM(quantity)"):
		return countRow{db.overReserved}
	default:
		return countRow{db.orphaned}
	}
}

func auditTask(t *testing.T) *asynq.Task {
	t.Helper()
	task, err := NewStockAuditTask(time.Now().UTC())
	require.NoError(t, err)
	return task
}

func TestStockAuditReportsReservationMismatch(t *testing.T) {
	var buf bytes.Buffer
	auditor := &StockAuditor{
		db:     &fakeAuditDB{overReserved: 2},
		logger: slog.New(slog.NewTextHandler(&buf, nil)),
	}

	require.NoError(t, auditor.HandleStockAudit(context.Background(), auditTask(t)))
	out := buf.String()
	require.Contains(t, out, "stock audit found violations")
	require.Contains(t, out, "lots_reservation_mismatch=2")
}

func TestStockAuditClean(t *testing.T) {
	var buf bytes.Buffer
	auditor := &StockAuditor{
		db:     &fakeAuditDB{},
		logger: slog.New(slog.NewTextHandler(&buf, nil)),
	}

	require.NoError(t, auditor.HandleStockAudit(context.Background(), auditTask(t)))
	require.Contains(t, buf.String(), "stock audit clean")
}

func TestStockAuditSkipsMalformedPayload(t *testing.T) {
	auditor := &StockAuditor{db: &fakeAuditDB{}, logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))}
	task := asynq.NewTask(TaskStockAudit, []byte("{"))
	err := auditor.HandleStockAudit(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}
