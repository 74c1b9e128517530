// Package worker holds the background consumer of ledger change events.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ledger/internal/core"
	"ledger/internal/events"
	"ledger/internal/log"
	"ledger/internal/storage"
)

// Report is the outcome of one reconciliation pass.
type Report struct {
	Count int
	Total core.Money
	// Expected is the aggregate announced by the last change message; nil
	// until one has been seen.
	Expected *events.ChangeMessage
	Drift    bool
	Skipped  bool
	// Unreadable counts persisted rows the ledger drops when it hydrates.
	Unreadable int
}

type Stats struct {
	Handled int64
	Dropped int64
	Drifts  int64
}

// AuditWorker follows the change stream and periodically checks that the
// persisted ledger agrees with the last announced aggregate.
type AuditWorker struct {
	reader storage.Reader
	key    string
	logger *log.Logger

	mu    sync.Mutex
	last  *events.ChangeMessage
	stats Stats
}

// NewAuditWorker builds a worker. reader may be nil when the backend cannot
// be shared between processes; reconciliation is then skipped.
func NewAuditWorker(reader storage.Reader, key string, logger *log.Logger) *AuditWorker {
	if logger == nil {
		logger = log.Nop()
	}
	return &AuditWorker{
		reader: reader,
		key:    key,
		logger: logger.WithComponent(log.ComponentAudit),
	}
}

// HandleChange records one change message. Messages with an unreadable total
// are dropped rather than requeued; older messages than the last seen one
// are counted but do not move the expectation back.
func (w *AuditWorker) HandleChange(ctx context.Context, msg *events.ChangeMessage) error {
	if _, err := core.ParseAmount(msg.Total); err != nil {
		w.mu.Lock()
		w.stats.Dropped++
		w.mu.Unlock()
		w.logger.WarnContext(ctx, "Dropping change with unreadable total",
			"op", msg.Op, log.FieldTotal, msg.Total, log.FieldError, err)
		return nil
	}

	w.mu.Lock()
	w.stats.Handled++
	if w.last == nil || !msg.Timestamp.Before(w.last.Timestamp) {
		m := *msg
		w.last = &m
	}
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "Ledger changed",
		"op", msg.Op,
		log.FieldRecordID, msg.ID,
		"amount", msg.Amount,
		"item", msg.Item,
		log.FieldCount, msg.Count,
		log.FieldTotal, msg.Total)
	return nil
}

// Reconcile reads the persisted ledger and compares it with the last
// announced aggregate.
func (w *AuditWorker) Reconcile(ctx context.Context) (Report, error) {
	if w.reader == nil {
		return Report{Skipped: true}, nil
	}

	raw, ok, err := w.reader.Get(ctx, w.key)
	if err != nil {
		return Report{}, fmt.Errorf("read ledger slot: %w", err)
	}
	records := []core.Record{}
	var rejected []core.RejectedRecord
	if ok {
		records, rejected, err = core.DecodeRecordsPartial(raw)
		if err != nil {
			return Report{}, fmt.Errorf("decode ledger slot: %w", err)
		}
	}

	rep := Report{Count: len(records), Total: core.Sum(records), Unreadable: len(rejected)}
	if rep.Unreadable > 0 {
		w.logger.WarnContext(ctx, "Persisted ledger has unreadable rows",
			log.FieldKey, w.key, "unreadable", rep.Unreadable)
	}

	w.mu.Lock()
	if w.last != nil {
		m := *w.last
		rep.Expected = &m
	}
	w.mu.Unlock()

	if rep.Expected != nil {
		// HandleChange only keeps messages whose total parses
		expected, _ := core.ParseAmount(rep.Expected.Total)
		rep.Drift = rep.Expected.Count != rep.Count || !expected.Equal(rep.Total)
	}

	if rep.Drift {
		w.mu.Lock()
		w.stats.Drifts++
		w.mu.Unlock()
		w.logger.WarnContext(ctx, "Persisted ledger disagrees with last change",
			log.FieldKey, w.key,
			log.FieldCount, rep.Count,
			log.FieldTotal, rep.Total.String(),
			"expected_count", rep.Expected.Count,
			"expected_total", rep.Expected.Total)
	} else {
		w.logger.DebugContext(ctx, "Ledger reconciled",
			log.FieldKey, w.key,
			log.FieldCount, rep.Count,
			log.FieldTotal, rep.Total.String())
	}
	return rep, nil
}

// Run reconciles once at startup and then every interval until ctx is done.
func (w *AuditWorker) Run(ctx context.Context, interval time.Duration) error {
	if w.reader == nil {
		w.logger.InfoContext(ctx, "Reconciliation disabled for this backend")
		<-ctx.Done()
		return ctx.Err()
	}

	if _, err := w.Reconcile(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Startup reconciliation failed", log.FieldError, err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Reconcile(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.ErrorContext(ctx, "Reconciliation failed", log.FieldError, err)
			}
		}
	}
}

func (w *AuditWorker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}
