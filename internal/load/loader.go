package load

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/time/rate"

	"github.com/wonny/ledgerflow/internal/contracts"
	"github.com/wonny/ledgerflow/internal/lock"
	"github.com/wonny/ledgerflow/pkg/config"
	"github.com/wonny/ledgerflow/pkg/database"
	"github.com/wonny/ledgerflow/pkg/logger"
)

// DefaultBatchSize is the chunk size when a load call passes zero
const DefaultBatchSize = 10000

// BulkLoader writes transformed batches into the warehouse under a
// destination lease. It owns no persistent state; a lease is borrowed
// for one load call and released on every exit path.
// ⭐ SSOT: 웨어하우스 적재는 여기서만
type BulkLoader struct {
	db      *database.DB
	locks   lock.Manager
	logger  *logger.Logger
	limiter *rate.Limiter
	lockTTL time.Duration
}

// New creates a BulkLoader wired to the shared pool and lock manager
func New(db *database.DB, locks lock.Manager, log *logger.Logger, cfg config.ETLConfig) *BulkLoader {
	var limiter *rate.Limiter
	if cfg.ChunksPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.ChunksPerSecond), 1)
	}

	return &BulkLoader{
		db:      db,
		locks:   locks,
		logger:  log,
		limiter: limiter,
		lockTTL: cfg.LockTTL,
	}
}

// Load writes the batch to the destination in fixed-size chunks.
//
// Append and upsert wrap each chunk in its own transaction: a mid-chunk
// failure rolls back that chunk only, previously committed chunks stay
// committed. Replace runs delete plus all inserts in one transaction so
// a failure leaves the destination unchanged.
func (l *BulkLoader) Load(ctx context.Context, batch *contracts.Batch, dest Destination, mode Mode, batchSize int) (*contracts.LoadResult, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if len(dest.Columns) == 0 {
		return nil, fmt.Errorf("destination %s declares no columns", dest.Table)
	}
	if (mode == ModeAppend || mode == ModeUpsert) && len(dest.NaturalKey) == 0 {
		return nil, fmt.Errorf("destination %s: %s mode requires a natural key", dest.Table, mode)
	}
	if mode == ModeReplace && len(dest.PartitionKey) == 0 && len(dest.NaturalKey) == 0 {
		return nil, fmt.Errorf("destination %s: replace mode requires a partition or natural key", dest.Table)
	}

	start := time.Now()
	result := &contracts.LoadResult{
		Destination:      dest.ID(),
		RecordsAttempted: batch.Len(),
	}

	// Serialize writers on the destination before any write
	lease, err := l.locks.Acquire(ctx, dest.ID(), l.lockTTL)
	if err != nil {
		result.Status = contracts.StatusFailed
		result.Duration = time.Since(start)
		return result, fmt.Errorf("acquire lease on %s: %w", dest.ID(), err)
	}
	// Release must survive caller cancellation
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if rerr := l.locks.Release(releaseCtx, lease); rerr != nil {
			l.logger.WithError(rerr).Warn("Lease release failed")
		}
	}()

	spans := partition(batch.Len(), batchSize)
	result.Chunks = len(spans)

	if mode == ModeReplace {
		err = l.loadReplace(ctx, batch, dest, spans, result, lease)
	} else {
		err = l.loadChunked(ctx, batch, dest, mode, spans, result, lease)
	}

	result.Duration = time.Since(start)
	switch {
	case err != nil:
		result.Status = contracts.StatusFailed
	case result.FailedChunks > 0 || result.RecordsRejected > 0:
		result.Status = contracts.StatusPartial
	default:
		result.Status = contracts.StatusSuccess
	}

	l.logger.WithFields(map[string]interface{}{
		"destination": dest.ID(),
		"mode":        string(mode),
		"attempted":   result.RecordsAttempted,
		"inserted":    result.RecordsInserted,
		"updated":     result.RecordsUpdated,
		"rejected":    result.RecordsRejected,
		"chunks":      result.Chunks,
		"status":      string(result.Status),
		"duration":    result.Duration.String(),
	}).Info("Load finished")

	return result, err
}

// loadChunked writes append/upsert chunks, each in its own transaction
func (l *BulkLoader) loadChunked(ctx context.Context, batch *contracts.Batch, dest Destination,
	mode Mode, spans []span, result *contracts.LoadResult, lease *contracts.Lease) error {

	renewedAt := time.Now()

	for _, sp := range spans {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := l.renewIfDue(ctx, dest, lease, &renewedAt); err != nil {
			return err
		}

		if l.limiter != nil {
			if err := l.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		records := batch.Records[sp.Start:sp.End]
		inserted, updated, rejected, err := l.writeChunk(ctx, dest, mode, records)
		if err != nil {
			if isFatal(err) {
				return err
			}
			// Chunk-level isolation: this chunk rolled back, the rest
			// of the batch continues
			result.FailedChunks++
			result.RecordsRejected += len(records)
			l.logger.WithError(err).WithFields(map[string]interface{}{
				"destination": dest.ID(),
				"chunk_start": sp.Start,
				"chunk_rows":  len(records),
			}).Warn("Chunk rejected")
			continue
		}

		result.RecordsInserted += inserted
		result.RecordsUpdated += updated
		result.RecordsRejected += rejected
	}

	return nil
}

// renewIfDue keeps the lease alive across long loads, renewing once more
// than half the TTL has elapsed since the last renewal. A failed renewal
// means a possibly-partial write: the caller must abort and re-verify via
// upsert idempotency, not blindly re-append.
func (l *BulkLoader) renewIfDue(ctx context.Context, dest Destination, lease *contracts.Lease, renewedAt *time.Time) error {
	if time.Since(*renewedAt) <= lease.TTL/2 {
		return nil
	}

	renewed, err := l.locks.Renew(ctx, lease, lease.TTL)
	if err != nil {
		return fmt.Errorf("renew lease on %s: %w", dest.ID(), err)
	}
	*lease = *renewed
	*renewedAt = time.Now()
	return nil
}

// writeChunk runs one multi-row statement inside a transaction
func (l *BulkLoader) writeChunk(ctx context.Context, dest Destination, mode Mode,
	records []contracts.Record) (inserted, updated, rejected int, err error) {

	tx, err := l.begin(ctx)
	if err != nil {
		return 0, 0, 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	sql := buildInsertSQL(dest, mode, len(records))
	args := flattenArgs(records, dest.Columns)

	switch mode {
	case ModeUpsert:
		rows, qerr := tx.Query(ctx, sql, args...)
		if qerr != nil {
			return 0, 0, 0, fmt.Errorf("upsert chunk: %w", qerr)
		}
		for rows.Next() {
			var fresh bool
			if serr := rows.Scan(&fresh); serr != nil {
				rows.Close()
				return 0, 0, 0, fmt.Errorf("scan upsert result: %w", serr)
			}
			if fresh {
				inserted++
			} else {
				updated++
			}
		}
		rows.Close()
		if rerr := rows.Err(); rerr != nil {
			return 0, 0, 0, fmt.Errorf("upsert chunk: %w", rerr)
		}

	default: // append
		tag, xerr := tx.Exec(ctx, sql, args...)
		if xerr != nil {
			return 0, 0, 0, fmt.Errorf("append chunk: %w", xerr)
		}
		inserted = int(tag.RowsAffected())
		// Conflicting natural keys were skipped per-record
		rejected = len(records) - inserted
	}

	if cerr := tx.Commit(ctx); cerr != nil {
		err = fmt.Errorf("commit chunk: %w", cerr)
		return 0, 0, 0, err
	}
	return inserted, updated, rejected, nil
}

// loadReplace clears the batch's partition scope and inserts everything
// inside a single transaction
func (l *BulkLoader) loadReplace(ctx context.Context, batch *contracts.Batch, dest Destination,
	spans []span, result *contracts.LoadResult, lease *contracts.Lease) (err error) {

	// Nothing to replace: an empty batch scopes no partitions
	if batch.Len() == 0 {
		return nil
	}

	tx, err := l.begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	delSQL, delArgs := buildDeleteSQL(dest, batch.Records)
	if _, err = tx.Exec(ctx, delSQL, delArgs...); err != nil {
		return fmt.Errorf("clear partition scope: %w", err)
	}

	renewedAt := time.Now()
	for _, sp := range spans {
		if err = l.renewIfDue(ctx, dest, lease, &renewedAt); err != nil {
			return err
		}

		records := batch.Records[sp.Start:sp.End]
		sql := buildInsertSQL(dest, ModeReplace, len(records))
		tag, xerr := tx.Exec(ctx, sql, flattenArgs(records, dest.Columns)...)
		if xerr != nil {
			err = fmt.Errorf("replace chunk: %w", xerr)
			return err
		}
		result.RecordsInserted += int(tag.RowsAffected())
	}

	if err = tx.Commit(ctx); err != nil {
		result.RecordsInserted = 0
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

// begin opens a transaction, mapping pool-exhaustion waits past the
// configured timeout to ErrResourceUnavailable.
func (l *BulkLoader) begin(ctx context.Context) (pgx.Tx, error) {
	acquireCtx := ctx
	var cancel context.CancelFunc
	if l.db.AcquireTimeout > 0 {
		acquireCtx, cancel = context.WithTimeout(ctx, l.db.AcquireTimeout)
		defer cancel()
	}

	tx, err := l.db.Pool.Begin(acquireCtx)
	if err != nil {
		if errors.Is(acquireCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("connection pool wait exceeded %s: %w",
				l.db.AcquireTimeout, contracts.ErrResourceUnavailable)
		}
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return tx, nil
}

// isFatal decides whether a chunk error aborts the remaining chunks
func isFatal(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, contracts.ErrResourceUnavailable) ||
		errors.Is(err, contracts.ErrLeaseExpired)
}
