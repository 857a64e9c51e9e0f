package contracts

import (
	"errors"
	"fmt"
	"strings"
)

// Retryable failure classes. Callers must treat these as backpressure
// signals, not fatal errors.
var (
	// ErrLockContention: acquire exhausted its bounded retries while
	// another holder kept the lease.
	ErrLockContention = errors.New("lock contention")

	// ErrLeaseExpired: the holder's lease lapsed mid-operation. The
	// in-flight write must be re-verified via upsert idempotency on
	// retry, not blindly retried as append.
	ErrLeaseExpired = errors.New("lease expired")

	// ErrResourceUnavailable: pool or backing-store exhaustion past the
	// configured wait timeout.
	ErrResourceUnavailable = errors.New("resource unavailable")
)

// SchemaViolation means a required column is absent. Fatal to the whole
// batch regardless of strict mode.
type SchemaViolation struct {
	Dataset string
	Columns []string
}

func (e *SchemaViolation) Error() string {
	return fmt.Sprintf("schema violation in %s: missing columns [%s]",
		e.Dataset, strings.Join(e.Columns, ", "))
}

// ValidationFailure means a blocking rule exceeded its threshold in
// strict mode. The batch is not transformed or loaded.
type ValidationFailure struct {
	Result *ValidationResult
}

func (e *ValidationFailure) Error() string {
	failures := e.Result.BlockingFailures()
	ids := make([]string, len(failures))
	for i, f := range failures {
		ids[i] = fmt.Sprintf("%s(failed=%d)", f.RuleID, f.FailedRecords)
	}
	return fmt.Sprintf("validation failed for %s: %s",
		e.Result.Dataset, strings.Join(ids, ", "))
}
