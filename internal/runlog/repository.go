package runlog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/ledgerflow/internal/contracts"
	"github.com/wonny/ledgerflow/pkg/database"
)

// Repository persists run metadata and validation outcomes. This is the
// run-logging sink the engine hands its results to; nothing here is read
// back by the engine itself.
// ⭐ SSOT: 실행 로그 저장소는 여기서만
type Repository struct {
	db *database.DB
}

// New creates a new run log repository
func New(db *database.DB) *Repository {
	return &Repository{db: db}
}

// StartRun opens a run log row and returns the record to finish later
func (r *Repository) StartRun(ctx context.Context, dataset, destination string) (*contracts.RunRecord, error) {
	run := &contracts.RunRecord{
		RunID:       uuid.NewString(),
		Dataset:     dataset,
		Destination: destination,
		StartedAt:   time.Now().UTC(),
	}

	query := `
		INSERT INTO metadata.etl_run_log (run_id, dataset, destination, status, run_start_time)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		run.RunID, run.Dataset, run.Destination, "RUNNING", run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run log: %w", err)
	}

	return run, nil
}

// FinishRun closes a run log row with terminal status and stage counts
func (r *Repository) FinishRun(ctx context.Context, run *contracts.RunRecord) error {
	run.EndedAt = time.Now().UTC()

	query := `
		UPDATE metadata.etl_run_log
		SET status = $2,
			records_extracted = $3,
			records_validated = $4,
			records_transformed = $5,
			records_loaded = $6,
			error_message = NULLIF($7, ''),
			run_end_time = $8
		WHERE run_id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query,
		run.RunID, string(run.Status),
		run.RecordsExtracted, run.RecordsValidated, run.RecordsTransformed, run.RecordsLoaded,
		run.ErrorMessage, run.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("update run log: %w", err)
	}
	return nil
}

// RecordValidation persists per-rule outcomes for a run
func (r *Repository) RecordValidation(ctx context.Context, runID string, result *contracts.ValidationResult) error {
	query := `
		INSERT INTO metadata.validation_log
			(run_id, dataset, rule_id, rule_kind, target_column, severity,
			 passed_records, failed_records, exceeded, detail, logged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	now := time.Now().UTC()
	for _, o := range result.Outcomes {
		_, err := r.db.Pool.Exec(ctx, query,
			runID, result.Dataset, o.RuleID, string(o.Kind), o.Column, string(o.Severity),
			o.PassedRecords, o.FailedRecords, o.Exceeded, o.Detail, now,
		)
		if err != nil {
			return fmt.Errorf("insert validation log for rule %s: %w", o.RuleID, err)
		}
	}
	return nil
}
