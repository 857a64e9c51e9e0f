package pipeline

import (
	"context"

	"github.com/wonny/ledgerflow/internal/contracts"
	"github.com/wonny/ledgerflow/internal/load"
	"github.com/wonny/ledgerflow/internal/transform"
	"github.com/wonny/ledgerflow/internal/validate"
	"github.com/wonny/ledgerflow/pkg/logger"
)

// Loader is the warehouse-writing collaborator
type Loader interface {
	Load(ctx context.Context, batch *contracts.Batch, dest load.Destination, mode load.Mode, batchSize int) (*contracts.LoadResult, error)
}

// RunLogger is the external run-logging collaborator
type RunLogger interface {
	StartRun(ctx context.Context, dataset, destination string) (*contracts.RunRecord, error)
	FinishRun(ctx context.Context, run *contracts.RunRecord) error
	RecordValidation(ctx context.Context, runID string, result *contracts.ValidationResult) error
}

// Job describes one validate→transform→load invocation
type Job struct {
	RuleSet     contracts.RuleSet
	Transform   transform.Spec
	Destination load.Destination
	Mode        load.Mode
	BatchSize   int
}

// RunReport carries exact counts at each stage, sufficient to
// reconstruct what happened without re-running.
type RunReport struct {
	Run        *contracts.RunRecord
	Validation *contracts.ValidationResult
	Load       *contracts.LoadResult
}

// Runner composes the three stages over one batch
// ⭐ SSOT: 파이프라인 오케스트레이션은 여기서만
type Runner struct {
	validator   *validate.Validator
	transformer *transform.Transformer
	loader      Loader
	runlog      RunLogger
	logger      *logger.Logger
}

// New creates a pipeline runner
func New(v *validate.Validator, t *transform.Transformer, l Loader, rl RunLogger, log *logger.Logger) *Runner {
	return &Runner{
		validator:   v,
		transformer: t,
		loader:      l,
		runlog:      rl,
		logger:      log,
	}
}

// Run validates, transforms and loads one batch. Validation gates
// transformation: strict mode aborts on any blocking failure, non-strict
// mode drops the offending rows and continues. The report is returned
// even when the run fails so the caller can inspect partial progress.
func (r *Runner) Run(ctx context.Context, batch *contracts.Batch, job Job) (*RunReport, error) {
	run, err := r.runlog.StartRun(ctx, job.RuleSet.Dataset, job.Destination.ID())
	if err != nil {
		return nil, err
	}
	run.RecordsExtracted = batch.Len()
	report := &RunReport{Run: run}

	stages := []contracts.Stage{
		contracts.StageFunc{
			StageName: "validate",
			Fn: func(ctx context.Context, b *contracts.Batch) (*contracts.Batch, error) {
				eval, verr := r.validator.Validate(ctx, b, job.RuleSet)
				if eval != nil {
					report.Validation = eval.Result
					if rerr := r.runlog.RecordValidation(ctx, run.RunID, eval.Result); rerr != nil {
						r.logger.WithError(rerr).Warn("Validation log write failed")
					}
				}
				if verr != nil {
					return nil, verr
				}
				passing := eval.FilterPassing(b)
				run.RecordsValidated = passing.Len()
				return passing, nil
			},
		},
		contracts.StageFunc{
			StageName: "transform",
			Fn: func(ctx context.Context, b *contracts.Batch) (*contracts.Batch, error) {
				out, terr := r.transformer.Transform(ctx, b, job.Transform)
				if terr != nil {
					return nil, terr
				}
				run.RecordsTransformed = out.Len()
				return out, nil
			},
		},
		contracts.StageFunc{
			StageName: "load",
			Fn: func(ctx context.Context, b *contracts.Batch) (*contracts.Batch, error) {
				res, lerr := r.loader.Load(ctx, b, job.Destination, job.Mode, job.BatchSize)
				if res != nil {
					report.Load = res
					run.RecordsLoaded = res.RecordsInserted + res.RecordsUpdated
				}
				return b, lerr
			},
		},
	}

	current := batch
	for _, stage := range stages {
		next, serr := stage.Run(ctx, current)
		if serr != nil {
			run.Status = contracts.StatusFailed
			run.ErrorMessage = serr.Error()
			r.finish(ctx, run)
			return report, serr
		}
		current = next
	}

	if report.Load != nil {
		run.Status = report.Load.Status
	} else {
		run.Status = contracts.StatusSuccess
	}
	r.finish(ctx, run)

	return report, nil
}

func (r *Runner) finish(ctx context.Context, run *contracts.RunRecord) {
	finishCtx := context.WithoutCancel(ctx)
	if err := r.runlog.FinishRun(finishCtx, run); err != nil {
		r.logger.WithError(err).Warn("Run log write failed")
	}

	r.logger.WithFields(map[string]interface{}{
		"run_id":      run.RunID,
		"dataset":     run.Dataset,
		"destination": run.Destination,
		"status":      string(run.Status),
		"extracted":   run.RecordsExtracted,
		"validated":   run.RecordsValidated,
		"transformed": run.RecordsTransformed,
		"loaded":      run.RecordsLoaded,
	}).Info("Run finished")
}
