package contracts

import "time"

// RunStatus is the terminal state of a validate→transform→load run
type RunStatus string

const (
	StatusSuccess RunStatus = "SUCCESS"
	StatusPartial RunStatus = "PARTIAL" // some chunks rejected
	StatusFailed  RunStatus = "FAILED"  // validation or lock fatally blocked the run
)

// RuleOutcome is the evaluation result of one rule against one batch
type RuleOutcome struct {
	RuleID        string
	Kind          RuleKind
	Column        string
	Severity      Severity
	PassedRecords int
	FailedRecords int
	// Exceeded is true when a blocking rule's failure count went past its
	// configured threshold.
	Exceeded bool
	// SampleKeys holds up to a handful of offending row keys for triage
	SampleKeys []string
	Detail     string
}

// ValidationResult aggregates all rule outcomes for one batch
type ValidationResult struct {
	Dataset       string
	TotalRecords  int
	PassedRecords int
	FailedRecords int
	Outcomes      []RuleOutcome
	// Passed is false iff at least one blocking rule exceeded its threshold
	Passed bool
}

// BlockingFailures returns the outcomes of blocking rules that exceeded
// their thresholds
func (r *ValidationResult) BlockingFailures() []RuleOutcome {
	var out []RuleOutcome
	for _, o := range r.Outcomes {
		if o.Severity == SeverityBlocking && o.Exceeded {
			out = append(out, o)
		}
	}
	return out
}

// LoadResult describes one bulk load invocation
type LoadResult struct {
	Destination      string
	RecordsAttempted int
	RecordsInserted  int
	RecordsUpdated   int
	RecordsRejected  int
	Chunks           int
	FailedChunks     int
	Duration         time.Duration
	Status           RunStatus
}

// RunRecord is the run-log row handed to the run-logging collaborator
type RunRecord struct {
	RunID              string
	Dataset            string
	Destination        string
	Status             RunStatus
	RecordsExtracted   int
	RecordsValidated   int
	RecordsTransformed int
	RecordsLoaded      int
	ErrorMessage       string
	StartedAt          time.Time
	EndedAt            time.Time
}
