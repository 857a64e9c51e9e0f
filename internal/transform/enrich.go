package transform

import (
	"fmt"

	"github.com/wonny/ledgerflow/internal/contracts"
)

// transformEnrich joins rows against a lookup keyed by a declared column
// and stamps source metadata. Lookup columns never overwrite columns the
// row already carries.
func (t *Transformer) transformEnrich(batch *contracts.Batch, spec Spec) (*contracts.Batch, error) {
	if len(spec.Lookup) > 0 && spec.LookupKey == "" {
		return nil, fmt.Errorf("enrich spec has a lookup but no lookup key")
	}

	loadedAt := t.Clock().UTC()

	for _, rec := range batch.Records {
		if len(spec.Lookup) > 0 {
			key, _ := contracts.AsString(rec[spec.LookupKey])
			if extra, ok := spec.Lookup[key]; ok {
				for col, val := range extra {
					if _, exists := rec[col]; !exists {
						rec[col] = val
					}
				}
			}
		}

		if spec.SourceSystem != "" {
			rec["source_system"] = spec.SourceSystem
		}
		rec["load_timestamp"] = loadedAt
	}

	return batch, nil
}
