package load

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/ledgerflow/internal/contracts"
)

// Mode selects the write semantics of a load call
type Mode string

const (
	// ModeAppend inserts; natural-key conflicts reject the record, not
	// the chunk
	ModeAppend Mode = "append"
	// ModeReplace clears the destination's prior contents for the
	// batch's partition keys, then inserts, all in one transaction
	ModeReplace Mode = "replace"
	// ModeUpsert inserts with on-conflict-update keyed by the natural
	// key; idempotent under repeated application
	ModeUpsert Mode = "upsert"
)

// Destination names a warehouse table and its write contract
type Destination struct {
	Table string
	// Columns is the insert column order; every record must carry them
	Columns []string
	// NaturalKey is the conflict target for append/upsert
	NaturalKey []string
	// PartitionKey scopes replace-mode deletes; defaults to NaturalKey's
	// first column when empty
	PartitionKey []string
}

// ID is the lock resource and LoadResult identifier
func (d Destination) ID() string {
	return d.Table
}

// buildInsertSQL renders one multi-row statement for rowCount rows.
// Upsert returns (xmax = 0) per row so inserted and updated counts split
// correctly: a freshly inserted row has xmax 0, an updated one does not.
func buildInsertSQL(dest Destination, mode Mode, rowCount int) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ",
		dest.Table, strings.Join(dest.Columns, ", "))

	nCols := len(dest.Columns)
	for row := 0; row < rowCount; row++ {
		if row > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for col := 0; col < nCols; col++ {
			if col > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", row*nCols+col+1)
		}
		sb.WriteString(")")
	}

	switch mode {
	case ModeAppend:
		fmt.Fprintf(&sb, " ON CONFLICT (%s) DO NOTHING", strings.Join(dest.NaturalKey, ", "))
	case ModeUpsert:
		fmt.Fprintf(&sb, " ON CONFLICT (%s) DO UPDATE SET ", strings.Join(dest.NaturalKey, ", "))
		first := true
		for _, col := range dest.Columns {
			if isKeyColumn(dest, col) {
				continue
			}
			if !first {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s = EXCLUDED.%s", col, col)
			first = false
		}
		sb.WriteString(" RETURNING (xmax = 0)")
	case ModeReplace:
		// plain insert; the delete ran in the same transaction
	}

	return sb.String()
}

// buildDeleteSQL scopes a replace-mode delete to the batch's distinct
// partition key tuples.
func buildDeleteSQL(dest Destination, records []contracts.Record) (string, []any) {
	keys := dest.PartitionKey
	if len(keys) == 0 {
		keys = dest.NaturalKey[:1]
	}

	seen := make(map[string]struct{})
	var tuples [][]any
	for _, rec := range records {
		id := contracts.RecordKey(rec, keys)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		tuple := make([]any, len(keys))
		for i, k := range keys {
			tuple[i] = bindValue(rec[k])
		}
		tuples = append(tuples, tuple)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "DELETE FROM %s WHERE (%s) IN (", dest.Table, strings.Join(keys, ", "))

	var args []any
	for ti, tuple := range tuples {
		if ti > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for i, v := range tuple {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", len(args)+1)
			args = append(args, v)
		}
		sb.WriteString(")")
	}
	sb.WriteString(")")

	return sb.String(), args
}

// flattenArgs renders records into the positional args of one multi-row
// statement, in destination column order.
func flattenArgs(records []contracts.Record, columns []string) []any {
	args := make([]any, 0, len(records)*len(columns))
	for _, rec := range records {
		for _, col := range columns {
			args = append(args, bindValue(rec[col]))
		}
	}
	return args
}

// bindValue maps engine scalars to pgx bind values. Decimals travel as
// text; Postgres casts to the destination numeric.
func bindValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case decimal.Decimal:
		return x.String()
	case time.Time:
		return x
	default:
		return x
	}
}

func isKeyColumn(dest Destination, col string) bool {
	for _, k := range dest.NaturalKey {
		if k == col {
			return true
		}
	}
	return false
}
