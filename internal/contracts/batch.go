package contracts

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Record is one row of a tabular batch. Values are typed scalars:
// nil (NULL), string, bool, int64, decimal.Decimal, time.Time.
type Record map[string]any

// Batch is an ordered sequence of records handed over by an extraction
// collaborator. The engine is agnostic to the original source format.
type Batch struct {
	Records []Record
}

// NewBatch wraps records in a batch
func NewBatch(records []Record) *Batch {
	return &Batch{Records: records}
}

// Len returns the number of records
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Records)
}

// Columns returns the set of column names present across all records
func (b *Batch) Columns() map[string]bool {
	cols := make(map[string]bool)
	for _, rec := range b.Records {
		for k := range rec {
			cols[k] = true
		}
	}
	return cols
}

// Clone returns a shallow working copy (records copied, values shared)
func (b *Batch) Clone() *Batch {
	out := &Batch{Records: make([]Record, len(b.Records))}
	for i, rec := range b.Records {
		cp := make(Record, len(rec))
		for k, v := range rec {
			cp[k] = v
		}
		out.Records[i] = cp
	}
	return out
}

// SortBy sorts records ascending by the given key columns in place.
// NULLs sort first so that undefined keys stay deterministic.
func (b *Batch) SortBy(keys ...string) {
	sort.SliceStable(b.Records, func(i, j int) bool {
		for _, k := range keys {
			c := CompareValues(b.Records[i][k], b.Records[j][k])
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
}

// IsNull reports whether a value is NULL
func IsNull(v any) bool {
	return v == nil
}

// AsDecimal coerces a value into the decimal domain.
// Returns false for NULL and for non-numeric values.
func AsDecimal(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, true
	case int64:
		return decimal.NewFromInt(x), true
	case int:
		return decimal.NewFromInt(int64(x)), true
	case float64:
		return decimal.NewFromFloat(x), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	default:
		return decimal.Decimal{}, false
	}
}

// AsInt coerces a value into an int64 without loss
func AsInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case decimal.Decimal:
		if x.IsInteger() {
			return x.IntPart(), true
		}
		return 0, false
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// AsString coerces a value into its string form
func AsString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case int64:
		return strconv.FormatInt(x, 10), true
	case decimal.Decimal:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	case time.Time:
		return x.Format(time.RFC3339), true
	default:
		return "", false
	}
}

// AsTime coerces a value into a timestamp
func AsTime(v any) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}

// CompareValues orders two scalar values. NULL < everything; mixed
// incomparable kinds fall back to string ordering.
func CompareValues(a, b any) int {
	if IsNull(a) && IsNull(b) {
		return 0
	}
	if IsNull(a) {
		return -1
	}
	if IsNull(b) {
		return 1
	}

	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			default:
				return 0
			}
		}
	}

	if ad, aok := AsDecimal(a); aok {
		if bd, bok := AsDecimal(b); bok {
			return ad.Cmp(bd)
		}
	}

	as, _ := AsString(a)
	bs, _ := AsString(b)
	return strings.Compare(as, bs)
}

// RecordKey renders the values of the given columns as a composite key,
// used for uniqueness checks and offending-row samples.
func RecordKey(rec Record, cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		if IsNull(rec[c]) {
			parts[i] = "<null>"
			continue
		}
		s, _ := AsString(rec[c])
		parts[i] = s
	}
	return strings.Join(parts, "|")
}
