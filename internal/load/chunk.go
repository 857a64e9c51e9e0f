package load

// span is a half-open [Start, End) slice of the batch
type span struct {
	Start int
	End   int
}

// partition splits total rows into fixed-size chunks, last chunk short.
// 75 rows at size 10 gives 8 chunks: 7×10 + 1×5.
func partition(total, size int) []span {
	if total <= 0 || size <= 0 {
		return nil
	}

	spans := make([]span, 0, (total+size-1)/size)
	for start := 0; start < total; start += size {
		end := start + size
		if end > total {
			end = total
		}
		spans = append(spans, span{Start: start, End: end})
	}
	return spans
}
