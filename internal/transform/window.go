package transform

import "github.com/shopspring/decimal"

// ring is a fixed-size rolling window over decimal observations with a
// running sum. Windowed indicators keep one ring per entity so that
// "undefined until N observations" is mechanical, not incidental.
type ring struct {
	buf   []decimal.Decimal
	size  int
	head  int
	count int
	sum   decimal.Decimal
}

func newRing(size int) *ring {
	return &ring{
		buf:  make([]decimal.Decimal, size),
		size: size,
	}
}

// push appends an observation, evicting the oldest once full
func (r *ring) push(d decimal.Decimal) {
	if r.count == r.size {
		r.sum = r.sum.Sub(r.buf[r.head])
	} else {
		r.count++
	}
	r.buf[r.head] = d
	r.sum = r.sum.Add(d)
	r.head = (r.head + 1) % r.size
}

// full reports whether the window holds size observations
func (r *ring) full() bool {
	return r.count == r.size
}

// mean returns the arithmetic mean of the window contents.
// Only meaningful once full.
func (r *ring) mean() decimal.Decimal {
	return r.sum.Div(decimal.NewFromInt(int64(r.count)))
}

// values returns the window contents, oldest first
func (r *ring) values() []decimal.Decimal {
	out := make([]decimal.Decimal, 0, r.count)
	start := r.head - r.count
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[((start+i)%r.size+r.size)%r.size])
	}
	return out
}
