package contracts

import "time"

// Lease is a time-bounded exclusive hold on a destination resource.
// At most one valid (non-expired) lease exists per resource at any instant.
type Lease struct {
	Resource   string
	Token      string // holder identity, checked on release/renew
	AcquiredAt time.Time
	TTL        time.Duration
}

// ExpiresAt returns the instant the lease lapses
func (l *Lease) ExpiresAt() time.Time {
	return l.AcquiredAt.Add(l.TTL)
}

// Expired reports whether the lease has lapsed at the given instant
func (l *Lease) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt())
}
