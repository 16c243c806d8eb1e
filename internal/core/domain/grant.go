package domain

import "time"

// DurationPermanent is the duration token for grants that never expire.
const DurationPermanent = "permanent"

// durationTable is the fixed set of grant duration tokens. The admin surface
// rejects anything outside this set before it reaches the store.
var durationTable = map[string]time.Duration{
	"1h":  time.Hour,
	"6h":  6 * time.Hour,
	"12h": 12 * time.Hour,
	"24h": 24 * time.Hour,
	"1w":  7 * 24 * time.Hour,
	"1m":  30 * 24 * time.Hour,
}

// AccessGrant lets a subject bypass the command prefix entirely. Grants are
// global per subject, not workspace-scoped: the grant list is a bot-wide
// trusted-user allowlist. A second grant for the same subject overwrites the
// first.
type AccessGrant struct {
	SubjectID     string
	GrantedBy     string
	GrantedAt     time.Time
	ExpiresAt     *time.Time
	DurationToken string
}

// ActiveAt reports whether the grant is honored at the given instant. Expiry
// is a computed predicate, never a stored status: a grant past its ExpiresAt
// is dead even if no sweeper has removed it yet.
func (g AccessGrant) ActiveAt(now time.Time) bool {
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}

// ParseDurationToken maps a duration token to an expiry instant relative to
// now. The permanent token yields a nil expiry.
func ParseDurationToken(token string, now time.Time) (*time.Time, error) {
	if token == DurationPermanent {
		return nil, nil
	}
	d, ok := durationTable[token]
	if !ok {
		return nil, ErrInvalidDurationToken
	}
	expires := now.Add(d)
	return &expires, nil
}
