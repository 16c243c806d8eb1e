package domain

import "time"

// InboundEvent is one message arriving from the transport layer. WorkspaceID
// is empty for direct messages, which resolve to the system default prefix.
type InboundEvent struct {
	WorkspaceID string
	SubjectID   string
	RawText     string
	Timestamp   time.Time
}

// Decision tells the command dispatcher how to treat an inbound event. The
// core never returns user-facing errors; a degraded decision means the store
// was unreachable and cached defaults were served.
type Decision struct {
	Prefix         string
	BypassesPrefix bool
	RateLimited    bool
	RetryAfter     time.Duration
	Degraded       bool
}

// Resolution is the prefix-resolution half of a Decision, before rate
// limiting is applied.
type Resolution struct {
	Prefix         string
	BypassesPrefix bool
	Degraded       bool
}
