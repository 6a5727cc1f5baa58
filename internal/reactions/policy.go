package reactions

import (
	"math/rand"
	"time"
)

// Policy computes reconnection delays and decides whether a retry is
// permitted. It is a pure function of its inputs (the jitter source is
// injectable) so it can be tested with table-driven cases and no clocks.
type Policy struct {
	BaseDelay   time.Duration // first retry delay, doubled per attempt
	MaxDelay    time.Duration // cap on the total computed delay
	MaxJitter   time.Duration // jitter drawn uniformly from [0, MaxJitter)
	MaxAttempts int

	// Jitter overrides the jitter source. Nil uses math/rand. Must return
	// a value in [0, 1).
	Jitter func() float64
}

// NextDelay returns the wait before retry number attempt (1-based):
// min(BaseDelay * 2^(attempt-1) + jitter, MaxDelay). The jitter
// desynchronizes simultaneous clients so a relay outage does not produce a
// synchronized retry storm.
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	backoff := p.BaseDelay
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= p.MaxDelay {
			backoff = p.MaxDelay
			break
		}
	}

	delay := backoff + time.Duration(p.jitter()*float64(p.MaxJitter))
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// RetryAllowed reports whether a retry may be scheduled. A retry is refused
// while an intentional disconnect is in progress, once the attempt budget is
// spent, or when a retry is already pending.
func (p Policy) RetryAllowed(st ReconnectState, intentional bool) bool {
	if intentional {
		return false
	}
	if st.Attempts >= p.MaxAttempts {
		return false
	}
	if st.Reconnecting {
		return false
	}
	return true
}

func (p Policy) jitter() float64 {
	if p.Jitter != nil {
		return p.Jitter()
	}
	return rand.Float64()
}
