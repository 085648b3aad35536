package fall

import "time"

// DefaultCooldown is the minimum time between two Fire decisions.
const DefaultCooldown = 30 * time.Second

// Decision is the outcome of one gate evaluation.
type Decision int

const (
	// None means nothing to notify.
	None Decision = iota
	// Fire means a confirmed fall became alert-worthy.
	Fire
	// Reset means the alerted fall is no longer confirmed.
	Reset
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case None:
		return "none"
	case Fire:
		return "fire"
	case Reset:
		return "reset"
	default:
		return "unknown"
	}
}

// Gate is an edge-triggered alert latch with a cooldown.
//
// Idle + confirmed fires once the cooldown since the previous Fire has
// elapsed. Alerted stays silent while the fall stays confirmed and emits
// exactly one Reset on the first unconfirmed evaluation, whatever the
// cooldown. Only a recovery followed by a new confirmation re-arms it.
//
// Gate is not safe for concurrent use; the monitor loop owns it.
type Gate struct {
	cooldown   time.Duration
	lastAlert  time.Time
	alerted    bool
	active     bool
	suppressed bool
}

// NewGate creates a gate with the given cooldown. A negative cooldown is
// treated as zero.
func NewGate(cooldown time.Duration) *Gate {
	if cooldown < 0 {
		cooldown = 0
	}
	return &Gate{cooldown: cooldown}
}

// Evaluate advances the state machine for one frame.
func (g *Gate) Evaluate(confirmed bool, now time.Time) Decision {
	g.suppressed = false

	if g.active {
		if !confirmed {
			g.active = false
			return Reset
		}
		return None
	}

	if !confirmed {
		return None
	}

	if g.alerted && now.Sub(g.lastAlert) < g.cooldown {
		g.suppressed = true
		return None
	}

	g.active = true
	g.alerted = true
	g.lastAlert = now
	return Fire
}

// Resume seeds the cooldown with a Fire from an earlier run. The gate stays
// Idle; a confirmed fall fires only once the cooldown since lastAlert has
// passed. A zero lastAlert leaves the gate untouched.
func (g *Gate) Resume(lastAlert time.Time) {
	if lastAlert.IsZero() {
		return
	}
	g.alerted = true
	g.lastAlert = lastAlert
}

// Active reports whether the gate is latched in the alerted state.
func (g *Gate) Active() bool {
	return g.active
}

// Suppressed reports whether the last evaluation was a confirmed fall
// held back by the cooldown.
func (g *Gate) Suppressed() bool {
	return g.suppressed
}

// LastAlert returns the time of the most recent Fire (zero if none).
func (g *Gate) LastAlert() time.Time {
	return g.lastAlert
}

// Cooldown returns the configured cooldown.
func (g *Gate) Cooldown() time.Duration {
	return g.cooldown
}
