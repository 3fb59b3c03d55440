package spell

import "math/rand/v2"

// Clock — игровое время карты в миллисекундах.
// Двигается только планировщиком, поэтому симуляция детерминирована.
type Clock struct {
	nowMs int64
}

// Now returns map time in ms.
func (c *Clock) Now() int64 {
	return c.nowMs
}

// Advance moves map time forward.
func (c *Clock) Advance(deltaMs int32) {
	if deltaMs > 0 {
		c.nowMs += int64(deltaMs)
	}
}

// Roller returns uniformly distributed values in [0, 1).
// Used for crit, resist and proc chance rolls.
type Roller interface {
	Roll() float64
}

// RollerFunc adapts a function to Roller.
type RollerFunc func() float64

func (f RollerFunc) Roll() float64 { return f() }

// RandomRoller uses the global math/rand/v2 source.
var RandomRoller Roller = RollerFunc(rand.Float64)

// rollPercent reports whether a roll falls under chance (percent).
// chance <= 0 never succeeds, chance >= 100 always does.
func rollPercent(r Roller, chance float64) bool {
	if chance <= 0 {
		return false
	}
	if chance >= 100 {
		return true
	}
	return r.Roll()*100 < chance
}
