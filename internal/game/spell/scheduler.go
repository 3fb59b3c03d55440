package spell

import (
	"github.com/udisondev/spellcore/internal/data"
)

// TickHandler applies one periodic tick. Implemented by Pipeline.
type TickHandler interface {
	Tick(app *AuraApplication, eff *AuraEffect)
}

// Scheduler advances aura durations and periodic effects once per map update.
type Scheduler struct {
	units     UnitIndex
	clock     *Clock
	ticker    TickHandler
	advancing bool
}

// NewScheduler creates a scheduler over the units of one map.
func NewScheduler(units UnitIndex, clock *Clock, ticker TickHandler) *Scheduler {
	return &Scheduler{
		units:  units,
		clock:  clock,
		ticker: ticker,
	}
}

// Advance moves map time by deltaMs, fires due ticks and expires auras.
//
// Ticks catch up: a delta spanning several periods fires every tick.
// The delta is walked in time order: the clock stops at every moment an aura
// ticks or expires, so an aura applied by a tick at time t is credited only
// the time after t. One Advance(T) and many smaller calls summing to T fire
// the same ticks in the same order, whatever the join order of the units.
//
// Advance is not re-entrant: a call from inside a tick returns ErrReentrantAdvance.
func (s *Scheduler) Advance(deltaMs int32) error {
	if s.advancing {
		return ErrReentrantAdvance
	}
	if deltaMs < 0 {
		deltaMs = 0
	}
	s.advancing = true
	defer func() { s.advancing = false }()

	end := s.clock.Now() + int64(deltaMs)
	for {
		next := s.nextDue(end)
		s.clock.Advance(int32(next - s.clock.Now()))
		s.pass()
		if next >= end {
			return nil
		}
	}
}

// nextDue returns the earliest time in (now, end] at which an aura ticks or
// expires, or end when nothing is due before it.
func (s *Scheduler) nextDue(end int64) int64 {
	now := s.clock.Now()
	next := end
	due := func(t int64) {
		if t > now && t < next {
			next = t
		}
	}
	for _, u := range s.units.Units() {
		c := s.units.Auras(u.GUID())
		if c == nil {
			continue
		}
		for _, app := range c.apps {
			for _, eff := range app.Effects {
				if eff.Kind == AuraKindPeriodic && eff.PeriodMs > 0 {
					due(app.creditedAt + int64(eff.PeriodMs-eff.accumulator))
				}
			}
			if !app.IsPermanent() {
				due(app.creditedAt + int64(app.RemainingMs))
			}
		}
	}
	return next
}

// pass credits every application up to the current clock in unit order.
func (s *Scheduler) pass() {
	now := s.clock.Now()
	for _, u := range s.units.Units() {
		c := s.units.Auras(u.GUID())
		if c == nil {
			continue
		}
		for _, app := range c.Applications() {
			s.advanceApplication(c, app, now)
		}
	}
}

func (s *Scheduler) advanceApplication(c *Container, app *AuraApplication, now int64) {
	if app.removed {
		return
	}
	if t := app.Target; t == nil || !t.IsInWorld() {
		c.Remove(app, data.RemoveTargetInvalid)
		return
	}
	if !app.Target.IsAlive() {
		c.Remove(app, data.RemoveDeath)
		return
	}

	// Applications created earlier in this pass were stamped with now.
	credit := int32(max(now-app.creditedAt, 0))
	app.creditedAt = now
	if !app.IsPermanent() {
		credit = min(credit, app.RemainingMs)
		// a tick may refresh this application; the refreshed duration wins
		app.RemainingMs -= credit
	}

	for _, eff := range app.Effects {
		if eff.Kind != AuraKindPeriodic || eff.PeriodMs <= 0 || eff.ticking {
			continue
		}
		eff.accumulator += credit
		for eff.accumulator >= eff.PeriodMs {
			if app.removed {
				return
			}
			eff.accumulator -= eff.PeriodMs
			eff.Ticks++
			eff.ticking = true
			s.ticker.Tick(app, eff)
			eff.ticking = false
		}
	}
	if app.removed {
		return
	}

	if !app.IsPermanent() {
		if app.RemainingMs <= 0 {
			app.RemainingMs = 0
			c.Remove(app, data.RemoveExpired)
		}
	}
}
