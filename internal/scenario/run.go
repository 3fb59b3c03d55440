package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/udisondev/spellcore/internal/combatlog"
	"github.com/udisondev/spellcore/internal/data"
	"github.com/udisondev/spellcore/internal/game/spell"
	"github.com/udisondev/spellcore/internal/model"
	"github.com/udisondev/spellcore/internal/world"
)

// UnitState — состояние юнита в конце прогона.
type UnitState struct {
	GUID    uint64
	Name    string
	HP      int32
	MaxHP   int32
	Power   int32
	Alive   bool
	InWorld bool
	Auras   []int32 // spell ids in application order
}

// Result summarizes a deterministic run.
type Result struct {
	Name      string
	ElapsedMs int64
	Units     []UnitState
	Kinds     map[combatlog.Kind]int
	Failed    int // actions rejected with an error
	Records   []combatlog.Record
}

// Unit returns the final state of guid.
func (r *Result) Unit(guid uint64) (UnitState, bool) {
	for _, u := range r.Units {
		if u.GUID == guid {
			return u, true
		}
	}
	return UnitState{}, false
}

// NewRoller returns a reproducible roller for seed. Seed 0 always rolls 0.5.
func NewRoller(seed uint64) spell.Roller {
	if seed == 0 {
		return spell.RollerFunc(func() float64 { return 0.5 })
	}
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return spell.RollerFunc(r.Float64)
}

// Run simulates sc on a fresh map driven by Step, without wall-clock time.
// The same scenario, store and seed always produce the same result.
func Run(store *data.Store, sc *Scenario, opts spell.Options) (*Result, error) {
	if err := sc.CheckSpells(store); err != nil {
		return nil, err
	}

	rec := combatlog.NewRecorder()
	if opts.Sink != nil {
		opts.Sink = combatlog.MultiSink{rec, opts.Sink}
	} else {
		opts.Sink = rec
	}
	if opts.Roller == nil {
		opts.Roller = NewRoller(sc.Seed)
	}

	m := world.NewMap(opts.MapID, sc.Name, store, opts)
	units := sc.BuildUnits(world.NewGUIDGenerator())
	for _, c := range units {
		if err := m.AddUnit(c); err != nil {
			return nil, fmt.Errorf("adding unit %s: %w", c.Name(), err)
		}
	}

	res := &Result{Name: sc.Name}
	next := 0
	now := int32(0)
	for {
		for next < len(sc.Actions) && sc.Actions[next].AtMs <= now {
			a := sc.Actions[next]
			if err := apply(m, a); err != nil {
				res.Failed++
				slog.Debug("scenario action failed",
					"scenario", sc.Name,
					"at", a.AtMs,
					"type", a.Type,
					"error", err)
			}
			next++
		}
		if now >= sc.DurationMs {
			break
		}
		step := min(sc.StepMs, sc.DurationMs-now)
		if err := m.Step(step); err != nil {
			return nil, err
		}
		now += step
	}

	res.ElapsedMs = m.Engine().Clock.Now()
	res.Records = rec.Records()
	res.Kinds = make(map[combatlog.Kind]int)
	for _, r := range res.Records {
		res.Kinds[r.Kind]++
	}
	for _, c := range units {
		res.Units = append(res.Units, unitState(m, c))
	}
	return res, nil
}

func unitState(m *world.Map, c *model.Creature) UnitState {
	st := UnitState{
		GUID:    c.GUID(),
		Name:    c.Name(),
		HP:      c.CurrentHP(),
		MaxHP:   c.MaxHP(),
		Power:   c.Power(),
		Alive:   c.IsAlive(),
		InWorld: c.IsInWorld(),
	}
	if auras := m.Auras(c.GUID()); auras != nil {
		for _, app := range auras.Applications() {
			st.Auras = append(st.Auras, app.Spell.ID)
		}
	}
	return st
}

// Seed adds the scenario units to m. Call before m.Run.
func Seed(m *world.Map, sc *Scenario, gen *world.GUIDGenerator) error {
	for _, c := range sc.BuildUnits(gen) {
		if err := m.AddUnit(c); err != nil {
			return fmt.Errorf("seeding map %d: %w", m.ID(), err)
		}
	}
	return nil
}

// Play posts the scenario actions to a running map at their wall-clock offsets.
// Returns nil when all actions were posted or ctx is cancelled.
func Play(ctx context.Context, m *world.Map, sc *Scenario) error {
	start := time.Now()
	failed := 0

	for _, a := range sc.Actions {
		if wait := time.Until(start.Add(time.Duration(a.AtMs) * time.Millisecond)); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}

		err := m.Do(ctx, func() error { return apply(m, a) })
		switch {
		case err == nil:
		case ctx.Err() != nil, errors.Is(err, world.ErrMapStopped):
			return nil
		default:
			failed++
			slog.Warn("scenario action failed",
				"map", m.ID(),
				"at", a.AtMs,
				"type", a.Type,
				"error", err)
		}
	}

	slog.Info("scenario played", "map", m.ID(), "scenario", sc.Name, "actions", len(sc.Actions), "failed", failed)
	return nil
}

// apply runs one action on the map goroutine.
func apply(m *world.Map, a Action) error {
	switch a.Type {
	case ActionCast:
		_, err := m.CastNow(a.Caster, a.Spell, a.Targets...)
		return err

	case ActionCancel:
		auras := m.Auras(a.Unit)
		if auras == nil {
			return fmt.Errorf("unit %d: %w", a.Unit, world.ErrUnitNotFound)
		}
		if auras.RemoveBySpell(a.Spell, data.RemoveCancelled) == 0 {
			return fmt.Errorf("unit %d has no aura %d", a.Unit, a.Spell)
		}
		return nil

	case ActionDispel:
		auras := m.Auras(a.Unit)
		if auras == nil {
			return fmt.Errorf("unit %d: %w", a.Unit, world.ErrUnitNotFound)
		}
		auras.Dispel(max(a.Count, 1), a.Harmful)
		return nil

	case ActionLeave:
		_, err := m.RemoveUnit(a.Unit)
		return err
	}
	return fmt.Errorf("unknown action %q", a.Type)
}
