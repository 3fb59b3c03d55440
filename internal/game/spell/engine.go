package spell

import (
	"github.com/udisondev/spellcore/internal/combatlog"
)

// DefaultMaxAuras is the per-unit aura limit when none is configured.
const DefaultMaxAuras = 40

// Options configures an Engine. Zero values select defaults.
type Options struct {
	MapID          int32
	MaxProcDepth   int
	MaxAuras       int // < 0 disables the limit
	CritMultiplier float64
	Sink           combatlog.Sink
	Roller         Roller
	Registry       *HandlerRegistry
	Validator      TargetValidator
}

// Engine bundles the components of one map: they share a clock and a unit index
// and must only be used from the map's goroutine.
type Engine struct {
	Clock      *Clock
	Resolver   *Resolver
	Dispatcher *Dispatcher
	Pipeline   *Pipeline
	Scheduler  *Scheduler

	maxAuras int
}

// NewEngine wires resolver, dispatcher, pipeline and scheduler over units.
func NewEngine(defs Definitions, units UnitIndex, opts Options) *Engine {
	if opts.Sink == nil {
		opts.Sink = combatlog.Discard
	}
	if opts.Roller == nil {
		opts.Roller = RandomRoller
	}
	if opts.Registry == nil {
		opts.Registry = NewHandlerRegistry()
	}
	if opts.CritMultiplier <= 0 {
		opts.CritMultiplier = DefaultCritMultiplier
	}
	switch {
	case opts.MaxAuras == 0:
		opts.MaxAuras = DefaultMaxAuras
	case opts.MaxAuras < 0:
		opts.MaxAuras = 0
	}

	clock := &Clock{}
	resolver := NewResolver(defs)
	dispatcher := NewDispatcher(units, opts.Registry, opts.Roller, opts.MaxProcDepth, clock, opts.Sink, opts.MapID)
	pipeline := &Pipeline{
		emitter:        emitter{sink: opts.Sink, clock: clock, mapID: opts.MapID},
		defs:           defs,
		resolver:       resolver,
		units:          units,
		dispatcher:     dispatcher,
		registry:       opts.Registry,
		validator:      opts.Validator,
		roller:         opts.Roller,
		critMultiplier: opts.CritMultiplier,
		cooldowns:      make(map[cooldownKey]int64),
	}
	dispatcher.SetActions(pipeline)

	return &Engine{
		Clock:      clock,
		Resolver:   resolver,
		Dispatcher: dispatcher,
		Pipeline:   pipeline,
		Scheduler:  NewScheduler(units, clock, pipeline),
		maxAuras:   opts.MaxAuras,
	}
}

// NewContainer creates an aura container for owner wired to the dispatcher.
func (e *Engine) NewContainer(owner Unit) *Container {
	c := NewContainer(owner, e.maxAuras)
	c.SetRemoveNotifier(e.Dispatcher)
	c.SetStatObserver(e.Pipeline)
	c.SetClock(e.Clock)
	return c
}

// StatsChanged re-resolves aura amounts that depend on the stats of guid.
// Units call it when a base stat changes.
func (e *Engine) StatsChanged(guid uint64) {
	e.Pipeline.StatsChanged(guid)
}

// Cast applies spellID from caster to targets in cast mode.
func (e *Engine) Cast(caster Unit, spellID int32, targets ...Unit) ([]Outcome, error) {
	return e.Pipeline.Apply(Request{
		SpellID: spellID,
		Caster:  caster,
		Targets: targets,
		Mode:    ModeCast,
	})
}

// Advance advances the map clock and all periodic effects.
func (e *Engine) Advance(deltaMs int32) error {
	return e.Scheduler.Advance(deltaMs)
}
