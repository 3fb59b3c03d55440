package spell

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/udisondev/spellcore/internal/combatlog"
	"github.com/udisondev/spellcore/internal/data"
)

// DefaultMaxProcDepth bounds proc chains when no limit is configured.
const DefaultMaxProcDepth = 8

// Dispatcher broadcasts combat events to proc auras of the involved units.
//
// Handlers fire in aura application order. A failing handler is logged and
// skipped; the broadcast always continues. Events deeper than maxDepth are dropped.
type Dispatcher struct {
	emitter

	units    UnitIndex
	registry *HandlerRegistry
	actions  Actions
	roller   Roller
	maxDepth int

	// depth of the event or request currently being processed
	depth int
}

// NewDispatcher creates a dispatcher. Actions must be set with SetActions
// before the first event.
func NewDispatcher(units UnitIndex, registry *HandlerRegistry, roller Roller, maxDepth int, clock *Clock, sink combatlog.Sink, mapID int32) *Dispatcher {
	if registry == nil {
		registry = NewHandlerRegistry()
	}
	if roller == nil {
		roller = RandomRoller
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxProcDepth
	}
	return &Dispatcher{
		emitter:  emitter{sink: sink, clock: clock, mapID: mapID},
		units:    units,
		registry: registry,
		roller:   roller,
		maxDepth: maxDepth,
	}
}

// SetActions wires the pipeline used by handlers.
func (d *Dispatcher) SetActions(a Actions) {
	d.actions = a
}

// MaxDepth returns the proc chain bound.
func (d *Dispatcher) MaxDepth() int {
	return d.maxDepth
}

// enter sets the current chain depth and returns a func restoring the previous one.
func (d *Dispatcher) enter(depth int) func() {
	prev := d.depth
	d.depth = depth
	return func() { d.depth = prev }
}

// Notify broadcasts ev to the actor's auras (ActorFlags) and then to the
// target's auras (TargetFlags). When actor and target are the same unit its
// auras are checked once against both flag sets.
func (d *Dispatcher) Notify(ev ProcEvent) {
	if ev.Depth > d.maxDepth {
		slog.Debug("proc chain depth exceeded, event dropped",
			"event", ev.ID,
			"spell", spellID(ev.Spell),
			"depth", ev.Depth,
			"max", d.maxDepth)
		d.emit(combatlog.Record{
			Kind:       combatlog.KindRecursion,
			CasterGUID: unitGUID(ev.Actor),
			TargetGUID: unitGUID(ev.Target),
			SpellID:    spellID(ev.Spell),
			Depth:      ev.Depth,
			Detail:     ErrRecursionLimitExceeded.Error(),
		})
		return
	}
	defer d.enter(ev.Depth)()

	if ev.Actor != nil && ev.Target != nil && ev.Actor.GUID() == ev.Target.GUID() {
		d.notifyUnit(ev.Actor, ev.ActorFlags|ev.TargetFlags, true, ev)
		return
	}
	if ev.Actor != nil && ev.ActorFlags != 0 {
		d.notifyUnit(ev.Actor, ev.ActorFlags, true, ev)
	}
	if ev.Target != nil && ev.TargetFlags != 0 {
		d.notifyUnit(ev.Target, ev.TargetFlags, false, ev)
	}
}

func (d *Dispatcher) notifyUnit(owner Unit, flags data.ProcFlag, ownerIsActor bool, ev ProcEvent) {
	c := d.units.Auras(owner.GUID())
	if c == nil {
		return
	}
	for _, app := range c.Applications() {
		if app.removed || !d.matches(app, flags, ev) {
			continue
		}
		if !d.fire(c, app, owner, ownerIsActor, ev) {
			continue
		}

		if cd := app.Spell.Proc.CooldownMs; cd > 0 {
			app.procReadyAt = d.clock.Now() + int64(cd)
		}
		if app.Charges > 0 {
			app.Charges--
			if app.Charges == 0 {
				c.Remove(app, data.RemoveConsumed)
			}
		}
	}
}

// matches is the proc predicate of one aura.
func (d *Dispatcher) matches(app *AuraApplication, flags data.ProcFlag, ev ProcEvent) bool {
	p := app.Spell.Proc
	if p == nil || p.Flags&flags == 0 {
		return false
	}
	if ev.RemovedAura == app {
		return false
	}
	if p.HitMask != 0 && ev.Hit&p.HitMask == 0 {
		return false
	}
	if !p.School.Overlaps(ev.school()) {
		return false
	}
	if len(p.Spells) > 0 && (ev.Spell == nil || !slices.Contains(p.Spells, ev.Spell.ID)) {
		return false
	}
	if d.clock.Now() < app.procReadyAt {
		return false
	}
	if p.Chance > 0 && !rollPercent(d.roller, p.Chance) {
		return false
	}
	return true
}

// fire runs the handlers of app. Returns true if at least one handler ran.
// A scripted spell handler runs once for the event; otherwise every proc slot
// runs the default handler of its aura type.
func (d *Dispatcher) fire(c *Container, app *AuraApplication, owner Unit, ownerIsActor bool, ev ProcEvent) bool {
	pc := ProcContext{
		Event:        ev,
		Aura:         app,
		Owner:        owner,
		OwnerIsActor: ownerIsActor,
		actions:      d.actions,
	}

	if h, ok := d.registry.spellProcHandler(app.Spell.ID); ok {
		for _, eff := range app.Effects {
			if eff.Kind == AuraKindProcTrigger {
				pc.Effect = eff
				break
			}
		}
		d.invoke(h, pc)
		return true
	}

	fired := false
	for _, eff := range app.Effects {
		if eff.Kind != AuraKindProcTrigger {
			continue
		}
		h, ok := d.registry.defaultProcHandler(eff.Def.Aura)
		if !ok {
			continue
		}
		pc.Effect = eff
		d.invoke(h, pc)
		fired = true

		// a handler may have removed the aura
		if app.removed {
			return fired
		}
	}
	return fired
}

// invoke runs one handler in isolation.
func (d *Dispatcher) invoke(h ProcHandler, pc ProcContext) {
	d.emit(combatlog.Record{
		Kind:       combatlog.KindProc,
		CasterGUID: pc.Aura.CasterGUID,
		TargetGUID: unitGUID(pc.Owner),
		SpellID:    pc.Aura.Spell.ID,
		Depth:      pc.Event.Depth,
		Hit:        pc.Event.Hit.String(),
	})

	err := safeCall(h, pc)
	switch {
	case err == nil:
	case errors.Is(err, ErrRecursionLimitExceeded):
		// already reported where the chain was cut
		slog.Debug("proc chain cut",
			"spell", pc.Aura.Spell.ID,
			"depth", pc.Event.Depth)
	default:
		slog.Warn("proc handler failed",
			"spell", pc.Aura.Spell.ID,
			"owner", unitGUID(pc.Owner),
			"event", pc.Event.ID,
			"error", err)
		d.emit(combatlog.Record{
			Kind:       combatlog.KindFault,
			CasterGUID: pc.Aura.CasterGUID,
			TargetGUID: unitGUID(pc.Owner),
			SpellID:    pc.Aura.Spell.ID,
			Depth:      pc.Event.Depth,
			Detail:     err.Error(),
		})
	}
}

func safeCall(h ProcHandler, pc ProcContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrProcHandlerFault, r)
		}
	}()
	if err := h(pc); err != nil {
		if errors.Is(err, ErrProcHandlerFault) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrProcHandlerFault, err)
	}
	return nil
}

// OnRemove implements RemoveNotifier: fires the aura's own on_remove trigger
// and broadcasts an aura_removed event for the owner.
func (d *Dispatcher) OnRemove(app *AuraApplication, reason data.RemoveReason) {
	owner := app.Target
	d.emit(combatlog.Record{
		Kind:       combatlog.KindAuraRemoved,
		CasterGUID: app.CasterGUID,
		TargetGUID: unitGUID(owner),
		SpellID:    app.Spell.ID,
		Depth:      d.depth,
		Detail:     reason.String(),
	})

	depth := d.depth + 1
	if depth > d.maxDepth {
		d.emit(combatlog.Record{
			Kind:       combatlog.KindRecursion,
			CasterGUID: app.CasterGUID,
			TargetGUID: unitGUID(owner),
			SpellID:    app.Spell.ID,
			Depth:      depth,
			Detail:     ErrRecursionLimitExceeded.Error(),
		})
		return
	}

	if trig := app.Spell.OnRemove; trig != nil && trig.Matches(reason) && d.actions != nil && isValidTarget(owner) {
		if _, err := d.actions.Trigger(trig.Spell, owner, []Unit{owner}, depth); err != nil {
			slog.Debug("on_remove trigger failed",
				"spell", app.Spell.ID,
				"trigger", trig.Spell,
				"error", err)
		}
	}

	if owner == nil {
		return
	}
	ev := newProcEvent()
	ev.Actor = d.units.Unit(app.CasterGUID)
	ev.Target = owner
	ev.TargetFlags = data.ProcAuraRemoved
	ev.Spell = app.Spell
	ev.Mode = ModeTriggered
	ev.RemovedAura = app
	ev.RemoveReason = reason
	ev.Depth = depth
	if ev.Actor != nil && ev.Actor.GUID() == owner.GUID() {
		ev.Actor = nil
	}
	d.Notify(ev)
}

func spellID(s *data.SpellTemplate) int32 {
	if s == nil {
		return 0
	}
	return s.ID
}
