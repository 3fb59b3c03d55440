package spell

import (
	"github.com/udisondev/spellcore/internal/data"
)

// ProcContext is passed to proc handlers.
type ProcContext struct {
	Event  ProcEvent
	Aura   *AuraApplication
	Effect *AuraEffect // nil for spell handlers of auras without proc slots
	Owner  Unit        // unit carrying the aura

	// OwnerIsActor is true when the aura reacted on the actor side of the event.
	OwnerIsActor bool

	actions Actions
}

// Counterpart returns the other side of the event relative to the aura owner.
func (pc ProcContext) Counterpart() Unit {
	if pc.OwnerIsActor {
		return pc.Event.Target
	}
	return pc.Event.Actor
}

// TriggerSpell casts spellID in triggered mode one level deeper in the proc chain.
func (pc ProcContext) TriggerSpell(spellID int32, caster Unit, targets ...Unit) error {
	_, err := pc.actions.Trigger(spellID, caster, targets, pc.Event.Depth+1)
	return err
}

// Damage deals direct damage on behalf of the aura one level deeper in the chain.
func (pc ProcContext) Damage(victim Unit, amount float64, school data.SchoolMask) EffectResult {
	return pc.actions.DealDamage(pc.Aura.Spell, pc.Owner, victim, amount, school, pc.Event.Depth+1)
}

// Heal heals on behalf of the aura one level deeper in the chain.
func (pc ProcContext) Heal(target Unit, amount float64) EffectResult {
	return pc.actions.DealHeal(pc.Aura.Spell, pc.Owner, target, amount, pc.Event.Depth+1)
}

// Actions is what proc handlers may do to the world. Implemented by Pipeline.
type Actions interface {
	Trigger(spellID int32, caster Unit, targets []Unit, depth int) ([]Outcome, error)
	DealDamage(spell *data.SpellTemplate, attacker, victim Unit, amount float64, school data.SchoolMask, depth int) EffectResult
	DealHeal(spell *data.SpellTemplate, healer, target Unit, amount float64, depth int) EffectResult
}

// ProcHandler reacts to a proc. Errors and panics are isolated by the dispatcher.
type ProcHandler func(pc ProcContext) error

// DummyContext is passed to dummy effect handlers.
type DummyContext struct {
	Spell  *data.SpellTemplate
	Effect *data.EffectDef
	Caster Unit
	Target Unit
	Amount float64
	Mode   Mode
	Depth  int

	actions Actions
}

// TriggerSpell casts spellID in triggered mode one level deeper.
func (dc DummyContext) TriggerSpell(spellID int32, caster Unit, targets ...Unit) error {
	_, err := dc.actions.Trigger(spellID, caster, targets, dc.Depth+1)
	return err
}

// DummyHandler implements a scripted dummy effect.
type DummyHandler func(dc DummyContext) (float64, error)

// HandlerRegistry maps spell IDs to scripted handlers.
// Built explicitly at startup and passed to the engine; there is no global registry.
type HandlerRegistry struct {
	procs    map[int32]ProcHandler
	dummies  map[int32]DummyHandler
	defaults map[data.AuraType]ProcHandler
}

// NewHandlerRegistry creates a registry with the default proc handlers
// for proc_trigger_spell, reflect_damage and proc_heal.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		procs:   make(map[int32]ProcHandler),
		dummies: make(map[int32]DummyHandler),
		defaults: map[data.AuraType]ProcHandler{
			data.AuraProcTriggerSpell: procTriggerSpell,
			data.AuraReflectDamage:    procReflectDamage,
			data.AuraProcHeal:         procHeal,
		},
	}
}

// RegisterProc registers a scripted proc handler for spellID.
// It replaces the default handlers of the aura's proc slots and runs once
// per triggering event; ProcContext.Effect is the first proc slot, if any.
func (r *HandlerRegistry) RegisterProc(spellID int32, h ProcHandler) {
	r.procs[spellID] = h
}

// RegisterDummy registers a dummy effect handler for spellID.
func (r *HandlerRegistry) RegisterDummy(spellID int32, h DummyHandler) {
	r.dummies[spellID] = h
}

// defaultProcHandler resolves the built-in handler for one proc slot type.
func (r *HandlerRegistry) defaultProcHandler(aura data.AuraType) (ProcHandler, bool) {
	h, ok := r.defaults[aura]
	return h, ok
}

// spellProcHandler returns a scripted handler registered for spellID only.
func (r *HandlerRegistry) spellProcHandler(spellID int32) (ProcHandler, bool) {
	h, ok := r.procs[spellID]
	return h, ok
}

func (r *HandlerRegistry) dummy(spellID int32) (DummyHandler, bool) {
	h, ok := r.dummies[spellID]
	return h, ok
}

// procTriggerSpell casts the slot's trigger spell at the other side of the event.
func procTriggerSpell(pc ProcContext) error {
	target := pc.Counterpart()
	if target == nil || target == pc.Owner {
		target = pc.Owner
	}
	return pc.TriggerSpell(pc.Effect.Def.TriggerSpell, pc.Owner, target)
}

// procReflectDamage returns Amount percent of the damage taken back to the attacker.
func procReflectDamage(pc ProcContext) error {
	attacker := pc.Event.Actor
	if pc.OwnerIsActor || attacker == nil || attacker == pc.Owner {
		return nil
	}
	taken := float64(pc.Event.Damage.Amount + pc.Event.Damage.Absorbed)
	reflected := taken * pc.Effect.Amount / 100
	if reflected <= 0 {
		return nil
	}
	res := pc.Damage(attacker, reflected, pc.Event.school())
	return res.Err
}

// procHeal heals the aura owner by the slot amount.
func procHeal(pc ProcContext) error {
	if pc.Effect.Amount <= 0 {
		return nil
	}
	res := pc.Heal(pc.Owner, pc.Effect.Amount)
	return res.Err
}
