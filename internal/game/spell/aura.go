package spell

import (
	"math"

	"github.com/udisondev/spellcore/internal/data"
)

// AuraKind — закрытый набор вариантов поведения слота ауры.
type AuraKind int8

const (
	AuraKindDummy AuraKind = iota
	AuraKindPeriodic
	AuraKindModifier // spell magnitude modifier
	AuraKindStat     // mod_stat
	AuraKindProcTrigger
	AuraKindAbsorb
)

func (k AuraKind) String() string {
	switch k {
	case AuraKindPeriodic:
		return "periodic"
	case AuraKindModifier:
		return "modifier"
	case AuraKindStat:
		return "stat"
	case AuraKindProcTrigger:
		return "proc_trigger"
	case AuraKindAbsorb:
		return "absorb"
	default:
		return "dummy"
	}
}

func kindOf(t data.AuraType) AuraKind {
	switch t {
	case data.AuraPeriodicDamage, data.AuraPeriodicHeal, data.AuraPeriodicEnergize, data.AuraPeriodicTriggerSpell:
		return AuraKindPeriodic
	case data.AuraAddFlatModifier, data.AuraAddPctModifier:
		return AuraKindModifier
	case data.AuraModStat:
		return AuraKindStat
	case data.AuraProcTriggerSpell, data.AuraReflectDamage, data.AuraProcHeal:
		return AuraKindProcTrigger
	case data.AuraSchoolAbsorb:
		return AuraKindAbsorb
	default:
		return AuraKindDummy
	}
}

// AuraEffect — один активный слот ауры.
type AuraEffect struct {
	Def  *data.EffectDef
	Kind AuraKind

	BaseAmount float64 // per stack, resolved at application
	Amount     float64 // BaseAmount × stacks
	Absorb     float64 // remaining shield, AuraKindAbsorb only

	PeriodMs    int32
	accumulator int32
	Ticks       int32
	ticking     bool

	extra []Modifier // ad-hoc modifiers of the applying request, kept for re-resolution

	app *AuraApplication
}

// Index returns the effect slot index within the spell.
func (e *AuraEffect) Index() int { return e.Def.Index }

// Application returns the owning application.
func (e *AuraEffect) Application() *AuraApplication { return e.app }

// School returns the effect school, falling back to the spell school.
func (e *AuraEffect) School() data.SchoolMask {
	if e.Def.School != 0 {
		return e.Def.School
	}
	return e.app.Spell.School
}

func (e *AuraEffect) recalculate(stacks int32) {
	e.Amount = e.BaseAmount * float64(stacks)
}

// rebase replaces the per-stack amount. A shield keeps the part already consumed.
func (e *AuraEffect) rebase(base float64, stacks int32) {
	old := e.Amount
	e.BaseAmount = base
	e.recalculate(stacks)
	if e.Kind == AuraKindAbsorb {
		e.Absorb = max(e.Absorb+e.Amount-old, 0)
	}
}

// dependsOnStats reports whether the resolved amount reads the caster or target stats.
func (e *AuraEffect) dependsOnStats() (caster, target bool) {
	caster = e.Def.Attr != data.StatNone && e.Def.AttrCoefficient != 0
	target = e.Def.TargetAttr != data.StatNone && e.Def.TargetAttrCoefficient != 0
	return caster, target
}

// AuraApplication — одно применение ауры к цели.
//
// Caster is a weak reference: only the GUID is held and resolved through the
// map's UnitIndex, so it may point to a unit that has already left.
type AuraApplication struct {
	Spell      *data.SpellTemplate
	Target     Unit
	CasterGUID uint64

	EffectMask  uint32 // subset of Spell.AuraEffectMask()
	DurationMs  int32
	RemainingMs int32
	Stacks      int32
	Charges     int32 // proc charges left, 0 = unlimited

	// Applications counts how many times Apply produced or refreshed this application.
	Applications int32

	Effects []*AuraEffect // active slots in index order

	seq          uint64
	creditedAt   int64 // map time up to which the scheduler has credited elapsed time
	procReadyAt  int64
	removed      bool
	removeReason data.RemoveReason
}

// IsRemoved reports whether the application reached its terminal state.
func (a *AuraApplication) IsRemoved() bool { return a.removed }

// RemoveReason returns why the application was removed.
func (a *AuraApplication) RemoveReason() data.RemoveReason { return a.removeReason }

// IsPermanent reports whether the application never expires on its own.
func (a *AuraApplication) IsPermanent() bool { return a.Spell.IsPermanent() }

// Effect returns the active slot with the given index or nil.
func (a *AuraApplication) Effect(index int) *AuraEffect {
	for _, e := range a.Effects {
		if e.Def.Index == index {
			return e
		}
	}
	return nil
}

// HasKind reports whether any active slot is of kind k.
func (a *AuraApplication) HasKind(k AuraKind) bool {
	for _, e := range a.Effects {
		if e.Kind == k {
			return true
		}
	}
	return false
}

// strength is the comparison key for replace_if_stronger.
func (a *AuraApplication) strength() float64 {
	return strengthOf(a.Effects)
}

func strengthOf(effects []*AuraEffect) float64 {
	s := 0.0
	for _, e := range effects {
		s += math.Abs(e.BaseAmount)
	}
	return s
}

// refresh resets the duration as of now. RemainingMs counts from creditedAt,
// so time not yet credited by the scheduler is added back.
func (a *AuraApplication) refresh(now int64) {
	a.RemainingMs = a.DurationMs + int32(max(now-a.creditedAt, 0))
	a.Applications++
	if a.Spell.Proc != nil {
		a.Charges = a.Spell.Proc.Charges
	}
	for _, e := range a.Effects {
		e.recalculate(a.Stacks)
		if e.Kind == AuraKindAbsorb {
			e.Absorb = e.Amount
		}
	}
}

func newApplication(tmpl *data.SpellTemplate, target Unit, casterGUID uint64, amounts map[int]float64, mask uint32, now int64) *AuraApplication {
	app := &AuraApplication{
		creditedAt:   now,
		Spell:        tmpl,
		Target:       target,
		CasterGUID:   casterGUID,
		EffectMask:   mask,
		DurationMs:   max(tmpl.DurationMs, 0),
		RemainingMs:  max(tmpl.DurationMs, 0),
		Stacks:       1,
		Applications: 1,
	}
	if tmpl.Proc != nil {
		app.Charges = tmpl.Proc.Charges
	}
	app.Effects = buildEffects(app, amounts)
	return app
}

func buildEffects(app *AuraApplication, amounts map[int]float64) []*AuraEffect {
	effects := make([]*AuraEffect, 0, len(app.Spell.Effects))
	for i := range app.Spell.Effects {
		def := &app.Spell.Effects[i]
		if app.EffectMask&(1<<uint(i)) == 0 {
			continue
		}
		e := &AuraEffect{
			Def:        def,
			Kind:       kindOf(def.Aura),
			BaseAmount: amounts[i],
			PeriodMs:   def.PeriodMs,
			app:        app,
		}
		e.recalculate(app.Stacks)
		if e.Kind == AuraKindAbsorb {
			e.Absorb = e.Amount
		}
		effects = append(effects, e)
	}
	return effects
}
