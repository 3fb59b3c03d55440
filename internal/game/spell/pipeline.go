package spell

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/udisondev/spellcore/internal/combatlog"
	"github.com/udisondev/spellcore/internal/data"
)

// DefaultCritMultiplier is applied to critical damage and heals.
const DefaultCritMultiplier = 1.5

// Request describes one invocation of the pipeline.
type Request struct {
	SpellID int32
	Spell   *data.SpellTemplate // takes precedence over SpellID
	Caster  Unit
	Targets []Unit // explicit targets; area selection is done by the caller
	Mode    Mode

	// Periodic mode: the ticking application and slot.
	Aura   *AuraApplication
	Effect *AuraEffect

	Depth     int
	Modifiers []Modifier // ad-hoc modifiers appended after aura modifiers
}

// EffectResult is the result of one effect slot against one target.
type EffectResult struct {
	Index    int
	Type     data.EffectType
	Aura     data.AuraType
	Amount   float64 // resolved magnitude before crit and absorb
	Dealt    int32   // damage, effective heal or power actually applied
	Absorbed int32
	Hit      data.HitMask
	Applied  *AuraApplication
	Err      error
}

// Outcome collects effect results for one target.
type Outcome struct {
	Target  Unit
	Effects []EffectResult
	Err     error // target-level failure, e.g. ErrTargetInvalid
}

// Total returns the damage (or heal) dealt to the target by all effects.
func (o Outcome) Total() int32 {
	var sum int32
	for _, r := range o.Effects {
		sum += r.Dealt
	}
	return sum
}

type cooldownKey struct {
	guid    uint64
	spellID int32
}

// Pipeline applies spell effects to targets.
// Implements TickHandler for the scheduler and Actions for proc handlers.
type Pipeline struct {
	emitter

	defs       Definitions
	resolver   *Resolver
	units      UnitIndex
	dispatcher *Dispatcher
	registry   *HandlerRegistry
	validator  TargetValidator
	roller     Roller

	critMultiplier float64
	cooldowns      map[cooldownKey]int64
	recalculating  bool
}

// Apply runs a spell against its targets.
//
// Cast mode checks the caster, cooldown and power cost; periodic and
// triggered invocations skip those checks. Failures of one effect or one
// target are reported in the outcome and never stop the others. The
// returned error is set only when the request is rejected as a whole.
func (p *Pipeline) Apply(req Request) ([]Outcome, error) {
	tmpl := req.Spell
	if tmpl == nil {
		tmpl = p.defs.Spell(req.SpellID)
	}
	if tmpl == nil {
		return nil, fmt.Errorf("spell %d: %w", req.SpellID, ErrUnknownSpell)
	}
	if req.Depth > p.dispatcher.maxDepth {
		p.recursionLimit(tmpl, req.Caster, firstUnit(req.Targets), req.Depth)
		return nil, fmt.Errorf("spell %d at depth %d: %w", tmpl.ID, req.Depth, ErrRecursionLimitExceeded)
	}

	defer p.dispatcher.enter(req.Depth)()

	if req.Mode == ModePeriodic {
		return p.applyPeriodic(tmpl, req), nil
	}

	if req.Mode == ModeCast {
		if err := p.checkCast(tmpl, req.Caster); err != nil {
			p.emit(combatlog.Record{
				Kind:       combatlog.KindCastFailed,
				CasterGUID: unitGUID(req.Caster),
				TargetGUID: unitGUID(firstUnit(req.Targets)),
				SpellID:    tmpl.ID,
				Detail:     err.Error(),
			})
			return nil, fmt.Errorf("spell %d: %w", tmpl.ID, err)
		}
	}

	outcomes, valid := p.validateTargets(tmpl, req)
	index := make(map[uint64]int, len(outcomes))
	for i, o := range outcomes {
		index[o.Target.GUID()] = i
	}

	if req.Mode == ModeCast {
		if len(valid) == 0 && needsExplicitTarget(tmpl) {
			p.emit(combatlog.Record{
				Kind:       combatlog.KindCastFailed,
				CasterGUID: unitGUID(req.Caster),
				SpellID:    tmpl.ID,
				Detail:     ErrTargetInvalid.Error(),
			})
			return outcomes, nil
		}
		p.payCost(tmpl, req.Caster)
	}

	auraDone := make(map[uint64]bool)
	for i := range tmpl.Effects {
		def := &tmpl.Effects[i]
		for _, t := range selectTargets(def, req.Caster, valid) {
			oi, ok := index[t.GUID()]
			if !ok {
				oi = len(outcomes)
				index[t.GUID()] = oi
				outcomes = append(outcomes, Outcome{Target: t})
			}

			// a previous effect or proc may have killed or removed the target
			if !isValidTarget(t) {
				outcomes[oi].Effects = append(outcomes[oi].Effects, EffectResult{
					Index: def.Index,
					Type:  def.Type,
					Err:   ErrTargetInvalid,
				})
				continue
			}

			if def.Type == data.EffectApplyAura {
				if auraDone[t.GUID()] {
					continue
				}
				auraDone[t.GUID()] = true
				outcomes[oi].Effects = append(outcomes[oi].Effects, p.applyAura(tmpl, req, t, valid)...)
				continue
			}
			outcomes[oi].Effects = append(outcomes[oi].Effects, p.applyEffect(tmpl, def, req, t))
		}
	}

	if req.Mode == ModeCast {
		p.emit(combatlog.Record{
			Kind:       combatlog.KindCast,
			CasterGUID: unitGUID(req.Caster),
			TargetGUID: unitGUID(firstUnit(valid)),
			SpellID:    tmpl.ID,
			Depth:      req.Depth,
		})
		slog.Debug("spell cast",
			"caster", req.Caster.Name(),
			"spell", tmpl.Name,
			"spellID", tmpl.ID,
			"targets", len(valid))

		ev := newProcEvent()
		ev.Actor = req.Caster
		ev.ActorFlags = data.ProcCastSpell
		ev.Target = firstUnit(valid)
		ev.Spell = tmpl
		ev.Mode = req.Mode
		ev.Depth = req.Depth
		ev.Hit = data.HitNormal
		p.dispatcher.Notify(ev)
	}

	return outcomes, nil
}

func (p *Pipeline) checkCast(tmpl *data.SpellTemplate, caster Unit) error {
	if caster == nil || !caster.IsAlive() || !caster.IsInWorld() {
		return ErrCasterDead
	}
	if ready, ok := p.cooldowns[cooldownKey{caster.GUID(), tmpl.ID}]; ok && p.clock.Now() < ready {
		return ErrOnCooldown
	}
	if tmpl.PowerCost > 0 && caster.Power() < tmpl.PowerCost {
		return fmt.Errorf("need %d, have %d: %w", tmpl.PowerCost, caster.Power(), ErrNotEnoughPower)
	}
	return nil
}

func (p *Pipeline) payCost(tmpl *data.SpellTemplate, caster Unit) {
	if tmpl.PowerCost > 0 {
		caster.SetPower(caster.Power() - tmpl.PowerCost)
	}
	if tmpl.CooldownMs > 0 {
		p.cooldowns[cooldownKey{caster.GUID(), tmpl.ID}] = p.clock.Now() + int64(tmpl.CooldownMs)
	}
}

// CooldownRemaining returns ms until spellID is ready for the unit.
func (p *Pipeline) CooldownRemaining(guid uint64, spellID int32) int64 {
	ready, ok := p.cooldowns[cooldownKey{guid, spellID}]
	if !ok {
		return 0
	}
	return max(ready-p.clock.Now(), 0)
}

// validateTargets deduplicates explicit targets and splits them into
// outcomes and the list of reachable targets.
func (p *Pipeline) validateTargets(tmpl *data.SpellTemplate, req Request) ([]Outcome, []Unit) {
	outcomes := make([]Outcome, 0, len(req.Targets))
	valid := make([]Unit, 0, len(req.Targets))
	seen := make(map[uint64]bool, len(req.Targets))

	for _, t := range req.Targets {
		if t == nil || seen[t.GUID()] {
			continue
		}
		seen[t.GUID()] = true

		o := Outcome{Target: t}
		switch {
		case !isValidTarget(t):
			o.Err = ErrTargetInvalid
		case p.validator != nil && req.Caster != nil:
			if err := p.validator.ValidateTarget(req.Caster, t, tmpl); err != nil {
				o.Err = err
			}
		}
		outcomes = append(outcomes, o)
		if o.Err == nil {
			valid = append(valid, t)
		}
	}
	return outcomes, valid
}

func needsExplicitTarget(tmpl *data.SpellTemplate) bool {
	for i := range tmpl.Effects {
		if tmpl.Effects[i].Target != data.TargetCaster {
			return true
		}
	}
	return false
}

func selectTargets(def *data.EffectDef, caster Unit, valid []Unit) []Unit {
	switch def.Target {
	case data.TargetCaster:
		if caster == nil {
			return nil
		}
		return []Unit{caster}
	case data.TargetAll:
		return valid
	default:
		if len(valid) == 0 {
			return nil
		}
		return valid[:1]
	}
}

func selects(def *data.EffectDef, caster Unit, valid []Unit, t Unit) bool {
	for _, u := range selectTargets(def, caster, valid) {
		if u.GUID() == t.GUID() {
			return true
		}
	}
	return false
}

func firstUnit(units []Unit) Unit {
	if len(units) == 0 {
		return nil
	}
	return units[0]
}

// resolve runs the resolver with the caster's aura modifiers followed by extra.
func (p *Pipeline) resolve(tmpl *data.SpellTemplate, def *data.EffectDef, caster, target Unit, extra []Modifier) (float64, error) {
	cc := CasterContext{SpellID: tmpl.ID}
	if caster != nil {
		cc.Level = caster.Level()
		cc.Stats = caster
		if c := p.units.Auras(caster.GUID()); c != nil {
			cc.Modifiers = c.Modifiers(tmpl.ID)
		}
	}
	cc.Modifiers = append(cc.Modifiers, extra...)

	var tc TargetContext
	if target != nil {
		tc.Level = target.Level()
		tc.Stats = target
	}
	return p.resolver.Resolve(def, cc, tc)
}

// applyEffect applies one non-aura slot to one target.
func (p *Pipeline) applyEffect(tmpl *data.SpellTemplate, def *data.EffectDef, req Request, t Unit) EffectResult {
	res := EffectResult{Index: def.Index, Type: def.Type}

	amount, err := p.resolve(tmpl, def, req.Caster, t, req.Modifiers)
	if err != nil {
		res.Err = err
		p.fault(tmpl, req.Caster, t, req.Depth, err)
		return res
	}
	res.Amount = amount

	opts := hitOptions{mode: req.Mode, depth: req.Depth, canCrit: true, canResist: tmpl.Harmful}
	switch def.Type {
	case data.EffectSchoolDamage:
		res.merge(p.dealDamage(tmpl, req.Caster, t, amount, effectSchool(tmpl, def), opts))
	case data.EffectHeal:
		res.merge(p.dealHeal(tmpl, req.Caster, t, amount, opts))
	case data.EffectEnergize:
		res.Dealt = p.energize(tmpl, req.Caster, t, amount, req.Depth)
	case data.EffectTriggerSpell:
		if _, err := p.Trigger(def.TriggerSpell, req.Caster, []Unit{t}, req.Depth+1); err != nil {
			res.Err = err
		}
	case data.EffectDummy:
		h, ok := p.registry.dummy(tmpl.ID)
		if !ok {
			res.Err = fmt.Errorf("dummy effect of spell %d: %w", tmpl.ID, ErrNotImplemented)
			break
		}
		v, err := h(DummyContext{
			Spell:   tmpl,
			Effect:  def,
			Caster:  req.Caster,
			Target:  t,
			Amount:  amount,
			Mode:    req.Mode,
			Depth:   req.Depth,
			actions: p,
		})
		res.Amount = v
		res.Err = err
	default:
		res.Err = fmt.Errorf("effect type %d: %w", def.Type, ErrNotImplemented)
	}

	if res.Err != nil && !errors.Is(res.Err, ErrTargetInvalid) && !errors.Is(res.Err, ErrRecursionLimitExceeded) {
		p.fault(tmpl, req.Caster, t, req.Depth, res.Err)
	}
	return res
}

// applyAura resolves every aura slot of tmpl selecting t and registers one application.
func (p *Pipeline) applyAura(tmpl *data.SpellTemplate, req Request, t Unit, valid []Unit) []EffectResult {
	var (
		results []EffectResult
		amounts = make(map[int]float64)
		mask    uint32
	)
	for i := range tmpl.Effects {
		def := &tmpl.Effects[i]
		if def.Type != data.EffectApplyAura || !selects(def, req.Caster, valid, t) {
			continue
		}
		res := EffectResult{Index: def.Index, Type: def.Type, Aura: def.Aura}
		v, err := p.resolve(tmpl, def, req.Caster, t, req.Modifiers)
		if err != nil {
			res.Err = err
			p.fault(tmpl, req.Caster, t, req.Depth, err)
		} else {
			res.Amount = v
			amounts[def.Index] = v
			mask |= 1 << uint(def.Index)
		}
		results = append(results, res)
	}
	if mask == 0 {
		return results
	}

	c := p.units.Auras(t.GUID())
	if c == nil {
		for i := range results {
			if results[i].Err == nil {
				results[i].Err = ErrTargetInvalid
			}
		}
		return results
	}

	app, outcome := c.apply(tmpl, req.Caster, amounts, mask)
	for i := range results {
		if results[i].Err == nil {
			results[i].Applied = app
		}
	}

	kind := combatlog.KindAuraApplied
	detail := ""
	switch outcome {
	case applyCreated:
		setExtra(app, req.Modifiers)
	case applyReplaced:
		setExtra(app, req.Modifiers)
		kind = combatlog.KindAuraRefreshed
		detail = "replaced"
	case applyRefreshed:
		kind = combatlog.KindAuraRefreshed
		detail = fmt.Sprintf("stacks=%d", app.Stacks)
	case applyIgnored:
		detail = "ignored: weaker than current"
	case applyRejected:
		detail = fmt.Sprintf("rejected by %d", app.Spell.ID)
	}
	p.emit(combatlog.Record{
		Kind:       kind,
		CasterGUID: unitGUID(req.Caster),
		TargetGUID: t.GUID(),
		SpellID:    tmpl.ID,
		Depth:      req.Depth,
		Detail:     detail,
	})
	return results
}

func setExtra(app *AuraApplication, mods []Modifier) {
	for _, e := range app.Effects {
		e.extra = mods
	}
}

// applyPeriodic applies one tick of the bound aura slot.
// The magnitude was resolved when the aura was applied; crit, absorb and
// procs are evaluated per tick.
func (p *Pipeline) applyPeriodic(tmpl *data.SpellTemplate, req Request) []Outcome {
	app, eff := req.Aura, req.Effect
	if app == nil || eff == nil || app.removed {
		return nil
	}
	target := app.Target
	o := Outcome{Target: target}
	if !isValidTarget(target) {
		o.Err = ErrTargetInvalid
		return []Outcome{o}
	}

	res := EffectResult{
		Index:   eff.Def.Index,
		Type:    data.EffectApplyAura,
		Aura:    eff.Def.Aura,
		Amount:  eff.Amount,
		Applied: app,
	}
	opts := hitOptions{mode: ModePeriodic, depth: req.Depth, canCrit: true}

	switch eff.Def.Aura {
	case data.AuraPeriodicDamage:
		res.merge(p.dealDamage(tmpl, req.Caster, target, eff.Amount, eff.School(), opts))
	case data.AuraPeriodicHeal:
		res.merge(p.dealHeal(tmpl, req.Caster, target, eff.Amount, opts))
	case data.AuraPeriodicEnergize:
		res.Dealt = p.energize(tmpl, req.Caster, target, eff.Amount, req.Depth)
	case data.AuraPeriodicTriggerSpell:
		caster := req.Caster
		if caster == nil {
			caster = target
		}
		if _, err := p.Trigger(eff.Def.TriggerSpell, caster, []Unit{target}, req.Depth+1); err != nil {
			res.Err = err
		}
	}
	o.Effects = append(o.Effects, res)
	return []Outcome{o}
}

// StatsChanged implements StatObserver. It re-resolves the per-stack amount of
// every aura slot that reads a stat of guid: caster-attribute slots of auras
// cast by guid and target-attribute slots of auras carried by guid.
// Slots whose caster has left keep their amount. Changes caused by the
// recalculation itself (a mod_stat slot scaling with a stat) are not followed.
func (p *Pipeline) StatsChanged(guid uint64) {
	if p.recalculating {
		return
	}
	p.recalculating = true
	defer func() { p.recalculating = false }()

	for _, u := range p.units.Units() {
		c := p.units.Auras(u.GUID())
		if c == nil {
			continue
		}
		for _, app := range c.Applications() {
			byCaster := app.CasterGUID == guid
			onTarget := unitGUID(app.Target) == guid
			if !byCaster && !onTarget {
				continue
			}
			caster := p.units.Unit(app.CasterGUID)
			for _, eff := range app.Effects {
				fromCaster, fromTarget := eff.dependsOnStats()
				if !(byCaster && fromCaster) && !(onTarget && fromTarget) {
					continue
				}
				if fromCaster && caster == nil {
					continue
				}
				v, err := p.resolve(app.Spell, eff.Def, caster, app.Target, eff.extra)
				if err != nil || v == eff.BaseAmount {
					continue
				}
				slog.Debug("aura amount recalculated",
					"spell", app.Spell.ID,
					"effect", eff.Def.Index,
					"target", unitGUID(app.Target),
					"from", eff.BaseAmount,
					"to", v)
				eff.rebase(v, app.Stacks)
			}
		}
	}
}

// Tick implements TickHandler.
func (p *Pipeline) Tick(app *AuraApplication, eff *AuraEffect) {
	_, err := p.Apply(Request{
		Spell:   app.Spell,
		Caster:  p.units.Unit(app.CasterGUID),
		Targets: []Unit{app.Target},
		Mode:    ModePeriodic,
		Aura:    app,
		Effect:  eff,
	})
	if err != nil {
		slog.Debug("periodic tick failed",
			"spell", app.Spell.ID,
			"effect", eff.Def.Index,
			"target", unitGUID(app.Target),
			"error", err)
	}
}

// Trigger implements Actions: casts spellID in triggered mode.
func (p *Pipeline) Trigger(spellID int32, caster Unit, targets []Unit, depth int) ([]Outcome, error) {
	return p.Apply(Request{
		SpellID: spellID,
		Caster:  caster,
		Targets: targets,
		Mode:    ModeTriggered,
		Depth:   depth,
	})
}

// DealDamage implements Actions: direct damage on behalf of a proc.
func (p *Pipeline) DealDamage(spell *data.SpellTemplate, attacker, victim Unit, amount float64, school data.SchoolMask, depth int) EffectResult {
	if depth > p.dispatcher.maxDepth {
		p.recursionLimit(spell, attacker, victim, depth)
		return EffectResult{Type: data.EffectSchoolDamage, Err: ErrRecursionLimitExceeded}
	}
	defer p.dispatcher.enter(depth)()
	return p.dealDamage(spell, attacker, victim, amount, school, hitOptions{mode: ModeTriggered, depth: depth})
}

// DealHeal implements Actions: direct heal on behalf of a proc.
func (p *Pipeline) DealHeal(spell *data.SpellTemplate, healer, target Unit, amount float64, depth int) EffectResult {
	if depth > p.dispatcher.maxDepth {
		p.recursionLimit(spell, healer, target, depth)
		return EffectResult{Type: data.EffectHeal, Err: ErrRecursionLimitExceeded}
	}
	defer p.dispatcher.enter(depth)()
	return p.dealHeal(spell, healer, target, amount, hitOptions{mode: ModeTriggered, depth: depth})
}

func (p *Pipeline) recursionLimit(spell *data.SpellTemplate, actor, target Unit, depth int) {
	slog.Debug("proc chain depth exceeded",
		"spell", spellID(spell),
		"depth", depth,
		"max", p.dispatcher.maxDepth)
	p.emit(combatlog.Record{
		Kind:       combatlog.KindRecursion,
		CasterGUID: unitGUID(actor),
		TargetGUID: unitGUID(target),
		SpellID:    spellID(spell),
		Depth:      depth,
		Detail:     ErrRecursionLimitExceeded.Error(),
	})
}

func (p *Pipeline) fault(tmpl *data.SpellTemplate, caster, target Unit, depth int, err error) {
	slog.Warn("spell effect failed",
		"spell", tmpl.ID,
		"caster", unitGUID(caster),
		"target", unitGUID(target),
		"error", err)
	p.emit(combatlog.Record{
		Kind:       combatlog.KindFault,
		CasterGUID: unitGUID(caster),
		TargetGUID: unitGUID(target),
		SpellID:    tmpl.ID,
		Depth:      depth,
		Detail:     err.Error(),
	})
}

func (r *EffectResult) merge(o EffectResult) {
	r.Dealt = o.Dealt
	r.Absorbed = o.Absorbed
	r.Hit = o.Hit
	if o.Err != nil {
		r.Err = o.Err
	}
}

func effectSchool(tmpl *data.SpellTemplate, def *data.EffectDef) data.SchoolMask {
	if def.School != 0 {
		return def.School
	}
	return tmpl.School
}
