package spell

import (
	"math"

	"github.com/udisondev/spellcore/internal/combatlog"
	"github.com/udisondev/spellcore/internal/data"
)

type hitOptions struct {
	mode      Mode
	depth     int
	canResist bool
	canCrit   bool
}

// dealDamage applies damage to victim in a fixed order:
// resist roll, crit roll, absorb shields, unit damage, proc broadcast, death.
func (p *Pipeline) dealDamage(spell *data.SpellTemplate, attacker, victim Unit, amount float64, school data.SchoolMask, opts hitOptions) EffectResult {
	res := EffectResult{Type: data.EffectSchoolDamage, Amount: amount}
	if !isValidTarget(victim) {
		res.Err = ErrTargetInvalid
		return res
	}

	ev := newProcEvent()
	ev.Actor = attacker
	ev.Target = victim
	ev.Spell = spell
	ev.Mode = opts.mode
	ev.Depth = opts.depth
	ev.ActorFlags, ev.TargetFlags = data.ProcDealDamage, data.ProcTakeDamage
	if opts.mode == ModePeriodic {
		ev.ActorFlags, ev.TargetFlags = data.ProcDealPeriodic, data.ProcTakePeriodic
	}
	if attacker == nil {
		ev.ActorFlags = 0
	}

	kind := combatlog.KindDamage
	if opts.mode == ModePeriodic {
		kind = combatlog.KindTick
	}

	if opts.canResist && rollPercent(p.roller, victim.GetStat(data.StatResistChance)) {
		res.Hit = data.HitMiss
		ev.Hit = data.HitMiss
		ev.Damage.School = school
		p.emit(combatlog.Record{
			Kind:       kind,
			CasterGUID: unitGUID(attacker),
			TargetGUID: victim.GUID(),
			SpellID:    spellID(spell),
			Hit:        res.Hit.String(),
			Depth:      opts.depth,
		})
		p.dispatcher.Notify(ev)
		return res
	}

	res.Hit = data.HitNormal
	if opts.canCrit && attacker != nil && rollPercent(p.roller, attacker.GetStat(data.StatCritChance)) {
		amount *= p.critMultiplier
		res.Hit = data.HitCritical
	}

	dmg := int32(math.Round(max(amount, 0)))
	var absorbed int32
	if c := p.units.Auras(victim.GUID()); c != nil {
		absorbed = c.Absorb(dmg, school)
	}
	if absorbed > 0 {
		res.Hit |= data.HitAbsorb
		if absorbed >= dmg {
			res.Hit |= data.HitFullAbsorb
		}
	}

	dealt := victim.ApplyDamage(dmg-absorbed, school)
	killed := !victim.IsAlive()
	res.Dealt = dealt
	res.Absorbed = absorbed

	p.emit(combatlog.Record{
		Kind:       kind,
		CasterGUID: unitGUID(attacker),
		TargetGUID: victim.GUID(),
		SpellID:    spellID(spell),
		Amount:     dealt,
		Absorbed:   absorbed,
		Hit:        res.Hit.String(),
		Depth:      opts.depth,
	})

	ev.Hit = res.Hit
	ev.Damage = DamageInfo{Amount: dealt, Absorbed: absorbed, School: school}
	p.dispatcher.Notify(ev)

	if killed {
		p.handleDeath(spell, attacker, victim, opts.depth)
	}
	return res
}

// dealHeal heals target: crit roll, unit heal, proc broadcast.
func (p *Pipeline) dealHeal(spell *data.SpellTemplate, healer, target Unit, amount float64, opts hitOptions) EffectResult {
	res := EffectResult{Type: data.EffectHeal, Amount: amount}
	if !isValidTarget(target) {
		res.Err = ErrTargetInvalid
		return res
	}

	res.Hit = data.HitNormal
	if opts.canCrit && healer != nil && rollPercent(p.roller, healer.GetStat(data.StatCritChance)) {
		amount *= p.critMultiplier
		res.Hit = data.HitCritical
	}

	heal := int32(math.Round(max(amount, 0)))
	effective := target.ApplyHeal(heal)
	res.Dealt = effective

	kind := combatlog.KindHeal
	if opts.mode == ModePeriodic {
		kind = combatlog.KindHealTick
	}
	p.emit(combatlog.Record{
		Kind:       kind,
		CasterGUID: unitGUID(healer),
		TargetGUID: target.GUID(),
		SpellID:    spellID(spell),
		Amount:     effective,
		Hit:        res.Hit.String(),
		Depth:      opts.depth,
		Detail:     "heal",
	})

	ev := newProcEvent()
	ev.Actor = healer
	ev.Target = target
	ev.ActorFlags, ev.TargetFlags = data.ProcDealHeal, data.ProcTakeHeal
	if healer == nil {
		ev.ActorFlags = 0
	}
	ev.Hit = res.Hit
	ev.Spell = spell
	ev.Mode = opts.mode
	ev.Depth = opts.depth
	ev.Heal = HealInfo{Amount: heal, Effective: effective}
	p.dispatcher.Notify(ev)
	return res
}

// energize restores power and returns the amount actually gained.
func (p *Pipeline) energize(spell *data.SpellTemplate, caster, target Unit, amount float64, depth int) int32 {
	before := target.Power()
	target.SetPower(before + int32(math.Round(amount)))
	gained := target.Power() - before

	p.emit(combatlog.Record{
		Kind:       combatlog.KindEnergize,
		CasterGUID: unitGUID(caster),
		TargetGUID: target.GUID(),
		SpellID:    spellID(spell),
		Amount:     gained,
		Depth:      depth,
	})
	return gained
}

// handleDeath broadcasts kill/death procs and then strips the victim's auras.
func (p *Pipeline) handleDeath(spell *data.SpellTemplate, killer, victim Unit, depth int) {
	p.emit(combatlog.Record{
		Kind:       combatlog.KindDeath,
		CasterGUID: unitGUID(killer),
		TargetGUID: victim.GUID(),
		SpellID:    spellID(spell),
		Depth:      depth,
	})

	ev := newProcEvent()
	ev.Actor = killer
	ev.Target = victim
	ev.ActorFlags, ev.TargetFlags = data.ProcKill, data.ProcDeath
	if killer == nil {
		ev.ActorFlags = 0
	}
	ev.Spell = spell
	ev.Mode = ModeTriggered
	ev.Depth = depth
	ev.Hit = data.HitNormal
	p.dispatcher.Notify(ev)

	if c := p.units.Auras(victim.GUID()); c != nil {
		c.RemoveAll(data.RemoveDeath)
	}
}
