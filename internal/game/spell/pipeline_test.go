package spell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/spellcore/internal/combatlog"
	"github.com/udisondev/spellcore/internal/data"
)

func TestPipeline_EndToEndModifierOrder(t *testing.T) {
	w := newTestWorld(t, Options{},
		damageSpell(1, 100),
		modifierSpell(2, data.AuraAddPctModifier, 20, 1),
		modifierSpell(3, data.AuraAddFlatModifier, 10, 1),
	)
	caster := w.add(1, "Caster", 1000)
	target := w.add(2, "Target", 1000)

	// +20% registered before +10 flat
	w.cast(t, caster, 2)
	w.cast(t, caster, 3)

	out := w.cast(t, caster, 1, target)
	require.Len(t, out, 1)
	require.Len(t, out[0].Effects, 1)
	res := out[0].Effects[0]
	require.NoError(t, res.Err)
	assert.InDelta(t, 132.0, res.Amount, 1e-9)
	assert.Equal(t, int32(132), res.Dealt)
	assert.Equal(t, int32(868), target.CurrentHP())
}

func TestPipeline_CastChecks(t *testing.T) {
	spell := damageSpell(1, 10)
	spell.PowerCost = 30
	spell.CooldownMs = 2000
	w := newTestWorld(t, Options{}, spell)
	caster := w.add(1, "Caster", 1000)
	target := w.add(2, "Target", 1000)

	_, err := w.engine.Cast(caster, 999, target)
	assert.ErrorIs(t, err, ErrUnknownSpell)

	w.cast(t, caster, 1, target)
	assert.Equal(t, int32(70), caster.Power())
	assert.Equal(t, int64(2000), w.engine.Pipeline.CooldownRemaining(1, 1))

	_, err = w.engine.Cast(caster, 1, target)
	assert.ErrorIs(t, err, ErrOnCooldown)

	require.NoError(t, w.engine.Advance(2000))
	caster.SetPower(10)
	_, err = w.engine.Cast(caster, 1, target)
	assert.ErrorIs(t, err, ErrNotEnoughPower)

	caster.SetCurrentHP(0)
	_, err = w.engine.Cast(caster, 1, target)
	assert.ErrorIs(t, err, ErrCasterDead)

	assert.Equal(t, 3, w.log.Count(combatlog.KindCastFailed))
	assert.Equal(t, 1, w.log.Count(combatlog.KindCast))
}

func TestPipeline_InvalidTargetCostsNothing(t *testing.T) {
	spell := damageSpell(1, 10)
	spell.PowerCost = 30
	w := newTestWorld(t, Options{}, spell)
	caster := w.add(1, "Caster", 1000)
	target := w.add(2, "Target", 1000)
	target.SetCurrentHP(0)

	out, err := w.engine.Cast(caster, 1, target)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.ErrorIs(t, out[0].Err, ErrTargetInvalid)
	assert.Equal(t, int32(100), caster.Power())
}

func TestPipeline_PartialFailureAcrossTargets(t *testing.T) {
	nova := damageSpell(1, 25)
	nova.Effects[0].Target = data.TargetAll
	w := newTestWorld(t, Options{}, nova)
	caster := w.add(1, "Caster", 1000)
	alive := w.add(2, "Alive", 100)
	dead := w.add(3, "Dead", 100)
	away := w.add(4, "Away", 100)
	dead.SetCurrentHP(0)
	away.SetInWorld(false)

	out := w.cast(t, caster, 1, alive, dead, away, alive)
	require.Len(t, out, 3, "duplicate targets are merged")

	assert.NoError(t, out[0].Err)
	assert.Equal(t, int32(25), out[0].Total())
	assert.ErrorIs(t, out[1].Err, ErrTargetInvalid)
	assert.ErrorIs(t, out[2].Err, ErrTargetInvalid)
	assert.Equal(t, int32(75), alive.CurrentHP())
}

func TestPipeline_TargetValidator(t *testing.T) {
	nova := damageSpell(1, 10)
	nova.Effects[0].Target = data.TargetAll
	validator := TargetValidatorFunc(func(caster, target Unit, _ *data.SpellTemplate) error {
		if target.GUID() == 3 {
			return ErrOutOfRange
		}
		return nil
	})
	w := newTestWorld(t, Options{Validator: validator}, nova)
	caster := w.add(1, "Caster", 1000)
	near := w.add(2, "Near", 100)
	far := w.add(3, "Far", 100)

	out := w.cast(t, caster, 1, near, far)
	require.Len(t, out, 2)
	assert.ErrorIs(t, out[1].Err, ErrOutOfRange)
	assert.Equal(t, int32(90), near.CurrentHP())
	assert.Equal(t, int32(100), far.CurrentHP())
}

func TestPipeline_InvalidScalingFailsOnlyThatEffect(t *testing.T) {
	spell := &data.SpellTemplate{
		ID:      1,
		Name:    "Twin Strike",
		Harmful: true,
		Effects: []data.EffectDef{
			{Type: data.EffectSchoolDamage, Scaling: &data.ScalingRef{Table: "missing", Coefficient: 1}},
			{Type: data.EffectSchoolDamage, BasePoints: 15},
		},
	}
	w := newTestWorld(t, Options{}, spell)
	caster := w.add(1, "Caster", 1000)
	target := w.add(2, "Target", 100)

	out := w.cast(t, caster, 1, target)
	require.Len(t, out[0].Effects, 2)
	assert.ErrorIs(t, out[0].Effects[0].Err, ErrInvalidScalingData)
	assert.NoError(t, out[0].Effects[1].Err)
	assert.Equal(t, int32(85), target.CurrentHP())
	assert.Equal(t, 1, w.log.Count(combatlog.KindFault))
}

func TestPipeline_ScalingTable(t *testing.T) {
	spell := damageSpell(1, 0)
	spell.Effects[0].Scaling = &data.ScalingRef{Table: "spell_base", Coefficient: 0.5}
	w := newTestWorld(t, Options{}, spell)
	caster := w.add(1, "Caster", 1000) // level 10 -> 100
	target := w.add(2, "Target", 1000)

	w.cast(t, caster, 1, target)
	assert.Equal(t, int32(950), target.CurrentHP())
}

func TestPipeline_CritAndResist(t *testing.T) {
	w := newTestWorld(t, Options{Roller: fixedRoll(0.1), CritMultiplier: 2}, damageSpell(1, 40))
	caster := w.add(1, "Caster", 1000)
	target := w.add(2, "Target", 1000)
	caster.SetStat(data.StatCritChance, 50)

	out := w.cast(t, caster, 1, target)
	res := out[0].Effects[0]
	assert.Equal(t, data.HitCritical, res.Hit)
	assert.Equal(t, int32(80), res.Dealt)

	target.SetStat(data.StatResistChance, 20)
	out = w.cast(t, caster, 1, target)
	res = out[0].Effects[0]
	assert.Equal(t, data.HitMiss, res.Hit)
	assert.Equal(t, int32(0), res.Dealt)
	assert.Equal(t, int32(920), target.CurrentHP())
}

func TestPipeline_PeriodicTicksCanCritButNeverMiss(t *testing.T) {
	w := newTestWorld(t, Options{Roller: fixedRoll(0.1), CritMultiplier: 2}, dotSpell(1, 10, 1000, 3000))
	caster := w.add(1, "Caster", 1000)
	target := w.add(2, "Target", 1000)
	w.cast(t, caster, 1, target)

	caster.SetStat(data.StatCritChance, 50)
	target.SetStat(data.StatResistChance, 100)
	require.NoError(t, w.engine.Advance(3000))

	ticks := w.log.ByKind(combatlog.KindTick)
	require.Len(t, ticks, 3)
	for _, tick := range ticks {
		assert.Equal(t, int32(20), tick.Amount)
		assert.Equal(t, "critical", tick.Hit)
	}
}

func TestPipeline_ShieldAbsorbsHit(t *testing.T) {
	s50 := shieldSpell(2, 50)
	s30 := shieldSpell(3, 30)
	w := newTestWorld(t, Options{}, damageSpell(1, 60), s50, s30)
	caster := w.add(1, "Caster", 1000)
	target := w.add(2, "Target", 1000)
	w.cast(t, caster, 2, target)
	w.cast(t, caster, 3, target)

	out := w.cast(t, caster, 1, target)
	res := out[0].Effects[0]
	assert.Equal(t, int32(60), res.Absorbed)
	assert.Equal(t, int32(0), res.Dealt)
	assert.Equal(t, data.HitNormal|data.HitAbsorb|data.HitFullAbsorb, res.Hit)
	assert.Equal(t, int32(1000), target.CurrentHP())

	assert.Nil(t, w.auras[2].Find(2))
	remaining := w.auras[2].Find(3)
	require.NotNil(t, remaining)
	assert.InDelta(t, 20.0, remaining.Effects[0].Absorb, 1e-9)

	out = w.cast(t, caster, 1, target)
	assert.Equal(t, int32(20), out[0].Effects[0].Absorbed)
	assert.Equal(t, int32(40), out[0].Effects[0].Dealt)
}

func TestPipeline_DeathRemovesAuras(t *testing.T) {
	w := newTestWorld(t, Options{}, damageSpell(1, 500), dotSpell(2, 5, 1000, 10000))
	caster := w.add(1, "Caster", 1000)
	target := w.add(2, "Target", 100)
	w.cast(t, caster, 2, target)
	app := w.auras[2].Find(2)

	w.cast(t, caster, 1, target)

	assert.False(t, target.IsAlive())
	assert.True(t, app.IsRemoved())
	assert.Equal(t, data.RemoveDeath, app.RemoveReason())
	assert.Equal(t, 1, w.log.Count(combatlog.KindDeath))
}

func TestPipeline_HealAndEnergize(t *testing.T) {
	spell := &data.SpellTemplate{
		ID:   1,
		Name: "Renew",
		Effects: []data.EffectDef{
			{Type: data.EffectHeal, BasePoints: 50},
			{Type: data.EffectEnergize, BasePoints: 30, Target: data.TargetCaster},
		},
	}
	w := newTestWorld(t, Options{}, spell)
	caster := w.add(1, "Caster", 1000)
	target := w.add(2, "Target", 1000)
	target.SetCurrentHP(980)
	caster.SetPower(40)

	out := w.cast(t, caster, 1, target)
	require.Len(t, out, 2)
	assert.Equal(t, int32(20), out[0].Effects[0].Dealt, "overheal is not effective")
	assert.Equal(t, int32(30), out[1].Effects[0].Dealt)
	assert.Equal(t, int32(70), caster.Power())
}

func TestPipeline_TriggerSpellEffect(t *testing.T) {
	combo := &data.SpellTemplate{
		ID:      1,
		Name:    "Combo",
		Harmful: true,
		Effects: []data.EffectDef{
			{Type: data.EffectSchoolDamage, BasePoints: 10},
			{Type: data.EffectTriggerSpell, TriggerSpell: 2},
		},
	}
	followUp := damageSpell(2, 5)
	w := newTestWorld(t, Options{}, combo, followUp)
	caster := w.add(1, "Caster", 1000)
	target := w.add(2, "Target", 1000)

	w.cast(t, caster, 1, target)
	assert.Equal(t, int32(985), target.CurrentHP())

	dmg := w.log.ByKind(combatlog.KindDamage)
	require.Len(t, dmg, 2)
	assert.Equal(t, 0, dmg[0].Depth)
	assert.Equal(t, 1, dmg[1].Depth)
}

func TestPipeline_SelfTriggerLoopIsBounded(t *testing.T) {
	loop := &data.SpellTemplate{
		ID:   1,
		Name: "Echo",
		Effects: []data.EffectDef{
			{Type: data.EffectSchoolDamage, BasePoints: 1},
			{Type: data.EffectTriggerSpell, TriggerSpell: 1},
		},
	}
	w := newTestWorld(t, Options{MaxProcDepth: 4}, loop)
	caster := w.add(1, "Caster", 1000)
	target := w.add(2, "Target", 1000)

	w.cast(t, caster, 1, target)

	// depths 0..4 deal damage, the trigger at depth 5 is cut
	assert.Equal(t, int32(1000-5), target.CurrentHP())
	assert.Equal(t, 1, w.log.Count(combatlog.KindRecursion))
}

func TestPipeline_DummyEffects(t *testing.T) {
	scripted := &data.SpellTemplate{ID: 1, Name: "Scripted", Effects: []data.EffectDef{{Type: data.EffectDummy, BasePoints: 3}}}
	unscripted := &data.SpellTemplate{ID: 2, Name: "Unscripted", Effects: []data.EffectDef{{Type: data.EffectDummy}}}

	reg := NewHandlerRegistry()
	var got DummyContext
	reg.RegisterDummy(1, func(dc DummyContext) (float64, error) {
		got = dc
		return dc.Amount * 2, nil
	})

	w := newTestWorld(t, Options{Registry: reg}, scripted, unscripted)
	caster := w.add(1, "Caster", 1000)
	target := w.add(2, "Target", 1000)

	out := w.cast(t, caster, 1, target)
	assert.NoError(t, out[0].Effects[0].Err)
	assert.Equal(t, 6.0, out[0].Effects[0].Amount)
	assert.Equal(t, uint64(2), got.Target.GUID())
	assert.Equal(t, ModeCast, got.Mode)

	out = w.cast(t, caster, 2, target)
	assert.ErrorIs(t, out[0].Effects[0].Err, ErrNotImplemented)
}

func TestPipeline_CastSpellProc(t *testing.T) {
	clearcast := procAura(10, data.ProcCastSpell)
	clearcast.Proc.Spells = []int32{1}

	reg := NewHandlerRegistry()
	w := newTestWorld(t, Options{Registry: reg}, damageSpell(1, 10), clearcast)
	casts := 0
	reg.RegisterProc(10, func(pc ProcContext) error {
		casts++
		assert.True(t, pc.OwnerIsActor)
		return nil
	})

	caster := w.add(1, "Caster", 1000)
	target := w.add(2, "Target", 1000)
	w.cast(t, caster, 10)
	w.cast(t, caster, 1, target)
	w.cast(t, caster, 1, target)

	assert.Equal(t, 2, casts)
}

func TestPipeline_AuraAppliedAndRefreshedRecords(t *testing.T) {
	w := newTestWorld(t, Options{}, dotSpell(1, 1, 1000, 5000))
	caster := w.add(1, "Caster", 1000)
	target := w.add(2, "Target", 1000)

	out := w.cast(t, caster, 1, target)
	w.cast(t, caster, 1, target)

	assert.NotNil(t, out[0].Effects[0].Applied)
	assert.Equal(t, 1, w.log.Count(combatlog.KindAuraApplied))
	assert.Equal(t, 1, w.log.Count(combatlog.KindAuraRefreshed))
}

func TestPipeline_PeriodicAmountFollowsCasterStats(t *testing.T) {
	dot := dotSpell(1, 10, 1000, 10000)
	dot.Effects[0].Attr = data.StatSpellPower
	dot.Effects[0].AttrCoefficient = 1
	w := newTestWorld(t, Options{}, dot, statSpell(2, data.StatSpellPower, data.ModFlat, 40))
	caster := w.add(1, "Caster", 1000)
	target := w.add(2, "Target", 10000)
	caster.SetStat(data.StatSpellPower, 10)
	w.cast(t, caster, 1, target)

	eff := w.auras[2].Find(1).Effects[0]
	assert.InDelta(t, 20.0, eff.Amount, 1e-9)

	caster.SetStat(data.StatSpellPower, 100)
	assert.InDelta(t, 110.0, eff.Amount, 1e-9)

	require.NoError(t, w.engine.Advance(1000))
	ticks := w.log.ByKind(combatlog.KindTick)
	require.Len(t, ticks, 1)
	assert.Equal(t, int32(110), ticks[0].Amount)

	// a mod_stat aura on the caster counts as a stat change
	w.cast(t, caster, 2, caster)
	assert.InDelta(t, 150.0, eff.Amount, 1e-9)

	w.auras[1].RemoveBySpell(2, data.RemoveCancelled)
	assert.InDelta(t, 110.0, eff.Amount, 1e-9)
}

func TestPipeline_PeriodicAmountFollowsTargetStats(t *testing.T) {
	dot := dotSpell(1, 10, 1000, 10000)
	dot.Effects[0].TargetAttr = data.StatArmor
	dot.Effects[0].TargetAttrCoefficient = -0.5
	w := newTestWorld(t, Options{}, dot)
	caster := w.add(1, "Caster", 1000)
	target := w.add(2, "Target", 10000)
	w.cast(t, caster, 1, target)

	eff := w.auras[2].Find(1).Effects[0]
	assert.InDelta(t, 10.0, eff.Amount, 1e-9)

	target.SetStat(data.StatArmor, 8)
	assert.InDelta(t, 6.0, eff.Amount, 1e-9)

	// stats of an unrelated unit leave the amount alone
	caster.SetStat(data.StatArmor, 100)
	assert.InDelta(t, 6.0, eff.Amount, 1e-9)
}

func TestPipeline_ShieldRebaseKeepsConsumedPart(t *testing.T) {
	shield := shieldSpell(2, 0)
	shield.Effects[0].Attr = data.StatSpellPower
	shield.Effects[0].AttrCoefficient = 1
	w := newTestWorld(t, Options{}, damageSpell(1, 30), shield)
	caster := w.add(1, "Caster", 1000)
	target := w.add(2, "Target", 1000)
	caster.SetStat(data.StatSpellPower, 50)
	w.cast(t, caster, 2, target)
	w.cast(t, caster, 1, target)

	eff := w.auras[2].Find(2).Effects[0]
	require.InDelta(t, 20.0, eff.Absorb, 1e-9)

	caster.SetStat(data.StatSpellPower, 80)
	assert.InDelta(t, 80.0, eff.Amount, 1e-9)
	assert.InDelta(t, 50.0, eff.Absorb, 1e-9)
}

func TestPipeline_HealTicksHaveTheirOwnKind(t *testing.T) {
	hot := &data.SpellTemplate{
		ID:         1,
		Name:       "Renew",
		DurationMs: 3000,
		Effects: []data.EffectDef{
			{Type: data.EffectApplyAura, Aura: data.AuraPeriodicHeal, BasePoints: 5, PeriodMs: 1000},
		},
	}
	w := newTestWorld(t, Options{}, hot, dotSpell(2, 10, 1000, 3000))
	caster := w.add(1, "Caster", 1000)
	target := w.add(2, "Target", 1000)
	w.cast(t, caster, 2, target)
	w.cast(t, caster, 1, target)

	require.NoError(t, w.engine.Advance(3000))
	assert.Equal(t, 3, w.log.Count(combatlog.KindTick))
	assert.Equal(t, 3, w.log.Count(combatlog.KindHealTick))
	for _, r := range w.log.ByKind(combatlog.KindHealTick) {
		assert.Equal(t, int32(1), r.SpellID)
	}
	assert.Equal(t, int32(985), target.CurrentHP())
}

func TestPipeline_WeakerReplaceIfStrongerIsLoggedAsIgnored(t *testing.T) {
	dot := dotSpell(1, 10, 1000, 10000)
	dot.Stacking = data.StackRule{Kind: data.StackReplaceIfStronger}
	dot.Effects[0].Attr = data.StatSpellPower
	dot.Effects[0].AttrCoefficient = 1
	w := newTestWorld(t, Options{}, dot)
	strong := w.add(1, "Strong", 1000)
	weak := w.add(2, "Weak", 1000)
	target := w.add(3, "Target", 1000)
	strong.SetStat(data.StatSpellPower, 50)

	w.cast(t, strong, 1, target)
	require.NoError(t, w.engine.Advance(4000))
	out := w.cast(t, weak, 1, target)

	app := w.auras[3].Find(1)
	require.NotNil(t, app)
	assert.Same(t, app, out[0].Effects[0].Applied)
	assert.Equal(t, uint64(1), app.CasterGUID)
	assert.Equal(t, int32(6000), app.RemainingMs, "weaker application does not refresh")
	assert.InDelta(t, 60.0, app.Effects[0].Amount, 1e-9)

	applied := w.log.ByKind(combatlog.KindAuraApplied)
	require.Len(t, applied, 2)
	assert.Empty(t, applied[0].Detail)
	assert.Equal(t, "ignored: weaker than current", applied[1].Detail)
	assert.Equal(t, uint64(2), applied[1].CasterGUID)
	assert.Zero(t, w.log.Count(combatlog.KindAuraRefreshed))

	// a stronger caster takes the application over
	weak.SetStat(data.StatSpellPower, 90)
	w.cast(t, weak, 1, target)
	assert.Equal(t, uint64(2), app.CasterGUID)
	assert.InDelta(t, 100.0, app.Effects[0].Amount, 1e-9)
	refreshed := w.log.ByKind(combatlog.KindAuraRefreshed)
	require.Len(t, refreshed, 1)
	assert.Equal(t, "replaced", refreshed[0].Detail)
}
