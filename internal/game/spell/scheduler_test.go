package spell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/spellcore/internal/combatlog"
	"github.com/udisondev/spellcore/internal/data"
)

func TestScheduler_CatchUpEquivalence(t *testing.T) {
	const (
		period   = 1000
		duration = 10000
	)

	for _, total := range []int32{3000, 6000, 10000, 15000} {
		once := newTestWorld(t, Options{}, dotSpell(1, 10, period, duration))
		onceCaster := once.add(1, "Caster", 1000)
		onceTarget := once.add(2, "Target", 100000)
		once.cast(t, onceCaster, 1, onceTarget)
		require.NoError(t, once.engine.Advance(total))

		steps := newTestWorld(t, Options{}, dotSpell(1, 10, period, duration))
		stepsCaster := steps.add(1, "Caster", 1000)
		stepsTarget := steps.add(2, "Target", 100000)
		steps.cast(t, stepsCaster, 1, stepsTarget)
		for range total / period {
			require.NoError(t, steps.engine.Advance(period))
		}

		expected := min(total, duration) / period
		assert.Equal(t, int(expected), once.log.Count(combatlog.KindTick), "single advance of %d", total)
		assert.Equal(t, int(expected), steps.log.Count(combatlog.KindTick), "stepped advance of %d", total)
		assert.Equal(t, onceTarget.CurrentHP(), stepsTarget.CurrentHP())
	}
}

func TestScheduler_UnevenDeltas(t *testing.T) {
	w := newTestWorld(t, Options{}, dotSpell(1, 10, 1000, 10000))
	caster := w.add(1, "Caster", 1000)
	target := w.add(2, "Target", 1000)
	w.cast(t, caster, 1, target)

	for _, d := range []int32{300, 300, 300, 2500, 99, 1, 6500} {
		require.NoError(t, w.engine.Advance(d))
	}
	assert.Equal(t, 10, w.log.Count(combatlog.KindTick))
	assert.Equal(t, int32(900), target.CurrentHP())
	assert.Nil(t, w.auras[2].Find(1), "aura expired")
}

func TestScheduler_ExpiresNonPeriodicAuras(t *testing.T) {
	buff := statSpell(5, data.StatArmor, data.ModFlat, 10)
	buff.Effects[0].Target = data.TargetCaster
	w := newTestWorld(t, Options{}, buff)
	u := w.add(1, "Unit", 100)
	w.cast(t, u, 5)

	app := w.auras[1].Find(5)
	require.NotNil(t, app)

	require.NoError(t, w.engine.Advance(59999))
	assert.False(t, app.IsRemoved())
	assert.Equal(t, int32(1), app.RemainingMs)

	require.NoError(t, w.engine.Advance(1))
	assert.True(t, app.IsRemoved())
	assert.Equal(t, data.RemoveExpired, app.RemoveReason())
}

func TestScheduler_PermanentAurasNeverExpire(t *testing.T) {
	w := newTestWorld(t, Options{}, reflectSpell(6, 10))
	u := w.add(1, "Unit", 100)
	w.cast(t, u, 6)

	require.NoError(t, w.engine.Advance(1_000_000))
	assert.NotNil(t, w.auras[1].Find(6))
}

func TestScheduler_TargetLeftWorld(t *testing.T) {
	w := newTestWorld(t, Options{}, dotSpell(1, 10, 1000, 10000))
	caster := w.add(1, "Caster", 1000)
	target := w.add(2, "Target", 1000)
	w.cast(t, caster, 1, target)
	app := w.auras[2].Find(1)

	target.SetInWorld(false)
	require.NoError(t, w.engine.Advance(5000))

	assert.True(t, app.IsRemoved())
	assert.Equal(t, data.RemoveTargetInvalid, app.RemoveReason())
	assert.Equal(t, 0, w.log.Count(combatlog.KindTick))
	assert.Equal(t, int32(1000), target.CurrentHP())
}

func TestScheduler_CasterGoneKeepsTicking(t *testing.T) {
	w := newTestWorld(t, Options{}, dotSpell(1, 10, 1000, 10000))
	caster := w.add(1, "Caster", 1000)
	target := w.add(2, "Target", 1000)
	w.cast(t, caster, 1, target)

	delete(w.units, 1)
	require.NoError(t, w.engine.Advance(2000))
	assert.Equal(t, int32(980), target.CurrentHP())
}

func TestScheduler_TickKillsTargetStopsTicking(t *testing.T) {
	w := newTestWorld(t, Options{}, dotSpell(1, 40, 1000, 10000))
	caster := w.add(1, "Caster", 1000)
	target := w.add(2, "Target", 100)
	w.cast(t, caster, 1, target)

	require.NoError(t, w.engine.Advance(10000))
	assert.False(t, target.IsAlive())
	assert.Equal(t, 3, w.log.Count(combatlog.KindTick))
	assert.Equal(t, 1, w.log.Count(combatlog.KindDeath))
	assert.Equal(t, 0, w.auras[2].Len())
}

func TestScheduler_AdvanceIsNotReentrant(t *testing.T) {
	tick := &data.SpellTemplate{
		ID:         1,
		Name:       "Pulse",
		DurationMs: 3000,
		Effects: []data.EffectDef{
			{Type: data.EffectApplyAura, Aura: data.AuraPeriodicTriggerSpell, PeriodMs: 1000, TriggerSpell: 2},
		},
	}
	script := &data.SpellTemplate{
		ID:      2,
		Name:    "Pulse Script",
		Effects: []data.EffectDef{{Type: data.EffectDummy}},
	}

	reg := NewHandlerRegistry()
	w := newTestWorld(t, Options{Registry: reg}, tick, script)

	var nested []error
	reg.RegisterDummy(2, func(dc DummyContext) (float64, error) {
		nested = append(nested, w.engine.Advance(1000))
		return 0, nil
	})

	u := w.add(1, "Unit", 100)
	target := w.add(2, "Target", 100)
	w.cast(t, u, 1, target)
	require.NoError(t, w.engine.Advance(3000))

	require.Len(t, nested, 3)
	for _, err := range nested {
		assert.ErrorIs(t, err, ErrReentrantAdvance)
	}
	assert.Equal(t, int64(3000), w.engine.Clock.Now())
}

// seederSpell ticks once after periodMs and triggers trigger on its caster.
func seederSpell(id, trigger int32) *data.SpellTemplate {
	return &data.SpellTemplate{
		ID:         id,
		Name:       "Seed",
		DurationMs: 1500,
		Effects: []data.EffectDef{
			{Type: data.EffectApplyAura, Aura: data.AuraPeriodicTriggerSpell, PeriodMs: 1000, TriggerSpell: trigger},
		},
	}
}

func TestScheduler_AuraAppliedByTickIsCreditedFromItsApplyTime(t *testing.T) {
	newSeeded := func(t *testing.T, casterFirst bool) (*testWorld, Unit, Unit) {
		t.Helper()
		dot := dotSpell(2, 10, 1000, 10000)
		dot.Effects[0].Target = data.TargetCaster
		w := newTestWorld(t, Options{}, seederSpell(1, 2), dot)
		var caster, carrier Unit
		if casterFirst {
			caster = w.add(1, "Caster", 1000)
			carrier = w.add(2, "Carrier", 1000)
		} else {
			carrier = w.add(2, "Carrier", 1000)
			caster = w.add(1, "Caster", 1000)
		}
		w.cast(t, caster, 1, carrier)
		return w, caster, carrier
	}

	for _, casterFirst := range []bool{true, false} {
		once, onceCaster, _ := newSeeded(t, casterFirst)
		require.NoError(t, once.engine.Advance(4000))

		steps, stepsCaster, _ := newSeeded(t, casterFirst)
		for range 4 {
			require.NoError(t, steps.engine.Advance(1000))
		}

		// seeded at 1000, ticks at 2000, 3000 and 4000
		dotTicks := func(w *testWorld) int {
			n := 0
			for _, r := range w.log.ByKind(combatlog.KindTick) {
				if r.SpellID == 2 {
					n++
				}
			}
			return n
		}
		assert.Equal(t, 3, dotTicks(once), "single advance, caster first %v", casterFirst)
		assert.Equal(t, 3, dotTicks(steps), "stepped advance, caster first %v", casterFirst)
		assert.Equal(t, int32(970), onceCaster.CurrentHP())
		assert.Equal(t, onceCaster.CurrentHP(), stepsCaster.CurrentHP())

		app := once.auras[1].Find(2)
		require.NotNil(t, app)
		assert.Equal(t, int32(7000), app.RemainingMs)
	}
}

func TestScheduler_ClockStopsAtEveryDueMoment(t *testing.T) {
	w := newTestWorld(t, Options{}, dotSpell(1, 10, 700, 2000), dotSpell(2, 10, 1000, 3000))
	caster := w.add(1, "Caster", 1000)
	target := w.add(2, "Target", 1000)
	w.cast(t, caster, 1, target)
	w.cast(t, caster, 2, target)

	require.NoError(t, w.engine.Advance(5000))

	var order []int32
	for _, r := range w.log.ByKind(combatlog.KindTick) {
		order = append(order, r.SpellID)
	}
	// 700, 1000, 1400, 2000, 3000
	assert.Equal(t, []int32{1, 2, 1, 2, 2}, order)
	assert.Equal(t, int64(5000), w.engine.Clock.Now())
}
