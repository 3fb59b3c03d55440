package spell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/spellcore/internal/data"
	"github.com/udisondev/spellcore/internal/model"
)

func newTestContainer(limit int) (*Container, *removeLog, *model.Creature) {
	owner := model.NewCreature(2, "Target", 10, 1000, 100)
	owner.SetInWorld(true)
	c := NewContainer(owner, limit)
	log := &removeLog{}
	c.SetRemoveNotifier(log)
	return c, log, owner
}

func TestContainer_RefreshOnlyNeverStacks(t *testing.T) {
	c, _, _ := newTestContainer(0)
	tmpl := statSpell(10, data.StatStamina, data.ModFlat, 5)
	indexEffects(tmpl)

	first := applyDirect(c, tmpl, nil)
	for i := range 5 {
		first.RemainingMs = int32(1000 * i)
		app := applyDirect(c, tmpl, nil)

		assert.Same(t, first, app)
		assert.Equal(t, int32(1), app.Stacks)
		assert.Equal(t, tmpl.DurationMs, app.RemainingMs, "refresh resets duration")
	}
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int32(6), first.Applications)
}

func TestContainer_StackUpToMax(t *testing.T) {
	c, _, _ := newTestContainer(0)
	tmpl := statSpell(11, data.StatArmor, data.ModFlat, 10)
	tmpl.Stacking = data.StackRule{Kind: data.StackStack, MaxStacks: 3}
	indexEffects(tmpl)

	var app *AuraApplication
	for range 5 {
		app = applyDirect(c, tmpl, nil)
	}
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int32(3), app.Stacks)
	assert.Equal(t, 30.0, app.Effects[0].Amount)

	flat, mul := c.StatBonus(data.StatArmor)
	assert.Equal(t, 30.0, flat)
	assert.Equal(t, 1.0, mul)
}

func TestContainer_IndependentApplications(t *testing.T) {
	c, _, _ := newTestContainer(0)
	tmpl := shieldSpell(12, 20)
	tmpl.Stacking.Kind = data.StackIndependent
	indexEffects(tmpl)

	a := applyDirect(c, tmpl, nil)
	b := applyDirect(c, tmpl, nil)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, c.Len())
}

func TestContainer_MultiCasterKey(t *testing.T) {
	c, _, _ := newTestContainer(0)
	casterA := model.NewCreature(10, "A", 10, 100, 0)
	casterB := model.NewCreature(11, "B", 10, 100, 0)

	tmpl := dotSpell(13, 5, 1000, 10000)
	indexEffects(tmpl)

	applyDirect(c, tmpl, casterA)
	applyDirect(c, tmpl, casterB)
	assert.Equal(t, 1, c.Len(), "single-caster aura is keyed by spell only")
	assert.Equal(t, casterA.GUID(), c.Find(13).CasterGUID)

	multi := dotSpell(14, 5, 1000, 10000)
	multi.MultiCaster = true
	indexEffects(multi)

	applyDirect(c, multi, casterA)
	applyDirect(c, multi, casterB)
	applyDirect(c, multi, casterA)
	assert.Equal(t, 3, c.Len())
	assert.NotNil(t, c.FindByCaster(14, casterA.GUID()))
	assert.NotNil(t, c.FindByCaster(14, casterB.GUID()))
}

func TestContainer_ReplaceIfStronger(t *testing.T) {
	c, _, _ := newTestContainer(0)
	tmpl := shieldSpell(15, 0)
	tmpl.Stacking.Kind = data.StackReplaceIfStronger
	indexEffects(tmpl)

	app := c.Apply(tmpl, nil, map[int]float64{0: 50}, 1)
	app.RemainingMs = 100

	weaker := c.Apply(tmpl, nil, map[int]float64{0: 30}, 1)
	assert.Same(t, app, weaker)
	assert.Equal(t, 50.0, app.Effects[0].BaseAmount)
	assert.Equal(t, int32(100), app.RemainingMs, "weaker application is ignored")

	c.Apply(tmpl, nil, map[int]float64{0: 50}, 1)
	assert.Equal(t, tmpl.DurationMs, app.RemainingMs, "equal strength refreshes")

	c.Apply(tmpl, nil, map[int]float64{0: 80}, 1)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 80.0, app.Effects[0].BaseAmount)
	assert.Equal(t, 80.0, app.Effects[0].Absorb)
}

func TestContainer_ReplaceIfStrongerIsOrderIndependent(t *testing.T) {
	tmpl := shieldSpell(16, 0)
	tmpl.Stacking.Kind = data.StackReplaceIfStronger
	indexEffects(tmpl)

	forward, _, _ := newTestContainer(0)
	forward.Apply(tmpl, nil, map[int]float64{0: 30}, 1)
	forward.Apply(tmpl, nil, map[int]float64{0: 70}, 1)

	backward, _, _ := newTestContainer(0)
	backward.Apply(tmpl, nil, map[int]float64{0: 70}, 1)
	backward.Apply(tmpl, nil, map[int]float64{0: 30}, 1)

	assert.Equal(t, forward.Find(16).Effects[0].Amount, backward.Find(16).Effects[0].Amount)
}

func TestContainer_ExclusiveGroup(t *testing.T) {
	c, log, _ := newTestContainer(0)
	low := statSpell(20, data.StatStamina, data.ModFlat, 5)
	low.ExclusiveGroup, low.GroupRank = "fortitude", 1
	high := statSpell(21, data.StatStamina, data.ModFlat, 10)
	high.ExclusiveGroup, high.GroupRank = "fortitude", 2
	indexEffects(low, high)

	applyDirect(c, high, nil)
	got := applyDirect(c, low, nil)
	assert.Equal(t, int32(21), got.Spell.ID, "lower rank rejected")
	assert.Equal(t, 1, c.Len())

	c2, log2, _ := newTestContainer(0)
	applyDirect(c2, low, nil)
	got = applyDirect(c2, high, nil)
	assert.Equal(t, int32(21), got.Spell.ID)
	assert.Equal(t, 1, c2.Len())
	require.Len(t, log2.calls, 1)
	assert.Equal(t, removal{20, data.RemoveReplaced}, log2.calls[0])
	assert.Empty(t, log.calls)
}

func TestContainer_LimitEvictsOldest(t *testing.T) {
	c, log, _ := newTestContainer(2)
	a, b, d := statSpell(30, data.StatArmor, data.ModFlat, 1), statSpell(31, data.StatArmor, data.ModFlat, 1), statSpell(32, data.StatArmor, data.ModFlat, 1)
	indexEffects(a, b, d)

	applyDirect(c, a, nil)
	applyDirect(c, b, nil)
	applyDirect(c, d, nil)

	assert.Equal(t, 2, c.Len())
	assert.Nil(t, c.Find(30))
	require.Len(t, log.calls, 1)
	assert.Equal(t, removal{30, data.RemoveEvicted}, log.calls[0])
}

func TestContainer_RemoveIsIdempotent(t *testing.T) {
	c, log, _ := newTestContainer(0)
	tmpl := shieldSpell(40, 10)
	indexEffects(tmpl)
	app := applyDirect(c, tmpl, nil)

	assert.True(t, c.Remove(app, data.RemoveCancelled))
	assert.False(t, c.Remove(app, data.RemoveCancelled))
	assert.False(t, c.Remove(app, data.RemoveExpired))
	assert.False(t, c.Remove(nil, data.RemoveExpired))

	assert.True(t, app.IsRemoved())
	assert.Equal(t, data.RemoveCancelled, app.RemoveReason())
	assert.Len(t, log.calls, 1, "only the first removal notifies")
	assert.Equal(t, 0, c.Len())
}

func TestContainer_ShieldOrder(t *testing.T) {
	s50 := shieldSpell(50, 50)
	s30 := shieldSpell(51, 30)
	indexEffects(s50, s30)

	t.Run("50 then 30", func(t *testing.T) {
		c, log, _ := newTestContainer(0)
		first := applyDirect(c, s50, nil)
		second := applyDirect(c, s30, nil)

		assert.Equal(t, int32(60), c.Absorb(60, data.SchoolFire))
		assert.True(t, first.IsRemoved())
		assert.Equal(t, data.RemoveConsumed, first.RemoveReason())
		assert.False(t, second.IsRemoved())
		assert.InDelta(t, 20.0, second.Effects[0].Absorb, 1e-9)
		assert.Equal(t, []removal{{50, data.RemoveConsumed}}, log.calls)
	})

	t.Run("30 then 50", func(t *testing.T) {
		c, _, _ := newTestContainer(0)
		first := applyDirect(c, s30, nil)
		second := applyDirect(c, s50, nil)

		assert.Equal(t, int32(60), c.Absorb(60, data.SchoolFire))
		assert.True(t, first.IsRemoved())
		assert.False(t, second.IsRemoved())
		assert.InDelta(t, 20.0, second.Effects[0].Absorb, 1e-9)
	})
}

func TestContainer_AbsorbSchoolFilterAndOverflow(t *testing.T) {
	c, _, _ := newTestContainer(0)
	frost := shieldSpell(52, 40)
	frost.Effects[0].School = data.SchoolFrost
	indexEffects(frost)
	app := applyDirect(c, frost, nil)

	assert.Equal(t, int32(0), c.Absorb(25, data.SchoolFire))
	assert.Equal(t, int32(25), c.Absorb(25, data.SchoolFrost))
	assert.Equal(t, int32(15), c.Absorb(100, data.SchoolFrost))
	assert.True(t, app.IsRemoved())
}

func TestContainer_ModifiersInApplicationOrder(t *testing.T) {
	c, _, _ := newTestContainer(0)
	pct := modifierSpell(60, data.AuraAddPctModifier, 20)
	flat := modifierSpell(61, data.AuraAddFlatModifier, 10, 99)
	indexEffects(pct, flat)
	applyDirect(c, pct, nil)
	applyDirect(c, flat, nil)

	mods := c.Modifiers(99)
	require.Len(t, mods, 2)
	assert.Equal(t, Modifier{Op: data.ModPct, Value: 20, Source: 60}, mods[0])
	assert.Equal(t, data.ModFlat, mods[1].Op)
	assert.Equal(t, int32(61), mods[1].Source)

	assert.Len(t, c.Modifiers(5), 1, "flat modifier is filtered to spell 99")
}

func TestContainer_StatBonusFeedsCreature(t *testing.T) {
	c, _, owner := newTestContainer(0)
	owner.SetStat(data.StatSpellPower, 100)
	owner.SetStatBonusProvider(c)

	flat := statSpell(70, data.StatSpellPower, data.ModFlat, 20)
	pct := statSpell(71, data.StatSpellPower, data.ModPct, 50)
	indexEffects(flat, pct)
	applyDirect(c, flat, nil)
	applyDirect(c, pct, nil)

	assert.InDelta(t, 180.0, owner.GetStat(data.StatSpellPower), 1e-9)

	c.RemoveBySpell(71, data.RemoveCancelled)
	assert.InDelta(t, 120.0, owner.GetStat(data.StatSpellPower), 1e-9)
}

func TestContainer_DispelNewestFirst(t *testing.T) {
	c, log, _ := newTestContainer(0)
	curse1 := dotSpell(80, 1, 1000, 10000)
	curse2 := dotSpell(81, 1, 1000, 10000)
	blessing := statSpell(82, data.StatArmor, data.ModFlat, 1)
	curse1.Dispellable, curse2.Dispellable, blessing.Dispellable = true, true, true
	indexEffects(curse1, curse2, blessing)

	applyDirect(c, curse1, nil)
	applyDirect(c, curse2, nil)
	applyDirect(c, blessing, nil)

	removed := c.Dispel(1, true)
	require.Len(t, removed, 1)
	assert.Equal(t, int32(81), removed[0].Spell.ID)
	assert.Equal(t, []removal{{81, data.RemoveDispelled}}, log.calls)
	assert.NotNil(t, c.Find(82), "beneficial auras are kept")
}

func TestContainer_RemoveAll(t *testing.T) {
	c, log, _ := newTestContainer(0)
	a, b := shieldSpell(90, 1), shieldSpell(91, 1)
	indexEffects(a, b)
	applyDirect(c, a, nil)
	applyDirect(c, b, nil)

	assert.Equal(t, 2, c.RemoveAll(data.RemoveDeath))
	assert.Equal(t, 0, c.RemoveAll(data.RemoveDeath))
	assert.Equal(t, []removal{{90, data.RemoveDeath}, {91, data.RemoveDeath}}, log.calls)
}

func TestContainer_SnapshotRestore(t *testing.T) {
	c, _, _ := newTestContainer(0)
	caster := model.NewCreature(7, "Caster", 10, 100, 0)

	stack := statSpell(100, data.StatStamina, data.ModFlat, 4)
	stack.Stacking = data.StackRule{Kind: data.StackStack, MaxStacks: 5}
	shield := shieldSpell(101, 50)
	store := data.NewTestStore(nil, stack, shield)

	applyDirect(c, stack, caster)
	applyDirect(c, stack, caster)
	sh := applyDirect(c, shield, nil)
	c.Absorb(20, data.SchoolFire)
	sh.RemainingMs = 1234

	snaps := c.Snapshot()
	require.Len(t, snaps, 2)
	assert.Equal(t, int32(100), snaps[0].SpellID)
	assert.Equal(t, uint64(7), snaps[0].CasterGUID)
	assert.Equal(t, int32(2), snaps[0].Stacks)

	restored, _, _ := newTestContainer(0)
	n := restored.Restore(append(snaps, AuraSnapshot{SpellID: 999}), store)
	assert.Equal(t, 2, n, "unknown spells are skipped")

	apps := restored.Applications()
	require.Len(t, apps, 2)
	assert.Equal(t, 8.0, apps[0].Effects[0].Amount)
	assert.Equal(t, int32(1234), apps[1].RemainingMs)
	assert.InDelta(t, 30.0, apps[1].Effects[0].Absorb, 1e-9)
}
