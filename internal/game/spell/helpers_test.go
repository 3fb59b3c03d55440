package spell

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/udisondev/spellcore/internal/combatlog"
	"github.com/udisondev/spellcore/internal/data"
	"github.com/udisondev/spellcore/internal/model"
)

// testWorld is a minimal UnitIndex backed by model.Creature.
type testWorld struct {
	engine *Engine
	store  *data.Store
	log    *combatlog.Recorder

	order []Unit
	units map[uint64]*model.Creature
	auras map[uint64]*Container
}

func (w *testWorld) Unit(guid uint64) Unit {
	if c, ok := w.units[guid]; ok {
		return c
	}
	return nil
}

func (w *testWorld) Auras(guid uint64) *Container {
	return w.auras[guid]
}

func (w *testWorld) Units() []Unit {
	return w.order
}

func (w *testWorld) add(guid uint64, name string, hp int32) *model.Creature {
	c := model.NewCreature(guid, name, 10, hp, 100)
	c.SetInWorld(true)
	cont := w.engine.NewContainer(c)
	c.SetStatBonusProvider(cont)
	c.SetStatListener(w.engine.StatsChanged)

	w.units[guid] = c
	w.auras[guid] = cont
	w.order = append(w.order, c)
	return c
}

// fixedRoll returns v for every roll.
func fixedRoll(v float64) Roller {
	return RollerFunc(func() float64 { return v })
}

func newTestWorld(t *testing.T, opts Options, spells ...*data.SpellTemplate) *testWorld {
	t.Helper()

	store := data.NewTestStore(map[string]map[int32]float64{
		"spell_base": {1: 10, 10: 100, 20: 200},
	}, spells...)
	rec := combatlog.NewRecorder()
	if opts.Sink == nil {
		opts.Sink = rec
	}
	if opts.Roller == nil {
		opts.Roller = fixedRoll(0.99)
	}

	w := &testWorld{
		store: store,
		log:   rec,
		units: make(map[uint64]*model.Creature),
		auras: make(map[uint64]*Container),
	}
	w.engine = NewEngine(store, w, opts)
	return w
}

func (w *testWorld) cast(t *testing.T, caster Unit, spellID int32, targets ...Unit) []Outcome {
	t.Helper()
	out, err := w.engine.Cast(caster, spellID, targets...)
	require.NoError(t, err)
	return out
}

func damageSpell(id int32, base float64) *data.SpellTemplate {
	return &data.SpellTemplate{
		ID:      id,
		Name:    "Fire Bolt",
		School:  data.SchoolFire,
		Harmful: true,
		Effects: []data.EffectDef{
			{Type: data.EffectSchoolDamage, BasePoints: base},
		},
	}
}

func healSpell(id int32, base float64) *data.SpellTemplate {
	return &data.SpellTemplate{
		ID:     id,
		Name:   "Mend",
		School: data.SchoolHoly,
		Effects: []data.EffectDef{
			{Type: data.EffectHeal, BasePoints: base},
		},
	}
}

func dotSpell(id int32, perTick float64, periodMs, durationMs int32) *data.SpellTemplate {
	return &data.SpellTemplate{
		ID:         id,
		Name:       "Ignite",
		School:     data.SchoolFire,
		Harmful:    true,
		DurationMs: durationMs,
		Effects: []data.EffectDef{
			{Type: data.EffectApplyAura, Aura: data.AuraPeriodicDamage, BasePoints: perTick, PeriodMs: periodMs},
		},
	}
}

func shieldSpell(id int32, amount float64) *data.SpellTemplate {
	return &data.SpellTemplate{
		ID:         id,
		Name:       "Barrier",
		DurationMs: 30000,
		Effects: []data.EffectDef{
			{Type: data.EffectApplyAura, Aura: data.AuraSchoolAbsorb, BasePoints: amount},
		},
	}
}

func reflectSpell(id int32, pct float64) *data.SpellTemplate {
	return &data.SpellTemplate{
		ID:   id,
		Name: "Thorns",
		Proc: &data.ProcDef{Flags: data.ProcTakeDamage},
		Effects: []data.EffectDef{
			{Type: data.EffectApplyAura, Aura: data.AuraReflectDamage, BasePoints: pct, Target: data.TargetCaster},
		},
	}
}

func modifierSpell(id int32, aura data.AuraType, value float64, affects ...int32) *data.SpellTemplate {
	return &data.SpellTemplate{
		ID:   id,
		Name: "Empower",
		Effects: []data.EffectDef{
			{Type: data.EffectApplyAura, Aura: aura, BasePoints: value, Target: data.TargetCaster, AffectsSpells: affects},
		},
	}
}

func statSpell(id int32, stat data.Stat, op data.ModOp, value float64) *data.SpellTemplate {
	return &data.SpellTemplate{
		ID:         id,
		Name:       "Fortitude",
		DurationMs: 60000,
		Effects: []data.EffectDef{
			{Type: data.EffectApplyAura, Aura: data.AuraModStat, MiscStat: stat, ModOp: op, BasePoints: value},
		},
	}
}

// applyDirect registers tmpl on c with its base points as amounts.
func applyDirect(c *Container, tmpl *data.SpellTemplate, caster Unit) *AuraApplication {
	amounts := make(map[int]float64, len(tmpl.Effects))
	for i, e := range tmpl.Effects {
		amounts[i] = e.BasePoints
	}
	return c.Apply(tmpl, caster, amounts, tmpl.AuraEffectMask())
}

type removal struct {
	spellID int32
	reason  data.RemoveReason
}

// removeLog records OnRemove notifications.
type removeLog struct {
	calls []removal
}

func (l *removeLog) OnRemove(app *AuraApplication, reason data.RemoveReason) {
	l.calls = append(l.calls, removal{spellID: app.Spell.ID, reason: reason})
}

func indexEffects(spells ...*data.SpellTemplate) {
	for _, s := range spells {
		for i := range s.Effects {
			s.Effects[i].Index = i
		}
	}
}
