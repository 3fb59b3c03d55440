package spell

import (
	"log/slog"
	"math"

	"github.com/udisondev/spellcore/internal/data"
)

// RemoveNotifier receives every first removal of an aura application.
// Implemented by Dispatcher.
type RemoveNotifier interface {
	OnRemove(app *AuraApplication, reason data.RemoveReason)
}

// StatObserver is told when mod_stat auras of a unit change. Implemented by Pipeline.
type StatObserver interface {
	StatsChanged(guid uint64)
}

// Container owns active auras of one unit in insertion order.
// Implements model.StatBonusProvider.
//
// Not thread-safe: all calls come from the owning map loop.
type Container struct {
	owner    Unit
	apps     []*AuraApplication
	limit    int
	notifier RemoveNotifier
	stats    StatObserver
	clock    *Clock
	seq      uint64
}

// NewContainer creates an empty container. limit <= 0 disables the aura limit.
func NewContainer(owner Unit, limit int) *Container {
	return &Container{
		owner: owner,
		apps:  make([]*AuraApplication, 0, 8),
		limit: limit,
	}
}

// SetRemoveNotifier wires the proc dispatcher.
func (c *Container) SetRemoveNotifier(n RemoveNotifier) {
	c.notifier = n
}

// SetStatObserver wires stat-dependent amount recalculation.
func (c *Container) SetStatObserver(o StatObserver) {
	c.stats = o
}

// SetClock stamps new applications with map time. Without a clock they start at 0.
func (c *Container) SetClock(clock *Clock) {
	c.clock = clock
}

func (c *Container) now() int64 {
	if c.clock == nil {
		return 0
	}
	return c.clock.Now()
}

func (c *Container) statsChanged(app *AuraApplication) {
	if c.stats != nil && c.owner != nil && app.HasKind(AuraKindStat) {
		c.stats.StatsChanged(c.owner.GUID())
	}
}

// Owner returns the unit carrying the auras.
func (c *Container) Owner() Unit {
	return c.owner
}

// Len returns the number of active applications.
func (c *Container) Len() int {
	return len(c.apps)
}

// Apply registers an application of tmpl cast by caster.
// amounts holds resolved per-stack magnitudes by effect index, mask selects
// the aura slots to activate.
//
// Never fails: returns either a new application or the existing one,
// mutated according to the stacking rule:
//   - refresh: duration reset, stack count stays 1
//   - stack: +1 stack up to MaxStacks, duration reset
//   - independent: always a new application
//   - replace_if_stronger: stronger replaces in place, equal refreshes, weaker is ignored
//
// Exclusive groups: an aura of a lower group rank is rejected and the
// current holder of the group is returned; equal or higher rank replaces it.
func (c *Container) Apply(tmpl *data.SpellTemplate, caster Unit, amounts map[int]float64, mask uint32) *AuraApplication {
	app, _ := c.apply(tmpl, caster, amounts, mask)
	return app
}

// applyOutcome says what Apply did with the request.
type applyOutcome int8

const (
	applyCreated   applyOutcome = iota
	applyRefreshed              // same application, duration reset
	applyReplaced               // stronger replace_if_stronger rebuilt the slots
	applyIgnored                // weaker replace_if_stronger, nothing changed
	applyRejected               // lower exclusive group rank, holder returned
)

func (c *Container) apply(tmpl *data.SpellTemplate, caster Unit, amounts map[int]float64, mask uint32) (*AuraApplication, applyOutcome) {
	mask &= tmpl.AuraEffectMask()
	casterGUID := unitGUID(caster)

	if tmpl.ExclusiveGroup != "" {
		for _, existing := range c.Applications() {
			if existing.Spell.ExclusiveGroup != tmpl.ExclusiveGroup || existing.Spell.ID == tmpl.ID {
				continue
			}
			if tmpl.GroupRank < existing.Spell.GroupRank {
				slog.Debug("aura rejected by exclusive group",
					"spell", tmpl.ID,
					"group", tmpl.ExclusiveGroup,
					"holder", existing.Spell.ID,
					"target", unitGUID(c.owner))
				return existing, applyRejected
			}
			c.Remove(existing, data.RemoveReplaced)
		}
	}

	if tmpl.Stacking.Kind != data.StackIndependent {
		if existing := c.find(tmpl, casterGUID); existing != nil {
			outcome := c.restack(existing, casterGUID, amounts, mask)
			if outcome != applyIgnored {
				c.statsChanged(existing)
			}
			return existing, outcome
		}
	}

	if c.limit > 0 && len(c.apps) >= c.limit {
		oldest := c.apps[0]
		c.Remove(oldest, data.RemoveEvicted)

		slog.Debug("aura limit reached, removed oldest",
			"removedSpell", oldest.Spell.ID,
			"target", unitGUID(c.owner))
	}

	app := newApplication(tmpl, c.owner, casterGUID, amounts, mask, c.now())
	c.seq++
	app.seq = c.seq
	c.apps = append(c.apps, app)
	c.statsChanged(app)
	return app, applyCreated
}

func (c *Container) restack(app *AuraApplication, casterGUID uint64, amounts map[int]float64, mask uint32) applyOutcome {
	now := c.now()
	switch app.Spell.Stacking.Kind {
	case data.StackStack:
		if app.Stacks < app.Spell.MaxStacks() {
			app.Stacks++
		}
		app.refresh(now)

	case data.StackReplaceIfStronger:
		incoming := 0.0
		for i := range app.Spell.Effects {
			if mask&(1<<uint(i)) != 0 {
				incoming += math.Abs(amounts[i])
			}
		}
		current := app.strength()
		switch {
		case incoming > current:
			app.CasterGUID = casterGUID
			app.EffectMask = mask
			app.Effects = buildEffects(app, amounts)
			app.refresh(now)
			return applyReplaced
		case incoming < current:
			return applyIgnored
		}
		app.refresh(now)

	default:
		app.refresh(now)
	}
	return applyRefreshed
}

// find returns the application keyed by (spell) or (spell, caster) for multi-caster auras.
func (c *Container) find(tmpl *data.SpellTemplate, casterGUID uint64) *AuraApplication {
	for _, app := range c.apps {
		if app.Spell.ID != tmpl.ID {
			continue
		}
		if tmpl.MultiCaster && app.CasterGUID != casterGUID {
			continue
		}
		return app
	}
	return nil
}

// Find returns the first active application of spellID, or nil.
func (c *Container) Find(spellID int32) *AuraApplication {
	for _, app := range c.apps {
		if app.Spell.ID == spellID {
			return app
		}
	}
	return nil
}

// FindByCaster returns the application of spellID cast by casterGUID, or nil.
func (c *Container) FindByCaster(spellID int32, casterGUID uint64) *AuraApplication {
	for _, app := range c.apps {
		if app.Spell.ID == spellID && app.CasterGUID == casterGUID {
			return app
		}
	}
	return nil
}

// Applications returns a copy of active applications in insertion order.
// Safe to iterate while handlers remove auras.
func (c *Container) Applications() []*AuraApplication {
	result := make([]*AuraApplication, len(c.apps))
	copy(result, c.apps)
	return result
}

// Remove removes app with reason. Idempotent: returns false and notifies
// nothing if app is nil, already removed or not owned by this container.
func (c *Container) Remove(app *AuraApplication, reason data.RemoveReason) bool {
	if app == nil || app.removed {
		return false
	}
	idx := -1
	for i, a := range c.apps {
		if a == app {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	app.removed = true
	app.removeReason = reason
	c.apps = append(c.apps[:idx], c.apps[idx+1:]...)
	c.statsChanged(app)

	if c.notifier != nil {
		c.notifier.OnRemove(app, reason)
	}
	return true
}

// RemoveBySpell removes every application of spellID. Returns the number removed.
func (c *Container) RemoveBySpell(spellID int32, reason data.RemoveReason) int {
	n := 0
	for _, app := range c.Applications() {
		if app.Spell.ID == spellID && c.Remove(app, reason) {
			n++
		}
	}
	return n
}

// RemoveAll removes every application. Returns the number removed.
func (c *Container) RemoveAll(reason data.RemoveReason) int {
	n := 0
	for _, app := range c.Applications() {
		if c.Remove(app, reason) {
			n++
		}
	}
	return n
}

// Dispel removes up to n dispellable auras of the given harmfulness, newest first.
func (c *Container) Dispel(n int, harmful bool) []*AuraApplication {
	var removed []*AuraApplication
	apps := c.Applications()
	for i := len(apps) - 1; i >= 0 && len(removed) < n; i-- {
		app := apps[i]
		if !app.Spell.Dispellable || app.Spell.Harmful != harmful {
			continue
		}
		if c.Remove(app, data.RemoveDispelled) {
			removed = append(removed, app)
		}
	}
	return removed
}

// Modifiers returns spell modifiers affecting spellID in aura application order.
func (c *Container) Modifiers(spellID int32) []Modifier {
	var mods []Modifier
	for _, app := range c.apps {
		for _, e := range app.Effects {
			if e.Kind != AuraKindModifier {
				continue
			}
			m := Modifier{
				Op:     data.ModFlat,
				Value:  e.Amount,
				Source: app.Spell.ID,
				Spells: e.Def.AffectsSpells,
			}
			if e.Def.Aura == data.AuraAddPctModifier {
				m.Op = data.ModPct
			}
			if m.Affects(spellID) {
				mods = append(mods, m)
			}
		}
	}
	return mods
}

// StatBonus returns the flat bonus and the multiplier for stat from mod_stat auras.
// Flat bonuses are summed, percent bonuses multiply (1 + pct/100) each.
func (c *Container) StatBonus(stat data.Stat) (flat, mul float64) {
	mul = 1.0
	for _, app := range c.apps {
		for _, e := range app.Effects {
			if e.Kind != AuraKindStat || e.Def.MiscStat != stat {
				continue
			}
			switch e.Def.ModOp {
			case data.ModFlat:
				flat += e.Amount
			case data.ModPct:
				mul *= 1 + e.Amount/100
			}
		}
	}
	return flat, mul
}

// Absorb consumes shields against incoming damage in application order.
// Depleted shields are removed with RemoveConsumed. Returns the absorbed amount.
func (c *Container) Absorb(amount int32, school data.SchoolMask) int32 {
	if amount <= 0 {
		return 0
	}
	left := float64(amount)
	for _, app := range c.Applications() {
		if left <= 0 {
			break
		}
		if app.removed {
			continue
		}
		depleted := false
		for _, e := range app.Effects {
			if e.Kind != AuraKindAbsorb || e.Absorb <= 0 || !e.School().Overlaps(school) {
				continue
			}
			take := min(left, e.Absorb)
			e.Absorb -= take
			left -= take
			if e.Absorb <= 0 {
				depleted = true
			}
			if left <= 0 {
				break
			}
		}
		if depleted && !hasShieldLeft(app) {
			c.Remove(app, data.RemoveConsumed)
		}
	}
	return amount - int32(math.Ceil(left))
}

func hasShieldLeft(app *AuraApplication) bool {
	for _, e := range app.Effects {
		if e.Kind == AuraKindAbsorb && e.Absorb > 0 {
			return true
		}
	}
	return false
}

// AuraSnapshot is the persisted form of one application.
type AuraSnapshot struct {
	SpellID     int32
	CasterGUID  uint64
	EffectMask  uint32
	RemainingMs int32
	Stacks      int32
	Charges     int32
	Amounts     []float64 // base amount per effect slot
	Absorbs     []float64 // remaining shield per effect slot
}

// Snapshot captures the container state in insertion order.
func (c *Container) Snapshot() []AuraSnapshot {
	snaps := make([]AuraSnapshot, 0, len(c.apps))
	for _, app := range c.apps {
		s := AuraSnapshot{
			SpellID:     app.Spell.ID,
			CasterGUID:  app.CasterGUID,
			EffectMask:  app.EffectMask,
			RemainingMs: app.RemainingMs,
			Stacks:      app.Stacks,
			Charges:     app.Charges,
			Amounts:     make([]float64, len(app.Spell.Effects)),
			Absorbs:     make([]float64, len(app.Spell.Effects)),
		}
		for _, e := range app.Effects {
			s.Amounts[e.Def.Index] = e.BaseAmount
			s.Absorbs[e.Def.Index] = e.Absorb
		}
		snaps = append(snaps, s)
	}
	return snaps
}

// SpellSource looks up spell templates by ID. Implemented by *data.Store.
type SpellSource interface {
	Spell(id int32) *data.SpellTemplate
}

// Restore re-creates applications from snapshots without notifications.
// Snapshots of unknown spells are skipped. Returns the number restored.
func (c *Container) Restore(snaps []AuraSnapshot, spells SpellSource) int {
	n := 0
	for _, s := range snaps {
		tmpl := spells.Spell(s.SpellID)
		if tmpl == nil {
			slog.Warn("skipping aura snapshot of unknown spell",
				"spell", s.SpellID,
				"target", unitGUID(c.owner))
			continue
		}
		amounts := make(map[int]float64, len(s.Amounts))
		for i, v := range s.Amounts {
			amounts[i] = v
		}

		app := newApplication(tmpl, c.owner, s.CasterGUID, amounts, s.EffectMask&tmpl.AuraEffectMask(), c.now())
		app.RemainingMs = max(s.RemainingMs, 0)
		app.Stacks = max(min(s.Stacks, tmpl.MaxStacks()), 1)
		app.Charges = s.Charges
		for _, e := range app.Effects {
			e.recalculate(app.Stacks)
			if e.Kind == AuraKindAbsorb {
				e.Absorb = e.Amount
				if e.Def.Index < len(s.Absorbs) {
					e.Absorb = s.Absorbs[e.Def.Index]
				}
			}
		}

		c.seq++
		app.seq = c.seq
		c.apps = append(c.apps, app)
		c.statsChanged(app)
		n++
	}
	return n
}
