package spell

import "github.com/udisondev/spellcore/internal/data"

// Unit is the capability set the engine needs from a world object.
// Implemented by model.Creature.
type Unit interface {
	GUID() uint64
	Name() string
	Level() int32
	IsAlive() bool
	IsInWorld() bool
	ApplyDamage(amount int32, school data.SchoolMask) int32
	ApplyHeal(amount int32) int32
	Power() int32
	SetPower(power int32)
	GetStat(stat data.Stat) float64
}

// UnitIndex resolves units and their aura containers on one map.
// Units must return a stable order; the scheduler ticks in that order.
type UnitIndex interface {
	Unit(guid uint64) Unit
	Auras(guid uint64) *Container
	Units() []Unit
}

// Definitions is the read-only spell store. Implemented by *data.Store.
type Definitions interface {
	Spell(id int32) *data.SpellTemplate
	ScalingValue(table string, level int32) (float64, bool)
}

// TargetValidator checks range and line of sight. nil means every target is reachable.
type TargetValidator interface {
	ValidateTarget(caster, target Unit, spell *data.SpellTemplate) error
}

// TargetValidatorFunc adapts a function to TargetValidator.
type TargetValidatorFunc func(caster, target Unit, spell *data.SpellTemplate) error

func (f TargetValidatorFunc) ValidateTarget(caster, target Unit, spell *data.SpellTemplate) error {
	return f(caster, target, spell)
}

func unitGUID(u Unit) uint64 {
	if u == nil {
		return 0
	}
	return u.GUID()
}

func isValidTarget(u Unit) bool {
	return u != nil && u.IsInWorld() && u.IsAlive()
}
