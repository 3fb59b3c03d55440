package spell

import (
	"fmt"

	"github.com/udisondev/spellcore/internal/data"
)

// StatSource provides stat values for formulas. model.Creature implements it.
type StatSource interface {
	GetStat(stat data.Stat) float64
}

// CasterContext — всё, что резолверу нужно знать о кастере.
type CasterContext struct {
	SpellID   int32
	Level     int32
	Stats     StatSource // nil = all stats zero
	Modifiers []Modifier // in registration order
}

// TargetContext — всё, что резолверу нужно знать о цели.
type TargetContext struct {
	Level int32
	Stats StatSource
}

// ScalingSource looks up level scaling tables.
type ScalingSource interface {
	ScalingValue(table string, level int32) (float64, bool)
}

// Resolver computes effect magnitudes. Resolve has no side effects.
type Resolver struct {
	scaling ScalingSource
}

// NewResolver creates a resolver over the given scaling tables.
func NewResolver(scaling ScalingSource) *Resolver {
	return &Resolver{scaling: scaling}
}

// Resolve computes the magnitude of one effect against one target:
//
//	base + perLevel×level + coef×table[level] + attrCoef×caster[attr] + targetCoef×target[attr]
//
// then flat modifiers, then percent modifiers in registration order,
// then clamp to Min/Max.
func (r *Resolver) Resolve(def *data.EffectDef, caster CasterContext, target TargetContext) (float64, error) {
	v := def.BasePoints + def.PerLevel*float64(caster.Level)

	if def.Scaling != nil {
		var (
			scaled float64
			ok     bool
		)
		if r.scaling != nil {
			scaled, ok = r.scaling.ScalingValue(def.Scaling.Table, caster.Level)
		}
		if !ok {
			return 0, fmt.Errorf("effect %d: table %q level %d: %w",
				def.Index, def.Scaling.Table, caster.Level, ErrInvalidScalingData)
		}
		v += def.Scaling.Coefficient * scaled
	}

	if def.Attr != data.StatNone && def.AttrCoefficient != 0 && caster.Stats != nil {
		v += def.AttrCoefficient * caster.Stats.GetStat(def.Attr)
	}
	if def.TargetAttr != data.StatNone && def.TargetAttrCoefficient != 0 && target.Stats != nil {
		v += def.TargetAttrCoefficient * target.Stats.GetStat(def.TargetAttr)
	}

	v = applyModifiers(v, caster.SpellID, caster.Modifiers)

	if def.Min != nil && v < *def.Min {
		v = *def.Min
	}
	if def.Max != nil && v > *def.Max {
		v = *def.Max
	}
	return v, nil
}
