package spell

import (
	"slices"

	"github.com/udisondev/spellcore/internal/data"
)

// Modifier changes the magnitude of spell effects cast by the unit that carries it.
// Flat modifiers are summed first, then percent modifiers are applied
// multiplicatively in registration order.
type Modifier struct {
	Op     data.ModOp
	Value  float64 // flat amount or percent (20 = +20%)
	Source int32   // spell ID of the aura that registered the modifier, 0 for ad-hoc
	Spells []int32 // affected spell IDs; empty = all
}

// Affects reports whether the modifier applies to spellID.
func (m Modifier) Affects(spellID int32) bool {
	return len(m.Spells) == 0 || slices.Contains(m.Spells, spellID)
}

// applyModifiers runs the modifier chain over v.
func applyModifiers(v float64, spellID int32, mods []Modifier) float64 {
	flat := 0.0
	for _, m := range mods {
		if m.Op == data.ModFlat && m.Affects(spellID) {
			flat += m.Value
		}
	}
	v += flat
	for _, m := range mods {
		if m.Op == data.ModPct && m.Affects(spellID) {
			v *= 1 + m.Value/100
		}
	}
	return v
}
