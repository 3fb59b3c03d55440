package testutil

import (
	"testing"

	"github.com/udisondev/spellcore/internal/data"
)

// Spell ids of SpellYAML.
const (
	SpellFireBolt  int32 = 100 // 50 fire damage
	SpellIgnite    int32 = 101 // 10 fire per second for 5s
	SpellBarrier   int32 = 102 // 40 point absorb shield, 30s
	SpellFortitude int32 = 103 // +20 stamina, 60s, permanent if restored
	SpellRenew     int32 = 104 // 5 heal per second for 3s
)

// SpellYAML — небольшой набор заклинаний для тестов карт, сценариев и БД.
const SpellYAML = `
scaling_tables:
  spell_base:
    1: 10
    10: 100
spells:
  - id: 100
    name: Fire Bolt
    school: fire
    harmful: true
    power_cost: 10
    effects:
      - type: school_damage
        base_points: 50
  - id: 101
    name: Ignite
    school: fire
    harmful: true
    dispellable: true
    duration_ms: 5000
    effects:
      - type: apply_aura
        aura: periodic_damage
        base_points: 10
        period_ms: 1000
  - id: 102
    name: Barrier
    school: arcane
    duration_ms: 30000
    effects:
      - type: apply_aura
        aura: school_absorb
        base_points: 40
  - id: 103
    name: Fortitude
    duration_ms: 60000
    effects:
      - type: apply_aura
        aura: mod_stat
        stat: stamina
        op: flat
        base_points: 20
  - id: 104
    name: Renew
    school: holy
    duration_ms: 3000
    effects:
      - type: apply_aura
        aura: periodic_heal
        base_points: 5
        period_ms: 1000
`

// SpellStore parses SpellYAML.
func SpellStore(tb testing.TB) *data.Store {
	tb.Helper()
	store, err := data.ParseStore([]byte(SpellYAML))
	if err != nil {
		tb.Fatalf("parsing test spells: %v", err)
	}
	return store
}
