package spell

import (
	"github.com/google/uuid"

	"github.com/udisondev/spellcore/internal/data"
)

// Mode — режим вызова конвейера.
type Mode int8

const (
	ModeCast      Mode = iota // player/AI cast: cooldown and power cost apply
	ModePeriodic              // aura tick against the bound target
	ModeTriggered             // proc or trigger_spell effect
)

func (m Mode) String() string {
	switch m {
	case ModePeriodic:
		return "periodic"
	case ModeTriggered:
		return "triggered"
	default:
		return "cast"
	}
}

// DamageInfo describes the damage part of a combat event.
type DamageInfo struct {
	Amount   int32 // dealt after absorb
	Absorbed int32
	School   data.SchoolMask
}

// HealInfo describes the heal part of a combat event.
type HealInfo struct {
	Amount    int32
	Effective int32
}

// ProcEvent — неизменяемый снимок одного боевого события.
// Передаётся по значению; обработчики не могут его изменить.
type ProcEvent struct {
	ID uuid.UUID

	Actor       Unit // may be nil (caster left the map)
	Target      Unit
	ActorFlags  data.ProcFlag
	TargetFlags data.ProcFlag

	Hit    data.HitMask
	Spell  *data.SpellTemplate
	Mode   Mode
	Damage DamageInfo
	Heal   HealInfo

	RemovedAura  *AuraApplication
	RemoveReason data.RemoveReason

	// Depth is the proc chain depth: 0 for events raised by a cast or a tick.
	Depth int
}

func newProcEvent() ProcEvent {
	return ProcEvent{ID: uuid.New()}
}

// school returns the school used for proc school filters.
func (ev ProcEvent) school() data.SchoolMask {
	if ev.Damage.School != 0 {
		return ev.Damage.School
	}
	if ev.Spell != nil {
		return ev.Spell.School
	}
	return 0
}
