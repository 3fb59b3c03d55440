package combatlog

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies a combat log record.
type Kind string

const (
	KindCast          Kind = "cast"
	KindCastFailed    Kind = "cast_failed"
	KindDamage        Kind = "damage"
	KindHeal          Kind = "heal"
	KindEnergize      Kind = "energize"
	KindTick          Kind = "tick" // periodic damage
	KindHealTick      Kind = "heal_tick"
	KindProc          Kind = "proc"
	KindAuraApplied   Kind = "aura_applied"
	KindAuraRefreshed Kind = "aura_refreshed"
	KindAuraRemoved   Kind = "aura_removed"
	KindDeath         Kind = "death"
	KindFault         Kind = "fault"
	KindRecursion     Kind = "recursion_limit"
)

// Record is one structured combat event. Records are write-only:
// sinks consume them, nothing in the engine reads them back.
type Record struct {
	ID         uuid.UUID
	MapID      int32
	TimeMs     int64 // map clock
	At         time.Time
	Kind       Kind
	CasterGUID uint64
	TargetGUID uint64
	SpellID    int32
	Amount     int32
	Absorbed   int32
	Hit        string
	Depth      int
	Detail     string
}
