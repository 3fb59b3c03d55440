package spell

import "errors"

// Engine errors. Local failures (one effect, one target) are reported inside
// EffectResult / Outcome and never abort sibling effects or targets.
var (
	// ErrInvalidScalingData — эффект ссылается на отсутствующую таблицу или уровень.
	ErrInvalidScalingData = errors.New("invalid scaling data")

	// ErrTargetInvalid — цель умерла или покинула мир. Терминальное состояние, не сбой.
	ErrTargetInvalid = errors.New("target invalid")

	// ErrProcHandlerFault wraps an error or panic raised by a proc handler.
	ErrProcHandlerFault = errors.New("proc handler fault")

	// ErrRecursionLimitExceeded — proc chain deeper than the configured bound.
	ErrRecursionLimitExceeded = errors.New("proc recursion limit exceeded")

	// ErrNotImplemented is returned for dummy effects without a registered handler.
	ErrNotImplemented = errors.New("not implemented")

	ErrUnknownSpell     = errors.New("unknown spell")
	ErrCasterDead       = errors.New("caster is dead")
	ErrOnCooldown       = errors.New("spell on cooldown")
	ErrNotEnoughPower   = errors.New("not enough power")
	ErrOutOfRange       = errors.New("target out of range")
	ErrReentrantAdvance = errors.New("scheduler advance is not re-entrant")
)
