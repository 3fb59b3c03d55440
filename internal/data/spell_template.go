package data

// MaxEffects — максимум слотов эффектов в одном заклинании (ширина маски uint32).
const MaxEffects = 32

// ScalingRef ссылается на таблицу масштабирования по уровню кастера.
type ScalingRef struct {
	Table       string
	Coefficient float64
}

// EffectDef описывает один слот эффекта заклинания.
// Immutable после загрузки.
type EffectDef struct {
	Index  int
	Type   EffectType
	Aura   AuraType // only for EffectApplyAura
	Target TargetSelector
	School SchoolMask // 0 = spell school

	BasePoints float64
	PerLevel   float64 // added per caster level
	Scaling    *ScalingRef

	// Caster attribute term: AttrCoefficient × caster.GetStat(Attr).
	Attr            Stat
	AttrCoefficient float64

	// Target attribute term: TargetAttrCoefficient × target.GetStat(TargetAttr).
	TargetAttr            Stat
	TargetAttrCoefficient float64

	Min *float64
	Max *float64

	PeriodMs     int32
	TriggerSpell int32

	// mod_stat / add_*_modifier parameters.
	MiscStat      Stat
	ModOp         ModOp
	AffectsSpells []int32
}

// ProcDef описывает условия срабатывания прока ауры.
type ProcDef struct {
	Flags      ProcFlag
	HitMask    HitMask    // 0 = any outcome
	School     SchoolMask // 0 = any school
	Chance     float64    // percent; 0 means always
	Charges    int32      // 0 = unlimited
	CooldownMs int32
	Spells     []int32 // triggering spell filter; empty = any
}

// RemoveTrigger casts Spell on the aura owner when the aura is removed for one of Reasons.
type RemoveTrigger struct {
	Spell   int32
	Reasons []RemoveReason // empty = any reason
}

// Matches reports whether the trigger fires for the given reason.
func (t *RemoveTrigger) Matches(reason RemoveReason) bool {
	if len(t.Reasons) == 0 {
		return true
	}
	for _, r := range t.Reasons {
		if r == reason {
			return true
		}
	}
	return false
}

// StackRule combines a stacking kind with its stack limit.
type StackRule struct {
	Kind      StackKind
	MaxStacks int32
}

// SpellTemplate — immutable шаблон заклинания/ауры.
// Shared across all maps — НЕ модифицировать после загрузки.
type SpellTemplate struct {
	ID          int32
	Name        string
	School      SchoolMask
	Harmful     bool
	DurationMs  int32 // <= 0 for permanent auras
	PowerCost   int32
	CooldownMs  int32
	Dispellable bool

	Stacking       StackRule
	MultiCaster    bool
	ExclusiveGroup string
	GroupRank      int32

	Proc     *ProcDef
	OnRemove *RemoveTrigger

	Effects []EffectDef
}

// EffectMask returns the mask of all effect slots.
func (s *SpellTemplate) EffectMask() uint32 {
	var mask uint32
	for i := range s.Effects {
		mask |= 1 << uint(i)
	}
	return mask
}

// AuraEffectMask returns the mask of apply_aura slots.
func (s *SpellTemplate) AuraEffectMask() uint32 {
	var mask uint32
	for i := range s.Effects {
		if s.Effects[i].Type == EffectApplyAura {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

// HasAura returns true if the spell applies an aura.
func (s *SpellTemplate) HasAura() bool {
	return s.AuraEffectMask() != 0
}

// IsPermanent returns true if auras of this spell never expire on their own.
func (s *SpellTemplate) IsPermanent() bool {
	return s.DurationMs <= 0
}

// MaxStacks returns the stack limit, at least 1.
func (s *SpellTemplate) MaxStacks() int32 {
	if s.Stacking.Kind != StackStack || s.Stacking.MaxStacks < 1 {
		return 1
	}
	return s.Stacking.MaxStacks
}
