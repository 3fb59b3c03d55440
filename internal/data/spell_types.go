package data

import (
	"fmt"
	"strings"
)

// Stat — характеристика юнита, которую читают формулы эффектов.
type Stat int8

const (
	StatNone         Stat = iota
	StatAttackPower       // physical attack power
	StatSpellPower        // spell power
	StatCritChance        // percent, 0..100
	StatResistChance      // percent chance to fully resist a harmful spell
	StatArmor
	StatStamina
	StatIntellect
	StatMaxHealth
)

var statNames = map[string]Stat{
	"":              StatNone,
	"none":          StatNone,
	"attack_power":  StatAttackPower,
	"spell_power":   StatSpellPower,
	"crit_chance":   StatCritChance,
	"resist_chance": StatResistChance,
	"armor":         StatArmor,
	"stamina":       StatStamina,
	"intellect":     StatIntellect,
	"max_health":    StatMaxHealth,
}

// ParseStat converts a YAML stat name to Stat.
func ParseStat(s string) (Stat, error) {
	st, ok := statNames[strings.ToLower(s)]
	if !ok {
		return StatNone, fmt.Errorf("unknown stat %q", s)
	}
	return st, nil
}

func (s Stat) String() string {
	for name, st := range statNames {
		if st == s && name != "" && name != "none" {
			return name
		}
	}
	return "none"
}

// SchoolMask — битовая маска школ магии.
type SchoolMask uint8

const (
	SchoolPhysical SchoolMask = 1 << iota
	SchoolHoly
	SchoolFire
	SchoolNature
	SchoolFrost
	SchoolShadow
	SchoolArcane

	SchoolAll SchoolMask = SchoolPhysical | SchoolHoly | SchoolFire | SchoolNature | SchoolFrost | SchoolShadow | SchoolArcane
)

var schoolNames = map[string]SchoolMask{
	"physical": SchoolPhysical,
	"holy":     SchoolHoly,
	"fire":     SchoolFire,
	"nature":   SchoolNature,
	"frost":    SchoolFrost,
	"shadow":   SchoolShadow,
	"arcane":   SchoolArcane,
	"all":      SchoolAll,
}

// ParseSchool parses a school list like "fire" or "fire|frost".
// Empty string yields 0 (no restriction).
func ParseSchool(s string) (SchoolMask, error) {
	if s == "" {
		return 0, nil
	}
	var mask SchoolMask
	for _, part := range strings.Split(s, "|") {
		m, ok := schoolNames[strings.ToLower(strings.TrimSpace(part))]
		if !ok {
			return 0, fmt.Errorf("unknown school %q", part)
		}
		mask |= m
	}
	return mask, nil
}

// Overlaps reports whether two masks share a school. A zero mask matches everything.
func (m SchoolMask) Overlaps(other SchoolMask) bool {
	if m == 0 || other == 0 {
		return true
	}
	return m&other != 0
}

// EffectType определяет, что делает слот эффекта заклинания.
type EffectType int8

const (
	EffectNone EffectType = iota
	EffectSchoolDamage
	EffectHeal
	EffectEnergize
	EffectApplyAura
	EffectTriggerSpell
	EffectDummy
)

var effectTypeNames = map[string]EffectType{
	"school_damage": EffectSchoolDamage,
	"heal":          EffectHeal,
	"energize":      EffectEnergize,
	"apply_aura":    EffectApplyAura,
	"trigger_spell": EffectTriggerSpell,
	"dummy":         EffectDummy,
}

// ParseEffectType converts string to EffectType.
func ParseEffectType(s string) (EffectType, error) {
	t, ok := effectTypeNames[strings.ToLower(s)]
	if !ok {
		return EffectNone, fmt.Errorf("unknown effect type %q", s)
	}
	return t, nil
}

// AuraType — тип ауры для эффектов apply_aura.
type AuraType int8

const (
	AuraNone AuraType = iota
	AuraPeriodicDamage
	AuraPeriodicHeal
	AuraPeriodicEnergize
	AuraPeriodicTriggerSpell
	AuraModStat
	AuraAddFlatModifier
	AuraAddPctModifier
	AuraSchoolAbsorb
	AuraProcTriggerSpell
	AuraReflectDamage
	AuraProcHeal
	AuraDummy
)

var auraTypeNames = map[string]AuraType{
	"periodic_damage":        AuraPeriodicDamage,
	"periodic_heal":          AuraPeriodicHeal,
	"periodic_energize":      AuraPeriodicEnergize,
	"periodic_trigger_spell": AuraPeriodicTriggerSpell,
	"mod_stat":               AuraModStat,
	"add_flat_modifier":      AuraAddFlatModifier,
	"add_pct_modifier":       AuraAddPctModifier,
	"school_absorb":          AuraSchoolAbsorb,
	"proc_trigger_spell":     AuraProcTriggerSpell,
	"reflect_damage":         AuraReflectDamage,
	"proc_heal":              AuraProcHeal,
	"dummy":                  AuraDummy,
}

// ParseAuraType converts string to AuraType.
func ParseAuraType(s string) (AuraType, error) {
	t, ok := auraTypeNames[strings.ToLower(s)]
	if !ok {
		return AuraNone, fmt.Errorf("unknown aura type %q", s)
	}
	return t, nil
}

// IsPeriodic returns true for aura types that tick.
func (t AuraType) IsPeriodic() bool {
	switch t {
	case AuraPeriodicDamage, AuraPeriodicHeal, AuraPeriodicEnergize, AuraPeriodicTriggerSpell:
		return true
	default:
		return false
	}
}

// TargetSelector определяет, на кого действует слот эффекта.
type TargetSelector int8

const (
	TargetPrimary TargetSelector = iota // first explicit target
	TargetCaster                        // the caster itself
	TargetAll                           // every explicit target (area already selected by the caller)
)

// ParseTargetSelector converts string to TargetSelector.
func ParseTargetSelector(s string) (TargetSelector, error) {
	switch strings.ToLower(s) {
	case "", "primary":
		return TargetPrimary, nil
	case "caster", "self":
		return TargetCaster, nil
	case "all", "area":
		return TargetAll, nil
	default:
		return TargetPrimary, fmt.Errorf("unknown target selector %q", s)
	}
}

// StackKind — правило наложения повторных применений одной ауры.
type StackKind int8

const (
	StackRefresh           StackKind = iota // refresh duration only
	StackStack                              // add a stack up to MaxStacks, then refresh
	StackIndependent                        // every application is separate
	StackReplaceIfStronger                  // keep the stronger application
)

// ParseStackKind converts string to StackKind.
func ParseStackKind(s string) (StackKind, error) {
	switch strings.ToLower(s) {
	case "", "refresh":
		return StackRefresh, nil
	case "stack":
		return StackStack, nil
	case "independent":
		return StackIndependent, nil
	case "replace_if_stronger":
		return StackReplaceIfStronger, nil
	default:
		return StackRefresh, fmt.Errorf("unknown stacking rule %q", s)
	}
}

// ModOp defines how a modifier is applied.
type ModOp int8

const (
	ModFlat ModOp = iota // additive (+10)
	ModPct               // percent (+20%)
)

// ParseModOp converts string to ModOp.
func ParseModOp(s string) (ModOp, error) {
	switch strings.ToLower(s) {
	case "", "flat", "add":
		return ModFlat, nil
	case "pct", "percent", "mul":
		return ModPct, nil
	default:
		return ModFlat, fmt.Errorf("unknown modifier op %q", s)
	}
}

// ProcFlag — битовая маска событий, на которые реагирует аура.
type ProcFlag uint32

const (
	ProcDealDamage ProcFlag = 1 << iota
	ProcTakeDamage
	ProcDealPeriodic
	ProcTakePeriodic
	ProcDealHeal
	ProcTakeHeal
	ProcCastSpell
	ProcAuraRemoved
	ProcKill
	ProcDeath
)

var procFlagNames = map[string]ProcFlag{
	"deal_damage":   ProcDealDamage,
	"take_damage":   ProcTakeDamage,
	"deal_periodic": ProcDealPeriodic,
	"take_periodic": ProcTakePeriodic,
	"deal_heal":     ProcDealHeal,
	"take_heal":     ProcTakeHeal,
	"cast_spell":    ProcCastSpell,
	"aura_removed":  ProcAuraRemoved,
	"kill":          ProcKill,
	"death":         ProcDeath,
}

// ParseProcFlags parses a list of proc flag names.
func ParseProcFlags(names []string) (ProcFlag, error) {
	var flags ProcFlag
	for _, n := range names {
		f, ok := procFlagNames[strings.ToLower(n)]
		if !ok {
			return 0, fmt.Errorf("unknown proc flag %q", n)
		}
		flags |= f
	}
	return flags, nil
}

// HitMask classifies the outcome of a damage or heal event.
type HitMask uint8

const (
	HitNormal HitMask = 1 << iota
	HitCritical
	HitMiss
	HitAbsorb
	HitFullAbsorb
)

var hitNames = map[string]HitMask{
	"normal":      HitNormal,
	"critical":    HitCritical,
	"miss":        HitMiss,
	"absorb":      HitAbsorb,
	"full_absorb": HitFullAbsorb,
}

// ParseHitMask parses a list of hit names.
func ParseHitMask(names []string) (HitMask, error) {
	var mask HitMask
	for _, n := range names {
		h, ok := hitNames[strings.ToLower(n)]
		if !ok {
			return 0, fmt.Errorf("unknown hit type %q", n)
		}
		mask |= h
	}
	return mask, nil
}

func (h HitMask) String() string {
	if h == 0 {
		return "none"
	}
	parts := make([]string, 0, 2)
	for _, name := range []string{"normal", "critical", "miss", "absorb", "full_absorb"} {
		if h&hitNames[name] != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// RemoveReason — причина снятия ауры.
type RemoveReason int8

const (
	RemoveNone RemoveReason = iota
	RemoveExpired
	RemoveCancelled
	RemoveDispelled
	RemoveConsumed
	RemoveReplaced
	RemoveStacking
	RemoveDeath
	RemoveTargetInvalid
	RemoveEvicted
)

var removeReasonNames = [...]string{
	RemoveNone:          "none",
	RemoveExpired:       "expired",
	RemoveCancelled:     "cancelled",
	RemoveDispelled:     "dispelled",
	RemoveConsumed:      "consumed",
	RemoveReplaced:      "replaced",
	RemoveStacking:      "stacking",
	RemoveDeath:         "death",
	RemoveTargetInvalid: "target_invalid",
	RemoveEvicted:       "evicted",
}

func (r RemoveReason) String() string {
	if int(r) < len(removeReasonNames) {
		return removeReasonNames[r]
	}
	return fmt.Sprintf("RemoveReason(%d)", int8(r))
}

// ParseRemoveReason converts string to RemoveReason.
func ParseRemoveReason(s string) (RemoveReason, error) {
	for i, name := range removeReasonNames {
		if strings.EqualFold(name, s) {
			return RemoveReason(i), nil
		}
	}
	return RemoveNone, fmt.Errorf("unknown remove reason %q", s)
}
