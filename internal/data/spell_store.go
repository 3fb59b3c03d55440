package data

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"
)

// Store — read-only registry шаблонов заклинаний и таблиц масштабирования.
// Строится один раз при старте (LoadStore/ParseStore) и далее не изменяется,
// поэтому безопасен для чтения из всех карт одновременно.
type Store struct {
	spells map[int32]*SpellTemplate
	tables map[string]map[int32]float64
	digest string
}

// Spell возвращает шаблон по ID или nil.
func (s *Store) Spell(id int32) *SpellTemplate {
	if s == nil {
		return nil
	}
	return s.spells[id]
}

// ScalingValue returns table[level]. ok is false if the table or the level is missing.
func (s *Store) ScalingValue(table string, level int32) (float64, bool) {
	if s == nil {
		return 0, false
	}
	t, ok := s.tables[table]
	if !ok {
		return 0, false
	}
	v, ok := t[level]
	return v, ok
}

// Len returns the number of loaded spells.
func (s *Store) Len() int {
	return len(s.spells)
}

// Digest returns the hex BLAKE2b-256 of the source document.
// Persisted aura snapshots are tagged with it.
func (s *Store) Digest() string {
	return s.digest
}

// LoadStore reads and parses a spell data file.
func LoadStore(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading spell data %s: %w", path, err)
	}
	store, err := ParseStore(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing spell data %s: %w", path, err)
	}
	slog.Info("loaded spells", "path", path, "spells", store.Len(), "tables", len(store.tables), "digest", store.digest[:12])
	return store, nil
}

// ParseStore builds a Store from a YAML document.
func ParseStore(raw []byte) (*Store, error) {
	var doc storeDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding yaml: %w", err)
	}

	sum := blake2b.Sum256(raw)
	store := &Store{
		spells: make(map[int32]*SpellTemplate, len(doc.Spells)),
		tables: make(map[string]map[int32]float64, len(doc.ScalingTables)),
		digest: hex.EncodeToString(sum[:]),
	}
	for name, t := range doc.ScalingTables {
		store.tables[name] = t
	}

	for i := range doc.Spells {
		tmpl, err := doc.Spells[i].build()
		if err != nil {
			return nil, fmt.Errorf("spell #%d (id %d): %w", i, doc.Spells[i].ID, err)
		}
		if _, dup := store.spells[tmpl.ID]; dup {
			return nil, fmt.Errorf("duplicate spell id %d", tmpl.ID)
		}
		store.spells[tmpl.ID] = tmpl
	}

	// Trigger references must resolve at load time.
	for _, tmpl := range store.spells {
		for _, ref := range triggerRefs(tmpl) {
			if _, ok := store.spells[ref]; !ok {
				return nil, fmt.Errorf("spell %d references unknown spell %d", tmpl.ID, ref)
			}
		}
		for _, e := range tmpl.Effects {
			if e.Scaling == nil {
				continue
			}
			if _, ok := store.tables[e.Scaling.Table]; !ok {
				slog.Warn("spell effect references missing scaling table",
					"spell", tmpl.ID,
					"effect", e.Index,
					"table", e.Scaling.Table)
			}
		}
	}

	return store, nil
}

func triggerRefs(t *SpellTemplate) []int32 {
	var refs []int32
	for _, e := range t.Effects {
		if e.TriggerSpell != 0 {
			refs = append(refs, e.TriggerSpell)
		}
	}
	if t.OnRemove != nil && t.OnRemove.Spell != 0 {
		refs = append(refs, t.OnRemove.Spell)
	}
	return refs
}

// storeDoc mirrors the YAML layout of a spell data file.
type storeDoc struct {
	ScalingTables map[string]map[int32]float64 `yaml:"scaling_tables"`
	Spells        []spellDoc                   `yaml:"spells"`
}

type spellDoc struct {
	ID             int32       `yaml:"id"`
	Name           string      `yaml:"name"`
	School         string      `yaml:"school"`
	Harmful        bool        `yaml:"harmful"`
	DurationMs     int32       `yaml:"duration_ms"`
	PowerCost      int32       `yaml:"power_cost"`
	CooldownMs     int32       `yaml:"cooldown_ms"`
	Dispellable    bool        `yaml:"dispellable"`
	Stacking       string      `yaml:"stacking"`
	MaxStacks      int32       `yaml:"max_stacks"`
	MultiCaster    bool        `yaml:"multi_caster"`
	ExclusiveGroup string      `yaml:"exclusive_group"`
	GroupRank      int32       `yaml:"group_rank"`
	Proc           *procDoc    `yaml:"proc"`
	OnRemove       *removeDoc  `yaml:"on_remove"`
	Effects        []effectDoc `yaml:"effects"`
}

type procDoc struct {
	Flags      []string `yaml:"flags"`
	Hit        []string `yaml:"hit"`
	School     string   `yaml:"school"`
	Chance     float64  `yaml:"chance"`
	Charges    int32    `yaml:"charges"`
	CooldownMs int32    `yaml:"cooldown_ms"`
	Spells     []int32  `yaml:"spells"`
}

type removeDoc struct {
	Spell   int32    `yaml:"spell"`
	Reasons []string `yaml:"reasons"`
}

type effectDoc struct {
	Type                  string   `yaml:"type"`
	Aura                  string   `yaml:"aura"`
	Target                string   `yaml:"target"`
	School                string   `yaml:"school"`
	BasePoints            float64  `yaml:"base_points"`
	PerLevel              float64  `yaml:"per_level"`
	ScalingTable          string   `yaml:"scaling_table"`
	ScalingCoefficient    float64  `yaml:"scaling_coefficient"`
	Attr                  string   `yaml:"attr"`
	AttrCoefficient       float64  `yaml:"attr_coefficient"`
	TargetAttr            string   `yaml:"target_attr"`
	TargetAttrCoefficient float64  `yaml:"target_attr_coefficient"`
	Min                   *float64 `yaml:"min"`
	Max                   *float64 `yaml:"max"`
	PeriodMs              int32    `yaml:"period_ms"`
	TriggerSpell          int32    `yaml:"trigger_spell"`
	MiscStat              string   `yaml:"stat"`
	ModOp                 string   `yaml:"op"`
	AffectsSpells         []int32  `yaml:"affects_spells"`
}

func (d *spellDoc) build() (*SpellTemplate, error) {
	if d.ID <= 0 {
		return nil, fmt.Errorf("spell id must be positive")
	}
	if len(d.Effects) == 0 {
		return nil, fmt.Errorf("spell has no effects")
	}
	if len(d.Effects) > MaxEffects {
		return nil, fmt.Errorf("spell has %d effects, max %d", len(d.Effects), MaxEffects)
	}

	school, err := ParseSchool(d.School)
	if err != nil {
		return nil, err
	}
	stackKind, err := ParseStackKind(d.Stacking)
	if err != nil {
		return nil, err
	}

	t := &SpellTemplate{
		ID:             d.ID,
		Name:           d.Name,
		School:         school,
		Harmful:        d.Harmful,
		DurationMs:     d.DurationMs,
		PowerCost:      d.PowerCost,
		CooldownMs:     d.CooldownMs,
		Dispellable:    d.Dispellable,
		Stacking:       StackRule{Kind: stackKind, MaxStacks: d.MaxStacks},
		MultiCaster:    d.MultiCaster,
		ExclusiveGroup: d.ExclusiveGroup,
		GroupRank:      d.GroupRank,
		Effects:        make([]EffectDef, 0, len(d.Effects)),
	}
	if stackKind == StackStack && d.MaxStacks < 1 {
		return nil, fmt.Errorf("stacking rule 'stack' requires max_stacks >= 1")
	}

	if d.Proc != nil {
		proc, err := d.Proc.build()
		if err != nil {
			return nil, fmt.Errorf("proc: %w", err)
		}
		t.Proc = proc
	}
	if d.OnRemove != nil {
		trig := &RemoveTrigger{Spell: d.OnRemove.Spell}
		for _, r := range d.OnRemove.Reasons {
			reason, err := ParseRemoveReason(r)
			if err != nil {
				return nil, fmt.Errorf("on_remove: %w", err)
			}
			trig.Reasons = append(trig.Reasons, reason)
		}
		t.OnRemove = trig
	}

	for i := range d.Effects {
		def, err := d.Effects[i].build(i)
		if err != nil {
			return nil, fmt.Errorf("effect %d: %w", i, err)
		}
		t.Effects = append(t.Effects, def)
	}
	return t, nil
}

func (d *procDoc) build() (*ProcDef, error) {
	flags, err := ParseProcFlags(d.Flags)
	if err != nil {
		return nil, err
	}
	if flags == 0 {
		return nil, fmt.Errorf("proc requires at least one flag")
	}
	hit, err := ParseHitMask(d.Hit)
	if err != nil {
		return nil, err
	}
	school, err := ParseSchool(d.School)
	if err != nil {
		return nil, err
	}
	if d.Chance < 0 || d.Chance > 100 {
		return nil, fmt.Errorf("proc chance %.2f out of range", d.Chance)
	}
	return &ProcDef{
		Flags:      flags,
		HitMask:    hit,
		School:     school,
		Chance:     d.Chance,
		Charges:    d.Charges,
		CooldownMs: d.CooldownMs,
		Spells:     d.Spells,
	}, nil
}

func (d *effectDoc) build(index int) (EffectDef, error) {
	def := EffectDef{
		Index:                 index,
		BasePoints:            d.BasePoints,
		PerLevel:              d.PerLevel,
		AttrCoefficient:       d.AttrCoefficient,
		TargetAttrCoefficient: d.TargetAttrCoefficient,
		Min:                   d.Min,
		Max:                   d.Max,
		PeriodMs:              d.PeriodMs,
		TriggerSpell:          d.TriggerSpell,
		AffectsSpells:         d.AffectsSpells,
	}

	var err error
	if def.Type, err = ParseEffectType(d.Type); err != nil {
		return def, err
	}
	if def.Target, err = ParseTargetSelector(d.Target); err != nil {
		return def, err
	}
	if def.School, err = ParseSchool(d.School); err != nil {
		return def, err
	}
	if def.Attr, err = ParseStat(d.Attr); err != nil {
		return def, err
	}
	if def.TargetAttr, err = ParseStat(d.TargetAttr); err != nil {
		return def, err
	}
	if def.MiscStat, err = ParseStat(d.MiscStat); err != nil {
		return def, err
	}
	if def.ModOp, err = ParseModOp(d.ModOp); err != nil {
		return def, err
	}
	if d.ScalingTable != "" {
		def.Scaling = &ScalingRef{Table: d.ScalingTable, Coefficient: d.ScalingCoefficient}
	}
	if def.Min != nil && def.Max != nil && *def.Min > *def.Max {
		return def, fmt.Errorf("min %.2f greater than max %.2f", *def.Min, *def.Max)
	}

	switch def.Type {
	case EffectApplyAura:
		if def.Aura, err = ParseAuraType(d.Aura); err != nil {
			return def, err
		}
		if def.Aura.IsPeriodic() && def.PeriodMs <= 0 {
			return def, fmt.Errorf("periodic aura requires period_ms > 0")
		}
		if !def.Aura.IsPeriodic() && def.PeriodMs != 0 {
			return def, fmt.Errorf("period_ms set on non-periodic aura")
		}
		if (def.Aura == AuraProcTriggerSpell || def.Aura == AuraPeriodicTriggerSpell) && def.TriggerSpell == 0 {
			return def, fmt.Errorf("aura requires trigger_spell")
		}
	case EffectTriggerSpell:
		if def.TriggerSpell == 0 {
			return def, fmt.Errorf("trigger_spell effect requires trigger_spell")
		}
	default:
		if d.Aura != "" {
			return def, fmt.Errorf("aura set on non-aura effect")
		}
	}
	return def, nil
}
