// Package scenario описывает бой в YAML: юниты и действия по времени.
// Сценарий можно прогнать детерминированно (Run, без реального времени)
// или проиграть на работающей карте (Play).
package scenario

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/udisondev/spellcore/internal/data"
	"github.com/udisondev/spellcore/internal/model"
	"github.com/udisondev/spellcore/internal/world"
)

const (
	defaultStepMs     = 100
	defaultDurationMs = 10000
)

// ActionType — вид действия сценария.
type ActionType string

const (
	ActionCast   ActionType = "cast"
	ActionCancel ActionType = "cancel" // remove Spell from Unit
	ActionDispel ActionType = "dispel" // dispel Count auras from Unit
	ActionLeave  ActionType = "leave"  // Unit leaves the map
)

// Scenario is a parsed scenario document.
type Scenario struct {
	Name       string   `yaml:"name"`
	Seed       uint64   `yaml:"seed"`        // 0 = rolls always 0.5
	StepMs     int32    `yaml:"step_ms"`     // simulation step
	DurationMs int32    `yaml:"duration_ms"` // total simulated time
	Units      []Unit   `yaml:"units"`
	Actions    []Action `yaml:"actions"`
}

// Unit describes a creature to spawn.
type Unit struct {
	GUID  uint64             `yaml:"guid"` // 0 = generated
	Name  string             `yaml:"name"`
	Level int32              `yaml:"level"`
	HP    int32              `yaml:"hp"`
	Power int32              `yaml:"power"`
	Stats map[string]float64 `yaml:"stats"`
}

// Action is one timed command.
type Action struct {
	AtMs    int32      `yaml:"at_ms"`
	Type    ActionType `yaml:"type"`
	Caster  uint64     `yaml:"caster"`
	Spell   int32      `yaml:"spell"`
	Targets []uint64   `yaml:"targets"`
	Unit    uint64     `yaml:"unit"`
	Count   int        `yaml:"count"`
	Harmful bool       `yaml:"harmful"` // dispel harmful (true) or beneficial auras
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario %s: %w", path, err)
	}
	sc, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes a scenario, applies defaults and validates it.
// Actions are sorted by time; actions at the same time keep file order.
func Parse(raw []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("decoding yaml: %w", err)
	}
	if sc.StepMs <= 0 {
		sc.StepMs = defaultStepMs
	}
	if sc.DurationMs <= 0 {
		sc.DurationMs = defaultDurationMs
	}

	seen := make(map[uint64]bool, len(sc.Units))
	for i, u := range sc.Units {
		if u.HP <= 0 {
			return nil, fmt.Errorf("unit #%d (%s): hp must be positive", i, u.Name)
		}
		if u.GUID != 0 && seen[u.GUID] {
			return nil, fmt.Errorf("unit #%d: duplicate guid %d", i, u.GUID)
		}
		seen[u.GUID] = true
		for name := range u.Stats {
			if _, err := data.ParseStat(name); err != nil {
				return nil, fmt.Errorf("unit #%d (%s): %w", i, u.Name, err)
			}
		}
	}

	for i, a := range sc.Actions {
		if a.AtMs < 0 {
			return nil, fmt.Errorf("action #%d: negative at_ms", i)
		}
		switch a.Type {
		case ActionCast:
			if a.Caster == 0 || a.Spell == 0 {
				return nil, fmt.Errorf("action #%d: cast requires caster and spell", i)
			}
		case ActionCancel:
			if a.Unit == 0 || a.Spell == 0 {
				return nil, fmt.Errorf("action #%d: cancel requires unit and spell", i)
			}
		case ActionDispel, ActionLeave:
			if a.Unit == 0 {
				return nil, fmt.Errorf("action #%d: %s requires unit", i, a.Type)
			}
		default:
			return nil, fmt.Errorf("action #%d: unknown type %q", i, a.Type)
		}
	}
	slices.SortStableFunc(sc.Actions, func(a, b Action) int {
		return int(a.AtMs) - int(b.AtMs)
	})

	return &sc, nil
}

// CheckSpells verifies that every referenced spell exists in store.
func (sc *Scenario) CheckSpells(store *data.Store) error {
	var missing []string
	for _, a := range sc.Actions {
		if a.Spell != 0 && store.Spell(a.Spell) == nil {
			missing = append(missing, fmt.Sprintf("%d@%dms", a.Spell, a.AtMs))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("unknown spells: %s", strings.Join(missing, ", "))
	}
	return nil
}

// BuildUnits creates creatures for the scenario units.
// Units without a GUID get one from gen.
func (sc *Scenario) BuildUnits(gen *world.GUIDGenerator) []*model.Creature {
	out := make([]*model.Creature, 0, len(sc.Units))
	for _, u := range sc.Units {
		guid := u.GUID
		if guid == 0 {
			guid = gen.NextNpc()
		}
		level := max(u.Level, 1)
		c := model.NewCreature(guid, u.Name, level, u.HP, u.Power)
		for name, v := range u.Stats {
			st, _ := data.ParseStat(name) // validated in Parse
			c.SetStat(st, v)
		}
		out = append(out, c)
	}
	return out
}
