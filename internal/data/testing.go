package data

// NewTestStore builds a Store from in-memory templates.
// Intended for tests from other packages that need spell data without a YAML file.
func NewTestStore(tables map[string]map[int32]float64, spells ...*SpellTemplate) *Store {
	s := &Store{
		spells: make(map[int32]*SpellTemplate, len(spells)),
		tables: make(map[string]map[int32]float64, len(tables)),
		digest: "test",
	}
	for name, t := range tables {
		s.tables[name] = t
	}
	for _, sp := range spells {
		for i := range sp.Effects {
			sp.Effects[i].Index = i
		}
		s.spells[sp.ID] = sp
	}
	return s
}
