// spellsim runs a combat scenario offline with a deterministic clock and prints the result.
//
// Usage:
//
//	go run ./cmd/spellsim -scenario data/scenarios/duel.yaml
//	go run ./cmd/spellsim -scenario data/scenarios/thorns.yaml -depth 3 -log
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"github.com/udisondev/spellcore/internal/combatlog"
	"github.com/udisondev/spellcore/internal/data"
	"github.com/udisondev/spellcore/internal/game/spell"
	"github.com/udisondev/spellcore/internal/scenario"
)

func main() {
	_ = godotenv.Load()

	dataFile := flag.String("data", envOr("SPELLCORE_DATA_FILE", "data/spells.yaml"), "spell definitions")
	scenarioFile := flag.String("scenario", "", "scenario file (required)")
	seed := flag.Uint64("seed", 0, "override scenario roll seed (0 keeps the file value)")
	depth := flag.Int("depth", spell.DefaultMaxProcDepth, "max proc depth")
	printLog := flag.Bool("log", false, "print every combat log record")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *scenarioFile == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := simulate(*dataFile, *scenarioFile, *seed, *depth, *printLog); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func simulate(dataFile, scenarioFile string, seed uint64, depth int, printLog bool) error {
	store, err := data.LoadStore(dataFile)
	if err != nil {
		return err
	}
	sc, err := scenario.Load(scenarioFile)
	if err != nil {
		return err
	}
	if seed != 0 {
		sc.Seed = seed
	}

	res, err := scenario.Run(store, sc, spell.Options{MaxProcDepth: depth})
	if err != nil {
		return fmt.Errorf("running %s: %w", scenarioFile, err)
	}

	if printLog {
		for _, r := range res.Records {
			fmt.Printf("%6dms %-15s caster=%d target=%d spell=%d amount=%d absorbed=%d hit=%s depth=%d %s\n",
				r.TimeMs, r.Kind, r.CasterGUID, r.TargetGUID, r.SpellID, r.Amount, r.Absorbed, r.Hit, r.Depth, r.Detail)
		}
		fmt.Println()
	}

	fmt.Printf("scenario %q: %dms simulated, %d records, %d failed actions\n\n",
		res.Name, res.ElapsedMs, len(res.Records), res.Failed)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GUID\tNAME\tHP\tPOWER\tSTATE\tAURAS")
	for _, u := range res.Units {
		state := "alive"
		switch {
		case !u.Alive:
			state = "dead"
		case !u.InWorld:
			state = "left"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d/%d\t%d\t%s\t%v\n", u.GUID, u.Name, u.HP, u.MaxHP, u.Power, state, u.Auras)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	kinds := make([]combatlog.Kind, 0, len(res.Kinds))
	for k := range res.Kinds {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	fmt.Println()
	for _, k := range kinds {
		fmt.Printf("%-16s %d\n", k, res.Kinds[k])
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
