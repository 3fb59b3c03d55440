package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/udisondev/spellcore/internal/combatlog"
	"github.com/udisondev/spellcore/internal/config"
	"github.com/udisondev/spellcore/internal/data"
	"github.com/udisondev/spellcore/internal/db"
	"github.com/udisondev/spellcore/internal/game/spell"
	"github.com/udisondev/spellcore/internal/scenario"
	"github.com/udisondev/spellcore/internal/world"
)

const ConfigPath = "config/mapserver.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "err", err)
	}

	// Load config FIRST to determine log level
	cfgPath := ConfigPath
	if p := os.Getenv("SPELLCORE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadMapServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))
	slog.Info("spellcore map server starting", "config", cfgPath, "maps", len(cfg.Maps))

	store, err := data.LoadStore(cfg.DataFile)
	if err != nil {
		return fmt.Errorf("loading spell data: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	var (
		sinks     combatlog.MultiSink
		auraStore world.AuraStore
	)
	if cfg.CombatLog.Stdout {
		sinks = append(sinks, combatlog.LogSink{})
	}

	if cfg.Database.Enabled {
		database, err := db.New(ctx, cfg.Database.DSN())
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer database.Close()
		slog.Info("database connected")

		if err := db.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		version, err := db.MigrationVersion(ctx, cfg.Database.DSN())
		if err != nil {
			return err
		}
		slog.Info("database migrations applied", "version", version)

		pgSink := newAsyncSink(cfg.CombatLog, database.CombatLog())
		g.Go(func() error { return pgSink.Run(gctx) })
		sinks = append(sinks, pgSink)
		auraStore = database.Auras()
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis %s: %w", cfg.Redis.Addr, err)
		}
		slog.Info("redis connected", "addr", cfg.Redis.Addr, "stream", cfg.Redis.Stream)

		redisSink := newAsyncSink(cfg.CombatLog, combatlog.NewRedisWriter(client, cfg.Redis.Stream, cfg.Redis.MaxLen))
		g.Go(func() error { return redisSink.Run(gctx) })
		sinks = append(sinks, redisSink)
	}

	var sink combatlog.Sink = combatlog.Discard
	if len(sinks) > 0 {
		sink = sinks
	}

	mgr := world.NewManager(cfg.Engine.TickInterval)
	guids := world.NewGUIDGenerator()
	for _, entry := range cfg.Maps {
		m := world.NewMap(entry.ID, entry.Name, store, spell.Options{
			MaxProcDepth:   cfg.Engine.MaxProcDepth,
			MaxAuras:       cfg.Engine.MaxAuras,
			CritMultiplier: cfg.Engine.CritMultiplier,
			Sink:           sink,
		})
		if auraStore != nil {
			m.SetAuraStore(auraStore)
		}

		if entry.Scenario != "" {
			sc, err := scenario.Load(entry.Scenario)
			if err != nil {
				return fmt.Errorf("map %d: %w", entry.ID, err)
			}
			if err := sc.CheckSpells(store); err != nil {
				return fmt.Errorf("map %d scenario %s: %w", entry.ID, entry.Scenario, err)
			}
			if err := scenario.Seed(m, sc, guids); err != nil {
				return err
			}
			g.Go(func() error { return scenario.Play(gctx, m, sc) })
		}

		if err := mgr.Add(m); err != nil {
			return err
		}
	}

	g.Go(func() error {
		if err := mgr.Run(gctx); err != nil {
			return fmt.Errorf("world: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func newAsyncSink(cfg config.CombatLogConfig, w combatlog.Writer) *combatlog.AsyncSink {
	return combatlog.NewAsyncSink(w, cfg.BufferSize, cfg.BatchSize, cfg.FlushInterval)
}
