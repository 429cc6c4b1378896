package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/fangwd/restup/internal/config"
	"github.com/fangwd/restup/internal/engine"
	"github.com/fangwd/restup/internal/fields"
	"github.com/fangwd/restup/internal/logging"
	"github.com/fangwd/restup/internal/schema"
	"github.com/fangwd/restup/internal/store"
)

// runtime is what a command needs to talk to the database.
type runtime struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *store.Store
	engine   *engine.Engine
	closeLog func()
}

// Close shuts the engine down and flushes the log sinks.
func (r *runtime) Close() {
	if r.engine != nil {
		if err := r.engine.Close(); err != nil {
			r.logger.Error("error closing database", "error", err)
		}
	} else if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Error("error closing database", "error", err)
		}
	}
	r.closeLog()
}

// loadConfig applies the global flags to the config file.
func loadConfig(opts *RootOptions, extra config.Overrides) (config.Config, error) {
	overrides := opts.Overrides
	if extra.Listen != "" {
		overrides.Listen = extra.Listen
	}
	cfg, err := config.Load(config.LoadInput{Path: opts.ConfigPath, Overrides: overrides})
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// openStore loads the config, sets up logging and connects to the database.
func openStore(ctx context.Context, cmd *cobra.Command, opts *RootOptions, extra config.Overrides) (*runtime, error) {
	cfg, err := loadConfig(opts, extra)
	if err != nil {
		return nil, err
	}

	level, _ := cfg.Log.SlogLevel()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger, closeLog := logging.Setup(logging.Options{
		Level:  level,
		Writer: cmd.ErrOrStderr(),
		SeqURL: cfg.Log.SeqURL,
	})

	logger.Debug("opening database", "driver", cfg.Driver, "config", cfg.Source)
	st, err := store.Open(ctx, store.Config{Driver: cfg.Driver, DSN: cfg.DSN, MaxConns: cfg.MaxConns})
	if err != nil {
		closeLog()
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return &runtime{cfg: cfg, logger: logger, store: st, closeLog: closeLog}, nil
}

// openEngine is openStore plus the catalog, field handlers and engine.
func openEngine(ctx context.Context, cmd *cobra.Command, opts *RootOptions, extra config.Overrides) (*runtime, error) {
	rt, err := openStore(ctx, cmd, opts, extra)
	if err != nil {
		return nil, err
	}

	catalog, err := loadCatalog(ctx, rt)
	if err != nil {
		rt.Close()
		return nil, WrapExitError(ExitCommandError, "failed to load schema", err)
	}

	registry, err := blobRegistry(rt.cfg, catalog)
	if err != nil {
		rt.Close()
		return nil, WrapExitError(ExitCommandError, "invalid blob configuration", err)
	}
	pipeline := fields.NewPipeline(registry,
		fields.WithMaxRunning(rt.cfg.MaxRunning),
		fields.WithLogger(rt.logger),
	)

	rt.engine = engine.New(rt.store, catalog,
		engine.WithBatchBytes(rt.cfg.BatchBytes),
		engine.WithFields(pipeline),
		engine.WithLogger(rt.logger),
	)
	rt.logger.Debug("engine ready", "tables", len(catalog.Tables()))
	return rt, nil
}

// loadCatalog reads the configured schema file, or introspects the
// database when none is set.
func loadCatalog(ctx context.Context, rt *runtime) (*schema.Catalog, error) {
	if rt.cfg.Schema != "" {
		rt.logger.Debug("loading schema", "path", rt.cfg.Schema)
		return schema.LoadFile(rt.cfg.Schema)
	}
	doc, err := rt.store.Introspect(ctx)
	if err != nil {
		return nil, err
	}
	return schema.NewCatalog(doc)
}

// blobRegistry binds the configured blob fields, which must exist in the
// catalog.
func blobRegistry(cfg config.Config, catalog *schema.Catalog) (fields.Registry, error) {
	registry := fields.Registry{}
	for _, b := range cfg.Blobs {
		t, ok := catalog.Table(b.Table)
		if !ok {
			return nil, fmt.Errorf("blob table %q does not exist", b.Table)
		}
		if !t.HasColumn(b.Field) {
			return nil, fmt.Errorf("blob field %s.%s does not exist", b.Table, b.Field)
		}
		registry.Register(b.Table, b.Field, fields.BlobStore{Dir: b.Dir, KeyColumn: b.KeyColumn})
	}
	return registry, nil
}

// contextOf returns the command context, or Background outside Execute.
func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
