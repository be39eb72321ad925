package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/mintfactory/internal/config"
	"github.com/roach88/mintfactory/internal/factory"
	"github.com/roach88/mintfactory/internal/hostrt/local"
	"github.com/roach88/mintfactory/internal/ir"
	"github.com/roach88/mintfactory/internal/proxy"
	"github.com/roach88/mintfactory/internal/registry"
	"github.com/roach88/mintfactory/internal/store"
)

// env is everything a command needs to talk to the local replica.
type env struct {
	cfg     config.Config
	logger  *slog.Logger
	store   *store.Store
	replica *local.Replica
	catalog *registry.Catalog
	self    ir.Principal
}

// loadConfig reads --config (or the defaults) and applies --db.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.Config != "" {
		var err error
		if cfg, err = config.Load(opts.Config); err != nil {
			return config.Config{}, err
		}
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger writes text logs to w at the configured level, or debug with --verbose.
func newLogger(w io.Writer, cfg config.Config, verbose bool) (*slog.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// loadCatalog returns the embedded catalog, or the one in dir when set.
func loadCatalog(dir string) (*registry.Catalog, error) {
	if dir == "" {
		return registry.Default()
	}
	return registry.LoadDir(dir)
}

// openStore opens the configured database without starting a replica.
// Read-only commands use it so they never fund or advance anything.
func openStore(opts *RootOptions) (*store.Store, config.Config, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, config.Config{}, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, cfg, nil
}

// openEnv opens the database, starts the replica and funds the factory
// the first time it is seen. Callers must Close the result.
func openEnv(ctx context.Context, opts *RootOptions, logw io.Writer) (*env, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger, err := newLogger(logw, cfg, opts.Verbose)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to configure logging", err)
	}
	self, err := cfg.SelfID()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}

	cat, err := loadCatalog(cfg.ModulesDir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load modules", err)
	}

	logger.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	replica, err := local.New(ctx, st, local.WithCatalog(cat), local.WithLogger(logger))
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to start replica", err)
	}

	if cfg.InitialCycles > 0 {
		funded, err := replica.FundIfNew(ctx, self, cfg.InitialCycles)
		if err != nil {
			st.Close()
			return nil, WrapExitError(ExitCommandError, "failed to fund factory", err)
		}
		if funded {
			logger.Info("factory funded", "self", self.String(), "cycles", cfg.InitialCycles)
		}
	}

	return &env{cfg: cfg, logger: logger, store: st, replica: replica, catalog: cat, self: self}, nil
}

func (e *env) orchestrator() *factory.Orchestrator {
	return factory.NewOrchestrator(e.replica.Agent(e.self), e.catalog,
		factory.WithCreateCycles(e.cfg.CreateCycles),
		factory.WithHandOff(e.cfg.HandOff),
		factory.WithCleanupOnFailure(e.cfg.CleanupOnFailure),
		factory.WithLogger(e.logger),
	)
}

func (e *env) proxy() *proxy.Proxy {
	return proxy.New(e.replica.Agent(e.self), proxy.NewTable(e.catalog.Modules()),
		proxy.WithVerifyModuleKind(e.cfg.VerifyModuleKind),
		proxy.WithLogger(e.logger),
	)
}

// Close closes the database.
func (e *env) Close() error {
	return e.store.Close()
}

// formatter builds the output formatter for cmd.
func formatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// commandContext returns cmd's context, or Background when it has none.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// parseCaller accepts "anonymous", principal text, or a seed from which a
// principal is derived. Empty means anonymous.
func parseCaller(s string) ir.Principal {
	switch s {
	case "", "anonymous":
		return ir.AnonymousPrincipal
	}
	if p, err := ir.ParsePrincipal(s); err == nil {
		return p
	}
	return ir.DerivePrincipal(s)
}
