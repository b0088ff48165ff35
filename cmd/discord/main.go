// cmd/discord/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/modkit/internal/admin"
	"github.com/keshon/modkit/internal/config"
	"github.com/keshon/modkit/internal/datastore"
	"github.com/keshon/modkit/internal/discord"
	xlog "github.com/keshon/modkit/internal/log"
	"github.com/keshon/modkit/internal/metrics"
	"github.com/keshon/modkit/internal/storage"
	"github.com/keshon/modkit/pkg/cmd"
	"github.com/keshon/modkit/pkg/cooldown"
	"github.com/keshon/modkit/pkg/events"
	"github.com/keshon/modkit/pkg/jobmgr"
	"github.com/keshon/modkit/pkg/module"
	"github.com/keshon/modkit/pkg/registrar"
	"github.com/keshon/modkit/pkg/retrylimit"

	_ "github.com/keshon/modkit/internal/modules/core"
)

const (
	shutdownTimeout = 15 * time.Second
	resyncQuiet     = 2 * time.Second
)

func main() {
	if err := run(); err != nil {
		base := xlog.Base()
		base.Fatal().Err(err).Str("event", "main.exit").Msg("bot stopped with error")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	xlog.Configure(xlog.Config{
		Level:   cfg.LogLevel,
		Service: "modkit",
		Version: config.Version,
		Console: cfg.LogPretty,
	})
	logger := xlog.WithComponent("main")
	logger.Info().Str("event", "main.starting").Str("host_version", cfg.HostVersion).Msg("starting bot")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dsCfg := datastore.DefaultConfig(cfg.StoragePath)
	dsCfg.Log = xlog.WithComponent("datastore")
	ds, err := datastore.Open(dsCfg)
	if err != nil {
		return fmt.Errorf("open datastore: %w", err)
	}
	defer func() {
		if err := ds.Close(); err != nil {
			logger.Error().Err(err).Str("event", "main.datastore_close_failed").Msg("final datastore save failed")
		}
	}()
	store := storage.New(ds, xlog.WithComponent("storage"))

	bus := events.NewBus(metrics.IncBusDrop)
	defer bus.Close()

	registry := cmd.NewRegistry()
	cooldowns := cooldown.NewStore()
	pipeline, err := newPipeline(cfg, registry, store, cooldowns, bus)
	if err != nil {
		return err
	}

	session, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		return err
	}
	reg := registrar.New(registry, discord.NewPlatform(session, ""),
		registrar.WithHashCache(store),
		registrar.WithLimiter(retrylimit.NewAdaptiveLimiter(retrylimit.DefaultLimiterConfig())),
		registrar.WithPublisher(bus),
		registrar.WithLogger(xlog.WithComponent("registrar")),
		registrar.WithBlacklist(cfg.IsGuildBlacklisted),
	)

	resolver, err := module.NewResolver(module.Default, cfg.HostVersion, xlog.WithComponent("resolver"))
	if err != nil {
		return err
	}
	var resolveOpts []module.ResolveOption
	if cfg.SkipVersionCheck {
		resolveOpts = append(resolveOpts, module.WithoutVersionCheck())
	}
	mgr := module.NewManager(registry, resolver,
		module.WithPublisher(bus),
		module.WithLogger(xlog.WithComponent("modules")),
		module.WithHost(store),
	)

	jobs := jobmgr.NewManager(ctx, xlog.WithComponent("jobs"))
	executed, unsubExecuted := bus.Subscribe(events.TopicCommandExecute)
	defer unsubExecuted()

	startJobs(jobs, logger,
		job{"metrics", func(ctx context.Context) error { return metrics.Run(ctx, bus) }},
		job{"history", func(ctx context.Context) error { return store.RecordHistory(ctx, executed) }},
		job{"datastore-autosave", ds.Run},
		job{"cooldown-sweeper", func(ctx context.Context) error {
			cooldown.RunSweeper(ctx, cooldowns, cfg.CooldownSweepInterval, xlog.WithComponent("cooldown"))
			return nil
		}},
	)

	mods, err := resolver.ResolveDir(ctx, cfg.ModulesDir, resolveOpts...)
	if err != nil {
		logger.Warn().Err(err).Str("event", "main.resolve_partial").Msg("some modules could not be resolved")
	}
	logReports(logger, mgr.StartModules(ctx, mods))
	logReports(logger, mgr.LoadModules(ctx, mods))

	var (
		changes    <-chan any
		resyncOnce sync.Once
	)
	if cfg.AutoResync {
		ch, unsub := bus.Subscribe(events.TopicModuleStateChange)
		defer unsub()
		changes = ch
	}
	syncGuilds := func() []string { return cfg.SyncGuildIDs }
	bot := discord.NewBot(session, pipeline,
		discord.WithPrefix(cfg.Prefix),
		discord.WithLogger(xlog.WithComponent("discord")),
		discord.WithBlacklist(cfg.IsGuildBlacklisted),
		discord.WithDeveloper(cfg.DeveloperID),
		discord.OnReady(func(ctx context.Context, _ []string) {
			guilds := slices.Clone(cfg.SyncGuildIDs)
			for _, g := range reg.ScopedGuilds() {
				if !slices.Contains(guilds, g) {
					guilds = append(guilds, g)
				}
			}
			if _, err := reg.SyncAll(ctx, cfg.SyncGlobal, guilds); err != nil {
				logger.Error().Err(err).Str("event", "main.initial_sync_failed").Msg("initial command sync failed")
			}
			if changes == nil {
				return
			}
			// Later module changes are pushed once the application id is known.
			resyncOnce.Do(func() {
				startJobs(jobs, logger, job{"registrar-resync", func(ctx context.Context) error {
					return reg.Resync(ctx, changes, resyncQuiet, cfg.SyncGlobal, syncGuilds)
				}})
			})
		}),
	)

	background := []job{{"discord", func(ctx context.Context) error {
		defer stop()
		return bot.Run(ctx)
	}}}
	if cfg.WatchModules {
		w := module.NewWatcher(mgr, cfg.ModulesDir, xlog.WithComponent("watcher"), resolveOpts...)
		background = append(background, job{"module-watcher", w.Run})
	}
	if cfg.AdminAddr != "" {
		adminCfg := admin.DefaultConfig(cfg.AdminAddr)
		adminCfg.Log = xlog.WithComponent("admin")
		background = append(background, job{"admin", admin.New(adminCfg, mgr).Run})
	}
	startJobs(jobs, logger, background...)

	<-ctx.Done()
	logger.Info().Str("event", "main.shutdown").Msg("shutdown signal received, unloading modules")

	unloadCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logReports(logger, mgr.UnloadAll(unloadCtx, "shutdown"))

	jobs.StopAll()
	err = jobs.Wait()
	logger.Info().Str("event", "main.stopped").Msg("bot exited")
	return err
}

func newPipeline(cfg *config.Config, registry *cmd.Registry, store *storage.Storage, cooldowns *cooldown.Store, bus events.Publisher) (*cmd.Pipeline, error) {
	chain, err := cmd.NewPreconditionChain(
		cmd.GuildOnly(),
		cmd.RequirePermissions(),
		cmd.GroupAccess(store),
		cooldown.Precondition(cooldowns),
	)
	if err != nil {
		return nil, fmt.Errorf("precondition chain: %w", err)
	}
	halts := cmd.NewHaltChain()
	if err := halts.Register(discord.ResponderID, discord.Responder(xlog.WithComponent("discord"))); err != nil {
		return nil, err
	}
	return cmd.NewPipeline(registry,
		cmd.WithPreconditions(chain),
		cmd.WithHalts(halts),
		cmd.WithPublisher(bus),
		cmd.WithLogger(xlog.WithComponent("pipeline")),
		cmd.WithUnhandledWarning(cfg.WarnUnhandledHalts),
		cmd.WithMiddleware(discord.Typing()),
	), nil
}

type job struct {
	name string
	run  jobmgr.Runner
}

func startJobs(jobs *jobmgr.Manager, logger zerolog.Logger, list ...job) {
	for _, j := range list {
		if err := jobs.StartAsync(j.name, j.run); err != nil && !errors.Is(err, jobmgr.ErrStopped) {
			logger.Error().Err(err).Str("event", "main.job_start_failed").Str("job", j.name).Msg("could not start job")
		}
	}
}

func logReports(logger zerolog.Logger, reports []module.Report) {
	for _, r := range reports {
		ev := logger.Info()
		if !r.OK() {
			ev = logger.Error().Err(r.Err)
		}
		ev.Str("event", "main.module_"+string(r.Stage)).
			Str("module", r.Name).
			Str("module_id", r.ID).
			Str("state", r.State.String()).
			Bool("noop", r.Noop).
			Int("rejected_commands", len(r.Rejected)).
			Msg("module lifecycle step")
	}
}
