// ordserve serves Open Resource Discovery metadata over HTTP, either straight
// from a local directory or from a git repository kept in sync via webhooks.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/ordserve/internal/cache"
	"git.home.luguber.info/inful/ordserve/internal/config"
	"git.home.luguber.info/inful/ordserve/internal/contentfs"
	"git.home.luguber.info/inful/ordserve/internal/document"
	"git.home.luguber.info/inful/ordserve/internal/events"
	"git.home.luguber.info/inful/ordserve/internal/fetcher"
	"git.home.luguber.info/inful/ordserve/internal/history"
	"git.home.luguber.info/inful/ordserve/internal/localwatch"
	"git.home.luguber.info/inful/ordserve/internal/logfields"
	"git.home.luguber.info/inful/ordserve/internal/metrics"
	"git.home.luguber.info/inful/ordserve/internal/ord"
	"git.home.luguber.info/inful/ordserve/internal/scheduler"
	"git.home.luguber.info/inful/ordserve/internal/server/httpserver"
	"git.home.luguber.info/inful/ordserve/internal/state"
	"git.home.luguber.info/inful/ordserve/internal/status"
)

// version is overridden at build time via -ldflags.
var version = "dev"

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`
	JSON    bool   `help:"Emit JSON logs instead of colored text"`
	Version bool   `help:"Print version and exit"`
}

func main() {
	kong.Parse(&CLI)

	if CLI.Version {
		_, _ = os.Stdout.WriteString("ordserve " + version + "\n")
		return
	}

	// .env is optional; deployment environments set real variables.
	_ = godotenv.Load()

	setupLogging(CLI.Verbose, CLI.JSON)

	if err := run(); err != nil {
		slog.Error("Server exited with error", logfields.Error(err))
		os.Exit(1)
	}
}

func setupLogging(verbose, jsonLogs bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	var handler slog.Handler
	if jsonLogs {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

func run() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return err
	}
	gateTimeout, err := cfg.ParseRequestTimeout()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recorder := metrics.NewPrometheusRecorder(prom.NewRegistry())

	c := cache.New()
	loader := &cache.Loader{
		Cache: c,
		Processor: &ord.Processor{
			BaseURL:    cfg.BaseURL,
			Strategies: ord.StrategiesForAuthMethods(cfg.AuthMethods),
		},
	}

	opts := httpserver.Options{
		Host:           cfg.Host,
		Port:           cfg.Port,
		GateTimeout:    gateTimeout,
		Metrics:        recorder,
		MetricsHandler: recorder.Handler(),
		Version:        version,
	}

	var shutdowns []func()
	defer func() {
		for i := len(shutdowns) - 1; i >= 0; i-- {
			shutdowns[i]()
		}
	}()

	switch cfg.SourceType {
	case config.SourceLocal:
		slog.Info("Serving local documents", logfields.Path(cfg.Directory))
		opts.Service = document.NewService(&document.LocalSource{Dir: cfg.Directory}, c, loader, nil)
		opts.Status = &status.Provider{
			Mode:      "local",
			StartedAt: time.Now().UTC(),
			State:     state.NewManager(nil),
			Cache:     c,
		}

		watcher, werr := localwatch.New(cfg.Directory, loader)
		if werr != nil {
			return werr
		}
		if werr := watcher.Start(ctx); werr != nil {
			return werr
		}
		shutdowns = append(shutdowns, watcher.Stop)

	case config.SourceGitHub:
		slog.Info("Serving git-synced documents",
			logfields.Repository(cfg.GithubRepository), logfields.Branch(cfg.GithubBranch))

		bus := events.NewBus()
		shutdowns = append(shutdowns, bus.Close)

		st := state.NewManager(bus)

		content, cerr := contentfs.NewManager(cfg.DataDir)
		if cerr != nil {
			return cerr
		}
		if v := content.GetCurrentVersion(); v != "" {
			st.SetCurrentVersion(v)
			slog.Info("Found existing content snapshot", logfields.Commit(v))
		}

		var progress io.Writer = io.Discard
		if CLI.Verbose {
			progress = os.Stderr
		}
		gitFetcher := fetcher.New(fetcher.Coordinates{
			APIURL: cfg.GithubAPIURL,
			Owner:  cfg.Owner(),
			Repo:   cfg.Repo(),
			Branch: cfg.GithubBranch,
			Token:  cfg.GithubToken,
		}, cfg.DocumentsSubdirectory, progress)

		store, herr := history.NewStore(cfg.HistoryPath)
		if herr != nil {
			return herr
		}
		shutdowns = append(shutdowns, func() { _ = store.Close() })

		warmer := cache.NewWarmer(loader)
		runner := &scheduler.Runner{
			Fetcher: gitFetcher,
			Content: content,
			Cache:   c,
			Warmer:  warmer,
			State:   st,
			Bus:     bus,
			History: store,
			Metrics: recorder,
			Subpath: cfg.DocumentsSubdirectory,
		}

		sched, serr := scheduler.New(bus, runner, st, cfg.UpdateDelayDuration())
		if serr != nil {
			return serr
		}
		go func() { _ = sched.Run(ctx) }()
		<-sched.Ready()

		if interval, _ := cfg.ParseSyncInterval(); interval > 0 {
			resync, rerr := scheduler.StartResync(bus, interval)
			if rerr != nil {
				return rerr
			}
			shutdowns = append(shutdowns, func() { _ = resync.Stop() })
		}

		source := &document.RemoteSource{Manager: content, Subpath: cfg.DocumentsSubdirectory}
		opts.Service = document.NewService(source, c, loader, warmer)
		opts.Waiter = st
		opts.Scheduler = sched
		opts.WebhookSecret = cfg.WebhookSecret
		opts.Branch = cfg.GithubBranch

		provider := &status.Provider{
			Mode:      "github",
			StartedAt: time.Now().UTC(),
			State:     st,
			Content:   content,
			Cache:     c,
		}
		hub := status.NewHub(provider, bus)
		go func() { _ = hub.Run(ctx) }()
		opts.Status = provider
		opts.Hub = hub
		opts.History = store

		// Populate content before the first request; the readiness gate holds
		// ORD traffic until this settles.
		if rerr := sched.RequestUpdate(ctx, "startup", ""); rerr != nil {
			return rerr
		}
	}

	server := httpserver.New(opts)
	if err := server.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	slog.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}

// configPath treats a missing default config file as "run with defaults", but
// an explicitly named file must exist.
func configPath() string {
	if CLI.Config == "config.yaml" {
		if _, err := os.Stat(CLI.Config); err != nil {
			return ""
		}
	}
	return CLI.Config
}
