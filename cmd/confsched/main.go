package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"confsched/internal/config"
	"confsched/internal/export"
	"confsched/internal/fetch"
	appLog "confsched/internal/log"
	"confsched/internal/schedule"
	"confsched/internal/source"
	"confsched/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	watch      string
	outputDir  string
	online     bool
	failFast   bool
	stats      bool
	git        bool
	debug      bool
}

func main() {
	appLog.Info("confsched starting", "version", "0.1.0-dev")

	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI overrides.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.watch != "" {
		conf.Watch = flags.watch
	}
	if flags.outputDir != "" {
		conf.OutputDir = flags.outputDir
	}

	appLog.Info("effective config",
		"acronym", conf.Conference.Acronym,
		"days", conf.Conference.Days,
		"timezone", conf.Conference.Timezone,
		"sources", len(conf.Sources),
		"output_dir", conf.OutputDir,
		"online", flags.online,
		"fail_fast", flags.failFast,
		"watch", conf.Watch,
		"listen", conf.Listen,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	var server *web.Server
	if conf.Listen != "" {
		server = web.NewServer(conf)
		startWebServer(ctx, conf.Listen, server)
	}

	run := func() error {
		sched, err := runPipeline(ctx, conf, flags)
		if err != nil {
			return err
		}
		if server != nil {
			server.SetSchedule(sched)
		}
		return nil
	}

	if conf.Watch == "" {
		if err := run(); err != nil {
			appLog.Error("pipeline failed", err)
			os.Exit(1)
		}
		appLog.Info("confsched done")
		return
	}

	// Watch mode: run once now, then on the cron schedule until cancelled.
	if err := run(); err != nil {
		appLog.Error("pipeline failed", err)
		if flags.failFast {
			os.Exit(1)
		}
	}

	c := cron.New()
	if _, err := c.AddFunc(conf.Watch, func() {
		if err := run(); err != nil {
			appLog.Error("scheduled pipeline run failed", err)
		}
	}); err != nil {
		appLog.Error("invalid watch cron spec", err, "watch", conf.Watch)
		os.Exit(1)
	}
	appLog.Info("watch mode active", "cron", conf.Watch)
	c.Start()

	<-ctx.Done()
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
	}
	appLog.Info("confsched exiting")
}

// runPipeline builds the aggregate schedule from all configured sources and
// writes every export. Per-source failures are skipped unless --fail is set;
// a source that is simply not yet published (404) is never an error.
func runPipeline(ctx context.Context, conf *config.Config, flags flagConfig) (*schedule.Schedule, error) {
	tmpl, err := conf.Conference.Template()
	if err != nil {
		return nil, err
	}
	sched, err := schedule.FromTemplate(tmpl)
	if err != nil {
		return nil, err
	}
	sched.Conference.BaseURL = baseURLFor(conf)
	sched.AddRooms(conf.Channels)
	sched.AddRooms(conf.Rooms)

	ids, err := schedule.LoadIDAllocator(conf.IDPool, conf.IDPoolBase)
	if err != nil {
		return nil, fmt.Errorf("load id pool: %w", err)
	}

	fetcher := fetch.NewFetcher(conf.CacheDir, flags.online)

	var merged []string
	for _, sc := range conf.Sources {
		src, err := source.New(sc.Kind, source.Spec{
			Name:  sc.Name,
			URL:   sc.URL,
			Token: sc.Token(),
		}, tmpl)
		if err != nil {
			return nil, err
		}

		sub, err := src.Load(ctx, fetcher)
		if err != nil {
			if errors.Is(err, fetch.ErrNotAvailable) {
				appLog.Info("schedule not yet published, skipping", "source", sc.Name)
				continue
			}
			if flags.failFast {
				return nil, fmt.Errorf("source %s: %w", sc.Name, err)
			}
			appLog.Error("source load failed, skipping", err, "source", sc.Name)
			continue
		}

		report, err := sched.AddEventsFrom(sub, sc.Name, sc.MergeOptions())
		if err != nil {
			if flags.failFast {
				return nil, fmt.Errorf("merge %s: %w", sc.Name, err)
			}
			appLog.Error("merge failed, skipping source", err, "source", sc.Name)
			continue
		}
		merged = append(merged, sc.Name)
		if sub.Version != "" {
			sched.Version += "; " + sc.Name
		} else {
			appLog.Warn("source schedule has no version", "source", sc.Name)
		}
		appLog.Info("source merged",
			"source", sc.Name,
			"events", report.EventsAdded,
			"rejected", len(report.Rejected),
			"skipped_days", report.SkippedDays,
			"day_offset", report.DayOffset,
		)
	}

	// Stats mode is inspect-only: print the summary and stop before the
	// harmonization pass, the id-pool save and any export.
	if flags.stats {
		sched.LogStats("everything")
		return sched, nil
	}

	// Post-merge pass: mint stable ids for events that arrived without one
	// and fold types/languages onto the controlled vocabularies.
	sched.ForeachEvent(func(ev *schedule.Event) {
		if ev.ID == 0 && ev.GUID != "" {
			ev.ID = ids.ID(ev.GUID)
		}
		schedule.HarmonizeEventType(ev)
		schedule.HarmonizeLanguage(ev)
	})
	if err := ids.Save(conf.IDPool); err != nil {
		appLog.Error("failed to persist id pool", err, "path", conf.IDPool)
	}

	if err := writeExports(conf, sched, merged); err != nil {
		return nil, err
	}

	if flags.git {
		// Committing and pushing the output checkout is left to the
		// surrounding deployment; the flag is accepted so existing invocations
		// keep working.
		appLog.Info("git snapshotting is handled externally", "dir", conf.OutputDir, "version", sched.Version)
	}

	return sched, nil
}

func writeExports(conf *config.Config, sched *schedule.Schedule, merged []string) error {
	writer, err := export.NewWriter(conf.OutputDir, conf.SchemaURL, conf.SchemaLocation, conf.ValidationFilter)
	if err != nil {
		return err
	}

	if err := writer.WriteSchedule("everything", sched); err != nil {
		return err
	}

	if len(conf.Channels) > 0 {
		refs := make([]schedule.RoomRef, 0, len(conf.Channels))
		for _, room := range conf.Channels {
			refs = append(refs, schedule.RoomRecord(room))
		}
		if err := writer.WriteSchedule("channels", sched.Filter("channels", refs)); err != nil {
			return err
		}
	}

	if err := writer.WriteEvents(sched); err != nil {
		return err
	}
	return writer.WriteMeta(sched, merged)
}

func baseURLFor(conf *config.Config) string {
	if conf.Listen == "" {
		return ""
	}
	return "http://" + conf.Listen + "/"
}

func startWebServer(ctx context.Context, listen string, server *web.Server) {
	httpServer := &http.Server{
		Addr:              listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("HTTP server failed", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "confsched.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.watch, "watch", "", "Cron spec for repeated runs (overrides config if set)")
	flag.BoolVar(&cfg.online, "online", false, "Fetch sources from the network instead of serving the local cache")
	flag.BoolVar(&cfg.failFast, "fail", false, "Abort the run when any source fails instead of skipping it")
	flag.BoolVar(&cfg.stats, "stats", false, "Log merge statistics and stop without writing exports")
	flag.BoolVar(&cfg.git, "git", false, "Accepted for compatibility; snapshotting the output directory is external")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	cfg.outputDir = flag.Arg(0)
	return cfg
}
