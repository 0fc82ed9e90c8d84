// Command taskcal renders a weekly calendar of events and tasks and keeps
// an e-paper panel (or just the HTTP preview) up to date on a schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"go.uber.org/automaxprocs/maxprocs"

	"taskcal/internal/battery"
	"taskcal/internal/config"
	"taskcal/internal/epd"
	"taskcal/internal/ics"
	applog "taskcal/internal/log"
	"taskcal/internal/style"
	"taskcal/internal/ticktick"
	"taskcal/internal/web"
	"taskcal/internal/weekview"
)

const version = "0.1.0-dev"

// refreshTimeout bounds one full pass: every feed, the render, and a
// panel refresh that alone takes ~35s.
const refreshTimeout = 2 * time.Minute

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	renderOnly string
	verbose    bool
}

func parseFlags() flagConfig {
	var fl flagConfig

	flag.StringVar(&fl.configPath, "config", "/etc/taskcal/config.yaml", "Path to config file")
	flag.StringVar(&fl.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&fl.once, "once", false, "Run one fetch+render(+display) pass and exit")
	flag.StringVar(&fl.renderOnly, "render-only", "", "Render one pass to this PNG file and exit; never touches hardware")
	flag.BoolVar(&fl.verbose, "verbose", false, "Enable debug logging")

	flag.Parse()

	return fl
}

func main() {
	fl := parseFlags()
	logger := applog.New(fl.verbose)

	if err := run(fl, logger); err != nil {
		logger.WithError(err).Error("taskcal failed")
		os.Exit(1)
	}
}

func run(fl flagConfig, logger *logrus.Logger) error {
	logger.WithField("version", version).Info("taskcal starting")

	if _, err := maxprocs.Set(maxprocs.Logger(logger.Debugf)); err != nil {
		logger.WithError(err).Warn("maxprocs set failed")
	}

	cfg, err := config.Load(fl.configPath)
	if err != nil {
		if cfg == nil {
			return fmt.Errorf("load config %s: %w", fl.configPath, err)
		}
		// First run where writing the default file failed; the in-memory
		// defaults still work.
		logger.WithError(err).Warn("could not write default config, continuing with defaults")
	}
	if fl.listen != "" {
		cfg.Listen = fl.listen
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}

	creds, err := config.LoadCredentials()
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"listen":       cfg.Listen,
		"timezone":     cfg.Timezone,
		"refresh_cron": cfg.RefreshCron,
		"canvas":       fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"display":      cfg.Display,
		"ics_count":    len(cfg.ICS),
		"ticktick":     cfg.TickTickEnabled,
	}).Info("effective config")

	gen, err := weekview.New(loc, style.Default(), applog.Component(logger, "weekview"))
	if err != nil {
		return fmt.Errorf("weekview: %w", err)
	}

	pl := &pipeline{
		cfg:     cfg,
		loc:     loc,
		gen:     gen,
		fetcher: ics.NewFetcher(cfg.CacheDir, applog.Component(logger, "ics")),
		sources: icsSources(cfg),
		log:     applog.Component(logger, "pipeline"),
	}

	if cfg.TickTickEnabled {
		if creds.TickTickReady() {
			pl.tasks = ticktick.New(ticktick.Config{
				AccessToken: creds.TickTickAccessToken,
				ProjectID:   creds.TickTickProjectID,
				BaseURL:     creds.TickTickBaseURL,
			}, nil, applog.Component(logger, "ticktick"))
		} else {
			logger.Warn("ticktick enabled but TICKTICK_ACCESS_TOKEN or TICKTICK_PROJECT_ID is unset, skipping task source")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig.String()).Info("signal received, shutting down")
		cancel()
	}()

	if fl.renderOnly != "" {
		passCtx, cancelPass := context.WithTimeout(ctx, refreshTimeout)
		defer cancelPass()
		if err := pl.renderToFile(passCtx, fl.renderOnly); err != nil {
			return err
		}
		logger.WithField("path", fl.renderOnly).Info("rendered")
		return nil
	}

	if cfg.Display == config.DisplayEPD {
		panel, err := epd.Open(ctx, applog.Component(logger, "epd"))
		if err != nil {
			return fmt.Errorf("open panel: %w", err)
		}
		pl.panel = panel
	}

	if fl.once {
		passCtx, cancelPass := context.WithTimeout(ctx, refreshTimeout)
		defer cancelPass()
		err := pl.refresh(passCtx)
		closePanel(pl, logger)
		return err
	}

	// Requests from cron and the API collapse into one pending pass.
	refreshCh := make(chan struct{}, 1)
	trigger := func() {
		select {
		case refreshCh <- struct{}{}:
		default:
		}
	}

	srv := web.NewServer(cfg, pl, battery.Default(), trigger, applog.Component(logger, "web"))
	pl.srv = srv

	sched := cron.New()
	if _, err := sched.AddFunc(cfg.RefreshCron, trigger); err != nil {
		return fmt.Errorf("refresh_cron %q: %w", cfg.RefreshCron, err)
	}
	sched.Start()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-refreshCh:
				passCtx, cancelPass := context.WithTimeout(ctx, refreshTimeout)
				if err := pl.refresh(passCtx); err != nil {
					pl.log.WithError(err).Error("refresh pass failed")
				}
				cancelPass()
			}
		}
	}()

	trigger()

	err = srv.Serve(ctx)
	cancel()
	sched.Stop()
	wg.Wait()
	closePanel(pl, logger)

	logger.Info("taskcal exiting")
	return err
}

func icsSources(cfg *config.Config) []ics.Source {
	sources := make([]ics.Source, 0, len(cfg.ICS))
	for _, src := range cfg.ICS {
		sources = append(sources, ics.Source{ID: src.ID, Name: src.Name, URL: src.URL})
	}
	return sources
}

// closePanel parks the panel in deep sleep before releasing the bus.
func closePanel(pl *pipeline, logger *logrus.Logger) {
	if pl.panel == nil {
		return
	}
	if err := pl.panel.Sleep(); err != nil {
		logger.WithError(err).Warn("panel sleep failed")
	}
	if err := pl.panel.Close(); err != nil {
		logger.WithError(err).Warn("panel close failed")
	}
	pl.panel = nil
}
