// cmd/raga-review/main.go
//
// Entry point for the clinician review console.
//
// Flow:
// 1. Prepare .ragareview in the project directory and load its config
// 2. Load the review queue (seed document or the built-in demo queue)
// 3. Wire the queue to the event router, metrics and notification workers
// 4. Start the HTTP API when enabled
// 5. Run the TUI, or block until a signal in -headless mode

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/kingrea/raga-review/internal/bus"
	"github.com/kingrea/raga-review/internal/config"
	"github.com/kingrea/raga-review/internal/httpapi"
	"github.com/kingrea/raga-review/internal/logbook"
	"github.com/kingrea/raga-review/internal/logging"
	"github.com/kingrea/raga-review/internal/metrics"
	"github.com/kingrea/raga-review/internal/notify"
	"github.com/kingrea/raga-review/internal/panel"
	"github.com/kingrea/raga-review/internal/review"
	"github.com/kingrea/raga-review/internal/seed"
	"github.com/kingrea/raga-review/internal/tui"
)

const shutdownTimeout = 5 * time.Second

func main() {
	projectDir := flag.String("project", "", "path to the project directory (defaults to cwd)")
	seedPath := flag.String("seed", "", "queue document to review (overrides queue.seed)")
	headless := flag.Bool("headless", false, "serve only the HTTP API until interrupted")
	flag.Parse()

	if err := run(*projectDir, *seedPath, *headless); err != nil {
		fmt.Fprintf(os.Stderr, "raga-review: %v\n", err)
		os.Exit(1)
	}
}

func run(projectDir, seedOverride string, headless bool) error {
	project := projectDir
	if project == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determine working directory: %w", err)
		}
		project = cwd
	}
	project, err := filepath.Abs(project)
	if err != nil {
		return fmt.Errorf("resolve project dir: %w", err)
	}
	if err := config.InitDir(project); err != nil {
		return fmt.Errorf("init %s: %w", config.DataDir, err)
	}
	cfg, err := config.NewConfig(project)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var logger *zap.Logger
	if headless {
		logger, err = logging.NewConsole(cfg.Project.LogLevel)
	} else {
		logger, err = logging.New(cfg.LogsDir(), cfg.Project.LogLevel)
	}
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	trail, err := logbook.New(cfg.TrailPath())
	if err != nil {
		return fmt.Errorf("open review trail: %w", err)
	}

	summaries, source, err := loadQueue(cfg, seedOverride)
	if err != nil {
		return err
	}

	router := bus.NewRouter(bus.WithLogger(logger))
	defer router.Close()
	collector := metrics.NewCollector()

	store, err := review.NewStore(summaries,
		review.WithLogger(logger),
		review.WithPublisher(router),
		review.WithPublisher(collector),
		review.WithAuditDateLayout(cfg.Project.Queue.AuditDateLayout),
		review.WithDefaultNote(cfg.Project.Queue.DefaultSendBackNote),
	)
	if err != nil {
		return fmt.Errorf("load queue from %s: %w", source, err)
	}
	collector.TrackPending(store.PendingCount)
	logger.Info("review queue ready",
		zap.String("source", source),
		zap.Int("summaries", store.Len()),
		zap.Int("pending", store.PendingCount()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatcher, err := buildDispatcher(ctx, cfg, router, trail, collector, logger)
	if err != nil {
		return err
	}
	dispatcher.Start(ctx)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		dispatcher.Stop(stopCtx)
	}()

	settings := httpapi.SettingsFromConfig(cfg)
	if headless {
		settings.Enabled = true
	}
	handler := httpapi.NewHandler(store, settings,
		httpapi.WithLogger(logger),
		httpapi.WithRecorder(collector),
		httpapi.WithMetricsHandler(collector.Handler()),
	)
	server := httpapi.NewServer(settings, handler, logger)
	if err := server.Start(ctx); err != nil && !errors.Is(err, httpapi.ErrServerDisabled) {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(stopCtx); err != nil {
			logger.Warn("httpapi: shutdown", zap.Error(err))
		}
	}()

	if headless {
		fmt.Fprintf(os.Stderr, "raga-review: serving %s (ctrl+c to stop)\n", server.BaseURL())
		<-ctx.Done()
		logger.Info("shutting down")
		return nil
	}

	app := tui.NewApp(store,
		tui.WithTrail(trail),
		tui.WithReviewer(cfg.Project.Reviewer.Name, cfg.Project.Reviewer.Title),
		tui.WithPanelOptions(
			panel.WithJournalLimit(cfg.Project.Panel.JournalLimit),
			panel.WithClearNotesOnSwitch(cfg.ClearNotesOnSwitch()),
			panel.WithFeedbackNote(cfg.Project.Panel.FeedbackNote),
		),
	)
	program := tea.NewProgram(app, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		program.Quit()
	}()
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run TUI: %w", err)
	}
	return nil
}

func loadQueue(cfg *config.Config, override string) ([]review.Summary, string, error) {
	path := cfg.SeedPath()
	if override != "" {
		abs, err := filepath.Abs(override)
		if err != nil {
			return nil, "", fmt.Errorf("resolve seed: %w", err)
		}
		path = abs
	}
	if path == "" {
		return seed.Demo(), "demo", nil
	}
	summaries, err := seed.Load(path)
	if err != nil {
		return nil, "", err
	}
	return summaries, path, nil
}

// buildDispatcher subscribes one worker per topic: triage alerts and micro-task
// dispatch go to their configured sinks, every event lands on the review trail.
func buildDispatcher(ctx context.Context, cfg *config.Config, router *bus.Router, trail *logbook.Logbook, recorder notify.Recorder, logger *zap.Logger) (*notify.Dispatcher, error) {
	n := cfg.Project.Notify
	var client notify.PutEventsAPI
	sinkFor := func(name string, sc config.SinkConfig) (notify.Sink, error) {
		if sc.Sink != config.SinkEventBridge {
			return notify.NewLogSink(name, logger), nil
		}
		if client == nil {
			c, err := notify.NewEventBridgeClient(ctx, n.Region)
			if err != nil {
				return nil, err
			}
			client = c
		}
		settings := notify.DefaultBreakerSettings()
		if n.Breaker.MinRequests > 0 {
			settings.MinRequests = n.Breaker.MinRequests
		}
		if n.Breaker.FailureThreshold > 0 {
			settings.FailureThreshold = n.Breaker.FailureThreshold
		}
		if n.Breaker.Timeout > 0 {
			settings.Timeout = n.Breaker.Timeout
		}
		return notify.NewBreakerSink(notify.NewEventBridgeSink(client, n.EventBus, n.Source, logger), settings, logger), nil
	}

	triage, err := sinkFor("triage", n.Triage)
	if err != nil {
		return nil, err
	}
	tasks, err := sinkFor("tasks", n.Tasks)
	if err != nil {
		return nil, err
	}
	opts := []notify.WorkerOption{notify.WithRecorder(recorder), notify.WithWorkerLogger(logger)}
	return notify.NewDispatcher(
		notify.NewWorker(router.Subscribe(bus.TopicTriage), triage, opts...),
		notify.NewWorker(router.Subscribe(bus.TopicTasks), tasks, opts...),
		notify.NewWorker(router.Subscribe(bus.TopicAudit), notify.NewTrailSink(trail), opts...),
	), nil
}
