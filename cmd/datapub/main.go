package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/google/uuid"
	prom "github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/datapub/internal/config"
	"git.home.luguber.info/inful/datapub/internal/dataset"
	"git.home.luguber.info/inful/datapub/internal/errstore"
	"git.home.luguber.info/inful/datapub/internal/forge"
	"git.home.luguber.info/inful/datapub/internal/jobs"
	"git.home.luguber.info/inful/datapub/internal/logfields"
	"git.home.luguber.info/inful/datapub/internal/metrics"
	"git.home.luguber.info/inful/datapub/internal/notify"
	"git.home.luguber.info/inful/datapub/internal/publish"
	"git.home.luguber.info/inful/datapub/internal/retry"
	"git.home.luguber.info/inful/datapub/internal/tableschema"
)

var version = "dev"

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Serve struct {
		DataDir string `short:"d" help:"Directory for dataset records" default:"./data"`
	} `cmd:"" help:"Run the dataset publishing daemon"`

	Publish struct {
		Request string `arg:"" help:"Mutation job request file (YAML)"`
		DataDir string `short:"d" help:"Directory for dataset records" default:"./data"`
	} `cmd:"" help:"Run a single mutation job from a request file"`

	Version struct{} `cmd:"" help:"Print version information"`
}

func main() {
	ctx := kong.Parse(&CLI)

	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)
	if CLI.Verbose {
		level.Set(slog.LevelDebug)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	switch ctx.Command() {
	case "serve":
		cfg, err := config.Load(CLI.Config)
		if err != nil {
			slog.Error("Failed to load configuration", logfields.Error(err))
			os.Exit(1)
		}
		applyLogLevel(level, cfg)
		if err := runServe(cfg, level); err != nil {
			slog.Error("Serve failed", logfields.Error(err))
			os.Exit(1)
		}
	case "publish <request>":
		cfg, err := config.Load(CLI.Config)
		if err != nil {
			slog.Error("Failed to load configuration", logfields.Error(err))
			os.Exit(1)
		}
		applyLogLevel(level, cfg)
		if err := runPublish(cfg); err != nil {
			slog.Error("Publish failed", logfields.Error(err))
			os.Exit(1)
		}
	case "version":
		fmt.Printf("datapub %s\n", version)
	default:
		slog.Error("Unknown command", "command", ctx.Command())
		os.Exit(1)
	}
}

func applyLogLevel(level *slog.LevelVar, cfg *config.Config) {
	if CLI.Verbose {
		return
	}
	level.Set(parseLevel(cfg.Logging.Level))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildForgeStore(cfg *config.Config) (forge.Store, error) {
	switch cfg.Forge.Type {
	case config.ForgeGitHub:
		return forge.NewGitHubStore(cfg.Forge)
	case config.ForgeGit:
		return forge.NewGitStore(cfg.Forge)
	default:
		return nil, fmt.Errorf("unknown forge type %q", cfg.Forge.Type)
	}
}

func buildIssuer(cfg *config.Config) publish.CertificateIssuer {
	if !cfg.Certificates.Enabled {
		return nil
	}
	return publish.NewHTTPCertificateIssuer(cfg.Certificates.URL)
}

func buildWorker(cfg *config.Config, dataDir string, deps *serveDeps) (*jobs.Worker, error) {
	store, err := buildForgeStore(cfg)
	if err != nil {
		return nil, err
	}

	errors, err := errstore.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open error store: %w", err)
	}

	deps.errors = errors
	worker := jobs.NewWorker(jobs.WorkerOptions{
		Datasets: dataset.NewFileStore(osfs.New(dataDir)),
		Store:    store,
		Resolver: tableschema.NewResolver(),
		Schemas:  dataset.NewSchemaRegistry(),
		Issuer:   buildIssuer(cfg),
		Pending:  deps.pending,
		Notifier: deps.notifier,
		Errors:   errors,
		Recorder: deps.recorder,
		PollPolicy: retry.NewPolicy(cfg.Retry.Backoff,
			cfg.Retry.InitialDelayOr(cfg.Build.Interval()),
			cfg.Retry.MaxDelayOr(cfg.Build.Interval()),
			cfg.Retry.MaxRetries),
		PollDeadline: cfg.Build.Deadline(),
	})
	return worker, nil
}

// serveDeps holds the long-lived collaborators the daemon must shut down.
type serveDeps struct {
	pending  *publish.PendingRegistry
	notifier jobs.Notifier
	nats     *notify.NATSClient
	errors   *errstore.SQLiteStore
	recorder metrics.Recorder
}

func runServe(cfg *config.Config, level *slog.LevelVar) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps := &serveDeps{
		pending:  publish.NewPendingRegistry(),
		notifier: notify.Noop{},
		recorder: metrics.NoopRecorder{},
	}

	if cfg.NATS.Enabled {
		nats, err := notify.NewNATSClient(cfg.NATS)
		if err != nil {
			return err
		}
		defer nats.Close()
		deps.nats = nats
		deps.notifier = nats
	}

	if cfg.Metrics.Enabled {
		recorder := metrics.NewPrometheusRecorder(prom.NewRegistry())
		deps.recorder = recorder

		mux := http.NewServeMux()
		mux.Handle("/metrics", recorder.Handler())
		go func() {
			slog.Info("Metrics listener started", "listen", cfg.Metrics.Listen)
			if err := http.ListenAndServe(cfg.Metrics.Listen, mux); err != nil {
				slog.Error("Metrics listener failed", logfields.Error(err))
			}
		}()
	}

	worker, err := buildWorker(cfg, CLI.Serve.DataDir, deps)
	if err != nil {
		return err
	}
	defer deps.errors.Close()

	queue := jobs.NewQueue(worker, cfg.Workers.QueueSize, cfg.Workers.Count, deps.recorder)
	queue.Start(ctx)
	defer queue.Stop()

	sweeper, err := publish.NewSweeper(deps.pending, cfg.Build.SweepInterval())
	if err != nil {
		return err
	}
	sweeper.Start()
	defer func() {
		if err := sweeper.Stop(); err != nil {
			slog.Warn("Sweeper shutdown failed", logfields.Error(err))
		}
	}()

	if deps.nats != nil {
		cc, err := deps.nats.SubscribeJobs(ctx, queue.Enqueue)
		if err != nil {
			return err
		}
		defer cc.Stop()
	}

	go func() {
		err := config.Watch(ctx, CLI.Config, func(next *config.Config) {
			level.Set(parseLevel(next.Logging.Level))
			slog.Info("Configuration reloaded", "log_level", next.Logging.Level)
		})
		if err != nil {
			slog.Warn("Config watcher stopped", logfields.Error(err))
		}
	}()

	slog.Info("datapub daemon started",
		"version", version,
		"forge", string(cfg.Forge.Type),
		"workers", cfg.Workers.Count)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	slog.Info("Shutting down")
	cancel()
	return nil
}

// jobRequest is the YAML shape of a one-shot publish request.
type jobRequest struct {
	DatasetID string                   `yaml:"dataset_id"`
	UserID    string                   `yaml:"user_id,omitempty"`
	Changes   dataset.AttributeChanges `yaml:"changes,omitempty"`
	FileOps   []dataset.FileSpec       `yaml:"file_ops,omitempty"`
	Channel   string                   `yaml:"channel,omitempty"`
}

func runPublish(cfg *config.Config) error {
	data, err := os.ReadFile(CLI.Publish.Request)
	if err != nil {
		return fmt.Errorf("read request file: %w", err)
	}

	var req jobRequest
	if err := yaml.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("parse request file: %w", err)
	}
	if req.DatasetID == "" {
		return fmt.Errorf("request must name a dataset_id")
	}

	deps := &serveDeps{
		pending:  publish.NewPendingRegistry(),
		notifier: notify.Noop{},
		recorder: metrics.NoopRecorder{},
	}
	if cfg.NATS.Enabled && req.Channel != "" {
		nats, err := notify.NewNATSClient(cfg.NATS)
		if err != nil {
			return err
		}
		defer nats.Close()
		deps.notifier = nats
	}

	worker, err := buildWorker(cfg, CLI.Publish.DataDir, deps)
	if err != nil {
		return err
	}
	defer deps.errors.Close()

	job := &jobs.MutationJob{
		ID:        uuid.NewString(),
		DatasetID: req.DatasetID,
		UserID:    req.UserID,
		Changes:   req.Changes,
		FileOps:   req.FileOps,
		Channel:   req.Channel,
	}

	slog.Info("Running mutation job",
		logfields.JobID(job.ID), logfields.DatasetID(job.DatasetID))
	if err := worker.Apply(context.Background(), job); err != nil {
		return fmt.Errorf("job %s failed: %w", job.ID, err)
	}
	slog.Info("Mutation job completed", logfields.JobID(job.ID))
	return nil
}
