package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/katelyatv/internal/shared"
	"github.com/desertthunder/katelyatv/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"
)

// OpenFunc opens a storage backend by name; an empty name selects the configured one.
type OpenFunc func(ctx context.Context, kind string) (storage.Backend, io.Closer, error)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	input      io.Reader
	registry   *prometheus.Registry
	metrics    *storage.Metrics
	open       OpenFunc
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	Input      io.Reader
	Registry   *prometheus.Registry
	Open       OpenFunc // Defaults to [storage.New] with the runner's config
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
		opts.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	r := &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		input:      opts.Input,
		registry:   opts.Registry,
		open:       opts.Open,
	}

	metrics, err := storage.NewMetrics(opts.Registry)
	if err != nil {
		r.logger.Warn("storage metrics disabled", "error", err)
	}
	r.metrics = metrics

	if r.open == nil {
		r.open = func(ctx context.Context, kind string) (storage.Backend, io.Closer, error) {
			return storage.New(ctx, r.config, kind, storage.OptionsFromConfig(r.config, r.logger, r.metrics))
		}
	}
	return r
}

// SetLogger replaces the runner's logger, e.g. to keep log lines out of the TUI.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, userCommand, migrateCommand, exportCommand, importCommand, setupCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig reads the config file when present, then applies the environment and validates.
func (r *Runner) loadConfig(path string, getenv func(string) string) error {
	config := shared.DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		if config, err = shared.LoadConfig(path); err != nil {
			return err
		}
		r.logger.Debug("loaded config", "path", path)
	}

	if err := config.ApplyEnv(getenv); err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return err
	}

	r.config = config
	r.configPath = path
	shared.SetLogLevel(r.logger, shared.ParseLogLevel(config.Log.Level))
	return nil
}

// openStorage opens a backend and returns a release func that logs close failures.
func (r *Runner) openStorage(ctx context.Context, kind string) (storage.Backend, func(), error) {
	backend, closer, err := r.open(ctx, kind)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}
	release := func() {
		if closer == nil {
			return
		}
		if err := closer.Close(); err != nil {
			r.logger.Warn("failed to close storage", "error", err)
		}
	}
	return backend, release, nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
