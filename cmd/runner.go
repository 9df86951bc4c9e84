package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tandem/internal/services"
	"github.com/desertthunder/tandem/internal/shared"
	"github.com/desertthunder/tandem/internal/store"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config      *shared.Config
	configPath  string
	logger      *log.Logger
	output      io.Writer
	lookupEnv   func(string) (string, bool)
	openStore   func(context.Context, *shared.Config) (store.Store, error)
	newService  func(*shared.Config) (services.OAuthService, error)
	openBrowser func(string) error
}

// RunnerOpts contains configuration options for creating a Runner.
//
// The factories default to the real store, Spotify client and browser.
type RunnerOpts struct {
	Config      *shared.Config
	ConfigPath  string
	Logger      *log.Logger
	Output      io.Writer
	LookupEnv   func(string) (string, bool)
	OpenStore   func(context.Context, *shared.Config) (store.Store, error)
	NewService  func(*shared.Config) (services.OAuthService, error)
	OpenBrowser func(string) error
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
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}
	if opts.OpenStore == nil {
		opts.OpenStore = store.Open
	}
	if opts.NewService == nil {
		opts.NewService = newSpotifyService
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}

	return &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		logger:      opts.Logger,
		output:      opts.Output,
		lookupEnv:   opts.LookupEnv,
		openStore:   opts.OpenStore,
		newService:  opts.NewService,
		openBrowser: opts.OpenBrowser,
	}
}

func newSpotifyService(cfg *shared.Config) (services.OAuthService, error) {
	if err := cfg.ValidateSpotify(); err != nil {
		return nil, err
	}
	svc, err := services.NewSpotifyServiceFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, workerCommand, serveCommand, registerCommand, credentialsCommand, statusCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the configuration named by --config, applies environment overrides and sets the log level.
//
// A missing config file is not an error: the embedded defaults are used so setup can create it.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")

	config := shared.DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		if config, err = shared.LoadConfig(path); err != nil {
			return ctx, err
		}
	} else {
		r.logger.Debug("config file not found, using defaults", "path", path)
	}

	if err := config.ApplyEnv(r.lookupEnv); err != nil {
		return ctx, err
	}

	level := shared.ParseLogLevel(config.Log.Level)
	if cmd.Bool("verbose") {
		level = log.DebugLevel
	}
	shared.SetLogLevel(r.logger, level)

	r.config = config
	r.configPath = path
	return ctx, nil
}

// openValidStore validates the config and opens the configured store.
func (r *Runner) openValidStore(ctx context.Context) (store.Store, error) {
	if err := r.config.Validate(); err != nil {
		return nil, err
	}
	st, err := r.openStore(ctx, r.config)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", r.config.Store.Driver, err)
	}
	return st, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
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
