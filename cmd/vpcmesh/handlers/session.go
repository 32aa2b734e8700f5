// Package handlers implements the business logic for CLI commands.
//
// Handlers are framework-agnostic: the commands package parses flags and
// calls them, and tests replace the factory variables below.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/imamik/vpcmesh/internal/config"
	"github.com/imamik/vpcmesh/internal/orchestration"
	"github.com/imamik/vpcmesh/internal/platform/aws"
	"github.com/imamik/vpcmesh/internal/platform/cloud"
	"github.com/imamik/vpcmesh/internal/platform/hcloud"
	"github.com/imamik/vpcmesh/internal/platform/memory"
	"github.com/imamik/vpcmesh/internal/provisioning"
	"github.com/imamik/vpcmesh/internal/state"
	"github.com/imamik/vpcmesh/internal/topology"
	"github.com/imamik/vpcmesh/internal/ui"
	"github.com/imamik/vpcmesh/internal/ui/tui"
)

// Options are the flags shared by every command.
type Options struct {
	ConfigPath  string
	Verbosity   int
	MetricsFile string
}

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// stdout receives rendered output.
	stdout io.Writer = os.Stdout

	// stderr receives log lines.
	stderr io.Writer = os.Stderr

	// loadConfigFile loads and validates config from a file.
	loadConfigFile = config.Load

	// findConfigFile finds vpcmesh.yaml in the working directory or above.
	findConfigFile = config.FindConfigFile

	// openStore opens the configured state backend.
	openStore = state.Open

	// newProvider creates the configured cloud provider.
	newProvider = defaultProvider

	// writeMetrics writes the metrics registry in text format.
	writeMetrics = prometheus.WriteToTextfile

	// runApplyTUI runs an apply behind the live view.
	runApplyTUI = tui.RunApplyTUI
)

// session holds everything one command run needs.
type session struct {
	cfg      *config.Config
	specs    []topology.UnitSpec
	store    state.Store
	composer *orchestration.Composer
	pctx     *provisioning.Context
	log      logr.Logger
	registry *prometheus.Registry
	render   *ui.Renderer
	metrics  string
}

func newSession(ctx context.Context, opts Options) (*session, error) {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	specs, err := cfg.UnitSpecs()
	if err != nil {
		return nil, err
	}
	regions, err := cfg.Registry()
	if err != nil {
		return nil, err
	}

	log := newLogger(stderr, opts.Verbosity).WithValues("topology", cfg.Name)
	registry := prometheus.NewRegistry()
	metrics := provisioning.NewMetrics(registry)

	provider, err := newProvider(ctx, cfg, metrics)
	if err != nil {
		return nil, err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open state: %w", err)
	}

	pctx := provisioning.NewContext(ctx, cfg.Name, provider)
	pctx.Observer = provisioning.NewLogObserver(log)
	pctx.Metrics = metrics
	pctx.Tags = cfg.Tags

	return &session{
		cfg:      cfg,
		specs:    specs,
		store:    store,
		composer: orchestration.NewComposer(regions, store, orchestration.WithParallelism(cfg.Parallelism)),
		pctx:     pctx,
		log:      log,
		registry: registry,
		render:   ui.NewRenderer(stdout),
		metrics:  opts.MetricsFile,
	}, nil
}

// close releases the store and writes the metrics file if one was asked
// for.
func (s *session) close() error {
	var errs []error
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close state: %w", err))
	}
	if s.metrics != "" {
		if err := writeMetrics(s.metrics, s.registry); err != nil {
			errs = append(errs, fmt.Errorf("failed to write metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}

// loadConfig loads configuration from the given path, or finds
// vpcmesh.yaml when the path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		found, err := findConfigFile()
		if err != nil {
			return nil, fmt.Errorf("no config file found: %w (create one with 'vpcmesh init')", err)
		}
		path = found
	}
	cfg, err := loadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func defaultProvider(ctx context.Context, cfg *config.Config, metrics *provisioning.Metrics) (cloud.Provider, error) {
	timeouts := config.LoadTimeouts()
	switch cfg.Provider.Type {
	case config.ProviderAWS:
		return aws.NewProvider(ctx, aws.Options{
			Profile:   cfg.Provider.Profile,
			Endpoint:  cfg.Provider.Endpoint,
			RateLimit: cfg.Provider.RateLimit,
			Burst:     cfg.Provider.Burst,
			Metrics:   metrics.ForProvider("aws"),
			Timeouts:  timeouts,
		})
	case config.ProviderHCloud:
		token := os.Getenv("HCLOUD_TOKEN")
		if token == "" {
			return nil, errors.New("HCLOUD_TOKEN is not set")
		}
		return hcloud.NewProvider(token, hcloud.WithTimeouts(timeouts)), nil
	case config.ProviderMemory:
		return memory.NewProvider(), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", topology.ErrInvalidConfig, cfg.Provider.Type)
	}
}

// newLogger returns a funcr logger writing one line per entry to w.
func newLogger(w io.Writer, verbosity int) logr.Logger {
	return funcr.New(func(prefix, args string) {
		line := args
		if prefix != "" {
			line = prefix + ": " + args
		}
		_, _ = io.WriteString(w, strings.TrimSpace(line)+"\n")
	}, funcr.Options{Verbosity: verbosity})
}
