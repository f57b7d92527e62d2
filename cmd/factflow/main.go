// Package main implements the factflow daemon: a forward-chaining rule
// engine over boolean facts, fed and observed over NATS, with Prometheus
// metrics.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/factflow/config"
	"github.com/c360/factflow/engine"
	"github.com/c360/factflow/errors"
	"github.com/c360/factflow/fact"
	"github.com/c360/factflow/input/natsfacts"
	"github.com/c360/factflow/loader"
	"github.com/c360/factflow/metric"
	"github.com/c360/factflow/natsclient"
	"github.com/c360/factflow/rule"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "factflow"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// CLI flags beat the config file for log settings.
	level := cfg.Logging.Level
	if cliCfg.LogLevel != "" {
		level = cliCfg.LogLevel
	}
	format := cfg.Logging.Format
	if cliCfg.LogFormat != "" {
		format = cliCfg.LogFormat
	}
	logger := setupLogger(level, format)
	slog.SetDefault(logger)

	slog.Info("Starting factflow",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	return runEngine(cliCfg, cfg, logger)
}

func runEngine(cliCfg *CLIConfig, cfg *config.Config, logger *slog.Logger) error {
	reg := fact.NewRegistry()
	rules, initial, err := buildRules(cfg, reg, logger)
	if err != nil {
		return err
	}
	slog.Info("Rules loaded", "rules", len(rules), "facts", reg.Count())

	ctx := context.Background()

	// Metrics endpoint.
	var metricsRegistry *metric.MetricsRegistry
	if cfg.Metrics.Enabled {
		metricsRegistry = metric.NewMetricsRegistry()
		server := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, metricsRegistry)
		go func() {
			if err := server.Start(); err != nil {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() {
			if err := server.Stop(); err != nil {
				slog.Error("Metrics server stop failed", "error", err)
			}
		}()
		slog.Info("Metrics server started", "address", server.Address())
	}

	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithMetricsRegistry(metricsRegistry),
		engine.WithStallHandler(stallHandler(cfg, reg)),
	}

	// NATS bridge. The injector indirection exists because the bridge's
	// change listener must be handed to the engine at construction, before
	// the engine exists to inject into.
	inj := &engineInjector{}
	var bridge *natsfacts.Bridge
	var natsClient *natsclient.Client
	if cfg.NATS.Enabled {
		natsClient, bridge, err = setupNATS(ctx, cfg, reg, inj, metricsRegistry, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := natsClient.Close(ctx); err != nil {
				slog.Error("NATS close failed", "error", err)
			}
		}()
		if listener := bridge.ChangeListener(); listener != nil {
			engineOpts = append(engineOpts, engine.WithChangeListener(listener))
		}
	}

	eng := engine.New(initial, rules, engineOpts...)
	inj.eng = eng

	if bridge != nil {
		if err := bridge.Start(ctx); err != nil {
			return fmt.Errorf("start fact bridge: %w", err)
		}
		defer func() {
			if err := bridge.Stop(cliCfg.ShutdownTimeout); err != nil {
				slog.Error("Bridge stop failed", "error", err)
			}
		}()
	}

	return evaluate(ctx, cliCfg, eng, reg)
}

// buildRules loads definitions from files and inline config and resolves the
// initial state.
func buildRules(cfg *config.Config, reg *fact.Registry, logger *slog.Logger) ([]rule.Rule, fact.State, error) {
	l := loader.New(logger)

	defs, err := l.LoadFiles(cfg.Rules.Files)
	if err != nil {
		return nil, fact.VoidState, fmt.Errorf("load rule files: %w", err)
	}
	defs = append(defs, cfg.Rules.Inline...)

	rules, err := l.Build(reg, defs)
	if err != nil {
		return nil, fact.VoidState, fmt.Errorf("build rules: %w", err)
	}

	seed, err := loader.Facts(reg, cfg.Engine.InitialFacts...)
	if err != nil {
		return nil, fact.VoidState, fmt.Errorf("resolve initial facts: %w", err)
	}

	return rules, fact.StateFrom(seed), nil
}

// stallHandler maps the configured stall policy onto engine behavior.
func stallHandler(cfg *config.Config, reg *fact.Registry) engine.StallHandler {
	if cfg.Engine.StallPolicy == config.StallStop {
		return func(state fact.State) error {
			slog.Info("Engine stalled, stopping per policy",
				"facts", reg.Names(state.Vector()))
			return engine.ErrStalled
		}
	}
	return func(state fact.State) error {
		slog.Debug("Engine stalled, waiting for injected facts",
			"facts", reg.Names(state.Vector()))
		return nil
	}
}

func setupNATS(
	ctx context.Context,
	cfg *config.Config,
	reg *fact.Registry,
	inj natsfacts.Injector,
	metricsRegistry *metric.MetricsRegistry,
	logger *slog.Logger,
) (*natsclient.Client, *natsfacts.Bridge, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithClientName(appName),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWaitDuration()),
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	} else if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if metricsRegistry != nil {
		opts = append(opts, natsclient.WithMetrics(metricsRegistry.CoreMetrics()))
	}

	client, err := natsclient.NewClient(cfg.NATS.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create NATS client: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	bridge := natsfacts.NewBridge(natsfacts.BridgeDeps{
		Config: natsfacts.BridgeConfig{
			DeltaSubject: cfg.NATS.DeltaSubject,
			StateSubject: cfg.NATS.StateSubject,
		},
		Registry:        reg,
		Injector:        inj,
		NATSClient:      client,
		MetricsRegistry: metricsRegistry,
		Logger:          logger.With("component", "natsfacts"),
	})
	if err := bridge.Initialize(); err != nil {
		return nil, nil, fmt.Errorf("initialize fact bridge: %w", err)
	}

	return client, bridge, nil
}

// evaluate drives the engine until a signal, the run timeout, or a stall
// under the stop policy.
func evaluate(ctx context.Context, cliCfg *CLIConfig, eng *engine.Engine, reg *fact.Registry) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	runCtx := signalCtx
	if cliCfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(signalCtx, cliCfg.RunTimeout)
		defer cancel()
	}

	slog.Info("Engine evaluating")
	err := eng.Evaluate(runCtx)

	final := eng.State()
	slog.Info("Engine finished", "facts", reg.Names(final.Vector()))

	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		slog.Info("Run ended", "reason", err)
		return nil
	case stderrors.Is(err, engine.ErrStalled):
		slog.Info("Run ended on stable state")
		return nil
	default:
		return err
	}
}

// engineInjector forwards injected deltas to the engine once it exists.
type engineInjector struct {
	eng *engine.Engine
}

func (i *engineInjector) ApplyExternalFacts(res rule.Result) error {
	if i.eng == nil {
		return errors.WrapInvalid(errors.ErrNotStarted, "engineInjector", "ApplyExternalFacts", "check engine")
	}
	return i.eng.ApplyExternalFacts(res)
}
