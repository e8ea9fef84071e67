// obs-connector bridges the local OBS automation socket to BotOfTheSpecter.
//
// It keeps two connections alive: a control-plane channel that registers this
// connector with the remote service, and an obs-websocket session whose
// events are translated and forwarded to the event-collection API. Both
// reconnect forever with a flat delay until the process is interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/config"
	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/logging"
	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/monitor"
	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/relay"
	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/specter"
	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/status"
	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/supervisor"
)

var version = "1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath   string
	logLevel     string
	logFormat    string
	logFile      string
	statusListen string
	skipKeyCheck bool
	showVersion  bool
}

func parseFlags(args []string) (options, *pflag.FlagSet, error) {
	var opts options
	flagSet := pflag.NewFlagSet("obs-connector", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to the YAML config file")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	flagSet.StringVar(&opts.logFormat, "log-format", "", "override log.format (text, json)")
	flagSet.StringVar(&opts.logFile, "log-file", "", "override log.file (also append logs to this file)")
	flagSet.StringVar(&opts.statusListen, "status-listen", "", `override status.listen ("" keeps the config value)`)
	flagSet.BoolVar(&opts.skipKeyCheck, "skip-key-check", false, "start without validating the access token")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print the version and exit")
	err := flagSet.Parse(args)
	return opts, flagSet, err
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(opts options, flagSet *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(opts.configPath)
	if err != nil {
		return nil, err
	}
	if flagSet.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if flagSet.Changed("log-format") {
		cfg.Log.Format = opts.logFormat
	}
	if flagSet.Changed("log-file") {
		cfg.Log.File = opts.logFile
	}
	if flagSet.Changed("status-listen") {
		cfg.Status.Listen = opts.statusListen
	}
	if cfg.Control.ClientName == "" {
		cfg.Control.ClientName = "OBS Connector V" + version
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, flagSet, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "obs-connector %s\n", version)
		return nil
	}

	cfg, err := loadConfig(opts, flagSet)
	if err != nil {
		return err
	}

	logFile, err := logging.Init(cfg.Log.Format, logging.ParseLevel(cfg.Log.Level), cfg.Log.File)
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger := slog.Default()

	api := specter.New(cfg.API.BaseURL,
		specter.WithTimeout(cfg.API.Timeout),
		specter.WithEventName(cfg.API.EventName))

	if !opts.skipKeyCheck {
		if err := checkKey(ctx, api, cfg.AccessToken, logger); err != nil {
			return err
		}
	}

	provider := config.NewFileProvider(opts.configPath, cfg, logging.Component(logger, "config"))

	rel := relay.New(api, provider,
		relay.WithQueueSize(cfg.Relay.QueueSize),
		relay.WithWorkers(cfg.Relay.Workers),
		relay.WithLogger(logger))

	hub := status.NewHub(status.WithLogger(logger), status.WithRelayStats(rel.Stats))
	defer hub.Close()

	control := supervisor.NewControlSupervisor(
		supervisor.PresenceFactory(cfg.Control.URL, cfg.Control.ClientName, logger),
		supervisor.WithRetryDelay(cfg.Control.RetryDelay),
		supervisor.WithConnectTimeout(cfg.Control.ConnectTimeout),
		supervisor.WithLogger(logger))

	automation := supervisor.NewAutomationSupervisor(
		supervisor.DialOBS(logger),
		supervisor.WithRetryDelay(cfg.Automation.RetryDelay),
		supervisor.WithConnectTimeout(cfg.Automation.ConnectTimeout),
		supervisor.WithProbe(monitor.NewProbe(cfg.Automation.ProcessNames)),
		supervisor.WithLogger(logger))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rel.Run(gctx) })
	g.Go(func() error {
		return control.Run(gctx, provider, hub.Sink(status.ChannelControl))
	})
	g.Go(func() error {
		return automation.Run(gctx, provider, hub.Sink(status.ChannelAutomation), rel.Push)
	})
	if cfg.Status.Listen != "" {
		g.Go(func() error {
			return status.ListenAndServe(gctx, cfg.Status.Listen, status.NewServer(hub, logger).Handler(), logger)
		})
	}

	logger.Info("obs connector started",
		"version", version,
		"control", cfg.Control.URL,
		"automation", fmt.Sprintf("%s:%d", cfg.Automation.Host, cfg.Automation.Port))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("obs connector stopped")
	return nil
}

// checkKey refuses to start with a token the API rejects. An unreachable API
// only warns: the supervisors will keep retrying anyway.
func checkKey(ctx context.Context, api *specter.Client, token string, logger *slog.Logger) error {
	if token == "" {
		return errors.New("access_token is not set (use --skip-key-check to start anyway)")
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	err := api.CheckKey(ctx, token)
	switch {
	case err == nil:
		logger.Info("api key accepted")
		return nil
	case errors.Is(err, specter.ErrInvalidKey):
		return err
	default:
		logger.Warn("could not validate api key, continuing", "error", err)
		return nil
	}
}
