package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mobilus-to-mqtt/adapters"
	"mobilus-to-mqtt/application"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var Flags = []cli.Flag{
	FlagLogLevel,
	FlagLogWriter,
	FlagConfigFile,
	FlagStorePath,
	FlagEntryID,
	FlagMobilusHost,
	FlagMobilusUsername,
	FlagMobilusPassword,
	FlagRefreshInterval,
	FlagStopSettleDelay,
	FlagMQTTUrl,
	FlagMQTTClientID,
	FlagMQTTUsername,
	FlagMQTTPassword,
	FlagMQTTTopic,
	FlagMQTTDiscoveryPrefix,
	FlagHTTPListen,
	FlagReportInterval,
}

func main() {
	var logger zerolog.Logger

	app := cli.App{
		Name:    "mobilus-to-mqtt",
		Version: "v0.1.0",
		Flags:   Flags,
		Before: func(ctx *cli.Context) error {
			var logWriter io.Writer
			if ctx.String(FlagLogWriter.Name) == "console" {
				logWriter = zerolog.ConsoleWriter{
					Out:        os.Stderr,
					TimeFormat: time.RFC3339Nano,
				}
			} else if ctx.String(FlagLogWriter.Name) == "json" {
				logWriter = os.Stderr
			} else {
				return fmt.Errorf("invalid log writer %q", ctx.String(FlagLogWriter.Name))
			}

			logger = zerolog.New(logWriter).With().Timestamp().
				Str("service", "mobilus-to-mqtt").
				Str("module", "main").
				Logger()

			level, err := zerolog.ParseLevel(ctx.String(FlagLogLevel.Name))
			if err != nil {
				return err
			}

			zerolog.SetGlobalLevel(level)

			return nil
		},
		Action: func(ctx *cli.Context) error {
			logger.Info().Msg("service starting...")

			appCtx, cancel := context.WithCancel(logger.WithContext(context.Background()))
			defer cancel()
			go func() {
				c := make(chan os.Signal, 1)
				signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

				<-c

				logger.Warn().Msg("interrupt signal received")
				cancel()
			}()

			fileCfg := &adapters.FileConfig{}
			if path := ctx.String(FlagConfigFile.Name); path != "" {
				var err error
				if fileCfg, err = adapters.LoadFileConfig(path); err != nil {
					return err
				}
			}

			capabilities, err := fileCfg.CapabilityTable()
			if err != nil {
				return err
			}

			store, err := adapters.NewBoltConfigStore(adapters.BoltConfigStoreParams{
				Path: ctx.String(FlagStorePath.Name),
				Log:  logger.With().Str("module", "config-store").Logger(),
			})
			if err != nil {
				return err
			}
			defer store.Close()

			entryID := ctx.String(FlagEntryID.Name)
			entry, err := loadConfigEntry(ctx, store, fileCfg, entryID)
			if err != nil {
				return err
			}
			logger.Info().Str("entry", entryID).Str("host", entry.Host).Int("refresh_interval", entry.RefreshInterval).Msg("config entry loaded")

			registry := prometheus.NewRegistry()
			registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			metrics := adapters.NewPrometheusMetrics(registry)

			gatewayClient, err := adapters.NewGatewayClient(adapters.GatewayClientParams{
				Host:     entry.Host,
				Username: entry.Username,
				Password: entry.Password,
				Log:      logger.With().Str("module", "gateway-client").Logger(),
			})
			if err != nil {
				return err
			}

			devices, err := application.DiscoverDevices(appCtx, gatewayClient, capabilities, logger.With().Str("module", "discovery").Logger())
			if err != nil {
				return err
			}

			coordinator, err := application.NewCoordinator(application.CoordinatorParams{
				Client:          gatewayClient,
				RefreshInterval: entry.RefreshIntervalDuration(),
				Metrics:         metrics,
				Log:             logger.With().Str("module", "coordinator").Logger(),
			})
			if err != nil {
				return err
			}

			stopSettleDelay := ctx.Duration(FlagStopSettleDelay.Name)
			if !ctx.IsSet(FlagStopSettleDelay.Name) && fileCfg.StopSettleDelay != 0 {
				stopSettleDelay = fileCfg.StopSettleDelay
			}

			controller, err := application.NewDeviceController(application.DeviceControllerParams{
				Client:          gatewayClient,
				Refresher:       coordinator,
				Capabilities:    capabilities,
				StopSettleDelay: stopSettleDelay,
				Metrics:         metrics,
				Log:             logger.With().Str("module", "controller").Logger(),
			})
			if err != nil {
				return err
			}

			topics := application.Topics{
				Prefix:          ctx.String(FlagMQTTTopic.Name),
				DiscoveryPrefix: ctx.String(FlagMQTTDiscoveryPrefix.Name),
			}

			mqttClient := adapters.NewMQTTClient(adapters.MQTTClientParams{
				ClientID:    ctx.String(FlagMQTTClientID.Name),
				Username:    ctx.String(FlagMQTTUsername.Name),
				Password:    ctx.String(FlagMQTTPassword.Name),
				MQTTUrl:     ctx.String(FlagMQTTUrl.Name),
				WillTopic:   topics.BridgeState(),
				WillPayload: application.AvailabilityOffline,
				Log:         logger.With().Str("module", "mqtt-client").Logger(),
			})

			mobilusToMQTTService, err := application.NewMobilusToMQTTService(application.MobilusToMQTTServiceParams{
				Coordinator:    coordinator,
				Controller:     controller,
				MQTTClient:     mqttClient,
				Devices:        devices,
				Capabilities:   capabilities,
				Topics:         topics,
				ReportInterval: ctx.Duration(FlagReportInterval.Name),
				Log:            logger.With().Str("module", "bridge").Logger(),
			})
			if err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(appCtx)

			if listen := ctx.String(FlagHTTPListen.Name); listen != "" {
				statusServer := adapters.NewStatusServer(adapters.StatusServerParams{
					Listen:   listen,
					Source:   coordinator,
					Gatherer: registry,
					Log:      logger.With().Str("module", "status-server").Logger(),
				})
				g.Go(func() error {
					return statusServer.Run(gctx)
				})
			}

			g.Go(func() error {
				// unblock the status server when the bridge stops on its own
				defer cancel()
				return mobilusToMQTTService.Run(gctx)
			})

			logger.Info().Int("devices", len(devices)).Msg("service started")
			if err := g.Wait(); err != nil {
				return err
			}

			logger.Info().Msg("service terminating...")
			return nil
		},
		Authors: []*cli.Author{
			{
				Name: "mobilus-to-mqtt contributors",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Err(err).Msg("service terminated")
		os.Exit(1)
	}
}

// loadConfigEntry merges the stored entry with the config file and flags, in
// that order of precedence, and stores the result when it changed.
func loadConfigEntry(ctx *cli.Context, store application.ConfigEntryStore, fileCfg *adapters.FileConfig, id string) (application.ConfigEntry, error) {
	stored, err := store.LoadConfigEntry(id)
	if err != nil && !errors.Is(err, adapters.ErrConfigEntryNotFound) {
		return application.ConfigEntry{}, err
	}

	entry := stored
	if fromFile, ok := fileCfg.ConfigEntry(); ok {
		entry = entry.Merge(fromFile)
	}
	entry = entry.Merge(application.ConfigEntry{
		Host:            ctx.String(FlagMobilusHost.Name),
		Username:        ctx.String(FlagMobilusUsername.Name),
		Password:        ctx.String(FlagMobilusPassword.Name),
		RefreshInterval: ctx.Int(FlagRefreshInterval.Name),
	})

	if err := entry.Validate(); err != nil {
		return application.ConfigEntry{}, fmt.Errorf("config entry %s: %w", id, err)
	}

	if entry != stored {
		if err := store.SaveConfigEntry(id, entry); err != nil {
			return application.ConfigEntry{}, err
		}
	}
	return entry, nil
}
