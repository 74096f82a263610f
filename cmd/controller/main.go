package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/medirover/controller/domain/command"
	domainstatus "github.com/medirover/controller/domain/status"
	"github.com/medirover/controller/pkg/api"
	"github.com/medirover/controller/pkg/config"
	"github.com/medirover/controller/pkg/gateway"
	customlog "github.com/medirover/controller/pkg/log"
	"github.com/medirover/controller/pkg/rosbridge"
	"github.com/medirover/controller/pkg/statecache"
	"github.com/medirover/controller/pkg/status"
	"github.com/medirover/controller/pkg/store"
	"github.com/medirover/controller/pkg/zeromq"
	"github.com/medirover/controller/services"
)

// commandTimeout bounds a command received over ZeroMQ, pacing included
const commandTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "controller: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configDir string
	var accessLog bool

	flagSet := pflag.NewFlagSet("controller", pflag.ContinueOnError)
	flagSet.StringVar(&configDir, "config-dir", "./config", "directory holding gateway_config.yaml")
	flagSet.BoolVar(&accessLog, "access-log", false, "log every HTTP request")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	bootstrapCfg, err := config.LoadBootstrapConfig(configDir)
	if err != nil {
		return fmt.Errorf("failed to load bootstrap configuration: %w", err)
	}

	logger, err := customlog.NewLogrusLogger(bootstrapCfg.Logging.Level, bootstrapCfg.Logging.LogPath)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Infof("Starting MediRover gateway (config dir %s)", configDir)

	if err := os.MkdirAll(bootstrapCfg.Data.Directory, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// Records
	db, err := store.Open(bootstrapCfg.DatabasePath())
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Infof("Record store opened at %s", db.Path())

	// Channel configuration
	configService, err := services.NewChannelConfigService(bootstrapCfg.ChannelsConfigPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize channel configuration: %w", err)
	}

	// Bridge connection, shared by the gateway and the listener
	conn := rosbridge.NewConnection(rosbridge.Options{
		Host:              bootstrapCfg.Bridge.Host,
		Port:              bootstrapCfg.Bridge.Port,
		ConnectTimeout:    bootstrapCfg.Bridge.ConnectTimeout,
		ReconnectInterval: bootstrapCfg.Bridge.ReconnectInterval,
		WriteTimeout:      bootstrapCfg.Bridge.WriteTimeout,
	}, logger)

	gw := gateway.New(conn, db, gateway.Options{
		PaceInterval: bootstrapCfg.Gateway.PaceInterval,
		FrameID:      bootstrapCfg.Gateway.FrameID,
	}, logger)
	commandService := command.NewCommandService(gw, logger)

	listener := status.NewListener(conn, configService.GetCurrentConfig(), status.Options{
		Workers:   bootstrapCfg.Status.Workers,
		QueueSize: bootstrapCfg.Status.QueueSize,
	}, logger)
	conn.OnStateChange(listener.SetConnectionState)
	configService.OnUpdate(func(cfg *config.Config) {
		if err := listener.Reload(cfg); err != nil {
			logger.Errorf("Failed to apply channel configuration %s: %v", cfg.ConfigID, err)
		}
	})

	statusService := domainstatus.NewStatusService(listener, conn.URL(), logger)

	// ZeroMQ fan-out and command ingress
	var zmqService *zeromq.ZeroMQService
	if bootstrapCfg.ZeroMQ.Enabled {
		zmqService, err = zeromq.NewZeroMQService(bootstrapCfg.ZeroMQ, logger)
		if err != nil {
			return fmt.Errorf("failed to create ZeroMQ service: %w", err)
		}
		zeromq.RegisterCommandHandlers(zmqService, commandService, []string{
			command.TypeTransport,
			command.TypeTransportByName,
			command.TypeCruise,
			command.TypeCruiseByName,
			command.TypeException,
			command.TypeMapping,
			command.TypeVelocity,
		}, commandTimeout, logger)
		zmqService.RegisterHandler(zeromq.MsgTypeConfigRequest, zeromq.NewConfigHandler(configService.GetCurrentConfig, logger))
		zmqService.RegisterHandler(zeromq.MsgTypeStatusRequest, zeromq.NewStatusHandler(statusService))

		statusService.AddSink(zeromq.NewStatusPublisher(zmqService, logger))
		configService.SetPublisher(zeromq.NewConfigPublisher(zmqService, logger))

		if err := zmqService.Start(); err != nil {
			return fmt.Errorf("failed to start ZeroMQ service: %w", err)
		}
		defer zmqService.Stop()
	}

	// Redis status mirror
	if bootstrapCfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     bootstrapCfg.Redis.Address,
			Password: bootstrapCfg.Redis.Password,
			DB:       bootstrapCfg.Redis.DB,
		})
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := client.Ping(ctx).Err()
		if err == nil {
			mirror := statecache.NewMirror(client, bootstrapCfg.Redis.KeyPrefix, logger)
			if err = mirror.Clear(ctx); err == nil {
				statusService.AddSink(mirror)
				logger.Infof("Mirroring status to redis at %s", bootstrapCfg.Redis.Address)
			}
		}
		cancel()
		if err != nil {
			logger.Warnf("Redis mirror disabled: %v", err)
		}
	}

	statusService.Start()
	defer statusService.Stop()

	if err := listener.Start(); err != nil {
		return fmt.Errorf("failed to start status listener: %w", err)
	}
	defer listener.Stop()

	// The bridge may come up after us; reconnects keep trying in the background
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), bootstrapCfg.Bridge.ConnectTimeout)
		defer cancel()
		if err := conn.Connect(ctx); err != nil {
			logger.Warnf("Initial connection to %s failed: %v", conn.URL(), err)
		}
	}()
	defer conn.Close()

	app := api.NewApp(api.Dependencies{
		Commands:      commandService,
		Status:        statusService,
		Records:       db,
		ConfigService: configService,
		Logger:        logger,
		AccessLog:     accessLog,
	})

	serverErr := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", bootstrapCfg.Server.HTTPPort)
		logger.Infof("HTTP server starting on %s", addr)
		if err := app.Listen(addr); err != nil {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Infof("Received %s, shutting down", sig)
	case err := <-serverErr:
		logger.Errorf("HTTP server failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Warnf("Server forced to shutdown: %v", err)
	}

	logger.Infof("Gateway exited properly")
	return nil
}
