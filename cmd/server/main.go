package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/orderrelay/internal/adapters/http"
	"github.com/dkeye/orderrelay/internal/adapters/relay"
	wsignal "github.com/dkeye/orderrelay/internal/adapters/signal"
	"github.com/dkeye/orderrelay/internal/app"
	"github.com/dkeye/orderrelay/internal/app/orch"
	"github.com/dkeye/orderrelay/internal/config"
	"github.com/dkeye/orderrelay/internal/core"
)

const shutdownTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := newCommand().Run(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("orderrelay failed")
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "orderrelay",
		Usage: "realtime order and table updates for customer, admin and kitchen rooms",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config-env",
				Usage:   "selects config/config.<env>.yaml",
				Sources: cli.EnvVars("CONFIG_ENV"),
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "listen port, overrides the config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "trace, debug, info, warn or error",
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:      "publish",
				Usage:     "publish an envelope to a room through redis",
				ArgsUsage: "<roomType> <roomId> <envelope-json>",
				Action:    publish,
			},
		},
	}
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config-env"))
	if err != nil {
		return nil, err
	}
	if cmd.IsSet("port") {
		cfg.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)
	return cfg, nil
}

func newRedis(cfg config.Redis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	counters := &core.Counters{}
	rooms := app.NewRoomManager(core.ActorConfig{
		IdleTimeout: cfg.IdleTimeout,
		Monitor:     counters,
	})
	defer rooms.StopAll()

	o := &orch.Orchestrator{
		Rooms:   rooms,
		Monitor: counters,
	}
	limiter := wsignal.NewConnectRateLimiter(cfg.ConnectLimit, cfg.ConnectInterval)

	g, gctx := errgroup.WithContext(ctx)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.SetupRouter(gctx, cfg, o, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("OrderRelay server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	g.Go(func() error {
		return app.RunSweeper(gctx, cfg.SweepInterval, app.SweepFunc(func(now time.Time) int {
			limiter.Prune()
			return o.SweepAll(now)
		}))
	})

	if cfg.Redis.Enabled {
		client := newRedis(cfg.Redis)
		defer client.Close()
		sub := relay.NewSubscriber(client, cfg.Redis.ChannelPrefix, o)
		g.Go(func() error { return sub.Run(gctx) })
	}

	err = g.Wait()
	log.Info().Msg("Server exited gracefully")
	return err
}
