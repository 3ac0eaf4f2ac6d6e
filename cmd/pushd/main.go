// Command pushd runs the push delivery daemon: the HTTP API for device
// registration and notification submission, plus the background monitor
// loops that watch load, collect performance metrics, and run the
// optimization sweep.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shiftflow/pushkit/pkg/api"
	"github.com/shiftflow/pushkit/pkg/auditlog"
	"github.com/shiftflow/pushkit/pkg/config"
	"github.com/shiftflow/pushkit/pkg/delivery"
	"github.com/shiftflow/pushkit/pkg/devices"
	"github.com/shiftflow/pushkit/pkg/httpserver"
	"github.com/shiftflow/pushkit/pkg/logger"
	"github.com/shiftflow/pushkit/pkg/mongodb"
	"github.com/shiftflow/pushkit/pkg/monitor"
	"github.com/shiftflow/pushkit/pkg/notifications"
	"github.com/shiftflow/pushkit/pkg/provider"
	"github.com/shiftflow/pushkit/pkg/ratelimit"
	"github.com/shiftflow/pushkit/pkg/redisconn"
	"github.com/shiftflow/pushkit/pkg/resilience"
)

type appConfig struct {
	Environment        string        `env:"APP_ENV" envDefault:"development"`
	ServiceName        string        `env:"APP_SERVICE_NAME" envDefault:"pushd"`
	SingleActiveDevice bool          `env:"APP_SINGLE_ACTIVE_DEVICE" envDefault:"false"`
	RateLimit          int           `env:"APP_RATE_LIMIT" envDefault:"120"`
	RateWindow         time.Duration `env:"APP_RATE_WINDOW" envDefault:"1m"`
}

const optimizeLockTTL = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pushd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var appCfg appConfig
	if err := config.Load(&appCfg); err != nil {
		return err
	}

	log := logger.New(logger.WithEnvironment(appCfg.Environment, appCfg.ServiceName))
	logger.SetAsDefault(log)

	if err := notifications.ValidateChannelConfig(); err != nil {
		return fmt.Errorf("channel configuration: %w", err)
	}

	var (
		mongoCfg    mongodb.Config
		redisCfg    redisconn.Config
		providerCfg provider.Config
		httpCfg     httpserver.Config
		monitorCfg  monitor.Config
	)
	if err := config.Load(&mongoCfg); err != nil {
		return err
	}
	if err := config.Load(&redisCfg); err != nil {
		return err
	}
	if err := config.Load(&providerCfg); err != nil {
		return err
	}
	if err := config.Load(&httpCfg); err != nil {
		return err
	}
	if err := config.Load(&monitorCfg); err != nil {
		return err
	}

	mongoClient, err := mongodb.Connect(ctx, mongoCfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(shutdownCtx); err != nil {
			log.Error("failed to disconnect document store", logger.Error(err))
		}
	}()
	db := mongoClient.Database(mongoCfg.Database)

	redisClient, err := redisconn.Connect(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("failed to close redis client", logger.Error(err))
		}
	}()

	notificationStore, err := notifications.NewMongoStorage(ctx, db)
	if err != nil {
		return err
	}
	deviceStore, err := devices.NewMongoStorage(ctx, db)
	if err != nil {
		return err
	}
	auditStore, err := auditlog.NewMongoStorage(ctx, db)
	if err != nil {
		return err
	}

	audit := auditlog.NewLogger(auditStore, auditlog.WithLogger(log))

	var registryOpts []devices.RegistryOption
	registryOpts = append(registryOpts, devices.WithLogger(log))
	if appCfg.SingleActiveDevice {
		registryOpts = append(registryOpts, devices.WithSingleActiveDevice())
	}
	registry := devices.NewRegistry(deviceStore, audit, registryOpts...)

	breakers := resilience.NewBreakerRegistry()
	executor := resilience.NewExecutor(breakers)
	sender := provider.NewHTTPSender(providerCfg)

	mon := monitor.New(monitorCfg, notificationStore, registry, auditStore, audit, breakers,
		monitor.WithLogger(log),
		monitor.WithLocker(redisconn.NewMutex(redisClient, "pushd:optimize", optimizeLockTTL)),
		monitor.WithHealthcheck("mongodb", mongodb.Healthcheck(mongoClient)),
		monitor.WithHealthcheck("redis", redisconn.Healthcheck(redisClient)),
	)

	engine := delivery.NewEngine(notificationStore, registry, sender, executor, audit,
		delivery.WithLogger(log),
		delivery.WithObserver(mon),
	)

	limiter, err := ratelimit.New(ratelimit.NewRedisStore(redisClient, "pushd"), appCfg.RateLimit, appCfg.RateWindow)
	if err != nil {
		return err
	}

	handler := api.New(registry, engine, mon, auditlog.NewReader(auditStore), notificationStore,
		api.WithLogger(log),
		api.WithRateLimit(limiter),
		api.WithReadiness(mongodb.Healthcheck(mongoClient), redisconn.Healthcheck(redisClient)),
	)

	server := httpserver.New(httpCfg, httpserver.WithLogger(log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, handler.Router())
	})
	g.Go(func() error {
		if err := mon.Run(gctx); err != nil && gctx.Err() == nil {
			return err
		}
		return nil
	})

	log.Info("pushd started", logger.Component("main"))
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	log.Info("pushd stopped", logger.Component("main"))
	return nil
}
