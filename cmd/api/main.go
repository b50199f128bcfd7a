package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cliniccare/pharmacy-backend/api/controllers"
	"github.com/cliniccare/pharmacy-backend/api/routes"
	"github.com/cliniccare/pharmacy-backend/internal/cart"
	"github.com/cliniccare/pharmacy-backend/internal/inventory"
	"github.com/cliniccare/pharmacy-backend/internal/notifications"
	"github.com/cliniccare/pharmacy-backend/pkg/config"
	"github.com/cliniccare/pharmacy-backend/pkg/db"
	"github.com/cliniccare/pharmacy-backend/pkg/logger"
	"github.com/cliniccare/pharmacy-backend/pkg/metrics"
	"github.com/cliniccare/pharmacy-backend/pkg/migrate"
	"github.com/cliniccare/pharmacy-backend/pkg/pubsub"
	"github.com/cliniccare/pharmacy-backend/pkg/redis"
	"github.com/cliniccare/pharmacy-backend/pkg/storage/gcs"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	err = migrate.MaybeRunDev(ctx, cfg, logg, dbClient)
	requireResource(ctx, logg, "dev migrations", err)

	// Redis is optional. Without it cart mutations serialize in-process,
	// which is only safe for a single instance.
	var redisClient *redis.Client
	var locker cart.Locker = cart.NewMutexLocker()
	if cfg.Redis.Configured() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		requireResource(ctx, logg, "redis", err)
		defer redisClient.Close()
		locker = cart.NewRedisLocker(redisClient)
	} else {
		logg.Warn(ctx, "redis not configured, using in-process cart locking")
	}

	// Pub/Sub is optional. Without it low-stock alerts land in the log.
	var pubsubClient *pubsub.Client
	var alerts inventory.AlertPublisher
	if cfg.GCP.ProjectID != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		requireResource(ctx, logg, "pubsub", err)
		defer pubsubClient.Close()
		alerts, err = notifications.NewPubSubGateway(pubsubClient.LowStockPublisher(), logg)
		requireResource(ctx, logg, "alert gateway", err)
	} else {
		alerts, err = notifications.NewLogGateway(logg)
		requireResource(ctx, logg, "alert gateway", err)
		logg.Warn(ctx, "pubsub not configured, low-stock alerts go to the log")
	}

	// GCS is optional. Without it item image uploads are rejected.
	var gcsClient *gcs.Client
	var assets inventory.AssetStore
	if cfg.GCS.BucketName != "" {
		gcsClient, err = gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
		requireResource(ctx, logg, "gcs", err)
		store, err := inventory.NewGCSAssetStore(gcsClient, cfg.GCS.BucketName, cfg.GCS.KeyPrefix)
		requireResource(ctx, logg, "asset store", err)
		assets = store
	} else {
		logg.Warn(ctx, "gcs not configured, item image uploads disabled")
	}

	invMetrics := metrics.NewInventoryMetrics(prometheus.DefaultRegisterer)

	inventoryRepo := inventory.NewRepository(dbClient.DB())
	inventoryService, err := inventory.NewService(inventoryRepo, alerts, assets, invMetrics, logg, cfg.Inventory.LowStockThreshold)
	requireResource(ctx, logg, "inventory service", err)

	cartRepo := cart.NewRepository(dbClient.DB())
	cartService, err := cart.NewService(cartRepo, dbClient, locker, invMetrics, logg)
	requireResource(ctx, logg, "cart service", err)

	notificationsService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()))
	requireResource(ctx, logg, "notifications service", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			pingerOrNil(redisClient),
			pubsubPingerOrNil(pubsubClient),
			gcsPingerOrNil(gcsClient),
			inventoryService,
			cartService,
			notificationsService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

// The nil-or-value helpers keep typed nil pointers out of the readiness
// interfaces so unconfigured dependencies report as skipped.
func pingerOrNil(c *redis.Client) redis.Pinger {
	if c == nil {
		return nil
	}
	return c
}

func pubsubPingerOrNil(c *pubsub.Client) controllers.PubSubPinger {
	if c == nil {
		return nil
	}
	return c
}

func gcsPingerOrNil(c *gcs.Client) gcs.Pinger {
	if c == nil {
		return nil
	}
	return c
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
