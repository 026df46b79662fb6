package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ayukmesoh/storekeeper/internal/config"
	"github.com/ayukmesoh/storekeeper/internal/notifier"
	"github.com/ayukmesoh/storekeeper/internal/repository"
	"github.com/ayukmesoh/storekeeper/internal/service"
)

// billingcron runs the billing batch jobs from cron or a one-shot container.
//
// Usage:
//
//	billingcron -task trialReminders
//	billingcron -task all
//
// Exit code 0 means the run completed, even when individual subscriptions
// failed (those are retried on the next run). A non-zero exit means a fatal
// condition such as the subscription store being unreachable, which cron
// alerting should page on.
func main() {
	task := flag.String("task", service.JobAll, "job to run: trialReminders | expiryReminders | autoRenewals | deactivateExpired | all")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoDB.URI))
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())

	if err := mongoClient.Ping(ctx, nil); err != nil {
		log.Fatalf("Failed to ping MongoDB: %v", err)
	}
	db := mongoClient.Database(cfg.MongoDB.Database)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	subRepo := repository.NewMongoSubscriptionRepository(db)
	shopRepo := repository.NewMongoShopRepository(db)
	notifRepo := repository.NewMongoNotificationRepository(db)
	cacheRepo := repository.NewRedisCacheRepository(redisClient)
	planRepo := repository.NewCachedPlanRepository(repository.NewMongoPlanRepository(db), cacheRepo)
	locker := repository.NewRedisJobLocker(redisClient)

	billingNotifier := notifier.New(context.Background(), cfg.Firebase, notifRepo)
	lifecycle := service.NewLifecycleService(subRepo, shopRepo, planRepo)
	reconciler := service.NewPaymentReconciler(subRepo, shopRepo, cfg.Billing.FailureThreshold)
	provider := service.NewPaymentProvider(cfg.Momo)
	scheduler := service.NewLifecycleScheduler(
		subRepo, shopRepo, lifecycle, reconciler,
		provider, billingNotifier, locker, cfg.Billing,
	)

	runCtx := context.Background()
	log.Printf("[Billingcron] Running task %q", *task)

	var summaries []*service.Summary
	var runErr error
	if *task == service.JobAll {
		summaries, runErr = scheduler.RunAll(runCtx)
	} else {
		var summary *service.Summary
		summary, runErr = scheduler.Run(runCtx, *task)
		if summary != nil {
			summaries = append(summaries, summary)
		}
	}

	for _, summary := range summaries {
		fmt.Println(summary)
	}
	if runErr != nil {
		log.Printf("[Billingcron] Fatal: %v", runErr)
		os.Exit(1)
	}
}
