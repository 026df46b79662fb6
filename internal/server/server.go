package server

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ayukmesoh/storekeeper/internal/config"
	"github.com/ayukmesoh/storekeeper/internal/domain"
	"github.com/ayukmesoh/storekeeper/internal/handler"
	"github.com/ayukmesoh/storekeeper/internal/infrastructure/momo"
	"github.com/ayukmesoh/storekeeper/internal/middleware"
	"github.com/ayukmesoh/storekeeper/internal/notifier"
	"github.com/ayukmesoh/storekeeper/internal/repository"
	"github.com/ayukmesoh/storekeeper/internal/service"
	"github.com/ayukmesoh/storekeeper/internal/telemetry"
)

// idempotencyTTL is how long a replayed X-Correlation-ID returns the cached
// response instead of re-running the mutation.
const idempotencyTTL = 24 * time.Hour

// AppDependencies holds the dependencies required to start the application
type AppDependencies struct {
	Config      *config.Config
	MongoDB     *mongo.Database
	RedisClient *redis.Client
}

// NewApp creates and configures the Fiber application with the given dependencies
func NewApp(deps AppDependencies) *fiber.App {
	// Initialize repositories
	subRepo := repository.NewMongoSubscriptionRepository(deps.MongoDB)
	shopRepo := repository.NewMongoShopRepository(deps.MongoDB)
	productRepo := repository.NewMongoProductRepository(deps.MongoDB)
	userRepo := repository.NewMongoUserRepository(deps.MongoDB)
	notifRepo := repository.NewMongoNotificationRepository(deps.MongoDB)
	cacheRepo := repository.NewRedisCacheRepository(deps.RedisClient)
	planRepo := repository.NewCachedPlanRepository(repository.NewMongoPlanRepository(deps.MongoDB), cacheRepo)
	locker := repository.NewRedisJobLocker(deps.RedisClient)

	// Receipt archive is optional; without object storage the webhook simply
	// records payments without a receipt URL.
	var receipts *repository.ReceiptS3Repository
	if deps.Config.S3.Endpoint != "" {
		var err error
		receipts, err = repository.NewReceiptS3Repository(context.Background(), deps.Config.S3)
		if err != nil {
			log.Printf("Warning: Failed to initialize receipt archive: %v", err)
			receipts = nil
		}
	}

	// Initialize services
	billingNotifier := notifier.New(context.Background(), deps.Config.Firebase, notifRepo)
	lifecycleService := service.NewLifecycleService(subRepo, shopRepo, planRepo)
	reconciler := service.NewPaymentReconciler(subRepo, shopRepo, deps.Config.Billing.FailureThreshold)
	provider := service.NewPaymentProvider(deps.Config.Momo)
	scheduler := service.NewLifecycleScheduler(
		subRepo, shopRepo, lifecycleService, reconciler,
		provider, billingNotifier, locker, deps.Config.Billing,
	)

	// Webhook signatures can only be verified with real gateway credentials.
	var verifier handler.WebhookVerifier
	if deps.Config.Momo.APIUser != "" && deps.Config.Momo.APIKey != "" {
		verifier = momo.NewClient(momo.Config{
			APIUser:  deps.Config.Momo.APIUser,
			APIKey:   deps.Config.Momo.APIKey,
			BaseURL:  deps.Config.Momo.BaseURL,
			Currency: deps.Config.Momo.Currency,
		})
	}

	// Initialize handlers
	subHandler := handler.NewSubscriptionHandler(subRepo, lifecycleService, reconciler, cacheRepo)
	paymentHandler := handler.NewPaymentHandler(subRepo, shopRepo, reconciler, provider, receipts, verifier, cacheRepo)
	shopHandler := handler.NewShopHandler(shopRepo, lifecycleService)
	productHandler := handler.NewProductHandler(productRepo)
	planHandler := handler.NewPlanHandler(planRepo)
	accountHandler := handler.NewAccountHandler(userRepo)
	notificationHandler := handler.NewNotificationHandler(notifRepo)
	jobHandler := handler.NewJobHandler(scheduler)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "StoreKeeper API",
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(telemetry.FiberMiddleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Correlation-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "storekeeper",
		})
	})

	api := app.Group("/api")

	// Gateway webhook (authenticated by signature, not by JWT)
	api.Post("/payments/webhook/momo", paymentHandler.MomoWebhook)

	authed := api.Group("")
	authed.Use(middleware.VerifyStoreKeeperToken(deps.Config.JWT.Secret))

	// Plan catalog (read-only for shops)
	authed.Get("/plans", planHandler.ListActive)
	authed.Get("/plans/:id", planHandler.Get)

	// Shop onboarding and listing
	authed.Post("/shops", shopHandler.Onboard)
	authed.Get("/shops", shopHandler.GetMine)

	// Per-shop resources, scoped to the token's shop
	shop := authed.Group("/shops/:shopId")
	shop.Use(middleware.ShopScope())
	shop.Get("/", shopHandler.Get)
	shop.Put("/", middleware.AuthorizeRole(domain.RoleOwner, domain.RoleSuperAdmin), shopHandler.Update)

	shop.Get("/subscription", subHandler.GetCurrent)
	shop.Get("/subscription/status", subHandler.GetStatus)
	shop.Get("/subscriptions", subHandler.ListByShop)
	shop.Get("/notifications", notificationHandler.List)

	shop.Get("/products", productHandler.List)
	shop.Get("/products/:id", productHandler.Get)
	shop.Post("/products", productHandler.Create)
	shop.Put("/products/:id", productHandler.Update)
	shop.Delete("/products/:id", middleware.AuthorizeRole(domain.RoleOwner, domain.RoleSuperAdmin), productHandler.Delete)

	accounts := shop.Group("/accounts")
	accounts.Use(middleware.AuthorizeRole(domain.RoleOwner, domain.RoleSuperAdmin))
	accounts.Post("/", accountHandler.Create)
	accounts.Get("/", accountHandler.List)
	accounts.Get("/:id", accountHandler.Get)
	accounts.Put("/:id", accountHandler.Update)
	accounts.Delete("/:id", accountHandler.Delete)

	// Subscription lifecycle actions. Tenant scoping happens in the handler
	// against the subscription's shop; idempotency covers retried mutations.
	subs := authed.Group("/subscriptions")
	subs.Use(middleware.IdempotencyMiddleware(deps.RedisClient, idempotencyTTL))
	subs.Post("/:id/convert", middleware.AuthorizeRole(domain.RoleOwner, domain.RoleSuperAdmin), subHandler.Convert)
	subs.Post("/:id/change-plan", middleware.AuthorizeRole(domain.RoleOwner, domain.RoleSuperAdmin), subHandler.ChangePlan)
	subs.Post("/:id/cancel", middleware.AuthorizeRole(domain.RoleOwner, domain.RoleSuperAdmin), subHandler.Cancel)
	subs.Post("/:id/pay", middleware.AuthorizeRole(domain.RoleOwner, domain.RoleSuperAdmin), paymentHandler.Pay)
	subs.Post("/:id/extend", middleware.AuthorizeRole(domain.RoleSuperAdmin), subHandler.Extend)
	subs.Post("/:id/payments", middleware.AuthorizeRole(domain.RoleSuperAdmin), subHandler.RecordPayment)

	// Platform operator API
	admin := authed.Group("/admin")
	admin.Use(middleware.AuthorizeRole(domain.RoleSuperAdmin))
	admin.Get("/shops", shopHandler.ListAll)
	admin.Post("/plans", planHandler.Create)
	admin.Put("/plans/:id", planHandler.Update)
	admin.Post("/jobs/:job", jobHandler.Run)

	return app
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	log.Printf("Error: %v", err)
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
