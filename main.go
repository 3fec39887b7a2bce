package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"web3-rewards-backend/handlers"
	"web3-rewards-backend/middleware"
	"web3-rewards-backend/models"
	"web3-rewards-backend/services"
	"web3-rewards-backend/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024, // 1MB — JSON only
	})

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, x-wallet-address, x-wallet-signature, x-timestamp, x-admin-secret",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Rate limiting: in-process buckets by default, Redis counters when
	// REDIS_URL is set so multiple instances share one limit.
	var rdb *redis.Client
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatal("failed to parse REDIS_URL:", err)
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatal("failed to connect to redis:", err)
		}
		log.Println("✅ Rate-limit counters backed by Redis")
	}
	rateRequests := 60
	if v := os.Getenv("RATE_LIMIT_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			rateRequests = n
		}
	}
	rateLimiter := middleware.NewRateLimiter(ctx, rateRequests, time.Minute, rdb)
	app.Use(rateLimiter.Handler())

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Claim{},
		&models.IPBinding{},
		&models.Prediction{},
		&models.Exchange{},
		&models.AuditLog{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	chain, err := workers.NewChainClient(ctx)
	if err != nil {
		log.Fatal("failed to connect to eth node:", err)
	}

	auditService := services.NewAuditService(db)
	ledgerService := services.NewLedgerService(db)
	userService := services.NewUserService(db, ledgerService, auditService)
	sybilService := services.NewSybilService(db, chain)
	priceFeed := services.NewPriceFeedClient()

	claimService := services.NewClaimService(db, userService, ledgerService, sybilService, auditService)
	exchangeService := services.NewExchangeService(db, userService, ledgerService, chain, auditService)
	predictionService := services.NewPredictionService(db, userService, ledgerService, sybilService, priceFeed, auditService)
	settlementService := services.NewSettlementService(db, ledgerService, priceFeed)

	settlementService.StartScheduler(ctx)

	handlers.SetupClaimRoutes(app, claimService)
	handlers.SetupExchangeRoutes(app, exchangeService)
	handlers.SetupPredictionRoutes(app, predictionService)
	handlers.SetupPointsRoutes(app, userService)

	port := os.Getenv("PORT")
	if port == "" {
		port = "5100"
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", port)
	log.Println("✅ Settlement scheduler running (every 5m)")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
