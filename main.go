package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"treasure-dig-system/handlers"
	"treasure-dig-system/middleware"
	"treasure-dig-system/models"
	"treasure-dig-system/services"
	"treasure-dig-system/utils"
	"treasure-dig-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

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
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Session-Token, X-Service-Token, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Box{},
		&models.BoxLedgerEntry{},
		&models.DigGateState{},
		&models.Claim{},
		&models.Withdrawal{},
		&models.WithdrawalDebit{},
		&models.DiggerUser{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	syncServiceURL := os.Getenv("SYNC_SERVICE_URL")
	if syncServiceURL == "" {
		log.Fatal("SYNC_SERVICE_URL environment variable not set")
	}
	digServiceToken := os.Getenv("DIG_SERVICE_TOKEN")
	if digServiceToken == "" {
		log.Fatal("DIG_SERVICE_TOKEN environment variable not set")
	}

	gateService := services.NewGateService(db)
	boxService := services.NewBoxService(db, gateService)
	claimService := services.NewClaimService(db)
	priceClient := services.NewPriceClient(os.Getenv("ORACLE_SERVICE_URL"), digServiceToken)
	rareEvents := services.NewRareEventNotifier(os.Getenv("RARE_EVENT_SERVICE_URL"), digServiceToken)
	digService := services.NewDigService(db, gateService, priceClient, rareEvents)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncWorker := workers.NewDiggerUserSyncWorker(db, syncServiceURL, "/api/v1/public/profiles", digServiceToken)
	syncWorker.Start(ctx)

	exportWorker := workers.NewLedgerExportWorker(db, 24*time.Hour)
	exportWorker.Start(ctx)

	boxService.StartBoxScheduler()

	// ✅ Setup routes — enforced Gateway auth + /s/ prefix for user context
	handlers.SetupBoxRoutes(app, boxService)
	handlers.SetupDigRoutes(app, digService)
	handlers.SetupClaimRoutes(app, claimService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Digger User Sync Worker running")
	log.Println("✅ Ledger Export Worker running (every 24h)")
	log.Println("✅ Box lifecycle scheduler running")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
