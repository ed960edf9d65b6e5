package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"word-battle-system/handlers"
	"word-battle-system/middleware"
	"word-battle-system/models"
	"word-battle-system/services"
	"word-battle-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		AppName: "word-battle-system",
	})

	// GLOBAL: only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("ALLOWED_ORIGINS not set, using default: http://localhost:3000")
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
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	// TranslateError lets the lobby service retry game-code collisions
	// via gorm.ErrDuplicatedKey instead of driver-specific errors.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Lobby{},
		&models.ProfileMirror{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	identityServiceURL := os.Getenv("IDENTITY_SERVICE_URL")
	if identityServiceURL == "" {
		log.Fatal("IDENTITY_SERVICE_URL environment variable not set")
	}
	battleServiceToken := os.Getenv("BATTLE_SERVICE_TOKEN")
	if battleServiceToken == "" {
		log.Fatal("BATTLE_SERVICE_TOKEN environment variable not set")
	}

	identityClient := services.NewIdentityClient(identityServiceURL, battleServiceToken)

	lobbyService := services.NewLobbyService(db)
	lobbyService.Identity = identityClient
	scoreService := services.NewScoreService(db)
	scoreService.Identity = identityClient
	sweeper := services.NewSweeperService(db)

	profileWorker := workers.NewProfileSyncWorker(db, identityServiceURL, "/api/v1/public/profiles", battleServiceToken)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	profileWorker.Start(ctx)
	sweeper.StartSweepScheduler()

	handlers.SetupLobbyRoutes(app, lobbyService, scoreService)
	handlers.SetupMaintenanceRoutes(app, sweeper)

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":5300"
	}

	go func() {
		if err := app.Listen(addr); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("Server running on %s", addr)
	log.Println("Profile sync worker running")
	log.Println("Lobby sweeps scheduled (expire: 1m, inactive: 1h)")
	log.Println("GatewayAuthMiddleware enforced globally")

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
