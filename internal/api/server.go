package api

import (
	"log"

	"github.com/Jakkraphat/identity_service/config"
	"github.com/Jakkraphat/identity_service/infra/queue"
	"github.com/Jakkraphat/identity_service/internal/api/rest/handlers"
	"github.com/Jakkraphat/identity_service/internal/domain"
	"github.com/Jakkraphat/identity_service/internal/helper"
	"github.com/Jakkraphat/identity_service/internal/notifier"
	"github.com/Jakkraphat/identity_service/internal/repository"
	"github.com/Jakkraphat/identity_service/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func StartServer(cfg config.Config) {
	app := fiber.New()

	// ---------- CORS ----------
	origins := "http://localhost:3000, http://localhost:3001, http://localhost:5173, http://127.0.0.1:5173"
	if cfg.IsProduction() {
		origins = cfg.FrontendURL
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))

	// ---------- DB ----------
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DatabaseDSN,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	if err != nil {
		log.Fatalf("database connection error: %v", err)
	}
	log.Println("database connected")

	// ---------- MIGRATION (guarded by advisory lock) ----------
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("database handle error: %v", err)
	}
	err = withMigrationLock(sqlDB, func() error {
		return db.AutoMigrate(
			&domain.User{},
			&domain.Session{},
		)
	})
	if err != nil {
		log.Fatalf("migration error: %v", err)
	}
	log.Println("migration successful")

	// ---------- Infra ----------
	authHelper := helper.SetupAuth(cfg.JWTSecret, cfg.SessionSecret, cfg.IsProduction())

	var n notifier.Notifier
	switch cfg.Mailer {
	case "kafka":
		producer := queue.NewProducer(
			cfg.KafkaBroker,
			cfg.KafkaTopic,
			cfg.KafkaUsername,
			cfg.KafkaPassword,
		)
		n = notifier.NewKafkaNotifier(producer)
		log.Println("notifier: kafka topic", cfg.KafkaTopic)
	default:
		n = notifier.NewMailer(cfg.GmailUser, cfg.GmailAppPassword, cfg.MailFrom, cfg.MailFromName)
		log.Println("notifier: smtp as", cfg.MailFrom)
	}

	// ---------- Repositories ----------
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	// ---------- Services ----------
	authSvc := services.NewAuthService(userRepo, authHelper, n)
	oauthSvc := services.NewOAuthService(cfg, userRepo, authHelper)

	// ---------- Handler ----------
	authHandler := handlers.NewAuthHandler(authSvc, oauthSvc, sessionRepo, authHelper, cfg.FrontendURL)
	authHandler.SetupRoutes(app)

	// ---------- Health ----------
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/api/ping", func(c *fiber.Ctx) error {
		return c.SendString("pong")
	})

	// ---------- Listen ----------
	addr := cfg.ServerPort
	log.Println("listening on", addr)
	log.Fatal(app.Listen(addr))
}
