package main

import (
	"context"
	"fmt"
	"log"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm/logger"

	"userform_payments/internal/config"
	"userform_payments/internal/handlers"
	appMiddleware "userform_payments/internal/middleware"
	"userform_payments/internal/services"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	logLevel := logger.Info
	if cfg.IsProduction() {
		logLevel = logger.Warn
	}

	// Initialize Database
	db, err := services.InitDB(cfg.DatabaseURL, logLevel)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := services.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Sessions live in Redis when configured
	var sessions services.SessionProvider
	if cfg.RedisURL != "" {
		cache, err := services.NewRedisCache(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		sessions = services.NewRedisSessionProvider(cache, cfg.SessionTTL)
	} else {
		log.Println("Warning: REDIS_URL not set, sessions are kept in memory")
		sessions = services.NewMemorySessionProvider(cfg.SessionTTL)
	}

	// Firebase provides member sign-in and optionally upload storage
	var verifier appMiddleware.SessionCookieVerifier
	var minter handlers.SessionMinter
	var fileStore services.FileStore = services.NewDiskFileStore(cfg.UploadDir)
	app, err := services.InitFirebase(ctx, cfg.FirebaseCredentialsPath, cfg.FirebaseStorageBucket)
	if err != nil {
		log.Printf("Warning: Firebase initialization failed: %v", err)
		log.Println("Member sign-in is disabled and uploads stay on disk")
	} else {
		if authClient, err := services.FirebaseAuth(ctx, app); err != nil {
			log.Printf("Warning: Firebase auth unavailable: %v", err)
		} else {
			verifier = authClient
			minter = authClient
		}
		if cfg.FirebaseStorageBucket != "" {
			bucket, err := services.FirebaseBucket(ctx, app)
			if err != nil {
				log.Printf("Warning: Firebase storage unavailable, using %s: %v", cfg.UploadDir, err)
			} else {
				fileStore = services.NewBucketFileStore(bucket)
			}
		}
	}

	// Payment gateways
	registry, err := services.GatewaysFromConfig(cfg)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("Payment gateways: %v", registry.SupportedGateways())

	var mailer services.Mailer = services.LogMailer{}
	if cfg.SMTPHost != "" {
		smtpMailer, err := services.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.EmailFrom)
		if err != nil {
			log.Fatalf("Failed to initialize mailer: %v", err)
		}
		mailer = smtpMailer
	} else {
		log.Println("Warning: SMTP_HOST not set, notification emails are only logged")
	}

	hooks := &services.Hooks{}
	payments := services.NewPaymentService(db, registry, cfg.AppURL)
	uploader := services.NewUploader(db, fileStore, cfg.UploadMaxBytes, cfg.UploadAllowedExtensions)
	dispatcher := services.NewDispatcher(db, mailer, fileStore, payments, hooks)

	publicHandler := handlers.NewPublicHandler(db,
		services.NewFormBuilder(registry, hooks),
		services.NewSubmissionProcessor(db, payments, uploader, hooks),
		services.NewCompletionHandler(db, dispatcher),
		cfg.AppURL,
	)
	paymentHandler := handlers.NewPaymentHandler(payments)
	authHandler := handlers.NewAuthHandler(minter, cfg.IsProduction())

	// Create Echo instance
	e := echo.New()
	e.HTTPErrorHandler = appMiddleware.CustomErrorHandler

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(bodyLimit(cfg.UploadMaxBytes)))
	e.Use(appMiddleware.Session(sessions, cfg.SessionTTL, cfg.IsProduction()))
	e.Use(appMiddleware.OptionalAuth(verifier, db))

	// Static file serving
	e.Static("/static", "web/static")

	handlers.RegisterRoutes(e, publicHandler, paymentHandler, authHandler)

	log.Printf("Server starting on port %s", cfg.Port)
	e.Logger.Fatal(e.Start(":" + cfg.Port))
}

// bodyLimit leaves room for the other form values next to the largest upload
func bodyLimit(maxUpload int64) string {
	const headroom = 2 << 20
	return fmt.Sprintf("%dK", (maxUpload+headroom)/1024)
}
