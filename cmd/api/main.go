package main

import (
	"fmt"
	"os"

	"finlink/internal/config"
	"finlink/internal/crypto"
	"finlink/internal/database"
	"finlink/internal/logger"
	"finlink/internal/plaid"
	"finlink/internal/server"
	"finlink/internal/validator"

	_ "finlink/internal/docs" // Import swagger docs
)

// @title           finlink API
// @version         1.0
// @description     finlink links bank institutions through Plaid and keeps accounts, balances and transactions in sync.

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := appConfig.Validate(); err != nil {
		return err
	}

	// Create database manager
	dbManager, err := database.NewManager(appConfig.DSN(), "migrations")
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	defer func() {
		if err := dbManager.Close(); err != nil {
			log.Warnf("failed to close database: %v", err)
		}
	}()

	// Run migrations
	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	codec, err := crypto.NewCodec(appConfig.EncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize token codec: %w", err)
	}

	baseURL, err := plaid.BaseURL(appConfig.Plaid.Env)
	if err != nil {
		return err
	}
	plaidClient := plaid.NewHTTPClient(baseURL, appConfig.Plaid.ClientID, appConfig.Plaid.Secret, appConfig.Plaid.Timeout, nil)

	validator.Register()

	svc := server.NewServices(dbManager.DB(), plaidClient, codec, appConfig.Plaid)
	router := server.NewRouter(appConfig, svc)

	if appConfig.PipelineAPIKey == "" {
		log.Warn("PIPELINE_API_KEY not set; pipeline endpoints will return 503")
	}

	log.Infof("Starting finlink server on port %s (plaid env: %s)", appConfig.Port, appConfig.Plaid.Env)
	log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
	return router.Run(":" + appConfig.Port)
}
