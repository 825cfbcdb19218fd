// Package server wires services and handlers into the HTTP router.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	"finlink/internal/config"
	"finlink/internal/crypto"
	"finlink/internal/handlers"
	"finlink/internal/middleware"
	"finlink/internal/models"
	"finlink/internal/plaid"
	"finlink/internal/services"
)

// Services is the set of business services the router serves.
type Services struct {
	Users           services.UserServicer
	Audit           services.AuditServicer
	Items           services.ItemServicer
	AccountSync     services.AccountSyncer
	TransactionSync services.TransactionSyncer
	Query           services.QueryServicer
}

// NewServices builds the services on top of db and the provider client.
// Account and transaction syncs share one ItemLocker so the two never run
// against the same item at once.
func NewServices(db *gorm.DB, client plaid.Client, codec *crypto.Codec, plaidCfg config.PlaidConfig) Services {
	locks := services.NewItemLocker()
	accountSync := services.NewAccountSyncService(db, client, codec, locks)
	return Services{
		Users:           services.NewUserService(db),
		Audit:           services.NewAuditService(db),
		Items:           services.NewItemService(db, client, codec, accountSync, plaidCfg),
		AccountSync:     accountSync,
		TransactionSync: services.NewTransactionSyncService(db, client, codec, locks),
		Query:           services.NewQueryService(db),
	}
}

// NewRouter registers every route on a fresh gin engine.
func NewRouter(cfg *config.Config, svc Services) *gin.Engine {
	authHandler := handlers.NewAuthHandler(svc.Users)
	userHandler := handlers.NewUserHandler(svc.Users, svc.Audit)
	itemHandler := handlers.NewItemHandler(svc.Items, svc.AccountSync, svc.Audit)
	queryHandler := handlers.NewQueryHandler(svc.Query)
	syncHandler := handlers.NewSyncHandler(svc.TransactionSync, svc.Audit)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.CORS(cfg.CORSOrigin))
	router.NoRoute(middleware.NotFound())

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check endpoint
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")

	// Public routes
	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	// Scheduler-triggered routes, authenticated by API key
	pipeline := v1.Group("/pipeline")
	pipeline.Use(middleware.PipelineAuthMiddleware(cfg.PipelineAPIKey))
	pipeline.POST("/users/:userId/transaction-syncs", syncHandler.PipelineSyncTransactions)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	protected.GET("/profile", authHandler.GetProfile)

	users := protected.Group("/users")
	users.GET("", middleware.RequireRole(models.RoleAdmin), userHandler.ListUsers)
	users.GET("/me", userHandler.GetMe)
	users.GET("/:id", userHandler.GetUser)
	users.PUT("/:id", userHandler.UpdateUser)
	users.DELETE("/:id", middleware.RequireRole(models.RoleAdmin), userHandler.DeleteUser)

	// Linking
	protected.POST("/link-tokens", itemHandler.CreateLinkToken)
	protected.POST("/sandbox/public-tokens", itemHandler.CreateSandboxPublicToken)
	protected.POST("/token-exchanges", itemHandler.ExchangePublicToken)
	protected.POST("/items/:itemId/account-sync", itemHandler.SyncAccounts)
	protected.DELETE("/items/:itemId", itemHandler.RemoveItem)

	// Linked data
	protected.GET("/accounts", queryHandler.GetAccounts)
	protected.GET("/balances", queryHandler.GetBalances)
	protected.POST("/transaction-syncs", syncHandler.SyncTransactions)
	protected.GET("/transactions", queryHandler.GetTransactions)

	return router
}
