package main

import (
	"log"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/aistore-vn/aistore-api/config"
	"github.com/aistore-vn/aistore-api/controllers"
	"github.com/aistore-vn/aistore-api/middleware"
	"github.com/aistore-vn/aistore-api/models"
	"github.com/aistore-vn/aistore-api/services"
)

func main() {
	// Basic logging
	log.Println("Starting AIStore API server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	config.SetConfig(cfg)

	// Connect to database
	if err := config.ConnectDatabase(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto-migrate database models
	db := config.GetDB()
	if err := db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.Order{},
		&models.OrderItem{},
		&models.SupportMessage{},
	); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database migration completed successfully")

	// Payment provider client
	services.InitPayOSService(cfg)

	// Optional order-event publisher
	if cfg.RabbitMQURL != "" {
		publisher, err := services.NewRabbitEventPublisher(cfg.RabbitMQURL, cfg.EventExchange)
		if err != nil {
			log.Printf("Event publisher unavailable, continuing without events: %v", err)
		} else {
			services.SetEventPublisher(publisher)
			defer publisher.Close()
		}
	}

	// Optional product cache
	if cfg.RedisAddr != "" {
		services.SetRedisClient(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	}

	router := setupRouter(cfg)

	// Start server
	port := ":" + cfg.Port
	log.Printf("Server is running on http://localhost%s", port)
	if err := router.Run(port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// setupRouter builds the Gin engine with CORS, auth middleware and the full
// API v1 route table
func setupRouter(cfg *config.Config) *gin.Engine {
	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsConfig))

	v1 := router.Group("/api/v1")
	{
		// Health check endpoint
		v1.GET("/health", healthCheck)

		// Database status endpoint
		v1.GET("/database/status", databaseStatus)

		// Provider-facing endpoints: the webhook authenticates by signature,
		// and the return-flow code lookup runs before the SPA has a session
		v1.POST("/payos/webhook", controllers.HandleWebhook)
		v1.GET("/payos/order-by-code/:code", controllers.GetOrderByCode)

		authed := v1.Group("")
		authed.Use(middleware.EnsureValidToken(cfg))
		{
			// Profile
			authed.POST("/users", controllers.CreateUser)
			authed.GET("/users/me", controllers.GetMyProfile)
			authed.PUT("/users/me", controllers.UpdateMyProfile)

			// Orders
			authed.POST("/orders", controllers.CreateOrder)
			authed.GET("/orders", controllers.ListOrders)
			authed.GET("/orders/:id", controllers.GetOrder)
			authed.POST("/orders/:id/items/:itemId/feedback", controllers.SubmitItemFeedback)

			// Support thread
			authed.GET("/orders/:id/messages", controllers.ListMessages)
			authed.POST("/orders/:id/messages", controllers.SendMessage)

			// Payment
			authed.POST("/payos/create-payment", controllers.CreatePaymentLink)
			authed.GET("/payos/payment-info/:id", controllers.GetPaymentInfo)

			// Admin
			admin := authed.Group("/admin")
			admin.Use(middleware.RequireAdmin())
			{
				admin.GET("/orders", controllers.ListAllOrders)
				admin.PUT("/orders/:id/confirm", controllers.ConfirmOrder)
				admin.PUT("/orders/:id/processing", controllers.StartProcessingOrder)
				admin.PUT("/orders/:id/complete", controllers.CompleteOrder)
				admin.PUT("/orders/:id/cancel", controllers.CancelOrder)
				admin.PATCH("/orders/:id/notes", controllers.UpdateAdminNotes)
			}
		}
	}

	return router
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "AIStore API is running",
	})
}

// databaseStatus checks database connectivity and returns table information
func databaseStatus(c *gin.Context) {
	db := config.GetDB()

	// Get the underlying SQL database to check connection
	sqlDB, err := db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to get database instance",
			},
		})
		return
	}

	// Ping the database to verify connection
	if err := sqlDB.Ping(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_CONNECTION_ERROR",
				"message": "Database connection failed",
			},
		})
		return
	}

	// Get list of tables
	var tables []string
	if err := db.Raw("SELECT tablename FROM pg_tables WHERE schemaname = 'public'").Scan(&tables).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_QUERY_ERROR",
				"message": "Failed to query tables",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Database connected",
		"tables":  tables,
	})
}
