package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jewelshop-api/cache"
	"jewelshop-api/database"
	"jewelshop-api/handlers"
	"jewelshop-api/kafka"
	"jewelshop-api/middleware"
	"jewelshop-api/storage"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize database
	db, err := database.InitDB(logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Initialize Redis cache
	redisClient, err := cache.InitRedis(logger)
	if err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer redisClient.Close()

	// Initialize Kafka producer
	producer, err := kafka.InitProducer(logger)
	if err != nil {
		logger.Fatal("Failed to initialize Kafka producer", zap.Error(err))
	}
	defer producer.Close()
	publisher := kafka.NewPublisher(producer, logger)

	// Initialize Kafka consumer (payment worker)
	consumer, err := kafka.InitConsumer(logger)
	if err != nil {
		logger.Fatal("Failed to initialize Kafka consumer", zap.Error(err))
	}
	defer consumer.Close()

	go func() {
		if err := kafka.StartConsumer(consumer, db, publisher, logger); err != nil {
			logger.Error("Kafka consumer error", zap.Error(err))
		}
	}()

	// Initialize OpenTelemetry
	shutdownTracing, err := middleware.InitTracing("jewelshop-api")
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	// Initialize image file store
	fileStore, err := storage.NewFileStore(getEnv("UPLOAD_DIR", "uploads"))
	if err != nil {
		logger.Fatal("Failed to initialize file store", zap.Error(err))
	}

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	// OpenTelemetry middleware must be first to extract trace context
	router.Use(otelgin.Middleware("jewelshop-api"))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())

	// Health check endpoint
	router.GET("/health", handlers.HealthCheck)

	// Metrics endpoint
	router.GET("/metrics", middleware.PrometheusHandler())

	authHandler := handlers.NewAuthHandler(db, logger)
	productHandler := handlers.NewProductHandler(db, redisClient, logger)
	cartHandler := handlers.NewCartHandler(db, logger)
	orderHandler := handlers.NewOrderHandler(db, redisClient, publisher, logger)
	imageHandler := handlers.NewImageHandler(db, fileStore, redisClient, logger)

	api := router.Group("/api")

	// Auth endpoints
	auth := api.Group("/auth")
	auth.POST("/signup", authHandler.Signup)
	auth.POST("/signin", authHandler.Signin)
	auth.GET("/me", middleware.AuthMiddleware(), authHandler.GetProfile)

	// Catalog reads are public; mutations are admin-only
	products := api.Group("/products")
	products.GET("", productHandler.GetProducts)
	products.GET("/search", productHandler.SearchProducts)
	products.GET("/:id", productHandler.GetProduct)
	productsAdmin := products.Group("", middleware.AuthMiddleware(), middleware.RequireRole("ADMIN"))
	productsAdmin.POST("", productHandler.CreateProduct)
	productsAdmin.PUT("/:id", productHandler.UpdateProduct)
	productsAdmin.DELETE("/:id", productHandler.DeleteProduct)

	// Cart endpoints
	cart := api.Group("/cart", middleware.AuthMiddleware(), middleware.RequireRole("USER"))
	cart.GET("", cartHandler.GetCart)
	cart.POST("/add/:productId", cartHandler.AddToCart)
	cart.PUT("/update/:itemId", cartHandler.UpdateCartItem)
	cart.DELETE("/remove/:itemId", cartHandler.RemoveFromCart)
	cart.DELETE("/clear", cartHandler.ClearCart)

	// Order endpoints
	orders := api.Group("/orders", middleware.AuthMiddleware())
	orders.POST("", middleware.RequireRole("USER"), orderHandler.CreateOrder)
	orders.GET("", middleware.RequireRole("USER", "ADMIN"), orderHandler.GetUserOrders)
	orders.GET("/all", middleware.RequireRole("ADMIN"), orderHandler.GetAllOrders)
	orders.GET("/:id", middleware.RequireRole("USER", "ADMIN"), orderHandler.GetOrder)
	orders.PUT("/:id/status", middleware.RequireRole("ADMIN"), orderHandler.UpdateOrderStatus)

	// Image endpoints
	images := api.Group("/images")
	images.GET("/:fileName", imageHandler.GetImage)
	images.POST("/upload/:productId", middleware.AuthMiddleware(), middleware.RequireRole("ADMIN"), imageHandler.UploadImage)
	images.DELETE("/:productId", middleware.AuthMiddleware(), middleware.RequireRole("ADMIN"), imageHandler.DeleteImage)

	// Start server
	srv := &http.Server{
		Addr:    ":" + getEnv("PORT", "8080"),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("jewelshop-api started", zap.String("addr", srv.Addr))

	gracefulShutdown(srv, db, redisClient, shutdownTracing, logger)
}

// gracefulShutdown handles SIGINT/SIGTERM and shuts down all services gracefully
func gracefulShutdown(
	srv *http.Server,
	db *sql.DB,
	redisClient *redis.Client,
	shutdownTracing func(),
	logger *zap.Logger,
) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown signal received. Exiting...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	} else {
		logger.Info("Server stopped gracefully")
	}

	if err := db.Close(); err != nil {
		logger.Error("Failed to close database", zap.Error(err))
	} else {
		logger.Info("Database connection closed gracefully")
	}

	if err := redisClient.Close(); err != nil {
		logger.Error("Failed to close Redis cache", zap.Error(err))
	} else {
		logger.Info("Redis cache closed gracefully")
	}

	shutdownTracing()
	logger.Info("jewelshop-api exited gracefully")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
