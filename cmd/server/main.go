package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/edimy/tutoring-backend/internal/config"
	"github.com/edimy/tutoring-backend/internal/database"
	"github.com/edimy/tutoring-backend/internal/handlers"
	"github.com/edimy/tutoring-backend/internal/metrics"
	"github.com/edimy/tutoring-backend/internal/middleware"
	"github.com/edimy/tutoring-backend/internal/payhere"
	"github.com/edimy/tutoring-backend/internal/services"
	"github.com/edimy/tutoring-backend/internal/session"
	"github.com/edimy/tutoring-backend/pkg/jwt"
	"github.com/edimy/tutoring-backend/pkg/sms"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting Edimy tutoring booking backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Booking sessions live in Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	pingCancel()
	logger.Info("Redis connection established")

	metrics.Register()

	// Repositories
	sessionStore := session.NewRedisStore(redisClient, cfg.Redis.SessionTTL)
	holdRepository := database.NewSlotHoldRepository(db.DB)
	orderRepository := database.NewPaymentOrderRepository(db.DB)
	bookingRepository := database.NewTutorBookingRepository(db.DB)
	auditRepository := database.NewPaymentAuditRepository(db.DB, logger)

	// PayHere
	logger.Info("Initializing PayHere bridge...")
	signer := payhere.NewSigner(cfg.PayHere.MerchantID, cfg.PayHere.MerchantSecret)

	var minter payhere.HashMinter = signer
	if cfg.PayHere.HashEndpoint != "" {
		minter = payhere.NewHashClient(cfg.PayHere.HashEndpoint, cfg.PayHere.HashAuthToken)
		logger.WithField("endpoint", cfg.PayHere.HashEndpoint).Info("Minting payment hashes remotely")
	}

	primaryScript, fallbackScript := cfg.PayHere.ScriptURLs()
	scriptLoader := payhere.NewScriptLoader(primaryScript, fallbackScript, cfg.PayHere.ScriptProbeTimeout, logger)
	go func() {
		if source, err := scriptLoader.EnsureLoaded(context.Background()); err != nil {
			logger.WithError(err).Warn("PayHere checkout script not reachable at startup")
		} else {
			logger.WithField("source", source).Info("PayHere checkout script available")
		}
	}()

	bridge := payhere.NewBridge(payhere.BridgeConfig{
		Sandbox:   cfg.PayHere.Mode == "sandbox",
		ReturnURL: cfg.PayHere.ReturnURL,
		CancelURL: cfg.PayHere.CancelURL,
		NotifyURL: cfg.PayHere.NotifyURL,
	}, scriptLoader, logger)

	// SMS
	var smsSender sms.Sender
	if cfg.SMS.Mode == "production" {
		if cfg.SMS.Method == "api_v2" {
			smsSender = sms.NewDialogGateway(sms.DialogConfig{
				APIURL:   cfg.SMS.APIURL,
				Username: cfg.SMS.Username,
				Password: cfg.SMS.Password,
				Mask:     cfg.SMS.Mask,
			})
		} else {
			smsSender = sms.NewDialogURLGateway(sms.DefaultURLCampaignEndpoint, cfg.SMS.ESMSQK, cfg.SMS.Mask)
		}
	} else {
		smsSender = sms.NewLogSender(logger)
	}
	logger.WithField("sender", smsSender.GetName()).Info("SMS sender configured")

	// Services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	auditService := services.NewAuditService(auditRepository, logger)

	checkoutConfig := services.DefaultCheckoutConfig()
	checkoutConfig.HoldDuration = time.Duration(cfg.Reservation.HoldSeconds) * time.Second
	checkoutConfig.TickInterval = cfg.Reservation.TickInterval
	checkoutConfig.ResultTimeout = cfg.PayHere.ResultTimeout
	checkoutConfig.Currency = cfg.PayHere.Currency

	checkoutService := services.NewCheckoutService(
		services.CheckoutStores{
			Sessions: sessionStore,
			Holds:    holdRepository,
			Orders:   orderRepository,
			Bookings: bookingRepository,
		},
		services.PaymentProviders{
			Minter:   minter,
			Verifier: signer,
			Gateway:  bridge,
			Script:   scriptLoader,
		},
		auditService,
		smsSender,
		checkoutConfig,
		logger,
	)
	bookingSessionService := services.NewBookingSessionService(sessionStore, logger)
	confirmationService := services.NewConfirmationService(bookingRepository, sessionStore, checkoutService, logger)

	paymentLimiter := middleware.NewIPRateLimiter(
		cfg.RateLimit.Requests,
		time.Duration(cfg.RateLimit.WindowSeconds)*time.Second,
		cfg.RateLimit.Burst,
	)

	cronService := services.NewCronService(holdRepository, paymentLimiter, cfg.Reservation.SweepSpec, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}

	// Handlers
	bookingSessionHandler := handlers.NewBookingSessionHandler(bookingSessionService, logger)
	checkoutHandler := handlers.NewCheckoutHandler(checkoutService, cfg.Reservation.TickInterval, logger)
	// The hash route signs locally; PAYHERE_HASH_ENDPOINT only applies to checkout minting
	paymentHandler := handlers.NewPaymentHandler(checkoutService, signer, logger)
	confirmationHandler := handlers.NewConfirmationHandler(confirmationService, logger)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	if cfg.Server.EnableRequestLog {
		router.Use(requestLogger(logger))
	}

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check and metrics
	router.GET("/health", healthCheckHandler(db, redisClient, scriptLoader))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := middleware.AuthMiddleware(jwtService, logger)
	student := middleware.RequireRole("student")
	limit := middleware.RateLimitMiddleware(paymentLimiter, logger)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		booking := v1.Group("/booking")
		booking.Use(auth, student)
		{
			booking.GET("/session", bookingSessionHandler.GetSession)
			booking.PUT("/session", bookingSessionHandler.UpdateSession)
			booking.DELETE("/session", bookingSessionHandler.ResetSession)

			booking.GET("/confirmation/:booking_id", confirmationHandler.GetReceipt)
			booking.POST("/confirmation/:booking_id/finish", confirmationHandler.Finish)
		}

		checkout := v1.Group("/checkout")
		checkout.Use(auth, student)
		{
			checkout.POST("/mount", checkoutHandler.Mount)
			checkout.GET("/state", checkoutHandler.GetState)
			checkout.GET("/countdown", checkoutHandler.Countdown)
			checkout.POST("/pay", limit, checkoutHandler.Pay)
			checkout.DELETE("", checkoutHandler.Unmount)
		}

		payments := v1.Group("/payments")
		{
			// PayHere server-to-server callback (signed, no user token)
			payments.POST("/payhere/notify", paymentHandler.Notify)

			payments.POST("/hash", auth, student, limit, paymentHandler.MintHash)
			payments.POST("/:order_id/dismissed", auth, student, paymentHandler.Dismissed)
			payments.POST("/:order_id/error", auth, student, paymentHandler.Error)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No write timeout: the countdown stream stays open for the whole hold
		IdleTimeout: 60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	// Payments still awaiting a result stay pending; PayHere's notify settles them
	checkoutService.Close()
	cronService.Stop()

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": time.Since(start).Milliseconds(),
			"user_agent": c.Request.UserAgent(),
			"has_auth":   c.GetHeader("Authorization") != "",
		}

		if userCtx, exists := middleware.GetUserContext(c); exists {
			fields["user_id"] = userCtx.UserID
			fields["roles"] = userCtx.Roles
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("Request failed with errors")
			return
		}

		status := c.Writer.Status()
		switch {
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler reports database, Redis and gateway script status
func healthCheckHandler(db database.DB, redisClient *redis.Client, script payhere.ScriptSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		dbStatus, redisStatus := "healthy", "healthy"
		status := http.StatusOK

		if err := db.PingContext(ctx); err != nil {
			dbStatus = "unhealthy"
			status = http.StatusServiceUnavailable
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
			status = http.StatusServiceUnavailable
		}

		overall := "healthy"
		if status != http.StatusOK {
			overall = "unhealthy"
		}

		c.JSON(status, gin.H{
			"status":          overall,
			"database":        dbStatus,
			"redis":           redisStatus,
			"payment_gateway": script.Ready(),
			"version":         version,
			"timestamp":       time.Now().Unix(),
		})
	}
}
