package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/skilsnap/backend/docs"
	"github.com/skilsnap/backend/internal/config"
	"github.com/skilsnap/backend/internal/database"
	"github.com/skilsnap/backend/internal/feed"
	"github.com/skilsnap/backend/internal/handlers"
	mW "github.com/skilsnap/backend/internal/middleware"
	"github.com/skilsnap/backend/internal/services"
)

// @title SkilSnap Backend API
// @version 1.0
// @description API for the SkilSnap skill-sharing video platform
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

	// Set environment variable prefix
	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")
	viper.BindEnv("search.api_key", "SEARCH_API_KEY")
	viper.BindEnv("search.base_url", "SEARCH_BASE_URL")
	viper.BindEnv("search.api_host", "SEARCH_API_HOST")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "SkilSnap Backend API"
	docs.SwaggerInfo.Description = "API for the SkilSnap skill-sharing video platform"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	appCfg := config.LoadAppConfig()
	hub := feed.NewHub()

	ledgerService := services.NewCoinLedgerService(db, hub, appCfg)
	videoService := services.NewVideoService(db, hub, ledgerService, appCfg)
	profileService := services.NewProfileService(db, hub)
	authService := services.NewAuthService(db, redisClient, appCfg)
	hireService := services.NewHireService(db, ledgerService, appCfg)
	searchService := services.NewSearchService(redisClient, videoService)
	voiceService := services.NewVoiceSearchService(searchService)
	defer voiceService.Close()
	qrService := services.NewQRService(db, redisClient, appCfg.QRShareTimeout)
	qrHandler := handlers.NewQRHandler(qrService, profileService)
	streamHandler := handlers.NewStreamHandler(hub, videoService, profileService)

	authMiddleware := mW.AuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// Static file server for thumbnails
	r.Handle("/static/thumbnails/*", http.StripPrefix("/static/thumbnails/",
		mW.StaticFileServer("./static/thumbnails")))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// SSE endpoints stay outside the request timeout; they hold their
		// connections open until the client disconnects.
		r.Get("/feed/stream", streamHandler.FeedStream)
		r.Get("/profiles/{userId}/stream", streamHandler.ProfileStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			// Public endpoints (no auth required)
			r.Post("/auth/register", authService.Register)
			r.Post("/auth/login", authService.Login)
			r.Post("/auth/logout", authService.Logout)
			r.Post("/auth/request-otp", authService.RequestOTP)
			r.Post("/auth/verify-otp", authService.VerifyOTP)

			r.Get("/feed", videoService.GetFeed)
			r.Get("/videos/{videoId}", videoService.GetVideo)
			r.Get("/profiles/{userId}", profileService.GetProfile)

			r.Get("/discover", searchService.Discover)
			r.Get("/discover/search", searchService.DiscoverSearch)
			r.Get("/discover/trending", searchService.Trending)

			// Protected endpoints (auth required)
			r.Group(func(r chi.Router) {
				r.Use(authMiddleware)

				r.Get("/auth/account", authService.GetUserAccount)

				r.Get("/profiles/me", profileService.GetMyProfile)
				r.Post("/profiles", profileService.CreateProfile)
				r.Put("/profiles/me", profileService.UpdateProfile)

				r.Post("/videos", videoService.CreateVideo)
				r.Post("/videos/import", searchService.ImportVideo)
				r.Post("/videos/{videoId}/like", videoService.LikeVideo)
				r.Post("/videos/{videoId}/tip", videoService.TipVideo)

				r.Post("/hire", hireService.CreateHire)
				r.Get("/hire/incoming", hireService.ListIncoming)
				r.Get("/hire/outgoing", hireService.ListOutgoing)
				r.Post("/hire/{id}/accept", hireService.AcceptHire)
				r.Post("/hire/{id}/decline", hireService.DeclineHire)

				r.Post("/qr/generate", qrHandler.GenerateQR)
				r.Post("/qr/scan", qrHandler.ScanQR)

				r.Post("/discover/voice", voiceService.VoiceSearch)
			})
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server. WriteTimeout stays unset so SSE streams are not cut off.
	server := &http.Server{
		Addr:        ":" + port,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
