package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"intern-chat/internal/chat"
	"intern-chat/internal/db"
	myMiddleware "intern-chat/internal/middleware"
	"intern-chat/internal/user"
)

func main() {
	// 1. Config & Flags
	godotenv.Load() // best-effort, env vars win

	addr := flag.String("addr", ":8080", "http service address")
	flag.Parse()
	if env := os.Getenv("ADDR"); env != "" && *addr == ":8080" {
		*addr = env
	}

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("❌ DB_DSN is not set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("❌ JWT_SECRET is not set")
	}

	// 2. Connect to Database (Platform Layer)
	database, err := db.NewDatabase(dsn)
	if err != nil {
		log.Fatalf("❌ Failed to connect to DB: %v", err)
	}
	log.Println("✅ Connected to PostgreSQL")

	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	log.Println("✅ Database Schema Initialized")

	// 3. Connect to Redis (optional: unset = single instance)
	var redisClient *redis.Client
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr: redisAddr,
		})
		if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		log.Println("✅ Connected to Redis")
	} else {
		log.Println("⚠️ REDIS_ADDR not set, running single-instance")
	}

	// 4. Initialize User Feature (identity + auth collaborator)
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, jwtSecret)
	userHandler := user.NewHandler(userService)

	// 5. Initialize Chat Feature
	chatStore := chat.NewRepository(database.Conn)
	presence := chat.NewPresence()
	hub := chat.NewHub(redisClient, presence)
	dispatcher := chat.NewDispatcher(chatStore, hub)
	chatHandler := chat.NewHandler(hub, dispatcher)

	// Start the Hub Engines
	go hub.Run()
	go hub.SubscribeToRedis()

	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	// 6. Define Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/api/users/search", userHandler.SearchUsers)
		r.Get("/api/users/{code}", userHandler.Lookup)

		chatHandler.Routes(r)
	})

	log.Printf("🚀 Server starting on %s", *addr)
	if err := http.ListenAndServe(*addr, r); err != nil {
		log.Fatal(err)
	}
}
