package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"everkind/internal/config"
	"everkind/internal/database"
	"everkind/internal/handlers"
	"everkind/internal/logging"
	"everkind/internal/providers"
	"everkind/internal/services"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting Everkind Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, DB: %s)", cfg.Port, cfg.DatabasePath)

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}

	// Provider registry in priority order. Adapters are stateless and
	// share one pooled HTTP client, constructed on first use.
	registry := map[string]providers.Provider{
		"openai":    providers.NewOpenAI(cfg.OpenAI),
		"anthropic": providers.NewAnthropic(cfg.Anthropic),
		"gemini":    providers.NewGemini(cfg.Gemini),
	}
	var providerList []providers.Provider
	for _, name := range cfg.ProviderPriority {
		if p, ok := registry[name]; ok {
			providerList = append(providerList, p)
			log.Printf("🔌 Provider %s registered (configured: %v)", name, p.IsConfigured())
		} else {
			log.Printf("⚠️  Unknown provider %q in PROVIDER_PRIORITY, skipping", name)
		}
	}

	activityService := services.NewActivityService(db)
	contextService := services.NewContextService(activityService, nil)
	conversationService := services.NewConversationService(db)
	dispatchService := services.NewDispatchService(cfg.ProviderTimeout, providerList...)
	turnService := services.NewTurnService(dispatchService, contextService, conversationService, cfg.MaxReplyTokens, cfg.HistoryTokenBudget)

	app := fiber.New(fiber.Config{
		AppName:      "Everkind",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(logger.New())

	if cfg.MetricsEnabled {
		prometheus := fiberprometheus.New("everkind")
		prometheus.RegisterAt(app, "/metrics")
		app.Use(prometheus.Middleware)
	}

	chatHandler := handlers.NewChatHandler(turnService, conversationService, contextService)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	api := app.Group("/api")
	api.Post("/chat", chatHandler.Chat)
	api.Post("/chat/stream", chatHandler.ChatStream)
	api.Get("/personas", chatHandler.ListPersonas)
	api.Get("/personas/suggest/:userID", chatHandler.SuggestPersona)
	api.Get("/conversations/:userID/:personaID", chatHandler.History)
	api.Post("/sessions/:id/close", chatHandler.CloseSession)

	// Graceful shutdown
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Println("👋 Shutting down...")
		_ = app.Shutdown()
	}()

	log.Printf("✅ Server listening on :%s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Server error: %v", err)
	}
}
