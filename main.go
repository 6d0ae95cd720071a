package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms/openai"

	"github/msilvano/assistant/config"
	"github/msilvano/assistant/controller"
	"github/msilvano/assistant/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: Invalid configuration: %v", err)
	}

	httpClient := &http.Client{
		Timeout: 90 * time.Second,
	}

	openaiClient := services.NewOpenAIClient(httpClient, "", cfg.OpenAIAPIKey)
	assistantService := services.NewAssistantService(openaiClient, cfg.AssistantID)
	assistantController := controller.NewAssistantController(assistantService)

	// The dataset is optional: when it is missing the local-query mode
	// degrades to a per-request error instead of blocking startup.
	dataset, err := services.LoadTeamDataset(cfg.TeamDataPath)
	if err != nil {
		log.Printf("WARN: team dataset unavailable, /consulta-atlas will reject requests: %v", err)
	}

	llm, err := openai.New(
		openai.WithToken(cfg.OpenAIAPIKey),
		openai.WithModel("gpt-4o-mini"),
	)
	if err != nil {
		log.Fatalf("FATAL: Failed to create completion client: %v", err)
	}

	teamService := services.NewTeamService(llm, dataset)
	teamController := controller.NewTeamController(teamService)

	// Setup Gin router
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"*"},
		AllowCredentials: true,
	}))
	router.Use(requestID())

	// Liveness endpoints, kept out of any API documentation.
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Career Assistant API is running."})
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "Career Assistant API",
			"version": "1.0.0",
		})
	})

	router.POST("/ask", assistantController.Ask)
	router.POST("/ask/stream", assistantController.AskStream)
	router.POST("/consulta-atlas", teamController.ConsultaAtlas)

	// Start the Server
	log.Printf("Go Gin backend server starting on http://localhost:%s", cfg.Port)
	log.Printf("API endpoints:")
	log.Printf("  POST http://localhost:%s/ask", cfg.Port)
	log.Printf("  POST http://localhost:%s/ask/stream", cfg.Port)
	log.Printf("  POST http://localhost:%s/consulta-atlas", cfg.Port)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("FATAL: Failed to start server: %v", err)
	}
}

// requestID tags every request with an id so proxies and logs can correlate
// a streamed response with its request.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}
