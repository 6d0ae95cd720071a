package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all process-wide configuration. It is built once in main and
// passed into the services at wiring time; nothing reads the environment after
// startup.
type Config struct {
	OpenAIAPIKey   string
	AssistantID    string
	AllowedOrigins []string
	TeamDataPath   string
	Port           string
}

// defaultOrigins mirrors the deployed portfolio plus local test origins.
var defaultOrigins = []string{
	"https://matheussilvano.github.io",
	"http://127.0.0.1:5500",
	"http://localhost",
	"http://localhost:8080",
}

// Load reads the .env file (if present) and then the process environment.
// OPENAI_API_KEY and ASSISTANT_ID are mandatory; everything else has a
// default.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables.")
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	assistantID := os.Getenv("ASSISTANT_ID")
	if apiKey == "" || assistantID == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY and ASSISTANT_ID environment variables must be set")
	}

	cfg := &Config{
		OpenAIAPIKey:   apiKey,
		AssistantID:    assistantID,
		AllowedOrigins: defaultOrigins,
		TeamDataPath:   "data/team.json",
		Port:           "8080",
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitOrigins(origins)
	}
	if path := os.Getenv("TEAM_DATA_PATH"); path != "" {
		cfg.TeamDataPath = path
	}
	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	return cfg, nil
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
