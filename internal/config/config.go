package config

import (
	"os"
)

type Config struct {
	Port        string
	Environment string
	CORSOrigins string
	// Auth (Supabase JWTs verified against the project's JWKS endpoint)
	SupabaseURL     string
	SupabaseJWKSURL string // Constructed from SupabaseURL + /auth/v1/.well-known/jwks.json
	// Database
	DatabaseURL string
	// LLM configuration
	AnthropicAPIKey string
	Model           string
	// Embeddings (Gemini API)
	GeminiAPIKey   string
	EmbeddingModel string
	// Tracing / feedback (LangSmith-compatible API)
	LangSmithAPIKey  string
	LangSmithBaseURL string
	// Prompt templates
	PromptsFile     string
	FallbackPrompts bool // Skip the prompts file and use the built-in templates
	// Debug flags
	Debug bool
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")
	supabaseURL := getEnv("SUPABASE_URL", "")

	// Construct JWKS URL from Supabase URL
	jwksURL := supabaseURL + "/auth/v1/.well-known/jwks.json"

	return &Config{
		Port:            getEnv("PORT", "8080"),
		Environment:     env,
		CORSOrigins:     getEnv("CORS_ORIGINS", "http://localhost:3000"),
		SupabaseURL:     supabaseURL,
		SupabaseJWKSURL: jwksURL,
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		// LLM configuration
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		Model:           getEnv("MODEL", "claude-haiku-4-5-20251001"),
		// Embeddings
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "gemini-embedding-001"),
		// Tracing
		LangSmithAPIKey:  getEnv("LANGSMITH_API_KEY", ""),
		LangSmithBaseURL: getEnv("LANGSMITH_BASE_URL", "https://api.smith.langchain.com"),
		// Prompts
		PromptsFile:     getEnv("PROMPTS_FILE", "prompts.yaml"),
		FallbackPrompts: getEnv("FALLBACK_PROMPTS", "false") == "true",
		// Debug flags - default to true in dev/test, false in production
		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true" // Enable DEBUG in dev/test by default
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
