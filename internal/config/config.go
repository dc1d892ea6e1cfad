package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config aggregates every setting the service needs.
type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Chat    ChatConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	backend := loadBackendConfig()

	chat, err := loadChatConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Backend: backend, Chat: chat}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Allow passing ":8080" or "127.0.0.1:8080" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// BackendConfig describes how to reach the PocketBase instance.
//
// URL is the server-internal base address; PublicURL is what browsers are
// told to use. The two differ when the service reaches PocketBase over a
// different network path than browsers do (compose networks, sidecars).
type BackendConfig struct {
	URL             string
	PublicURL       string
	AuthCookieName  string
	ServiceIdentity string
	ServiceSecret   string
}

// ServiceSessionEnabled reports whether service-account credentials were
// provided for the shared session.
func (c BackendConfig) ServiceSessionEnabled() bool {
	return c.ServiceIdentity != "" && c.ServiceSecret != ""
}

func loadBackendConfig() BackendConfig {
	url := getEnvOrDefault("POCKETBASE_URL", "http://127.0.0.1:8090")

	return BackendConfig{
		URL:             strings.TrimRight(url, "/"),
		PublicURL:       strings.TrimRight(getEnvOrDefault("PUBLIC_POCKETBASE_URL", url), "/"),
		AuthCookieName:  getEnvOrDefault("AUTH_COOKIE_NAME", "pb_auth"),
		ServiceIdentity: strings.TrimSpace(os.Getenv("SERVICE_ACCOUNT_IDENTITY")),
		ServiceSecret:   strings.TrimSpace(os.Getenv("SERVICE_ACCOUNT_SECRET")),
	}
}

// ChatConfig describes the remote completion endpoint.
type ChatConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Temperature    *float64
	MaxTokens      *int
	StreamResponse bool
}

// Enabled reports whether completion endpoint credentials are present.
func (c ChatConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

func loadChatConfig() (ChatConfig, error) {
	temperature, err := parseOptionalFloatEnv("OPENROUTER_TEMPERATURE")
	if err != nil {
		return ChatConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("OPENROUTER_MAX_TOKENS")
	if err != nil {
		return ChatConfig{}, err
	}

	stream, err := parseBoolEnv("OPENROUTER_STREAM", true)
	if err != nil {
		return ChatConfig{}, err
	}

	return ChatConfig{
		APIKey:         strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")),
		BaseURL:        strings.TrimRight(getEnvOrDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"), "/"),
		Model:          getEnvOrDefault("OPENROUTER_MODEL", "openai/gpt-4o-mini"),
		Temperature:    temperature,
		MaxTokens:      maxTokens,
		StreamResponse: stream,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
