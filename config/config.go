package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	AlpacaConfig       AlpacaConfig       `json:"alpaca"`
	TradingConfig      TradingConfig      `json:"trading"`
	ServerConfig       ServerConfig       `json:"server"`
	NotificationConfig NotificationConfig `json:"notification"`
	LoggingConfig      LoggingConfig      `json:"logging"`
}

// AlpacaConfig holds the brokerage API connection settings. BaseURL is the
// trading host (paper or live), DataURL the market-data host.
type AlpacaConfig struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	BaseURL   string `json:"base_url"`
	DataURL   string `json:"data_url"`
	MockMode  bool   `json:"mock_mode"` // Use the in-memory broker instead of the live API
}

type TradingConfig struct {
	CheckMarketClock     bool          `json:"check_market_clock"`
	CancelEntryOnTimeout bool          `json:"cancel_entry_on_timeout"`
	ExitStrategy         string        `json:"exit_strategy"` // "discrete_legs" or "native_bracket"
	FillMaxAttempts      int           `json:"fill_max_attempts"`
	FillInterval         time.Duration `json:"fill_interval"`
	SupervisorInterval   time.Duration `json:"supervisor_interval"`
	SupervisorMaxPolls   int           `json:"supervisor_max_polls"`
	SupervisorMaxTime    time.Duration `json:"supervisor_max_time"`
	SupervisorMaxErrors  int           `json:"supervisor_max_errors"`
}

type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // DEBUG, INFO, WARN, ERROR
	Output     string `json:"output"`      // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format"` // Output as JSON
}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Alpaca config
	cfg.AlpacaConfig.APIKey = getEnvOrDefault("ALPACA_API_KEY", cfg.AlpacaConfig.APIKey)
	cfg.AlpacaConfig.SecretKey = getEnvOrDefault("ALPACA_SECRET_KEY", cfg.AlpacaConfig.SecretKey)
	cfg.AlpacaConfig.BaseURL = getEnvOrDefault("ALPACA_BASE_URL", cfg.AlpacaConfig.BaseURL)
	if cfg.AlpacaConfig.BaseURL == "" {
		cfg.AlpacaConfig.BaseURL = "https://paper-api.alpaca.markets"
	}
	cfg.AlpacaConfig.DataURL = getEnvOrDefault("ALPACA_DATA_URL", cfg.AlpacaConfig.DataURL)
	if cfg.AlpacaConfig.DataURL == "" {
		cfg.AlpacaConfig.DataURL = "https://data.alpaca.markets"
	}
	cfg.AlpacaConfig.MockMode = getEnvOrDefault("MOCK_MODE", "false") == "true"

	// Trading config
	cfg.TradingConfig.CheckMarketClock = getEnvOrDefault("TRADING_CHECK_MARKET_CLOCK", "true") == "true"
	cfg.TradingConfig.CancelEntryOnTimeout = getEnvOrDefault("TRADING_CANCEL_ENTRY_ON_TIMEOUT", "false") == "true"
	cfg.TradingConfig.ExitStrategy = getEnvOrDefault("TRADING_EXIT_STRATEGY", "discrete_legs")
	cfg.TradingConfig.FillMaxAttempts = getEnvIntOrDefault("TRADING_FILL_MAX_ATTEMPTS", 10)
	cfg.TradingConfig.FillInterval = getEnvDurationOrDefault("TRADING_FILL_INTERVAL", time.Second)
	cfg.TradingConfig.SupervisorInterval = getEnvDurationOrDefault("TRADING_SUPERVISOR_INTERVAL", 5*time.Second)
	cfg.TradingConfig.SupervisorMaxPolls = getEnvIntOrDefault("TRADING_SUPERVISOR_MAX_POLLS", 2000)
	cfg.TradingConfig.SupervisorMaxTime = getEnvDurationOrDefault("TRADING_SUPERVISOR_MAX_TIME", 24*time.Hour)
	cfg.TradingConfig.SupervisorMaxErrors = getEnvIntOrDefault("TRADING_SUPERVISOR_MAX_ERRORS", 5)

	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", 8080)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", "0.0.0.0")
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", "*")
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", 30)
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", 30)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10)

	// Notification config
	cfg.NotificationConfig.Enabled = getEnvOrDefault("NOTIFICATIONS_ENABLED", "false") == "true"
	cfg.NotificationConfig.Telegram.Enabled = getEnvOrDefault("TELEGRAM_ENABLED", "false") == "true"
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Discord.Enabled = getEnvOrDefault("DISCORD_ENABLED", "false") == "true"
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "INFO")
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", "stdout")
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
}

// Validate rejects configurations that cannot place orders.
func (c *Config) Validate() error {
	if !c.AlpacaConfig.MockMode {
		if c.AlpacaConfig.APIKey == "" || c.AlpacaConfig.SecretKey == "" {
			return fmt.Errorf("alpaca api_key and secret_key are required unless mock_mode is enabled")
		}
	}
	if c.TradingConfig.FillMaxAttempts <= 0 {
		return fmt.Errorf("fill_max_attempts must be positive, got %d", c.TradingConfig.FillMaxAttempts)
	}
	if c.TradingConfig.SupervisorInterval <= 0 {
		return fmt.Errorf("supervisor_interval must be positive, got %v", c.TradingConfig.SupervisorInterval)
	}
	return nil
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GenerateSampleConfig writes a commented starter config.json.
func GenerateSampleConfig(filename string) error {
	sample := Config{
		AlpacaConfig: AlpacaConfig{
			BaseURL:  "https://paper-api.alpaca.markets",
			DataURL:  "https://data.alpaca.markets",
			MockMode: true,
		},
		TradingConfig: TradingConfig{
			CheckMarketClock:    true,
			ExitStrategy:        "discrete_legs",
			FillMaxAttempts:     10,
			FillInterval:        time.Second,
			SupervisorInterval:  5 * time.Second,
			SupervisorMaxPolls:  2000,
			SupervisorMaxTime:   24 * time.Hour,
			SupervisorMaxErrors: 5,
		},
		ServerConfig: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			AllowedOrigins:  "*",
			ReadTimeout:     30,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
	}

	data, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding sample config: %w", err)
	}
	return os.WriteFile(filename, data, 0644)
}
