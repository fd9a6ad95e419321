package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Хосты FIX шлюза биржи
const (
	FIXProdHost = "fix.elections.kalshi.com"
	FIXDemoHost = "fix.demo.kalshi.co"

	// 8228 - без ретрансмиссии (KalshiNR), 8230 - с ретрансмиссией (KalshiRT)
	FIXPortNoRetransmit   = 8228
	FIXPortWithRetransmit = 8230
)

// Режимы транспорта ордеров
const (
	ModeREST            = "rest"
	ModeFIX             = "fix"
	ModeFIXWithFallback = "fix-with-rest-fallback"
)

// Config содержит всю конфигурацию шлюза
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	API       APIConfig
	FIX       FIXConfig
	Transport TransportConfig
}

// ServerConfig - настройки ops HTTP сервера
type ServerConfig struct {
	Host         string
	Port         int
	PasswordHash string // bcrypt хеш пароля для мутирующих endpoints
}

// DatabaseConfig - подключение к журналу ордеров
type DatabaseConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// DSN собирает строку подключения lib/pq
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode)
}

// APIConfig - настройки HTTP торгового API (REST транспорт)
type APIConfig struct {
	BaseURL        string
	KeyID          string        // идентификатор API ключа (UUID)
	PrivateKeyPath string        // PEM с приватным RSA ключом для подписи
	Timeout        time.Duration // общий таймаут HTTP операции
	RateLimit      float64       // запросов в секунду
	RateBurst      float64
}

// FIXConfig - настройки FIX сессии к бирже
type FIXConfig struct {
	Host              string
	Port              int
	SenderCompID      string // UUID API ключа оператора; обязателен для FIX
	TargetCompID      string
	BeginString       string
	HeartbeatInterval int // секунды
	ResetOnLogon      bool
	ReconnectInterval int    // секунды
	SSLEnabled        bool   // plain TCP биржа не принимает
	StorePath         string // каталог для sequence numbers (пусто = temp)
	UseDemo           bool
}

// TransportConfig - выбор транспорта ордеров
type TransportConfig struct {
	Mode         string        // rest | fix | fix-with-rest-fallback
	OrderTimeout time.Duration // дедлайн ожидания ответа на операцию
	LogonTimeout time.Duration // ожидание логона при старте
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	useDemo := getEnvAsBool("FIX_USE_DEMO", false)

	fixHost := FIXProdHost
	apiBase := "https://api.elections.kalshi.com/trade-api/v2"
	if useDemo {
		fixHost = FIXDemoHost
		apiBase = "https://demo-api.kalshi.co/trade-api/v2"
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			PasswordHash: getEnv("API_PASSWORD_HASH", ""),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "kalshigw"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		API: APIConfig{
			BaseURL:        getEnv("API_BASE_URL", apiBase),
			KeyID:          getEnv("API_KEY_ID", ""),
			PrivateKeyPath: getEnv("API_PRIVATE_KEY_PATH", ""),
			Timeout:        getEnvAsDuration("API_TIMEOUT", 10*time.Second),
			RateLimit:      getEnvAsFloat("API_RATE_LIMIT", 10),
			RateBurst:      getEnvAsFloat("API_RATE_BURST", 20),
		},
		FIX: FIXConfig{
			Host:              getEnv("FIX_HOST", fixHost),
			Port:              getEnvAsInt("FIX_PORT", FIXPortNoRetransmit),
			SenderCompID:      getEnv("FIX_SENDER_COMP_ID", getEnv("API_KEY_ID", "")),
			TargetCompID:      getEnv("FIX_TARGET_COMP_ID", "KalshiNR"),
			BeginString:       getEnv("FIX_BEGIN_STRING", "FIXT.1.1"),
			HeartbeatInterval: getEnvAsInt("FIX_HEARTBEAT_INTERVAL", 30),
			ResetOnLogon:      getEnvAsBool("FIX_RESET_ON_LOGON", true),
			ReconnectInterval: getEnvAsInt("FIX_RECONNECT_INTERVAL", 5),
			SSLEnabled:        getEnvAsBool("FIX_SSL_ENABLED", true),
			StorePath:         getEnv("FIX_STORE_PATH", ""),
			UseDemo:           useDemo,
		},
		Transport: TransportConfig{
			Mode:         getEnv("TRANSPORT_MODE", ModeREST),
			OrderTimeout: getEnvAsDuration("ORDER_TIMEOUT", 5*time.Second),
			LogonTimeout: getEnvAsDuration("FIX_LOGON_TIMEOUT", 10*time.Second),
		},
	}

	// Порт 8230 обслуживается другим TargetCompID
	if cfg.FIX.Port == FIXPortWithRetransmit && os.Getenv("FIX_TARGET_COMP_ID") == "" {
		cfg.FIX.TargetCompID = "KalshiRT"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Transport.Mode {
	case ModeREST, ModeFIX, ModeFIXWithFallback:
	default:
		return fmt.Errorf("invalid TRANSPORT_MODE: %q", c.Transport.Mode)
	}
	if c.Transport.OrderTimeout <= 0 {
		return fmt.Errorf("ORDER_TIMEOUT must be positive")
	}
	if !c.FIX.SSLEnabled && c.Transport.Mode != ModeREST {
		return fmt.Errorf("FIX_SSL_ENABLED=false is not supported: the exchange rejects plain TCP")
	}
	return nil
}

// ============================================================
// Env helpers
// ============================================================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
