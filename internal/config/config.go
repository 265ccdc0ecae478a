package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"sniper/pkg/crypto"
	"sniper/pkg/utils"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Exchange ExchangeConfig
	Trading  TradingConfig
	Risk     RiskConfig
	Sizing   SizingConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - настройки подключения к БД
//
// БД опциональна: без нее бот работает, но история сделок
// не переживает рестарт (Kelly-статистика начинается заново).
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// ExchangeConfig - настройки подключения к бирже
//
// API ключи можно хранить двумя способами:
//   - открытым текстом: BYBIT_API_KEY / BYBIT_API_SECRET
//   - зашифрованными AES-256-GCM: BYBIT_API_KEY_ENCRYPTED /
//     BYBIT_API_SECRET_ENCRYPTED + ENCRYPTION_KEY (32 байта)
//
// Зашифрованный вариант имеет приоритет.
type ExchangeConfig struct {
	Name      string
	APIKey    string
	APISecret string
}

// TradingConfig - параметры торгового цикла
type TradingConfig struct {
	Symbols        []string      // вселенная символов
	ScanInterval   time.Duration // период цикла сканирования
	ReconcileEvery int           // каждые N циклов сверять позиции с биржей
	Interval       string        // рабочий таймфрейм свечей
	HigherInterval string        // старший таймфрейм для трендового фильтра
	OrderTimeout   time.Duration // таймаут на размещение ордера
	Isolated       bool          // изолированная маржа
	DryRun         bool          // не отправлять реальные ордера
}

// RiskConfig - переопределения параметров риск-менеджера.
// Остальные параметры берутся из risk.DefaultConfig().
type RiskConfig struct {
	InitialCapital   float64
	DailyLossLimit   float64
	MaxDrawdown      float64
	MaxOpenPositions int
	StatePath        string
}

// SizingConfig - переопределения параметров расчета размера позиции
type SizingConfig struct {
	RiskPct     float64 // базовый риск на сделку, % от капитала
	MaxLeverage int
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Enabled:  getEnvAsBool("DB_ENABLED", false),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "sniper"),
			User:     getEnv("DB_USER", "sniper"),
			Password: getEnv("DB_PASSWORD", ""),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Exchange: ExchangeConfig{
			Name: getEnv("EXCHANGE", "bybit"),
		},
		Trading: TradingConfig{
			Symbols:        getEnvAsSlice("TRADING_SYMBOLS", []string{"BTCUSDT", "ETHUSDT"}),
			ScanInterval:   getEnvAsDuration("SCAN_INTERVAL", time.Minute),
			ReconcileEvery: getEnvAsInt("RECONCILE_EVERY", 1),
			Interval:       getEnv("CANDLE_INTERVAL", "15m"),
			HigherInterval: getEnv("HIGHER_INTERVAL", "4h"),
			OrderTimeout:   getEnvAsDuration("ORDER_TIMEOUT", 10*time.Second),
			Isolated:       getEnvAsBool("ISOLATED_MARGIN", true),
			DryRun:         getEnvAsBool("DRY_RUN", false),
		},
		Risk: RiskConfig{
			InitialCapital:   getEnvAsFloat("INITIAL_CAPITAL", 10000),
			DailyLossLimit:   getEnvAsFloat("DAILY_LOSS_LIMIT", 0.05),
			MaxDrawdown:      getEnvAsFloat("MAX_DRAWDOWN", 0.15),
			MaxOpenPositions: getEnvAsInt("MAX_OPEN_POSITIONS", 3),
			StatePath:        getEnv("RISK_STATE_PATH", "risk_state.json"),
		},
		Sizing: SizingConfig{
			RiskPct:     getEnvAsFloat("RISK_PCT", 2.0),
			MaxLeverage: getEnvAsInt("MAX_LEVERAGE", 5),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", ""),
		},
	}

	if err := cfg.loadAPICredentials(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadAPICredentials загружает API ключи биржи, расшифровывая
// их при необходимости
func (c *Config) loadAPICredentials() error {
	c.Exchange.APIKey = os.Getenv("BYBIT_API_KEY")
	c.Exchange.APISecret = os.Getenv("BYBIT_API_SECRET")

	encKey := os.Getenv("BYBIT_API_KEY_ENCRYPTED")
	encSecret := os.Getenv("BYBIT_API_SECRET_ENCRYPTED")
	if encKey == "" && encSecret == "" {
		return nil
	}

	masterKey := os.Getenv("ENCRYPTION_KEY")
	if len(masterKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes to decrypt API credentials")
	}

	if encKey != "" {
		key, err := crypto.DecryptWithKeyString(encKey, masterKey)
		if err != nil {
			return fmt.Errorf("failed to decrypt BYBIT_API_KEY_ENCRYPTED: %w", err)
		}
		c.Exchange.APIKey = key
	}

	if encSecret != "" {
		secret, err := crypto.DecryptWithKeyString(encSecret, masterKey)
		if err != nil {
			return fmt.Errorf("failed to decrypt BYBIT_API_SECRET_ENCRYPTED: %w", err)
		}
		c.Exchange.APISecret = secret
	}

	return nil
}

// validate проверяет критичные параметры конфигурации
func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Enabled {
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
		}
	}

	// Без ключей можно работать только в dry run
	if !c.Trading.DryRun {
		if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
			return fmt.Errorf("BYBIT_API_KEY and BYBIT_API_SECRET are required unless DRY_RUN=true")
		}
		if err := utils.ValidateAPIKey(c.Exchange.APIKey); err != nil {
			return fmt.Errorf("BYBIT_API_KEY: %w", err)
		}
		if err := utils.ValidateAPISecret(c.Exchange.APISecret); err != nil {
			return fmt.Errorf("BYBIT_API_SECRET: %w", err)
		}
	}

	if len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("TRADING_SYMBOLS must contain at least one symbol")
	}
	for i, symbol := range c.Trading.Symbols {
		if err := utils.ValidateSymbol(symbol); err != nil {
			return fmt.Errorf("TRADING_SYMBOLS[%d]: %w", i, err)
		}
		c.Trading.Symbols[i] = utils.NormalizeSymbol(symbol)
	}

	if c.Trading.ScanInterval <= 0 {
		return fmt.Errorf("SCAN_INTERVAL must be positive, got %v", c.Trading.ScanInterval)
	}

	if c.Trading.OrderTimeout <= 0 {
		return fmt.Errorf("ORDER_TIMEOUT must be positive, got %v", c.Trading.OrderTimeout)
	}

	if c.Risk.InitialCapital <= 0 {
		return fmt.Errorf("INITIAL_CAPITAL must be positive, got %v", c.Risk.InitialCapital)
	}

	if c.Risk.DailyLossLimit <= 0 || c.Risk.DailyLossLimit >= 1 {
		return fmt.Errorf("DAILY_LOSS_LIMIT must be a fraction in (0, 1), got %v", c.Risk.DailyLossLimit)
	}

	if c.Risk.MaxDrawdown <= 0 || c.Risk.MaxDrawdown >= 1 {
		return fmt.Errorf("MAX_DRAWDOWN must be a fraction in (0, 1), got %v", c.Risk.MaxDrawdown)
	}

	if c.Risk.MaxOpenPositions < 1 {
		return fmt.Errorf("MAX_OPEN_POSITIONS must be at least 1, got %d", c.Risk.MaxOpenPositions)
	}

	if c.Sizing.RiskPct <= 0 || c.Sizing.RiskPct > 10 {
		return fmt.Errorf("RISK_PCT must be in (0, 10], got %v", c.Sizing.RiskPct)
	}

	if c.Sizing.MaxLeverage < 1 || c.Sizing.MaxLeverage > 100 {
		return fmt.Errorf("MAX_LEVERAGE must be between 1 and 100, got %d", c.Sizing.MaxLeverage)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
