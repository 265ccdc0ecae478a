package utils

// validator.go - валидация данных
//
// Назначение:
// Проверка корректности входных данных перед использованием
// в торговых операциях и конфигурации.
//
// Функции:
// - ValidateSymbol: проверка формата символа (BTCUSDT)
// - NormalizeSymbol: приведение символа к каноническому виду
// - ValidateVolume: проверка объема (> 0)
// - ValidateLeverage: проверка плеча (1..100)
// - ValidatePercentage: проверка процента [0..100]
// - ValidateAPIKey / ValidateAPISecret: базовая проверка ключей
//
// Возвращает error с описанием проблемы или nil

import (
	"errors"
	"fmt"
	"strings"
)

// Сентинельные ошибки валидации
var (
	ErrInvalidSymbol     = errors.New("invalid symbol format")
	ErrInvalidVolume     = errors.New("invalid volume")
	ErrInvalidLeverage   = errors.New("invalid leverage")
	ErrInvalidPercentage = errors.New("invalid percentage")
	ErrInvalidAPIKey     = errors.New("invalid API key")
	ErrInvalidAPISecret  = errors.New("invalid API secret")
	ErrInvalidExchange   = errors.New("unsupported exchange")
)

// SupportedExchanges - список поддерживаемых бирж
var SupportedExchanges = []string{"bybit"}

// Известные котируемые валюты для разбора символа
var knownQuotes = []string{"USDT", "USDC", "BTC", "ETH"}

// ValidateSymbol проверяет формат торгового символа.
// Допускаются буквы, цифры и разделители -, _, /.
// Длина от 2 до 30 символов.
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidSymbol)
	}
	if len(symbol) < 2 || len(symbol) > 30 {
		return fmt.Errorf("%w: length must be 2..30, got %d", ErrInvalidSymbol, len(symbol))
	}

	for _, r := range symbol {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		isSeparator := r == '-' || r == '_' || r == '/'
		if !isLetter && !isDigit && !isSeparator {
			return fmt.Errorf("%w: illegal character %q", ErrInvalidSymbol, r)
		}
	}

	return nil
}

// NormalizeSymbol приводит символ к каноническому виду: BTCUSDT.
// Убирает разделители и переводит в верхний регистр.
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(symbol)
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "/", "")
	return s
}

// ExtractBaseCurrency извлекает базовую валюту из символа.
// "BTCUSDT" -> "BTC", "ETH_BTC" -> "ETH"
func ExtractBaseCurrency(symbol string) string {
	s := NormalizeSymbol(symbol)
	for _, quote := range knownQuotes {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return s[:len(s)-len(quote)]
		}
	}
	return s
}

// ExtractQuoteCurrency извлекает котируемую валюту из символа.
// "BTCUSDT" -> "USDT", "ETHBTC" -> "BTC"
func ExtractQuoteCurrency(symbol string) string {
	s := NormalizeSymbol(symbol)
	for _, quote := range knownQuotes {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return quote
		}
	}
	return ""
}

// ValidateVolume проверяет объём ордера.
// Допустимый диапазон: (0, 1e9]
func ValidateVolume(volume float64) error {
	if volume <= 0 {
		return fmt.Errorf("%w: must be positive, got %v", ErrInvalidVolume, volume)
	}
	if volume > 1e9 {
		return fmt.Errorf("%w: too large, got %v", ErrInvalidVolume, volume)
	}
	return nil
}

// ValidateLeverage проверяет плечо.
// Допустимый диапазон: [1, 100]
func ValidateLeverage(leverage int) error {
	if leverage < 1 {
		return fmt.Errorf("%w: must be >= 1, got %d", ErrInvalidLeverage, leverage)
	}
	if leverage > 100 {
		return fmt.Errorf("%w: must be <= 100, got %d", ErrInvalidLeverage, leverage)
	}
	return nil
}

// ValidatePercentage проверяет процентное значение [0, 100]
func ValidatePercentage(pct float64) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("%w: must be in [0, 100], got %v", ErrInvalidPercentage, pct)
	}
	return nil
}

// ValidateAPIKey проверяет формат API ключа.
// Минимум 16 символов: буквы, цифры, -, _.
func ValidateAPIKey(apiKey string) error {
	if len(apiKey) < 16 {
		return fmt.Errorf("%w: too short", ErrInvalidAPIKey)
	}
	for _, r := range apiKey {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		if !isLetter && !isDigit && r != '-' && r != '_' {
			return fmt.Errorf("%w: illegal character", ErrInvalidAPIKey)
		}
	}
	return nil
}

// ValidateAPISecret проверяет формат API секрета.
// Минимум 16 символов, содержимое не ограничиваем.
func ValidateAPISecret(secret string) error {
	if len(secret) < 16 {
		return fmt.Errorf("%w: too short", ErrInvalidAPISecret)
	}
	return nil
}

// ValidateExchange проверяет, что биржа поддерживается
func ValidateExchange(exchange string) error {
	normalized := NormalizeExchange(exchange)
	for _, e := range SupportedExchanges {
		if normalized == e {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidExchange, exchange)
}

// NormalizeExchange приводит имя биржи к каноническому виду
func NormalizeExchange(exchange string) string {
	return strings.ToLower(strings.TrimSpace(exchange))
}

// GetSupportedExchanges возвращает копию списка поддерживаемых бирж
func GetSupportedExchanges() []string {
	result := make([]string, len(SupportedExchanges))
	copy(result, SupportedExchanges)
	return result
}

// ============================================================
// Агрегация ошибок валидации
// ============================================================

// ValidationError описывает одну ошибку валидации поля
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors - набор ошибок валидации
type ValidationErrors []ValidationError

// Add добавляет ошибку с текстовым описанием
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, ValidationError{Field: field, Message: message})
}

// AddError добавляет ошибку если err != nil
func (v *ValidationErrors) AddError(field string, err error) {
	if err == nil {
		return
	}
	*v = append(*v, ValidationError{Field: field, Message: err.Error()})
}

// HasErrors возвращает true если есть хотя бы одна ошибка
func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

// Error реализует интерфейс error
func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return strings.Join(parts, "; ")
}

// ============================================================
// Булевы хелперы
// ============================================================

// IsValidSymbol возвращает true если символ корректен
func IsValidSymbol(symbol string) bool {
	return ValidateSymbol(symbol) == nil
}

// IsValidAPIKey возвращает true если API ключ корректен
func IsValidAPIKey(apiKey string) bool {
	return ValidateAPIKey(apiKey) == nil
}

// IsValidExchange возвращает true если биржа поддерживается
func IsValidExchange(exchange string) bool {
	return ValidateExchange(exchange) == nil
}
