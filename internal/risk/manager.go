package risk

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"sniper/internal/models"
	"sniper/pkg/utils"
)

// manager.go - stateful гейткипер капитала
//
// Manager владеет единственной межцикловой мутабельной записью (State)
// и отвечает на вопрос "можно ли сейчас открыть сделку размера X".
// Все мутации - под одним мьютексом, после каждой - синхронная запись
// на диск. Отказ в сделке - ожидаемый исход, а не ошибка: причина
// возвращается строкой.

// Ошибки реестра позиций
var (
	ErrPositionExists   = errors.New("position already open for symbol")
	ErrPositionNotFound = errors.New("no open position for symbol")
)

// Причины отказа (машиночитаемые, попадают в события решений)
const (
	ReasonBreakerOpen      = "circuit breaker is OPEN"
	ReasonCooldown         = "cooldown active"
	ReasonDrawdownLimit    = "max drawdown limit reached"
	ReasonDailyLossLimit   = "daily loss limit reached"
	ReasonMaxPositions     = "max open positions reached"
	ReasonSymbolOpen       = "position already open for symbol"
	ReasonNotionalTooLarge = "notional exceeds max position fraction"
	ReasonVolatilitySpike  = "volatility ratio above cutoff"
	ReasonHalfOpenProbe    = "allowed: half-open probation, next loss re-opens breaker"
)

// Config - параметры защиты капитала
type Config struct {
	InitialCapital       float64       // стартовый капитал если нет сохранённого состояния
	DailyLossLimit       float64       // доля капитала, 0.05 = 5%
	MaxDrawdown          float64       // доля от пика, 0.15 = 15%
	MaxOpenPositions     int           // одновременно открытых позиций
	MaxPositionFraction  float64       // макс доля капитала в одной позиции
	MinPositionFraction  float64       // нижняя граница adjusted fraction
	VolatilityCutoff     float64       // отсечка current/normal волатильности
	MaxConsecutiveLosses int           // убытков подряд до кулдауна
	CooldownDuration     time.Duration // длительность кулдауна
	StatePath            string        // путь к файлу состояния
}

// DefaultConfig возвращает консервативные параметры по умолчанию
func DefaultConfig() Config {
	return Config{
		InitialCapital:       10000,
		DailyLossLimit:       0.05,
		MaxDrawdown:          0.15,
		MaxOpenPositions:     3,
		MaxPositionFraction:  0.30,
		MinPositionFraction:  0.005,
		VolatilityCutoff:     2.0,
		MaxConsecutiveLosses: 3,
		CooldownDuration:     60 * time.Minute,
		StatePath:            "risk_state.json",
	}
}

// Manager - единственный владелец RiskState
type Manager struct {
	mu     sync.RWMutex
	cfg    Config
	state  *State
	store  *stateStore
	logger *zap.Logger

	// переопределяется в тестах для контроля времени
	now func() time.Time
}

// NewManager создает менеджера, загружая сохранённое состояние.
// Повреждённый или отсутствующий файл не фатален: стартуем с
// InitialCapital и предупреждением в логе.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	m := &Manager{
		cfg:    cfg,
		store:  newStateStore(cfg.StatePath),
		logger: logger.With(zap.String("component", "risk_manager")),
		now:    time.Now,
	}

	state, err := m.store.Load()
	if err != nil {
		m.logger.Warn("Failed to load risk state, starting fresh",
			zap.Error(err),
			zap.Float64("initial_capital", cfg.InitialCapital))
		state = newState(cfg.InitialCapital, m.today())
	} else {
		m.logger.Info("Risk state restored",
			zap.Float64("capital", state.Capital),
			zap.String("breaker", state.BreakerState),
			zap.Int("open_positions", len(state.OpenPositions)))
	}
	m.state = state
	return m
}

func (m *Manager) today() string {
	return utils.DayKey(m.now())
}

// CanOpenTrade проверяет, допустима ли сейчас сделка.
// Порядок проверок фиксирован: breaker -> cooldown -> drawdown ->
// дневной убыток -> лимит позиций -> дубликат символа -> размер ->
// волатильность. Проверки drawdown и дневного убытка при нарушении
// дополнительно переводят breaker в OPEN.
func (m *Manager) CanOpenTrade(symbol string, notionalUSD, currentVol, normalVol float64) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rolloverDayLocked()

	if m.state.BreakerState == BreakerOpen {
		return false, ReasonBreakerOpen
	}

	if m.state.CooldownUntil != nil {
		if m.now().Before(*m.state.CooldownUntil) {
			remaining := m.state.CooldownUntil.Sub(m.now()).Round(time.Second)
			return false, fmt.Sprintf("%s (%s remaining)", ReasonCooldown, remaining)
		}
		// Кулдаун истёк: серия убытков прощена
		m.state.CooldownUntil = nil
		m.state.ConsecutiveLosses = 0
		m.persistLocked()
		m.logger.Info("Cooldown expired, trading resumed")
	}

	if dd := m.state.Drawdown(); dd >= m.cfg.MaxDrawdown {
		m.tripBreakerLocked(fmt.Sprintf("drawdown %.2f%% >= limit %.2f%%", dd*100, m.cfg.MaxDrawdown*100))
		return false, ReasonDrawdownLimit
	}

	if dl := m.state.DailyLossFraction(); dl >= m.cfg.DailyLossLimit {
		m.tripBreakerLocked(fmt.Sprintf("daily loss %.2f%% >= limit %.2f%%", dl*100, m.cfg.DailyLossLimit*100))
		return false, ReasonDailyLossLimit
	}

	if len(m.state.OpenPositions) >= m.cfg.MaxOpenPositions {
		return false, fmt.Sprintf("%s (%d/%d)", ReasonMaxPositions, len(m.state.OpenPositions), m.cfg.MaxOpenPositions)
	}

	if _, open := m.state.OpenPositions[symbol]; open {
		return false, ReasonSymbolOpen
	}

	if maxNotional := m.state.Capital * m.cfg.MaxPositionFraction; notionalUSD > maxNotional {
		return false, fmt.Sprintf("%s (%.2f > %.2f)", ReasonNotionalTooLarge, notionalUSD, maxNotional)
	}

	if normalVol > 0 && currentVol/normalVol > m.cfg.VolatilityCutoff {
		return false, fmt.Sprintf("%s (%.2fx)", ReasonVolatilitySpike, currentVol/normalVol)
	}

	if m.state.BreakerState == BreakerHalfOpen {
		return true, ReasonHalfOpenProbe
	}
	return true, ""
}

// RegisterPosition добавляет позицию в реестр открытых.
// Инвариант: не более одной позиции на символ.
func (m *Manager) RegisterPosition(symbol, side string, entryPrice, notional float64, score int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, open := m.state.OpenPositions[symbol]; open {
		return fmt.Errorf("%w: %s", ErrPositionExists, symbol)
	}

	m.state.OpenPositions[symbol] = models.OpenPosition{
		Symbol:     symbol,
		Side:       side,
		EntryPrice: entryPrice,
		Notional:   notional,
		Score:      score,
		OpenedAt:   m.now(),
	}
	m.persistLocked()

	m.logger.Info("Position registered",
		zap.String("symbol", symbol),
		zap.String("side", side),
		zap.Float64("entry", entryPrice),
		zap.Float64("notional", notional),
		zap.Int("score", score))
	return nil
}

// ClosePosition убирает позицию из реестра и применяет PnL к капиталу
// ровно один раз. Обновляет дневные счётчики, серию убытков, состояние
// breaker (HALF_OPEN разрешается исходом этой сделки) и уровень риска.
func (m *Manager) ClosePosition(symbol string, exitPrice, pnl float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, open := m.state.OpenPositions[symbol]; !open {
		return fmt.Errorf("%w: %s", ErrPositionNotFound, symbol)
	}
	delete(m.state.OpenPositions, symbol)

	m.rolloverDayLocked()

	m.state.Capital += pnl
	if m.state.Capital > m.state.PeakCapital {
		m.state.PeakCapital = m.state.Capital
	}
	m.state.DailyPnl += pnl
	m.state.DailyTrades++

	if pnl > 0 {
		m.state.DailyWins++
		m.state.ConsecutiveLosses = 0
		m.state.CooldownUntil = nil
		// Выигрыш в испытательном режиме закрывает breaker
		if m.state.BreakerState == BreakerHalfOpen {
			m.transitionLocked(BreakerClosed, "winning trade in half-open probation")
		}
	} else if pnl < 0 {
		m.state.DailyLosses++
		m.state.ConsecutiveLosses++
		// Убыток в испытательном режиме снова открывает breaker
		if m.state.BreakerState == BreakerHalfOpen {
			m.transitionLocked(BreakerOpen, "losing trade in half-open probation")
		}
		if m.state.ConsecutiveLosses >= m.cfg.MaxConsecutiveLosses && m.state.CooldownUntil == nil {
			until := m.now().Add(m.cfg.CooldownDuration)
			m.state.CooldownUntil = &until
			m.logger.Warn("Cooldown activated",
				zap.Int("consecutive_losses", m.state.ConsecutiveLosses),
				zap.Time("until", until))
		}
	}

	// Пробой лимита останавливает торговлю сразу, не дожидаясь
	// следующего вызова CanOpenTrade
	if m.state.BreakerState != BreakerOpen &&
		(m.state.Drawdown() >= m.cfg.MaxDrawdown || m.state.DailyLossFraction() >= m.cfg.DailyLossLimit) {
		m.transitionLocked(BreakerOpen, "capital protection limit breached")
	}

	m.recomputeRiskLevelLocked()
	m.persistLocked()

	m.logger.Info("Position closed",
		zap.String("symbol", symbol),
		zap.Float64("exit", exitPrice),
		zap.Float64("pnl", pnl),
		zap.Float64("capital", m.state.Capital),
		zap.String("risk_level", m.state.RiskLevel))
	return nil
}

// GetAdjustedPositionFraction масштабирует предложенную долю риска
// по текущему уровню риска и серии убытков.
func (m *Manager) GetAdjustedPositionFraction(baseFraction float64) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	adjusted := baseFraction * LevelMultiplier(m.state.RiskLevel)

	// Штраф за серию убытков: -15% за каждый, но не ниже 0.3 от базы
	if n := m.state.ConsecutiveLosses; n > 0 {
		penalty := 1 - float64(n)*0.15
		if penalty < 0.3 {
			penalty = 0.3
		}
		adjusted *= penalty
	}

	if adjusted <= 0 {
		return 0
	}
	if adjusted < m.cfg.MinPositionFraction {
		adjusted = m.cfg.MinPositionFraction
	}
	if adjusted > m.cfg.MaxPositionFraction {
		adjusted = m.cfg.MaxPositionFraction
	}
	return adjusted
}

// Snapshot возвращает копию текущего состояния для UI/API
func (m *Manager) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	copied := *m.state
	copied.OpenPositions = make(map[string]models.OpenPosition, len(m.state.OpenPositions))
	for k, v := range m.state.OpenPositions {
		copied.OpenPositions[k] = v
	}
	if m.state.CooldownUntil != nil {
		until := *m.state.CooldownUntil
		copied.CooldownUntil = &until
	}
	return copied
}

// OpenPositionsList возвращает открытые позиции
func (m *Manager) OpenPositionsList() []models.OpenPosition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.OpenPosition, 0, len(m.state.OpenPositions))
	for _, p := range m.state.OpenPositions {
		out = append(out, p)
	}
	return out
}

// ResetBreaker - ручной сброс оператором: breaker в CLOSED,
// серия убытков и кулдаун обнуляются. Капитал не трогаем.
func (m *Manager) ResetBreaker() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.BreakerState = BreakerClosed
	m.state.ConsecutiveLosses = 0
	m.state.CooldownUntil = nil
	if m.state.RiskLevel == LevelEmergency {
		m.state.RiskLevel = LevelNormal
	}
	m.recomputeRiskLevelLocked()
	m.persistLocked()
	m.logger.Warn("Circuit breaker manually reset")
}

// SetEmergency переводит менеджера в аварийный режим (panic close):
// все новые входы запрещены до ручного сброса.
func (m *Manager) SetEmergency(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.RiskLevel = LevelEmergency
	if m.state.BreakerState != BreakerOpen {
		m.transitionLocked(BreakerOpen, "emergency: "+reason)
	}
	m.persistLocked()
	m.logger.Error("EMERGENCY mode activated", zap.String("reason", reason))
}

// Capital возвращает текущий капитал
func (m *Manager) Capital() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Capital
}

// ============ внутренние методы (вызываются под mu.Lock) ============

// rolloverDayLocked сбрасывает дневные счётчики на границе календарного
// дня. OPEN breaker при этом переходит в HALF_OPEN: новый день - один
// испытательный шанс.
func (m *Manager) rolloverDayLocked() {
	today := m.today()
	if today == m.state.LastResetDate {
		return
	}

	m.logger.Info("Daily risk counters reset",
		zap.String("previous_date", m.state.LastResetDate),
		zap.Float64("daily_pnl", m.state.DailyPnl))

	m.state.LastResetDate = today
	m.state.DailyPnl = 0
	m.state.DailyTrades = 0
	m.state.DailyWins = 0
	m.state.DailyLosses = 0
	m.state.DayStartCapital = m.state.Capital

	if m.state.BreakerState == BreakerOpen {
		m.transitionLocked(BreakerHalfOpen, "new trading day")
	}
	m.recomputeRiskLevelLocked()
	m.persistLocked()
}

// tripBreakerLocked переводит breaker в OPEN
func (m *Manager) tripBreakerLocked(cause string) {
	if m.state.BreakerState == BreakerOpen {
		return
	}
	m.transitionLocked(BreakerOpen, cause)
	m.recomputeRiskLevelLocked()
	m.persistLocked()
}

// transitionLocked выполняет переход breaker с проверкой допустимости
func (m *Manager) transitionLocked(to, cause string) {
	from := m.state.BreakerState
	if !CanTransition(from, to) {
		m.logger.Error("Invalid breaker transition attempted",
			zap.String("from", from),
			zap.String("to", to),
			zap.String("cause", cause))
		return
	}
	m.state.BreakerState = to
	m.logger.Warn("Circuit breaker transition",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("cause", cause))
}

// recomputeRiskLevelLocked пересчитывает уровень риска по близости
// к лимитам. EMERGENCY снимается только ручным сбросом.
func (m *Manager) recomputeRiskLevelLocked() {
	if m.state.RiskLevel == LevelEmergency {
		return
	}

	dd := m.state.Drawdown()
	dl := m.state.DailyLossFraction()

	ddFrac := 0.0
	if m.cfg.MaxDrawdown > 0 {
		ddFrac = dd / m.cfg.MaxDrawdown
	}
	dlFrac := 0.0
	if m.cfg.DailyLossLimit > 0 {
		dlFrac = dl / m.cfg.DailyLossLimit
	}
	worst := ddFrac
	if dlFrac > worst {
		worst = dlFrac
	}

	switch {
	case worst >= 1.0:
		m.state.RiskLevel = LevelCritical
	case worst >= 0.7:
		m.state.RiskLevel = LevelHigh
	case worst >= 0.4:
		m.state.RiskLevel = LevelElevated
	default:
		m.state.RiskLevel = LevelNormal
	}
}

// persistLocked синхронно пишет состояние на диск.
// Ошибка записи не блокирует торговлю: логируем и продолжаем в памяти,
// следующая мутация повторит попытку.
func (m *Manager) persistLocked() {
	if err := m.store.Save(m.state); err != nil {
		m.logger.Error("Failed to persist risk state", zap.Error(err))
	}
}
