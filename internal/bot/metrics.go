package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики торгового ядра
// ============================================================
//
// Использование:
// - Grafana дашборды для визуализации
// - Alertmanager для уведомлений о проблемах
// - Анализ качества сигналов и отказов в production

// ============ Метрики цикла сканирования ============

// ScanCycleDuration - длительность полного цикла сканирования
var ScanCycleDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "sniper",
		Subsystem: "engine",
		Name:      "scan_cycle_duration_seconds",
		Help:      "Duration of a full symbol scan cycle in seconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	},
)

// SnapshotBuildErrors - ошибки сборки снапшота по символам
var SnapshotBuildErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sniper",
		Subsystem: "engine",
		Name:      "snapshot_build_errors_total",
		Help:      "Number of failed indicator snapshot builds",
	},
	[]string{"symbol"},
)

// ============ Метрики сигналов и решений ============

// SignalsGenerated - сигналы, прошедшие порог конфлюэнса
var SignalsGenerated = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sniper",
		Subsystem: "scoring",
		Name:      "signals_generated_total",
		Help:      "Number of signals that passed the confluence threshold",
	},
	[]string{"symbol", "direction", "regime"},
)

// ConfluenceObserved - наблюдаемый процент конфлюэнса
var ConfluenceObserved = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "sniper",
		Subsystem: "scoring",
		Name:      "confluence_percent",
		Help:      "Observed confluence percentage per evaluation",
		Buckets:   []float64{10, 20, 30, 40, 50, 55, 60, 65, 70, 80, 90},
	},
	[]string{"symbol"},
)

// DecisionsTotal - решения по итогам исполнения
var DecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sniper",
		Subsystem: "engine",
		Name:      "decisions_total",
		Help:      "Total decision outcomes",
	},
	[]string{"result"}, // executed, rejected, no_signal
)

// RejectionsTotal - отказы по причинам
var RejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sniper",
		Subsystem: "risk",
		Name:      "rejections_total",
		Help:      "Trade rejections grouped by reason",
	},
	[]string{"reason"},
)

// ============ Метрики исполнения ============

// OrderExecutionLatency - время исполнения ордера на бирже
var OrderExecutionLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "sniper",
		Subsystem: "execution",
		Name:      "order_latency_ms",
		Help:      "Time to place an order on the exchange in milliseconds",
		Buckets:   []float64{50, 100, 200, 300, 500, 1000, 2000, 5000},
	},
	[]string{"symbol", "side"},
)

// TradesTotal - общее количество сделок
var TradesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sniper",
		Subsystem: "execution",
		Name:      "trades_total",
		Help:      "Total number of executed trades",
	},
	[]string{"symbol", "direction"},
)

// StopEnforcements - принудительные установки SL/TP после входа
var StopEnforcements = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sniper",
		Subsystem: "execution",
		Name:      "stop_enforcements_total",
		Help:      "Times SL/TP had to be re-applied after order placement",
	},
	[]string{"symbol"},
)

// PnlTotal - суммарный реализованный PNL в USDT.
// Gauge, а не counter: убыточные сделки уводят значение вниз.
var PnlTotal = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "sniper",
		Subsystem: "execution",
		Name:      "pnl_total_usdt",
		Help:      "Total realized PnL in USDT",
	},
)

// ============ Метрики состояния риска ============

// BreakerState - состояние circuit breaker (0=CLOSED, 1=HALF_OPEN, 2=OPEN)
var BreakerState = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "sniper",
		Subsystem: "risk",
		Name:      "breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	},
)

// Capital - текущий капитал
var Capital = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "sniper",
		Subsystem: "risk",
		Name:      "capital_usdt",
		Help:      "Current tracked capital in USDT",
	},
)

// OpenPositions - количество открытых позиций
var OpenPositions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "sniper",
		Subsystem: "risk",
		Name:      "open_positions",
		Help:      "Current number of open positions",
	},
)

// DailyPnl - дневной PNL
var DailyPnl = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "sniper",
		Subsystem: "risk",
		Name:      "daily_pnl_usdt",
		Help:      "Realized PnL since day start in USDT",
	},
)

// ExchangeBalance - баланс на бирже
var ExchangeBalance = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "sniper",
		Subsystem: "exchange",
		Name:      "balance_usdt",
		Help:      "Exchange balance in USDT",
	},
	[]string{"kind"}, // equity, available
)

// ============ Вспомогательные функции ============

// RecordDecision записывает исход решения
func RecordDecision(result, reason string) {
	DecisionsTotal.WithLabelValues(result).Inc()
	if reason != "" {
		RejectionsTotal.WithLabelValues(reason).Inc()
	}
}

// RecordSignal записывает сгенерированный сигнал
func RecordSignal(symbol, direction, regime string) {
	SignalsGenerated.WithLabelValues(symbol, direction, regime).Inc()
}

// UpdateRiskGauges обновляет гейджи состояния риска
func UpdateRiskGauges(breakerState string, capital, dailyPnl float64, openPositions int) {
	switch breakerState {
	case "OPEN":
		BreakerState.Set(2)
	case "HALF_OPEN":
		BreakerState.Set(1)
	default:
		BreakerState.Set(0)
	}
	Capital.Set(capital)
	DailyPnl.Set(dailyPnl)
	OpenPositions.Set(float64(openPositions))
}

// UpdateExchangeBalance обновляет метрики баланса биржи
func UpdateExchangeBalance(equity, available float64) {
	ExchangeBalance.WithLabelValues("equity").Set(equity)
	ExchangeBalance.WithLabelValues("available").Set(available)
}
