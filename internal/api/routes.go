package api

import (
	"net/http"

	"sniper/internal/api/handlers"
	"sniper/internal/api/middleware"
	"sniper/internal/bot"
	"sniper/internal/exchange"
	"sniper/internal/repository"
	"sniper/internal/risk"
	"sniper/internal/websocket"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	RiskManager *risk.Manager
	Engine      *bot.Engine
	Tracker     *risk.PerformanceTracker
	TradeRepo   *repository.TradeRepository // nil если БД не настроена
	Exchange    exchange.Exchange
	Hub         *websocket.Hub
	Logger      *zap.Logger
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Назначение:
// Центральное место для определения всех API endpoints.
// Регистрирует handlers для каждого маршрута.
// Применяет middleware к группам маршрутов.
// Организует версионирование API (v1).
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /risk/
//	│   ├── GET /state - текущее состояние риск-менеджера
//	│   ├── POST /reset - ручной сброс circuit breaker
//	│   └── POST /panic - экстренное закрытие всех позиций
//	├── /decisions/
//	│   └── GET / - последние события решений
//	├── /positions/
//	│   └── GET / - открытые позиции
//	├── /balance/
//	│   └── GET / - баланс на бирже
//	├── /performance/
//	│   └── GET / - статистика торговли (winrate, profit factor)
//	└── /trades/
//	    └── GET / - история закрытых сделок
//
// /ws/
//
//	└── /stream - WebSocket для real-time обновлений
//
// /metrics - Prometheus метрики
// /health - health check
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. APITokenAuth (для /api/v1)
// 5. AdminAuth (только для управляющих endpoints)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	logger := zap.NewNop()
	if deps != nil && deps.Logger != nil {
		logger = deps.Logger
	}

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logging(logger))
	router.Use(middleware.CORS)

	// Создание handlers с внедрением зависимостей
	var riskHandler *handlers.RiskHandler
	if deps != nil && deps.RiskManager != nil {
		var closer handlers.PanicCloser
		if deps.Engine != nil {
			closer = deps.Engine
		}
		riskHandler = handlers.NewRiskHandler(deps.RiskManager, closer)
	}

	var decisionHandler *handlers.DecisionHandler
	if deps != nil && deps.Engine != nil {
		decisionHandler = handlers.NewDecisionHandler(deps.Engine)
	}

	var positionHandler *handlers.PositionHandler
	if deps != nil && deps.RiskManager != nil {
		var balances handlers.BalanceSource
		if deps.Exchange != nil {
			balances = deps.Exchange
		}
		positionHandler = handlers.NewPositionHandler(deps.RiskManager, balances)
	}

	var performanceHandler *handlers.PerformanceHandler
	if deps != nil && deps.Tracker != nil {
		var trades handlers.TradeSource
		if deps.TradeRepo != nil {
			trades = deps.TradeRepo
		}
		performanceHandler = handlers.NewPerformanceHandler(deps.Tracker, trades)
	}

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.APITokenAuth)

	// Risk routes (управляющие endpoints под AdminAuth)
	if riskHandler != nil {
		api.HandleFunc("/risk/state", riskHandler.GetState).Methods("GET")

		control := api.PathPrefix("/risk").Subrouter()
		control.Use(middleware.AdminAuth)
		control.HandleFunc("/reset", riskHandler.ResetBreaker).Methods("POST")
		control.HandleFunc("/panic", riskHandler.PanicClose).Methods("POST")
	}

	// Decision routes
	if decisionHandler != nil {
		api.HandleFunc("/decisions", decisionHandler.GetDecisions).Methods("GET")
	}

	// Position routes
	if positionHandler != nil {
		api.HandleFunc("/positions", positionHandler.GetPositions).Methods("GET")
		api.HandleFunc("/balance", positionHandler.GetBalance).Methods("GET")
	}

	// Performance routes
	if performanceHandler != nil {
		api.HandleFunc("/performance", performanceHandler.GetPerformance).Methods("GET")
		api.HandleFunc("/trades", performanceHandler.GetTrades).Methods("GET")
	}

	// WebSocket route
	if deps != nil && deps.Hub != nil {
		hub := deps.Hub
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(hub, w, r)
		})
	}

	// Prometheus metrics
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
