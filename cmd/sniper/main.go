package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"sniper/internal/api"
	"sniper/internal/bot"
	"sniper/internal/config"
	"sniper/internal/exchange"
	"sniper/internal/market"
	"sniper/internal/repository"
	"sniper/internal/risk"
	"sniper/internal/scoring"
	"sniper/internal/sizing"
	"sniper/internal/websocket"
	"sniper/pkg/utils"
)

const statusBroadcastInterval = 15 * time.Second

func main() {
	// .env опционален: в production переменные приходят из окружения
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer logger.Sync()

	logger.Info("Starting sniper",
		zap.Strings("symbols", cfg.Trading.Symbols),
		zap.Bool("dry_run", cfg.Trading.DryRun))

	// База данных опциональна: без нее работаем, но история сделок
	// не переживает рестарт
	var tradeRepo *repository.TradeRepository
	if cfg.Database.Enabled {
		db, err := initDatabase(cfg)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		tradeRepo = repository.NewTradeRepository(db)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := tradeRepo.EnsureSchema(ctx); err != nil {
			cancel()
			logger.Fatal("Failed to ensure database schema", zap.Error(err))
		}
		cancel()

		logger.Info("Connected to database",
			zap.String("dsn", cfg.Database.DSNWithoutPassword()))
	} else {
		logger.Warn("Database disabled, trade history will not survive restarts")
	}

	// Биржевой клиент. В dry run без ключей работаем только
	// с публичными endpoints
	ex := exchange.NewBybit()
	if cfg.Exchange.APIKey != "" {
		if err := ex.Connect(cfg.Exchange.APIKey, cfg.Exchange.APISecret); err != nil {
			logger.Fatal("Failed to connect to exchange", zap.Error(err))
		}
		logger.Info("Connected to exchange", zap.String("exchange", ex.GetName()))
	}
	defer ex.Close()

	// Риск-менеджер
	riskCfg := risk.DefaultConfig()
	riskCfg.InitialCapital = cfg.Risk.InitialCapital
	riskCfg.DailyLossLimit = cfg.Risk.DailyLossLimit
	riskCfg.MaxDrawdown = cfg.Risk.MaxDrawdown
	riskCfg.MaxOpenPositions = cfg.Risk.MaxOpenPositions
	riskCfg.StatePath = cfg.Risk.StatePath
	riskMgr := risk.NewManager(riskCfg, logger.Logger)

	// Трекер производительности (Kelly-статистика)
	var store risk.TradeStore
	if tradeRepo != nil {
		store = tradeRepo
	}
	tracker := risk.NewPerformanceTracker(store, logger.Logger)

	// Сборка снапшотов индикаторов
	builderCfg := market.DefaultBuilderConfig()
	builderCfg.Interval = cfg.Trading.Interval
	builderCfg.HigherInterval = cfg.Trading.HigherInterval
	builder := market.NewBuilder(ex, builderCfg, logger)

	// Скоринг и сайзинг
	scorer := scoring.NewScorer(scoring.DefaultConfig())

	sizerCfg := sizing.DefaultConfig()
	sizerCfg.DefaultRiskPct = cfg.Sizing.RiskPct
	sizerCfg.MaxLeverage = cfg.Sizing.MaxLeverage
	sizer := sizing.NewSizer(sizerCfg, logger.Logger)

	// Исполнитель сигналов
	execCfg := bot.DefaultExecutorConfig()
	execCfg.OrderTimeout = cfg.Trading.OrderTimeout
	execCfg.Isolated = cfg.Trading.Isolated
	execCfg.DryRun = cfg.Trading.DryRun
	executor := bot.NewExecutor(ex, riskMgr, sizer, tracker, execCfg, logger.Logger)

	// WebSocket hub для real-time обновлений UI
	hub := websocket.NewHub(logger.Logger)
	go hub.Run()

	// Движок принятия решений
	engineCfg := bot.Config{
		Symbols:        cfg.Trading.Symbols,
		ScanInterval:   cfg.Trading.ScanInterval,
		ReconcileEvery: cfg.Trading.ReconcileEvery,
	}
	engine := bot.NewEngine(engineCfg, ex, builder, scorer, executor, riskMgr, tracker, hub, logger.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := engine.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("Engine stopped with error", zap.Error(err))
		}
	}()

	go broadcastStatus(ctx, hub, riskMgr, tracker, ex, logger)

	// Публичный поток котировок: UI видит цены в реальном времени,
	// не дожидаясь планового тика статуса
	for _, sym := range cfg.Trading.Symbols {
		if err := ex.SubscribeTicker(sym, func(t *exchange.Ticker) {
			hub.BroadcastTicker(t.Symbol, t.BidPrice, t.AskPrice, t.LastPrice)
		}); err != nil {
			logger.Warn("Ticker stream unavailable", zap.Error(err))
			break
		}
	}

	// HTTP API
	deps := &api.Dependencies{
		RiskManager: riskMgr,
		Engine:      engine,
		Tracker:     tracker,
		TradeRepo:   tradeRepo,
		Exchange:    ex,
		Hub:         hub,
		Logger:      logger.Logger,
	}
	router := api.SetupRoutes(deps)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", server.Addr))
		if cfg.Server.UseHTTPS {
			if err := server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil && err != http.ErrServerClosed {
				logger.Fatal("Server failed", zap.Error(err))
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal("Server failed", zap.Error(err))
			}
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")

	// Останавливаем движок до закрытия сервера: начатое размещение
	// ордера довершится
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	hub.Stop()

	logger.Info("Stopped")
}

// broadcastStatus периодически рассылает состояние риска, статистику
// и баланс подключенным WebSocket клиентам
func broadcastStatus(ctx context.Context, hub *websocket.Hub, riskMgr *risk.Manager,
	tracker *risk.PerformanceTracker, ex exchange.Exchange, logger *utils.Logger) {
	ticker := time.NewTicker(statusBroadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if hub.ClientCount() == 0 {
				continue
			}

			snap := riskMgr.Snapshot()
			hub.BroadcastRiskUpdate(&websocket.RiskUpdateData{
				Capital:           snap.Capital,
				PeakCapital:       snap.PeakCapital,
				DailyPnl:          snap.DailyPnl,
				BreakerState:      snap.BreakerState,
				RiskLevel:         snap.RiskLevel,
				OpenPositions:     len(snap.OpenPositions),
				DailyTrades:       snap.DailyTrades,
				ConsecutiveLosses: snap.ConsecutiveLosses,
			})

			stats := tracker.Stats()
			hub.BroadcastStatsUpdate(&stats)

			balanceCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			balance, err := ex.GetBalance(balanceCtx)
			cancel()
			if err != nil {
				logger.Debug("Balance fetch for broadcast failed", zap.Error(err))
				continue
			}
			hub.BroadcastBalanceUpdate(balance.Equity, balance.Available)
		}
	}
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
