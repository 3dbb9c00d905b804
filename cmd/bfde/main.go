package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/skalibog/bfde/internal/analysis/metaai"
	"github.com/skalibog/bfde/internal/analysis/patterns"
	signalgen "github.com/skalibog/bfde/internal/analysis/signal"
	"github.com/skalibog/bfde/internal/config"
	"github.com/skalibog/bfde/internal/exchange"
	"github.com/skalibog/bfde/internal/notify"
	"github.com/skalibog/bfde/internal/orders"
	"github.com/skalibog/bfde/internal/risk"
	"github.com/skalibog/bfde/internal/storage"
	"github.com/skalibog/bfde/pkg/logger"
	"github.com/skalibog/bfde/pkg/models"
)

func main() {
	logger.Init()
	defer logger.GetLogger().Sync()

	// Обработка флагов командной строки
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	flag.Parse()

	// Проверяем наличие файла конфигурации
	logger.Info("Проверка наличия файла конфигурации", zap.String("path", *configPath))
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		logger.Fatal("Файл конфигурации не найден", zap.String("path", *configPath))
	}

	// Загружаем конфигурацию
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}

	// Создаем контекст с возможностью отмены через горутину
	ctx, cancel := context.WithCancel(context.Background())

	// Настраиваем обработку сигналов завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nЗавершение работы...")
		cancel()
		time.Sleep(5 * time.Second) // Даем горутинам время на завершение
		os.Exit(0)
	}()

	// Инициализируем хранилище
	store, err := storage.NewInfluxDBStorage(cfg.Storage)
	if err != nil {
		logger.Fatal("Ошибка инициализации хранилища", zap.Error(err))
	}
	defer store.Close()

	// Инициализируем клиент биржи
	client, err := exchange.NewBinanceClient(cfg.Binance)
	if err != nil {
		logger.Fatal("Ошибка инициализации клиента биржи", zap.Error(err))
	}

	// Уведомления и исполняющий бэкенд
	notifier := notify.New(cfg.Notify)
	backend := orders.NewSimulatedBackend(rand.New(rand.NewSource(time.Now().UnixNano())))

	// Собираем компоненты движка принятия решений
	metaManager := metaai.NewManager(cfg.Analysis.MetaAI)
	riskManager := risk.NewManager(cfg.Risk)
	orderManager := orders.NewManager(cfg.TPSL, backend, notifier)

	// Запускаем сборщик свечей: рабочий таймфрейм плюс старшие
	// для мультитаймфреймового анализа
	intervals := []string{cfg.Trading.Interval, "15m", "1h"}
	collector := exchange.NewCandleCollector(
		client, store, cfg.Trading.Symbols, intervals,
		500, time.Duration(cfg.Analysis.IntervalSeconds)*time.Second,
	)
	go collector.Run(ctx)

	// Отложенный старт для накопления данных
	time.Sleep(5 * time.Second)

	ticker := time.NewTicker(time.Duration(cfg.Analysis.IntervalSeconds) * time.Second)
	defer ticker.Stop()

	// Открытые позиции и история закрытых сделок между циклами
	positions := make(map[string]*position)
	var trades []models.Trade

	for {
		select {
		case <-ctx.Done():
			logger.Info("Движок остановлен")
			return
		case <-ticker.C:
			for _, symbol := range cfg.Trading.Symbols {
				runDecisionCycle(ctx, cfg, symbol, store, client, metaManager, riskManager, orderManager, notifier, positions, trades)
			}

			filled, err := orderManager.MonitorOrders(ctx)
			if err != nil {
				logger.Error("Ошибка мониторинга ордеров", zap.Error(err))
			}
			trades = recordFills(filled, positions, trades, metaManager)

			if cfg.TPSL.EnableTrailing {
				updateTrailingStops(ctx, client, orderManager, positions)
			}

			// Снимок статистики агентов для последующего разбора
			for _, perf := range metaManager.Performance() {
				perf := perf
				if err := store.SaveAgentPerformance(ctx, &perf); err != nil {
					logger.Warn("Ошибка сохранения статистики агента",
						zap.String("agent", perf.AgentID), zap.Error(err))
				}
			}
		}
	}
}

// Глубина истории сделок для проверки серий убытков
const tradeHistoryLimit = 20

// position хранит параметры открытой позиции между циклами
type position struct {
	side    string
	agentID string
	entry   float64
	levels  models.TPSLLevels
}

// closedTradeFromFill превращает исполнение закрывающего ордера в
// запись о сделке: результат считается против цены входа позиции
func closedTradeFromFill(pos *position, order models.OrderStatus) (models.Trade, bool) {
	if !order.ReduceOnly || order.Status != models.OrderStatusFilled {
		return models.Trade{}, false
	}

	pnl := (order.Price - pos.entry) * order.Quantity
	if pos.side == models.SignalShort {
		pnl = -pnl
	}

	return models.Trade{
		ID:        order.OrderID,
		Timestamp: order.Timestamp,
		Symbol:    order.Symbol,
		Side:      pos.side,
		Price:     order.Price,
		Quantity:  order.Quantity,
		PnL:       pnl,
		Strategy:  pos.agentID,
	}, true
}

// recordFills обновляет историю сделок и статистику агентов по
// исполненным закрывающим ордерам. Стоп закрывает позицию целиком,
// частичные тейки оставляют ее в учете.
func recordFills(
	filled []models.OrderStatus,
	positions map[string]*position,
	trades []models.Trade,
	metaManager *metaai.Manager,
) []models.Trade {
	for _, order := range filled {
		pos, ok := positions[order.Symbol]
		if !ok {
			continue
		}
		trade, ok := closedTradeFromFill(pos, order)
		if !ok {
			continue
		}

		trades = append(trades, trade)
		if len(trades) > tradeHistoryLimit {
			trades = trades[len(trades)-tradeHistoryLimit:]
		}

		profitPercent := 0.0
		if pos.entry > 0 && trade.Quantity > 0 {
			profitPercent = trade.PnL / (pos.entry * trade.Quantity) * 100
		}
		metaManager.UpdateAgentPerformance(pos.agentID, trade.PnL > 0, profitPercent)

		if order.Type == models.OrderTypeStopMarket {
			delete(positions, order.Symbol)
		}
	}
	return trades
}

// updateTrailingStops подтягивает трейлинг-стопы открытых позиций
// за текущей ценой
func updateTrailingStops(
	ctx context.Context,
	client exchange.MarketData,
	orderManager *orders.Manager,
	positions map[string]*position,
) {
	for symbol, pos := range positions {
		price, err := client.GetCurrentPrice(ctx, symbol)
		if err != nil {
			logger.Warn("Ошибка цены для трейлинг-стопа",
				zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		if orderManager.UpdateTrailingStop(pos.side, &pos.levels, price) {
			logger.Info("Трейлинг-стоп подтянут",
				zap.String("symbol", symbol),
				zap.Float64("stop", pos.levels.TrailingStopPrice))
		}
	}
}

// runDecisionCycle выполняет один проход принятия решения по символу:
// сигнал, мета-решение ансамбля, оценка риска, размещение защитных
// ордеров
func runDecisionCycle(
	ctx context.Context,
	cfg *config.Config,
	symbol string,
	store storage.Storage,
	client exchange.MarketData,
	metaManager *metaai.Manager,
	riskManager *risk.Manager,
	orderManager *orders.Manager,
	notifier notify.Notifier,
	positions map[string]*position,
	trades []models.Trade,
) {
	candles, err := store.GetCandles(ctx, symbol, cfg.Trading.Interval, 500)
	if err != nil {
		logger.Error("Ошибка чтения свечей", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	if len(candles) == 0 {
		logger.Debug("Нет данных для анализа", zap.String("symbol", symbol))
		return
	}

	currentPrice, err := client.GetCurrentPrice(ctx, symbol)
	if err != nil {
		logger.Warn("Ошибка получения текущей цены, берем закрытие последней свечи",
			zap.String("symbol", symbol), zap.Error(err))
		currentPrice = candles[len(candles)-1].Close
	}

	// Технический сигнал, графические паттерны и решение ансамбля
	generator := signalgen.NewGenerator(cfg.Analysis.Signal, symbol)
	tradingSignal := generator.GenerateCompleteSignal(candles, currentPrice)
	metaSignal := metaManager.GenerateMetaSignal(candles, currentPrice)

	for _, pattern := range patterns.AnalyzePatterns(candles) {
		logger.Debug("Паттерн на графике",
			zap.String("symbol", symbol),
			zap.String("pattern", pattern.Name),
			zap.String("signal", pattern.Signal),
			zap.Float64("confidence", pattern.Confidence))
	}

	quality := signalgen.GetSignalQuality(tradingSignal.Confidence, tradingSignal.RiskLevel)
	logger.Info("Решение по символу",
		zap.String("symbol", symbol),
		zap.String("signal", tradingSignal.Direction),
		zap.Float64("confidence", tradingSignal.Confidence),
		zap.String("quality", quality.Quality),
		zap.String("meta", metaSignal.FinalSignal),
		zap.Float64("metaConfidence", metaSignal.OverallConfidence))

	if err := store.SaveSignal(ctx, &tradingSignal); err != nil {
		logger.Warn("Ошибка сохранения сигнала", zap.Error(err))
	}
	if err := store.SaveMetaSignal(ctx, symbol, &metaSignal); err != nil {
		logger.Warn("Ошибка сохранения мета-сигнала", zap.Error(err))
	}

	// Торгуем только при согласии сигнала и ансамбля
	if tradingSignal.Direction == models.SignalWait || tradingSignal.Direction != metaSignal.FinalSignal {
		return
	}

	// Оценка риска перед входом
	state := riskManager.AssessRisk(currentPrice, candles, cfg.Trading.PortfolioValue, trades)
	if !state.AllowTrading {
		logger.Warn("Риск-менеджер запретил торговлю",
			zap.String("symbol", symbol),
			zap.Strings("warnings", state.WarningMessages))
		return
	}

	// Дневной лимит убытка закрывает день целиком
	stopped, err := orderManager.CheckDailyMaxLoss(ctx, state.DailyPnL, cfg.Risk.MaxDailyDrawdown)
	if err != nil {
		logger.Error("Ошибка проверки дневного лимита", zap.Error(err))
	}
	if stopped {
		return
	}

	positionSize := riskManager.CalculatePositionSize(
		tradingSignal.PositionSize, tradingSignal.Confidence, state.VolatilityLevel)

	levels := orderManager.CalculateTPSL(
		tradingSignal.Direction, currentPrice, tradingSignal.Technicals.ATR, candles)

	quantity := cfg.Trading.PortfolioValue * positionSize / 100 / currentPrice
	placed, err := orderManager.PlaceTPSLOrders(ctx, symbol, tradingSignal.Direction, levels, quantity)
	if err != nil {
		logger.Error("Часть ордеров не размещена",
			zap.String("symbol", symbol),
			zap.Int("placed", len(placed)),
			zap.Error(err))
	}
	if len(placed) > 0 {
		positions[symbol] = &position{
			side:    tradingSignal.Direction,
			agentID: metaSignal.DominantStrategy,
			entry:   levels.EntryPrice,
			levels:  levels,
		}
		notifier.Notify(ctx, fmt.Sprintf("%s %s: вход %.2f, стоп %.2f, цель %.2f, размер %.1f%%",
			symbol, tradingSignal.Direction, levels.EntryPrice, levels.StopLoss, levels.TakeProfit1, positionSize))
	}
}
