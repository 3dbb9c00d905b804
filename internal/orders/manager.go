package orders

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/skalibog/bfde/internal/config"
	"github.com/skalibog/bfde/internal/notify"
	"github.com/skalibog/bfde/pkg/logger"
	"github.com/skalibog/bfde/pkg/models"
)

// ErrOrderRejected возвращается бэкендом при отказе в размещении
var ErrOrderRejected = errors.New("ордер отклонен биржей: недостаточно маржи")

// Manager управляет жизненным циклом защитных ордеров:
// расчет уровней TP/SL, размещение, мониторинг исполнения,
// трейлинг-стоп и аварийное закрытие позиции.
type Manager struct {
	config   config.TPSLConfig
	backend  ExecutionBackend
	notifier notify.Notifier

	mu     sync.Mutex
	active map[string]models.OrderStatus
}

// NewManager создает менеджер ордеров
func NewManager(cfg config.TPSLConfig, backend ExecutionBackend, notifier notify.Notifier) *Manager {
	return &Manager{
		config:   cfg,
		backend:  backend,
		notifier: notifier,
		active:   make(map[string]models.OrderStatus),
	}
}

// CalculateTPSL рассчитывает уровни стоп-лосса и тейк-профитов
// от цены входа и ATR. Тейк-профиты ставятся лесенкой на
// 1.0, 1.5 и 2.0 дистанции ATR-множителя. При включенном
// структурном стопе уровень прячется за тень последней свечи.
func (m *Manager) CalculateTPSL(signal string, entryPrice, atr float64, candles []models.Candle) models.TPSLLevels {
	levels := models.TPSLLevels{EntryPrice: round2(entryPrice)}

	slDistance := atr * m.config.ATRMultiplierSL
	tpDistance := atr * m.config.ATRMultiplierTP

	switch signal {
	case models.SignalLong:
		levels.StopLoss = entryPrice - slDistance
		levels.TakeProfit1 = entryPrice + tpDistance
		levels.TakeProfit2 = entryPrice + tpDistance*1.5
		levels.TakeProfit3 = entryPrice + tpDistance*2.0
	case models.SignalShort:
		levels.StopLoss = entryPrice + slDistance
		levels.TakeProfit1 = entryPrice - tpDistance
		levels.TakeProfit2 = entryPrice - tpDistance*1.5
		levels.TakeProfit3 = entryPrice - tpDistance*2.0
	default:
		levels.StopLoss = entryPrice
		levels.TakeProfit1 = entryPrice
		levels.TakeProfit2 = entryPrice
		levels.TakeProfit3 = entryPrice
	}

	if m.config.UseStructuralSL && len(candles) > 0 {
		last := candles[len(candles)-1]
		switch signal {
		case models.SignalLong:
			structural := last.Low * 0.998
			levels.StructuralStopLoss = round2(structural)
			levels.HasStructuralSL = true
			if structural < levels.StopLoss {
				levels.StopLoss = structural
			}
		case models.SignalShort:
			structural := last.High * 1.002
			levels.StructuralStopLoss = round2(structural)
			levels.HasStructuralSL = true
			if structural > levels.StopLoss {
				levels.StopLoss = structural
			}
		}
	}

	if m.config.EnableTrailing {
		levels.HasTrailingStop = true
		levels.TrailingStopPrice = round2(levels.StopLoss)
	}

	levels.StopLoss = round2(levels.StopLoss)
	levels.TakeProfit1 = round2(levels.TakeProfit1)
	levels.TakeProfit2 = round2(levels.TakeProfit2)
	levels.TakeProfit3 = round2(levels.TakeProfit3)

	return levels
}

// PlaceTPSLOrders размещает защитные ордера по рассчитанным
// уровням: стоп-маркет на весь объем и тейк-профит лимитками.
// При включенном частичном тейке объем делится между TP1 и TP2.
// Ошибки размещения собираются, успешные ордера остаются активными.
func (m *Manager) PlaceTPSLOrders(ctx context.Context, symbol, signal string, levels models.TPSLLevels, quantity float64) ([]models.OrderStatus, error) {
	closeSide := models.OrderSideSell
	if signal == models.SignalShort {
		closeSide = models.OrderSideBuy
	}

	requests := []OrderRequest{
		{
			Symbol:     symbol,
			Side:       closeSide,
			Type:       models.OrderTypeStopMarket,
			Price:      levels.StopLoss,
			Quantity:   quantity,
			ReduceOnly: true,
		},
	}

	if m.config.EnablePartialTP {
		partialQty := quantity * m.config.PartialTPPercent / 100
		requests = append(requests,
			OrderRequest{
				Symbol:     symbol,
				Side:       closeSide,
				Type:       models.OrderTypeLimit,
				Price:      levels.TakeProfit1,
				Quantity:   partialQty,
				ReduceOnly: true,
			},
			OrderRequest{
				Symbol:     symbol,
				Side:       closeSide,
				Type:       models.OrderTypeLimit,
				Price:      levels.TakeProfit2,
				Quantity:   quantity - partialQty,
				ReduceOnly: true,
			},
		)
	} else {
		requests = append(requests, OrderRequest{
			Symbol:     symbol,
			Side:       closeSide,
			Type:       models.OrderTypeLimit,
			Price:      levels.TakeProfit1,
			Quantity:   quantity,
			ReduceOnly: true,
		})
	}

	var placed []models.OrderStatus
	var errs []error

	for _, req := range requests {
		order, err := m.backend.PlaceOrder(ctx, req)
		if err != nil {
			logger.Error("Ошибка размещения ордера",
				zap.String("symbol", req.Symbol),
				zap.String("type", req.Type),
				zap.Float64("price", req.Price),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s %s @ %.2f: %w", req.Type, req.Side, req.Price, err))
			continue
		}

		m.mu.Lock()
		m.active[order.OrderID] = order
		m.mu.Unlock()
		placed = append(placed, order)

		logger.Info("Ордер размещен",
			zap.String("orderID", order.OrderID),
			zap.String("symbol", order.Symbol),
			zap.String("type", order.Type),
			zap.Float64("price", order.Price),
			zap.Float64("quantity", order.Quantity))
	}

	return placed, errors.Join(errs...)
}

// MonitorOrders опрашивает активные ордера. Исполненные
// снимаются с учета с уведомлением и возвращаются вызывающему
// для фиксации исхода сделки; для стоп-маркетов сверяется цена
// исполнения с запрошенной, при превышении допустимого
// проскальзывания запускается аварийное закрытие.
func (m *Manager) MonitorOrders(ctx context.Context) ([]models.OrderStatus, error) {
	m.mu.Lock()
	pending := make([]models.OrderStatus, 0, len(m.active))
	for _, order := range m.active {
		pending = append(pending, order)
	}
	m.mu.Unlock()

	var filled []models.OrderStatus
	for _, order := range pending {
		updated, err := m.backend.CheckOrder(ctx, order)
		if err != nil {
			logger.Warn("Ошибка опроса ордера",
				zap.String("orderID", order.OrderID),
				zap.Error(err))
			continue
		}
		if updated.Status != models.OrderStatusFilled {
			continue
		}

		m.mu.Lock()
		delete(m.active, order.OrderID)
		m.mu.Unlock()
		filled = append(filled, updated)

		logger.Info("Ордер исполнен",
			zap.String("orderID", updated.OrderID),
			zap.String("symbol", updated.Symbol),
			zap.String("type", updated.Type),
			zap.Float64("price", updated.Price))
		m.notifier.Notify(ctx, fmt.Sprintf("Ордер исполнен: %s %s %s по %.2f",
			updated.Symbol, updated.Side, updated.Type, updated.Price))

		if updated.Type == models.OrderTypeStopMarket {
			slippage := slippagePercent(order.Price, updated.Price)
			if slippage > m.config.MaxSlippagePercent {
				logger.Warn("Проскальзывание стопа выше допустимого",
					zap.Float64("requested", order.Price),
					zap.Float64("executed", updated.Price),
					zap.Float64("slippage", slippage))
				if err := m.EmergencyClosePosition(ctx, updated.Symbol, updated.Side, updated.Quantity); err != nil {
					return filled, err
				}
			}
		}
	}

	return filled, nil
}

// EmergencyClosePosition отменяет все защитные ордера символа и
// закрывает остаток позиции маркетом
func (m *Manager) EmergencyClosePosition(ctx context.Context, symbol, side string, quantity float64) error {
	logger.Warn("Аварийное закрытие позиции",
		zap.String("symbol", symbol),
		zap.Float64("quantity", quantity))

	if err := m.CancelAllOrders(ctx, symbol); err != nil {
		logger.Error("Не удалось отменить ордера при аварийном закрытии", zap.Error(err))
	}

	_, err := m.backend.PlaceOrder(ctx, OrderRequest{
		Symbol:     symbol,
		Side:       side,
		Type:       models.OrderTypeMarket,
		Quantity:   quantity,
		ReduceOnly: true,
	})
	if err != nil {
		return fmt.Errorf("аварийное закрытие %s: %w", symbol, err)
	}

	m.notifier.Notify(ctx, fmt.Sprintf("ВНИМАНИЕ: аварийное закрытие позиции %s, объем %.4f", symbol, quantity))
	return nil
}

// CancelOrder отменяет один активный ордер
func (m *Manager) CancelOrder(ctx context.Context, orderID string) error {
	m.mu.Lock()
	order, ok := m.active[orderID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("ордер %s не найден среди активных", orderID)
	}

	if err := m.backend.CancelOrder(ctx, orderID); err != nil {
		return fmt.Errorf("отмена ордера %s: %w", orderID, err)
	}

	m.mu.Lock()
	delete(m.active, orderID)
	m.mu.Unlock()

	logger.Info("Ордер отменен",
		zap.String("orderID", orderID),
		zap.String("symbol", order.Symbol))
	return nil
}

// CancelAllOrders отменяет все активные ордера символа.
// Пустой символ означает отмену всех ордеров.
func (m *Manager) CancelAllOrders(ctx context.Context, symbol string) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.active))
	for id, order := range m.active {
		if symbol == "" || order.Symbol == symbol {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := m.CancelOrder(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UpdateTrailingStop подтягивает трейлинг-стоп за ценой.
// Уровень двигается только в сторону защиты прибыли: для
// лонга вверх, для шорта вниз.
func (m *Manager) UpdateTrailingStop(signal string, levels *models.TPSLLevels, currentPrice float64) bool {
	if !levels.HasTrailingStop {
		return false
	}

	pct := m.config.TrailingPercent / 100

	switch signal {
	case models.SignalLong:
		candidate := round2(currentPrice * (1 - pct))
		if candidate > levels.TrailingStopPrice {
			levels.TrailingStopPrice = candidate
			return true
		}
	case models.SignalShort:
		candidate := round2(currentPrice * (1 + pct))
		if candidate < levels.TrailingStopPrice {
			levels.TrailingStopPrice = candidate
			return true
		}
	}

	return false
}

// CheckDailyMaxLoss проверяет дневной результат против лимита.
// Оба аргумента — проценты от капитала, в тех же единицах, что
// DailyPnL риск-менеджера.
// При превышении отменяет все ордера и возвращает true —
// торговля на день останавливается. Положительный дневной
// результат лимитом не считается.
func (m *Manager) CheckDailyMaxLoss(ctx context.Context, dailyPnLPercent, maxLossPercent float64) (bool, error) {
	if dailyPnLPercent >= 0 {
		return false, nil
	}

	lossPercent := math.Abs(dailyPnLPercent)
	if lossPercent < maxLossPercent {
		return false, nil
	}

	logger.Warn("Превышен дневной лимит убытка",
		zap.Float64("dailyPnL", dailyPnLPercent),
		zap.Float64("lossPercent", lossPercent),
		zap.Float64("limit", maxLossPercent))

	err := m.CancelAllOrders(ctx, "")
	m.notifier.Notify(ctx, fmt.Sprintf("Дневной лимит убытка превышен: %.2f%% (лимит %.2f%%). Ордера отменены.",
		lossPercent, maxLossPercent))
	return true, err
}

// ActiveOrdersSummary возвращает снимок активных ордеров
func (m *Manager) ActiveOrdersSummary() []models.OrderStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	summary := make([]models.OrderStatus, 0, len(m.active))
	for _, order := range m.active {
		summary = append(summary, order)
	}
	return summary
}

func slippagePercent(requested, executed float64) float64 {
	if requested == 0 {
		return 0
	}
	return math.Abs(executed-requested) / requested * 100
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
