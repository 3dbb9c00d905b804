package main

import (
	"testing"
	"time"

	"github.com/skalibog/bfde/internal/analysis/metaai"
	"github.com/skalibog/bfde/internal/config"
	"github.com/skalibog/bfde/pkg/models"
)

func TestClosedTradeFromFillLongProfit(t *testing.T) {
	pos := &position{side: models.SignalLong, agentID: "trend_follower", entry: 100}
	order := models.OrderStatus{
		OrderID:    "tp-1",
		Symbol:     "BTCUSDT",
		Side:       models.OrderSideSell,
		Type:       models.OrderTypeLimit,
		Status:     models.OrderStatusFilled,
		Price:      105,
		Quantity:   2,
		ReduceOnly: true,
		Timestamp:  time.Now(),
	}

	trade, ok := closedTradeFromFill(pos, order)
	if !ok {
		t.Fatal("закрывающее исполнение дает запись о сделке")
	}
	if trade.PnL != 10 {
		t.Errorf("PnL лонга (105-100)*2 = 10, получено %.2f", trade.PnL)
	}
	if trade.Strategy != "trend_follower" {
		t.Errorf("сделка помечается доминирующим агентом: %s", trade.Strategy)
	}
}

func TestClosedTradeFromFillShortMirror(t *testing.T) {
	pos := &position{side: models.SignalShort, agentID: "mean_reversion", entry: 100}
	order := models.OrderStatus{
		Status:     models.OrderStatusFilled,
		Price:      95,
		Quantity:   1,
		ReduceOnly: true,
	}

	trade, ok := closedTradeFromFill(pos, order)
	if !ok {
		t.Fatal("закрывающее исполнение дает запись о сделке")
	}
	if trade.PnL != 5 {
		t.Errorf("PnL шорта при падении цены положителен: %.2f", trade.PnL)
	}
}

func TestClosedTradeFromFillIgnoresOpeningOrders(t *testing.T) {
	pos := &position{side: models.SignalLong, entry: 100}
	order := models.OrderStatus{
		Status:   models.OrderStatusFilled,
		Price:    101,
		Quantity: 1,
	}

	if _, ok := closedTradeFromFill(pos, order); ok {
		t.Error("ордер без reduce-only не закрывает позицию")
	}
}

func TestRecordFillsFeedsHistoryAndAgents(t *testing.T) {
	metaManager := metaai.NewManager(config.Default().Analysis.MetaAI)
	positions := map[string]*position{
		"BTCUSDT": {side: models.SignalLong, agentID: "trend_follower", entry: 100},
	}
	filled := []models.OrderStatus{{
		OrderID:    "stop-1",
		Symbol:     "BTCUSDT",
		Side:       models.OrderSideSell,
		Type:       models.OrderTypeStopMarket,
		Status:     models.OrderStatusFilled,
		Price:      97,
		Quantity:   1,
		ReduceOnly: true,
	}}

	trades := recordFills(filled, positions, nil, metaManager)

	if len(trades) != 1 {
		t.Fatalf("исполнение стопа дает одну запись в истории, получено %d", len(trades))
	}
	if trades[0].PnL != -3 {
		t.Errorf("убыток по стопу -3, получено %.2f", trades[0].PnL)
	}
	if _, ok := positions["BTCUSDT"]; ok {
		t.Error("стоп закрывает позицию целиком")
	}

	for _, perf := range metaManager.Performance() {
		if perf.AgentID != "trend_follower" {
			continue
		}
		if perf.TotalSignals != 46 {
			t.Errorf("исход сделки фиксируется за агентом: сигналов %d", perf.TotalSignals)
		}
	}
}

func TestRecordFillsCapsHistory(t *testing.T) {
	metaManager := metaai.NewManager(config.Default().Analysis.MetaAI)
	positions := map[string]*position{
		"BTCUSDT": {side: models.SignalLong, agentID: "trend_follower", entry: 100},
	}

	var trades []models.Trade
	for i := 0; i < tradeHistoryLimit+5; i++ {
		filled := []models.OrderStatus{{
			Symbol:     "BTCUSDT",
			Type:       models.OrderTypeLimit,
			Status:     models.OrderStatusFilled,
			Price:      101,
			Quantity:   1,
			ReduceOnly: true,
		}}
		trades = recordFills(filled, positions, trades, metaManager)
	}

	if len(trades) != tradeHistoryLimit {
		t.Errorf("история сделок ограничена %d записями, получено %d", tradeHistoryLimit, len(trades))
	}
}
