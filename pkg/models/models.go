package models

import (
	"time"
)

// Направления торговых сигналов
const (
	SignalLong  = "LONG"
	SignalShort = "SHORT"
	SignalWait  = "WAIT"
)

// Уровни риска сигнала
const (
	RiskLow    = "LOW"
	RiskMedium = "MEDIUM"
	RiskHigh   = "HIGH"
)

// Candle представляет свечу
type Candle struct {
	Symbol    string
	Interval  string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// EMACrossover представляет пересечение EMA 50/200
type EMACrossover struct {
	EMA50    float64
	EMA200   float64
	Signal   string // BULLISH, BEARISH, NEUTRAL
	Strength float64
}

// Divergence представляет дивергенцию цены и RSI
type Divergence struct {
	Type        string // BULLISH, BEARISH, NONE
	Confidence  float64
	Description string
}

// FibLevel представляет один уровень коррекции Фибоначчи
type FibLevel struct {
	Level float64
	Price float64
	Name  string
}

// FairValueGap представляет незаполненный ценовой разрыв
type FairValueGap struct {
	Start     float64
	End       float64
	Direction string // UP, DOWN
	Filled    bool
	Index     int
}

// MultiTimeframe представляет сводку анализа по двум таймфреймам
type MultiTimeframe struct {
	TrendBias   string // BULLISH, BEARISH, NEUTRAL
	EntrySignal string // BUY, SELL, WAIT
	Confidence  float64
	Reasoning   []string
}

// Technicals представляет снимок индикаторов на момент сигнала
type Technicals struct {
	RSI    float64
	MACD   float64
	ADX    float64
	EMA50  float64
	EMA200 float64
	ATR    float64
	Volume float64
}

// TradingSignal представляет полный торговый сигнал с уровнями
type TradingSignal struct {
	ID           string
	Timestamp    time.Time
	Symbol       string
	Direction    string // LONG, SHORT, WAIT
	Confidence   float64
	EntryPrice   float64
	StopLoss     float64
	TakeProfit1  float64
	TakeProfit2  float64
	TakeProfit3  float64
	MaxLeverage  int
	RiskReward   float64
	Timeframe    string
	Reasoning    []string
	Technicals   Technicals
	RiskLevel    string  // LOW, MEDIUM, HIGH
	PositionSize float64 // процент портфеля
}

// AgentSignal представляет голос одного агента
type AgentSignal struct {
	AgentID    string
	AgentName  string
	Strategy   string
	Signal     string // LONG, SHORT, WAIT
	Confidence float64
	Reasoning  []string
	Weight     float64
	Timestamp  time.Time
}

// MetaSignal представляет агрегированное решение всех агентов
type MetaSignal struct {
	FinalSignal       string
	OverallConfidence float64
	Convergence       int // сколько агентов согласны с итогом
	DominantStrategy  string
	AgentVotes        []AgentSignal
	Reasoning         []string
	RiskAssessment    string // LOW, MEDIUM, HIGH
	RecommendedAction string
}

// AgentPerformance представляет накопленную статистику агента
type AgentPerformance struct {
	AgentID           string
	TotalSignals      int
	SuccessfulSignals int
	WinRate           float64
	AvgProfit         float64
	MaxDrawdown       float64
	CurrentWeight     float64 // всегда в диапазоне [0.1, 0.4]
	LastUpdate        time.Time
}

// RiskState представляет текущее состояние риск-менеджера
type RiskState struct {
	DailyPnL          float64
	ConsecutiveLosses int
	CurrentDrawdown   float64
	IsEmergencyStop   bool
	VolatilityLevel   string // LOW, MEDIUM, HIGH, EXTREME
	RiskLevel         string // CONSERVATIVE, MODERATE, AGGRESSIVE
	AllowTrading      bool
	WarningMessages   []string
}

// NewsEvent представляет запланированное новостное событие
type NewsEvent struct {
	Timestamp   time.Time
	Title       string
	Impact      string // LOW, MEDIUM, HIGH
	Category    string // CPI, FOMC, SEC, EARNINGS, OTHER
	Description string
}

// Trade представляет завершенную сделку для оценки риска
type Trade struct {
	ID         string
	Timestamp  time.Time
	Symbol     string
	Side       string // LONG, SHORT
	Price      float64
	Quantity   float64
	PnL        float64
	Strategy   string
	Confidence float64
}

// TPSLLevels представляет уровни стопа и тейк-профитов позиции.
// TrailingStopPrice мутируется трейлинг-стопом, остальные поля
// фиксируются при создании.
type TPSLLevels struct {
	EntryPrice         float64
	StopLoss           float64
	TakeProfit1        float64
	TakeProfit2        float64
	TakeProfit3        float64
	TrailingStopPrice  float64
	StructuralStopLoss float64
	HasStructuralSL    bool
	HasTrailingStop    bool
}

// Стороны, типы и статусы ордеров
const (
	OrderSideBuy  = "BUY"
	OrderSideSell = "SELL"

	OrderTypeLimit      = "LIMIT"
	OrderTypeMarket     = "MARKET"
	OrderTypeStopMarket = "STOP_MARKET"

	OrderStatusNew       = "NEW"
	OrderStatusFilled    = "FILLED"
	OrderStatusCancelled = "CANCELLED"
	OrderStatusRejected  = "REJECTED"
)

// OrderStatus представляет состояние ордера в жизненном цикле
type OrderStatus struct {
	OrderID    string
	Symbol     string
	Side       string // BUY, SELL
	Type       string // LIMIT, MARKET, STOP_MARKET
	Status     string // NEW, FILLED, CANCELLED, REJECTED
	Price      float64
	Quantity   float64
	ReduceOnly bool
	Timestamp  time.Time
}

// ChartPattern представляет распознанный графический паттерн
type ChartPattern struct {
	ID          string
	Type        string // support, resistance, head_shoulders, triangle
	Name        string
	Confidence  float64
	StartIndex  int
	EndIndex    int
	Prices      []float64
	Signal      string // BUY, SELL, NEUTRAL
	Strength    int
	Description string
}
