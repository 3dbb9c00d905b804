package orders

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skalibog/bfde/pkg/models"
)

// OrderRequest описывает заявку для исполняющего бэкенда
type OrderRequest struct {
	Symbol     string
	Side       string // BUY, SELL
	Type       string // LIMIT, MARKET, STOP_MARKET
	Price      float64
	Quantity   float64
	ReduceOnly bool
}

// ExecutionBackend — исполняющая сторона: принимает заявки,
// отвечает статусом и ценой исполнения. Боевая реализация —
// биржевой API, в тестах и симуляции — детерминированный дубль.
type ExecutionBackend interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (models.OrderStatus, error)
	CheckOrder(ctx context.Context, order models.OrderStatus) (models.OrderStatus, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// SimulatedBackend эмулирует биржу: сетевая задержка, случайные
// отказы при размещении и вероятностное исполнение при опросе.
// Источник случайности инжектируется, чтобы тесты были
// воспроизводимы.
type SimulatedBackend struct {
	mu            sync.Mutex
	rng           *rand.Rand
	delay         time.Duration
	rejectRate    float64 // доля отклоненных размещений
	fillRate      float64 // вероятность исполнения за один опрос
	slippageRange float64 // максимальное относительное отклонение цены исполнения
}

// NewSimulatedBackend создает симулятор с параметрами по умолчанию:
// 10% отказов, 20% исполнений за опрос, задержка 100мс.
func NewSimulatedBackend(rng *rand.Rand) *SimulatedBackend {
	return &SimulatedBackend{
		rng:           rng,
		delay:         100 * time.Millisecond,
		rejectRate:    0.1,
		fillRate:      0.2,
		slippageRange: 0.002,
	}
}

// NewDeterministicBackend создает симулятор без задержки и
// случайности: все размещения успешны, каждый опрос исполняет
// ордер по запрошенной цене.
func NewDeterministicBackend() *SimulatedBackend {
	return &SimulatedBackend{
		rng:      rand.New(rand.NewSource(1)),
		fillRate: 1.0,
	}
}

// PlaceOrder эмулирует размещение ордера на бирже
func (b *SimulatedBackend) PlaceOrder(ctx context.Context, req OrderRequest) (models.OrderStatus, error) {
	if err := b.sleep(ctx); err != nil {
		return models.OrderStatus{}, err
	}

	order := models.OrderStatus{
		OrderID:    uuid.NewString(),
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       req.Type,
		Status:     models.OrderStatusNew,
		Price:      req.Price,
		Quantity:   req.Quantity,
		ReduceOnly: req.ReduceOnly,
		Timestamp:  time.Now(),
	}

	if b.roll() < b.rejectRate {
		order.Status = models.OrderStatusRejected
		return order, ErrOrderRejected
	}

	return order, nil
}

// CheckOrder эмулирует опрос статуса: с вероятностью fillRate
// ордер исполняется, цена исполнения может отклониться от
// запрошенной в пределах slippageRange.
func (b *SimulatedBackend) CheckOrder(ctx context.Context, order models.OrderStatus) (models.OrderStatus, error) {
	if err := b.sleep(ctx); err != nil {
		return order, err
	}

	if b.roll() >= b.fillRate {
		return order, nil
	}

	filled := order
	filled.Status = models.OrderStatusFilled
	if b.slippageRange > 0 {
		jitter := (b.roll()*2 - 1) * b.slippageRange
		filled.Price = order.Price * (1 + jitter)
	}

	return filled, nil
}

// CancelOrder эмулирует отмену: всегда успешна
func (b *SimulatedBackend) CancelOrder(ctx context.Context, orderID string) error {
	return b.sleep(ctx)
}

func (b *SimulatedBackend) roll() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rng.Float64()
}

func (b *SimulatedBackend) sleep(ctx context.Context) error {
	if b.delay == 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(b.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
