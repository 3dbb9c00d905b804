package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skalibog/bfde/pkg/models"
)

type fakeMarket struct {
	candles []models.Candle
	err     error
	calls   int
}

func (f *fakeMarket) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.candles, nil
}

func (f *fakeMarket) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return 0, errors.New("не используется")
}

type fakeSink struct {
	saved [][]models.Candle
	err   error
}

func (f *fakeSink) SaveCandles(ctx context.Context, candles []models.Candle) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, candles)
	return nil
}

func TestCollectOneSavesCandles(t *testing.T) {
	market := &fakeMarket{candles: []models.Candle{{Symbol: "BTCUSDT", Close: 100}}}
	sink := &fakeSink{}
	collector := NewCandleCollector(market, sink, []string{"BTCUSDT"}, []string{"5m"}, 100, time.Minute)

	if err := collector.collectOne(context.Background(), "BTCUSDT", "5m"); err != nil {
		t.Fatalf("сбор не должен падать: %v", err)
	}

	if len(sink.saved) != 1 || len(sink.saved[0]) != 1 {
		t.Errorf("свечи должны дойти до хранилища, сохранено партий: %d", len(sink.saved))
	}
}

func TestCollectOnePropagatesExchangeError(t *testing.T) {
	market := &fakeMarket{err: errors.New("таймаут биржи")}
	sink := &fakeSink{}
	collector := NewCandleCollector(market, sink, []string{"BTCUSDT"}, []string{"5m"}, 100, time.Minute)

	if err := collector.collectOne(context.Background(), "BTCUSDT", "5m"); err == nil {
		t.Error("ошибка биржи должна подниматься наверх")
	}
	if len(sink.saved) != 0 {
		t.Error("при ошибке биржи ничего не сохраняется")
	}
}

func TestCollectOnePropagatesSinkError(t *testing.T) {
	market := &fakeMarket{candles: []models.Candle{{Symbol: "BTCUSDT"}}}
	sink := &fakeSink{err: errors.New("хранилище недоступно")}
	collector := NewCandleCollector(market, sink, []string{"BTCUSDT"}, []string{"5m"}, 100, time.Minute)

	if err := collector.collectOne(context.Background(), "BTCUSDT", "5m"); err == nil {
		t.Error("ошибка хранилища должна подниматься наверх")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	market := &fakeMarket{candles: []models.Candle{{Symbol: "BTCUSDT"}}}
	sink := &fakeSink{}
	collector := NewCandleCollector(market, sink, []string{"BTCUSDT"}, []string{"5m"}, 100, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		collector.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("сборщик должен останавливаться по отмене контекста")
	}

	if market.calls == 0 {
		t.Error("за время работы должен быть хотя бы один сбор")
	}
}
