package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/spooky-finn/go-binance-client/domain"
)

// StreamAPI exposes decoded, typed event streams on top of the raw
// multiplexed StreamClient and adapts the REST client as the snapshot
// source. It implements domain.MarketStreamAPI and domain.MarketSyncAPI.
type StreamAPI struct {
	streamClient *StreamClient
	syncAPI      *Client
}

func NewStreamAPI(streamClient *StreamClient, syncAPI *Client) *StreamAPI {
	return &StreamAPI{
		streamClient: streamClient,
		syncAPI:      syncAPI,
	}
}

// OrderBookSnapshot fetches the REST depth snapshot used to seed an
// orderbook replica.
func (s *StreamAPI) OrderBookSnapshot(ctx context.Context, symbol *domain.MarketSymbol, limit int) (*domain.OrderBookSnapshot, error) {
	return s.syncAPI.Depth(ctx, symbol, limit)
}

// Candlesticks fetches the REST bar history used to seed a candlestick
// series.
func (s *StreamAPI) Candlesticks(ctx context.Context, symbol *domain.MarketSymbol, interval string, limit int) ([]domain.Candlestick, error) {
	klines, err := s.syncAPI.Klines(ctx, symbol, interval, KlinesRequest{Limit: limit})
	if err != nil {
		return nil, err
	}

	bars := make([]domain.Candlestick, len(klines))
	for i, k := range klines {
		bars[i] = domain.Candlestick{
			OpenTime:  k.OpenTime,
			CloseTime: k.CloseTime,
			Open:      k.Open,
			High:      k.High,
			Low:       k.Low,
			Close:     k.Close,
			Volume:    k.Volume,
		}
	}

	return bars, nil
}

// DepthDiffStream subscribes to the depth-diff topic of a symbol and
// decodes each frame into a typed update. A frame that fails to decode
// is logged and skipped; the stream keeps going.
func (s *StreamAPI) DepthDiffStream(symbol *domain.MarketSymbol) (*domain.Subscription[*domain.OrderBookUpdate], error) {
	topic := fmt.Sprintf("%s@depth", symbol.Join(""))
	subscription, err := s.streamClient.Subscribe(topic)
	if err != nil {
		return nil, err
	}

	stream := make(chan *domain.OrderBookUpdate)
	done := make(chan struct{})
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() { close(done) })
		subscription.Unsubscribe()
	}

	go func() {
		defer close(stream)

		for msg := range subscription.Stream {
			update, err := parseDepthMessage(symbol, msg)
			if err != nil {
				logger.WithError(err).Warnf("skipping depth frame on %s", topic)
				continue
			}
			select {
			case stream <- update:
			case <-done:
				return
			}
		}
	}()

	return &domain.Subscription[*domain.OrderBookUpdate]{
		Stream:      stream,
		Topic:       topic,
		Unsubscribe: unsubscribe,
	}, nil
}

// KlineStream subscribes to the kline topic of a symbol and interval.
// Decode failures are handled the same way as for the depth stream.
func (s *StreamAPI) KlineStream(symbol *domain.MarketSymbol, interval string) (*domain.Subscription[*domain.CandlestickUpdate], error) {
	topic := fmt.Sprintf("%s@kline_%s", symbol.Join(""), interval)
	subscription, err := s.streamClient.Subscribe(topic)
	if err != nil {
		return nil, err
	}

	stream := make(chan *domain.CandlestickUpdate)
	done := make(chan struct{})
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() { close(done) })
		subscription.Unsubscribe()
	}

	go func() {
		defer close(stream)

		for msg := range subscription.Stream {
			update, err := parseKlineMessage(symbol, msg)
			if err != nil {
				logger.WithError(err).Warnf("skipping kline frame on %s", topic)
				continue
			}
			select {
			case stream <- update:
			case <-done:
				return
			}
		}
	}()

	return &domain.Subscription[*domain.CandlestickUpdate]{
		Stream:      stream,
		Topic:       topic,
		Unsubscribe: unsubscribe,
	}, nil
}

func parseDepthMessage(symbol *domain.MarketSymbol, msg []byte) (*domain.OrderBookUpdate, error) {
	var message Message[DepthUpdateData]
	if err := json.Unmarshal(msg, &message); err != nil {
		return nil, fmt.Errorf("binance: failed to decode depth frame: %w", err)
	}

	return domain.NewOrderBookUpdate(
		symbol,
		message.Data.FirstUpdateId,
		message.Data.FinalUpdateId,
		message.Data.Bids,
		message.Data.Asks,
	), nil
}

func parseKlineMessage(symbol *domain.MarketSymbol, msg []byte) (*domain.CandlestickUpdate, error) {
	var message Message[KlineStreamData]
	if err := json.Unmarshal(msg, &message); err != nil {
		return nil, fmt.Errorf("binance: failed to decode kline frame: %w", err)
	}

	k := message.Data.Kline
	bar := domain.Candlestick{
		OpenTime:  k.OpenTime,
		CloseTime: k.CloseTime,
	}

	fields := []struct {
		raw  string
		dst  *decimal.Decimal
		name string
	}{
		{k.Open, &bar.Open, "open"},
		{k.High, &bar.High, "high"},
		{k.Low, &bar.Low, "low"},
		{k.Close, &bar.Close, "close"},
		{k.Volume, &bar.Volume, "volume"},
	}
	for _, f := range fields {
		value, err := decimal.NewFromString(f.raw)
		if err != nil {
			return nil, fmt.Errorf("binance: invalid kline %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = value
	}

	return &domain.CandlestickUpdate{
		Symbol:    symbol,
		Interval:  k.Interval,
		EventTime: message.Data.EventTime,
		Bar:       bar,
	}, nil
}
