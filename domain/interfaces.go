package domain

import "context"

// MarketSyncAPI is the request/response side of a provider: one-shot
// snapshot fetches used to seed the replicas.
type MarketSyncAPI interface {
	OrderBookSnapshot(ctx context.Context, symbol *MarketSymbol, limit int) (*OrderBookSnapshot, error)
	Candlesticks(ctx context.Context, symbol *MarketSymbol, interval string, limit int) ([]Candlestick, error)
}

// MarketStreamAPI is the push side of a provider: decoded, typed event
// streams for one subscribed topic.
type MarketStreamAPI interface {
	DepthDiffStream(symbol *MarketSymbol) (*Subscription[*OrderBookUpdate], error)
	KlineStream(symbol *MarketSymbol, interval string) (*Subscription[*CandlestickUpdate], error)
}

type CreateOrderBookResult struct {
	OrderBook *OrderBook
	Snapshot  *OrderBookSnapshot
	Err       error
}

type CreateCandlestickSeriesResult struct {
	Series *CandlestickSeries
	Err    error
}
