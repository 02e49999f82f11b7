package usecase

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/spooky-finn/go-binance-client/domain"
	"github.com/spooky-finn/go-binance-client/helpers"
	promclient "github.com/spooky-finn/go-binance-client/infrastructure/prometheus"
)

var logger = logrus.WithField("module", "usecase")

// MarketDataUseCase serves market data out of local replicas, creating
// them lazily on first request. A replica lives for the rest of the
// process once created; repeated requests for the same symbol are
// answered from memory without another provider round trip.
type MarketDataUseCase struct {
	syncAPI   domain.MarketSyncAPI
	streamAPI domain.MarketStreamAPI
	storage   *domain.ReplicaStorage

	mu                     sync.Mutex
	orderbookMaintainers   map[string]*domain.OrderbookMaintainer
	candlestickMaintainers map[string]*domain.CandlestickMaintainer
}

func NewMarketDataUseCase(streamAPI domain.MarketStreamAPI, syncAPI domain.MarketSyncAPI) *MarketDataUseCase {
	return &MarketDataUseCase{
		syncAPI:                syncAPI,
		streamAPI:              streamAPI,
		storage:                domain.NewReplicaStorage(),
		orderbookMaintainers:   make(map[string]*domain.OrderbookMaintainer),
		candlestickMaintainers: make(map[string]*domain.CandlestickMaintainer),
	}
}

// GetOrderBookSnapshot returns a snapshot of the local book for the
// symbol, limited to maxDepth levels per side. The first call for a
// symbol subscribes to its depth stream and blocks until the replica is
// ready.
func (u *MarketDataUseCase) GetOrderBookSnapshot(ctx context.Context, symbol *domain.MarketSymbol, maxDepth int) (*domain.OrderBookSnapshot, error) {
	orderbook, err := u.OrderBook(ctx, symbol, maxDepth)
	if err != nil {
		return nil, err
	}

	snapshot := orderbook.TakeSnapshot(maxDepth)
	logger.Debugf("serving local snapshot for %s: %s", symbol, helpers.ToJsonString(snapshot))
	return snapshot, nil
}

// OrderBook returns the live replica for the symbol, creating it on
// first use.
func (u *MarketDataUseCase) OrderBook(ctx context.Context, symbol *domain.MarketSymbol, maxDepth int) (*domain.OrderBook, error) {
	if orderbook, err := u.storage.GetOrderBook(symbol); err == nil {
		return orderbook, nil
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	// Another caller may have won the race while we waited for the lock.
	if orderbook, err := u.storage.GetOrderBook(symbol); err == nil {
		return orderbook, nil
	}

	maintainer := domain.NewOrderBookMaintainer(u.streamAPI, u.syncAPI)
	result := maintainer.Start(ctx, symbol, maxDepth)
	if result.Err != nil {
		return nil, result.Err
	}

	u.storage.AddOrderBook(symbol, result.OrderBook)
	u.orderbookMaintainers[symbol.String()] = maintainer
	promclient.OpenOrderBookGauge.Set(float64(u.storage.OrderBookCount()))
	logger.Infof("orderbook replica for %s added to the runtime storage", symbol)

	return result.OrderBook, nil
}

// Candlesticks returns the bar window for the symbol and interval,
// creating the replica with a window of limit bars on first use.
func (u *MarketDataUseCase) Candlesticks(ctx context.Context, symbol *domain.MarketSymbol, interval string, limit int) ([]domain.Candlestick, error) {
	series, err := u.CandlestickSeries(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}

	return series.Bars(), nil
}

// CandlestickSeries returns the live series replica for the symbol and
// interval, creating it on first use.
func (u *MarketDataUseCase) CandlestickSeries(ctx context.Context, symbol *domain.MarketSymbol, interval string, limit int) (*domain.CandlestickSeries, error) {
	if series, err := u.storage.GetCandlestickSeries(symbol, interval); err == nil {
		return series, nil
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if series, err := u.storage.GetCandlestickSeries(symbol, interval); err == nil {
		return series, nil
	}

	maintainer := domain.NewCandlestickMaintainer(u.streamAPI, u.syncAPI)
	result := maintainer.Start(ctx, symbol, interval, limit)
	if result.Err != nil {
		return nil, result.Err
	}

	u.storage.AddCandlestickSeries(symbol, interval, result.Series)
	u.candlestickMaintainers[symbol.String()+"@"+interval] = maintainer
	promclient.OpenCandlestickSeriesGauge.Set(float64(u.storage.CandlestickSeriesCount()))
	logger.Infof("candlestick replica for %s@%s added to the runtime storage", symbol, interval)

	return result.Series, nil
}

// Close stops every maintainer started by this use case.
func (u *MarketDataUseCase) Close() {
	u.mu.Lock()
	defer u.mu.Unlock()

	for _, m := range u.orderbookMaintainers {
		m.Stop()
	}
	for _, m := range u.candlestickMaintainers {
		m.Stop()
	}
}
