package domain

import (
	"errors"
	"sync"
)

var (
	ErrOrderBookNotFound         = errors.New("order book not found")
	ErrCandlestickSeriesNotFound = errors.New("candlestick series not found")
)

// ReplicaStorage is the process-wide directory of live replicas, keyed
// by symbol for orderbooks and by symbol+interval for candlestick
// series. Entries are created once per subscription and live until the
// process ends; the lock only matters at creation time.
type ReplicaStorage struct {
	mu         sync.Mutex
	orderbooks map[string]*OrderBook
	series     map[string]*CandlestickSeries
}

func NewReplicaStorage() *ReplicaStorage {
	return &ReplicaStorage{
		orderbooks: make(map[string]*OrderBook),
		series:     make(map[string]*CandlestickSeries),
	}
}

func seriesKey(symbol *MarketSymbol, interval string) string {
	return symbol.String() + "@" + interval
}

func (s *ReplicaStorage) AddOrderBook(symbol *MarketSymbol, orderbook *OrderBook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderbooks[symbol.String()] = orderbook
}

func (s *ReplicaStorage) GetOrderBook(symbol *MarketSymbol) (*OrderBook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orderbook, ok := s.orderbooks[symbol.String()]
	if !ok {
		return nil, ErrOrderBookNotFound
	}
	return orderbook, nil
}

func (s *ReplicaStorage) AddCandlestickSeries(symbol *MarketSymbol, interval string, series *CandlestickSeries) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series[seriesKey(symbol, interval)] = series
}

func (s *ReplicaStorage) GetCandlestickSeries(symbol *MarketSymbol, interval string) (*CandlestickSeries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	series, ok := s.series[seriesKey(symbol, interval)]
	if !ok {
		return nil, ErrCandlestickSeriesNotFound
	}
	return series, nil
}

func (s *ReplicaStorage) OrderBookCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orderbooks)
}

func (s *ReplicaStorage) CandlestickSeriesCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.series)
}
