package domain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

var ErrCandlestickOutOfOrder = errors.New("candlestick event older than the latest bar")

// Candlestick is one OHLCV bar of a fixed time interval. OpenTime is the
// unique key of a bar within a series.
type Candlestick struct {
	OpenTime  int64
	CloseTime int64
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// CandlestickUpdate is a decoded kline stream event carrying the current
// state of the in-progress bar.
type CandlestickUpdate struct {
	Symbol    *MarketSymbol
	Interval  string
	EventTime int64
	Bar       Candlestick
}

// CandlestickSeries is a sliding window of the most recent bars for one
// symbol and interval, ascending by open time with no duplicates. The
// window capacity is fixed to the length of the initial snapshot;
// appending past it evicts the oldest bar, the same way an evicting
// queue does.
//
// Unlike the orderbook there is no pre-snapshot buffering: a partial
// in-progress bar is useless without its history, so events arriving
// before the snapshot are dropped.
type CandlestickSeries struct {
	Symbol   *MarketSymbol
	Interval string

	bars     []Candlestick
	capacity int
	ready    bool

	mu sync.Mutex
}

func NewCandlestickSeries(symbol *MarketSymbol, interval string) *CandlestickSeries {
	return &CandlestickSeries{
		Symbol:   symbol,
		Interval: interval,
	}
}

// SetInitialData installs the snapshot bars and pins the window capacity
// to their count.
func (cs *CandlestickSeries) SetInitialData(bars []Candlestick) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.bars = make([]Candlestick, len(bars))
	copy(cs.bars, bars)
	cs.capacity = len(bars)
	cs.ready = true
}

// Update merges one stream event into the window. An event for the
// latest bar's open time replaces that bar in place; a newer open time
// appends a fresh bar and evicts the oldest one past capacity. An older
// open time violates the stream's non-decreasing time order and is
// rejected without touching the window.
func (cs *CandlestickSeries) Update(update *CandlestickUpdate) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.ready {
		return nil
	}

	// An empty window takes the append+evict path too, so a zero
	// capacity never grows.
	if len(cs.bars) == 0 {
		cs.bars = append(cs.bars, update.Bar)
		if len(cs.bars) > cs.capacity {
			cs.bars = cs.bars[1:]
		}
		return nil
	}

	latest := &cs.bars[len(cs.bars)-1]
	switch {
	case update.Bar.OpenTime == latest.OpenTime:
		*latest = update.Bar
	case update.Bar.OpenTime > latest.OpenTime:
		cs.bars = append(cs.bars, update.Bar)
		if len(cs.bars) > cs.capacity {
			cs.bars = cs.bars[1:]
		}
	default:
		return fmt.Errorf("%w: event open time %d, latest %d",
			ErrCandlestickOutOfOrder, update.Bar.OpenTime, latest.OpenTime)
	}

	return nil
}

func (cs *CandlestickSeries) Ready() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.ready
}

func (cs *CandlestickSeries) Capacity() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.capacity
}

// Bars returns a copy of the current window, oldest bar first.
func (cs *CandlestickSeries) Bars() []Candlestick {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	bars := make([]Candlestick, len(cs.bars))
	copy(bars, cs.bars)
	return bars
}

// Latest returns the most recent bar, or false while the window is empty.
func (cs *CandlestickSeries) Latest() (Candlestick, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if len(cs.bars) == 0 {
		return Candlestick{}, false
	}
	return cs.bars[len(cs.bars)-1], true
}
