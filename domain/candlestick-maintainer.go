package domain

import (
	"context"
	"errors"
	"sync"
)

// CandlestickMaintainer wires one kline subscription and one history
// fetch into a CandlestickSeries replica. The series ignores events
// until the snapshot is in, so unlike the orderbook maintainer there is
// no warm-up handshake before the fetch.
type CandlestickMaintainer struct {
	syncAPI   MarketSyncAPI
	streamAPI MarketStreamAPI

	onReady func(*CandlestickSeries)
	onEvent func(*CandlestickUpdate)

	done      chan struct{}
	announced chan struct{} // closed once the ready callback has returned
	stopOnce  sync.Once
	unsub     func()
}

func NewCandlestickMaintainer(stream MarketStreamAPI, syncAPI MarketSyncAPI) *CandlestickMaintainer {
	return &CandlestickMaintainer{
		syncAPI:   syncAPI,
		streamAPI: stream,
		done:      make(chan struct{}),
		announced: make(chan struct{}),
	}
}

// OnReady registers a callback fired once the history snapshot has been
// applied. Register before Start.
func (m *CandlestickMaintainer) OnReady(fn func(*CandlestickSeries)) {
	m.onReady = fn
}

// OnEvent registers a callback fired for every stream event merged after
// the series became ready, in arrival order. Register before Start.
func (m *CandlestickMaintainer) OnEvent(fn func(*CandlestickUpdate)) {
	m.onEvent = fn
}

// Start subscribes to the kline stream, fetches the bar history and
// seeds the series with it. The window capacity is fixed to the history
// length requested via limit.
func (m *CandlestickMaintainer) Start(ctx context.Context, symbol *MarketSymbol, interval string, limit int) *CreateCandlestickSeriesResult {
	series := NewCandlestickSeries(symbol, interval)

	if err := m.runStreamReader(series, symbol, interval); err != nil {
		return &CreateCandlestickSeriesResult{Err: err}
	}

	bars, err := m.syncAPI.Candlesticks(ctx, symbol, interval, limit)
	if err != nil {
		m.Stop()
		return &CreateCandlestickSeriesResult{Err: err}
	}

	series.SetInitialData(bars)

	logger.Debugf("candlestick series for %s@%s is ready, window=%d", symbol, interval, series.Capacity())
	if m.onReady != nil {
		m.onReady(series)
	}
	// Event callbacks are held back until here, so OnReady always
	// precedes the first OnEvent.
	close(m.announced)

	return &CreateCandlestickSeriesResult{Series: series}
}

// Stop terminates the reader task and releases the stream subscription.
// The done channel closes last, so an observer of Done sees the
// subscription already released.
func (m *CandlestickMaintainer) Stop() {
	m.stopOnce.Do(func() {
		if m.unsub != nil {
			m.unsub()
		}
		close(m.done)
	})
}

func (m *CandlestickMaintainer) Done() <-chan struct{} {
	return m.done
}

func (m *CandlestickMaintainer) runStreamReader(series *CandlestickSeries, symbol *MarketSymbol, interval string) error {
	subscription, err := m.streamAPI.KlineStream(symbol, interval)
	if err != nil {
		return err
	}
	m.unsub = subscription.Unsubscribe

	go func() {
		for {
			select {
			case <-m.done:
				return
			case update, ok := <-subscription.Stream:
				if !ok {
					// Disconnect is surfaced as termination: Done fires
					// and the subscription is released.
					logger.Warnf("kline stream for %s@%s closed", symbol, interval)
					m.Stop()
					return
				}

				if err := series.Update(update); err != nil {
					// A bar older than the window head breaks the stream's
					// time-order contract; the event is dropped, the stream
					// goes on.
					if errors.Is(err, ErrCandlestickOutOfOrder) {
						logger.WithError(err).Warnf("dropped kline event for %s@%s", symbol, interval)
						continue
					}
					logger.WithError(err).Errorf("failed to merge kline event for %s@%s", symbol, interval)
					continue
				}

				if series.Ready() && m.onEvent != nil {
					select {
					case <-m.announced:
					case <-m.done:
						return
					}
					m.onEvent(update)
				}
			}
		}
	}()

	return nil
}
