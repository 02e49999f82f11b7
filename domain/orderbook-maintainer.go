package domain

import (
	"context"
	"sync"
	"time"
)

// OrderbookMaintainer wires one depth-diff subscription and one snapshot
// fetch into an OrderBook replica.
//
// The stream reader starts first so that no update racing ahead of the
// snapshot request is ever lost: the replica buffers everything until
// SetInitialData drains the queue. The snapshot task runs once; the
// reader runs until Stop is called or the stream channel closes.
type OrderbookMaintainer struct {
	syncAPI   MarketSyncAPI
	streamAPI MarketStreamAPI

	onReady func(*OrderBook)
	onEvent func(*OrderBookUpdate)

	done      chan struct{}
	announced chan struct{} // closed once the ready callback has returned
	stopOnce  sync.Once
	unsub     func()
}

func NewOrderBookMaintainer(stream MarketStreamAPI, syncAPI MarketSyncAPI) *OrderbookMaintainer {
	return &OrderbookMaintainer{
		syncAPI:   syncAPI,
		streamAPI: stream,
		done:      make(chan struct{}),
		announced: make(chan struct{}),
	}
}

// OnReady registers a callback fired once, right after the snapshot has
// been applied and the buffered events drained. Register before Start.
func (m *OrderbookMaintainer) OnReady(fn func(*OrderBook)) {
	m.onReady = fn
}

// OnEvent registers a callback fired for every stream event applied
// after the book became ready, in arrival order. Register before Start.
func (m *OrderbookMaintainer) OnEvent(fn func(*OrderBookUpdate)) {
	m.onEvent = fn
}

// Start subscribes to the depth stream, waits for the subscription to
// warm up, fetches the snapshot and seeds the replica with it. On return
// the book is ready and live updates keep flowing into it.
func (m *OrderbookMaintainer) Start(ctx context.Context, symbol *MarketSymbol, limit int) *CreateOrderBookResult {
	orderbook := NewOrderBook(symbol)

	firstUpd, err := m.runStreamReader(orderbook, symbol)
	if err != nil {
		return &CreateOrderBookResult{Err: err}
	}

	// Give the subscription a moment to warm up so the snapshot revision
	// lands inside the buffered update range.
	select {
	case <-firstUpd:
	case <-time.After(time.Second):
	}

	snapshot, err := m.syncAPI.OrderBookSnapshot(ctx, symbol, limit)
	if err != nil {
		m.Stop()
		return &CreateOrderBookResult{Err: err}
	}

	if err := orderbook.SetInitialData(snapshot); err != nil {
		m.Stop()
		return &CreateOrderBookResult{Err: err}
	}

	logger.Debugf("orderbook for %s is ready, lastUpdateId=%d", symbol, orderbook.LastUpdateID())
	if m.onReady != nil {
		m.onReady(orderbook)
	}
	// Event callbacks are held back until here, so OnReady always
	// precedes the first OnEvent.
	close(m.announced)

	return &CreateOrderBookResult{
		OrderBook: orderbook,
		Snapshot:  snapshot,
	}
}

// Stop terminates the reader task and releases the stream subscription.
// The done channel closes last, so an observer of Done sees the
// subscription already released.
func (m *OrderbookMaintainer) Stop() {
	m.stopOnce.Do(func() {
		if m.unsub != nil {
			m.unsub()
		}
		close(m.done)
	})
}

// Done is closed once the maintainer has been stopped.
func (m *OrderbookMaintainer) Done() <-chan struct{} {
	return m.done
}

// runStreamReader starts the single consumer goroutine feeding the
// replica. The returned channel fires on the first received update, so
// the caller knows the subscription is live before fetching a snapshot.
func (m *OrderbookMaintainer) runStreamReader(orderbook *OrderBook, symbol *MarketSymbol) (chan struct{}, error) {
	subscription, err := m.streamAPI.DepthDiffStream(symbol)
	if err != nil {
		return nil, err
	}
	m.unsub = subscription.Unsubscribe

	firstUpdate := make(chan struct{}, 1)
	counter := 0

	go func() {
		for {
			select {
			case <-m.done:
				return
			case update, ok := <-subscription.Stream:
				if !ok {
					// Disconnect is surfaced as termination: Done fires
					// and the subscription is released.
					logger.Warnf("depth stream for %s closed", symbol)
					m.Stop()
					return
				}

				orderbook.Update(update)
				if counter == 0 {
					firstUpdate <- struct{}{}
				}
				counter++

				if orderbook.Ready() && m.onEvent != nil {
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

	return firstUpdate, nil
}
