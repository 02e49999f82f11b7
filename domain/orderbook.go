package domain

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("module", "domain")

var ErrSnapshotAlreadyApplied = errors.New("orderbook snapshot already applied")

type OrderBookSource string

const (
	OrderBookSource_Provider       OrderBookSource = "Provider"
	OrderBookSource_LocalOrderBook OrderBookSource = "LocalOrderBook"
)

// PriceLevel is one row of an orderbook side. A zero quantity on an
// incoming update means the level has to be removed.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// OrderBookSnapshot is the wire form of a full book: price levels are
// kept as strings exactly as the exchange returns them.
type OrderBookSnapshot struct {
	Source       OrderBookSource `json:"source"`
	LastUpdateId int64           `json:"lastUpdateId"`
	Bids         [][]string      `json:"bids"`
	Asks         [][]string      `json:"asks"`
}

// OrderBookUpdate is a decoded depth-diff stream event. FinalUpdateId is
// the revision the book reaches once the update is applied.
type OrderBookUpdate struct {
	Symbol        *MarketSymbol
	FirstUpdateId int64
	FinalUpdateId int64
	Bids          [][]string
	Asks          [][]string
}

func NewOrderBookUpdate(symbol *MarketSymbol, firstUpdateId, finalUpdateId int64, bids, asks [][]string) *OrderBookUpdate {
	return &OrderBookUpdate{
		Symbol:        symbol,
		FirstUpdateId: firstUpdateId,
		FinalUpdateId: finalUpdateId,
		Bids:          bids,
		Asks:          asks,
	}
}

// OrderBook is a local replica of the exchange book for one symbol.
//
// The replica starts empty and not ready. Updates arriving before the
// REST snapshot are queued, never dropped: the exchange protocol
// requires the consumer to buffer the diff stream, fetch the snapshot,
// discard every buffered event at or before the snapshot revision and
// apply the rest in arrival order. SetInitialData performs exactly that
// drain and flips the book to ready; from then on updates are applied
// directly.
type OrderBook struct {
	Symbol         *MarketSymbol
	LastUpdateTime int64

	bids []PriceLevel // descending, best bid first
	asks []PriceLevel // ascending, best ask first

	lastUpdateID int64
	ready        bool
	pending      deque.Deque[*OrderBookUpdate]

	mu sync.Mutex
}

func NewOrderBook(symbol *MarketSymbol) *OrderBook {
	return &OrderBook{
		Symbol:  symbol,
		pending: deque.Deque[*OrderBookUpdate]{},
	}
}

// Update feeds one stream event into the replica. Before the snapshot
// arrived the event is buffered; afterwards it is applied in place.
// Must be called in stream arrival order.
func (ob *OrderBook) Update(update *OrderBookUpdate) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if !ob.ready {
		ob.pending.PushBack(update)
		return
	}

	ob.apply(update)
}

// SetInitialData installs the REST snapshot, drains the buffered events
// through the same apply path and marks the book ready. Calling it a
// second time is an error: the replica owns exactly one snapshot.
func (ob *OrderBook) SetInitialData(snapshot *OrderBookSnapshot) error {
	bids, err := ParsePriceLevels(snapshot.Bids)
	if err != nil {
		return err
	}
	asks, err := ParsePriceLevels(snapshot.Asks)
	if err != nil {
		return err
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()

	if ob.ready {
		return ErrSnapshotAlreadyApplied
	}

	ob.lastUpdateID = snapshot.LastUpdateId
	ob.bids = bids
	ob.asks = asks
	ob.LastUpdateTime = time.Now().Unix()

	for ob.pending.Len() > 0 {
		ob.apply(ob.pending.PopFront())
	}

	ob.ready = true
	return nil
}

// apply is the reconciliation step. Events that do not advance the book
// revision are already reflected in the state and are discarded, which
// makes replays of the buffered queue across the snapshot boundary safe.
// Callers must hold ob.mu.
func (ob *OrderBook) apply(update *OrderBookUpdate) {
	if update.FinalUpdateId <= ob.lastUpdateID {
		return
	}

	ob.lastUpdateID = update.FinalUpdateId
	ob.LastUpdateTime = time.Now().Unix()

	ob.bids = applySideChanges(ob.bids, update.Bids, false)
	ob.asks = applySideChanges(ob.asks, update.Asks, true)
}

func (ob *OrderBook) Ready() bool {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.ready
}

func (ob *OrderBook) LastUpdateID() int64 {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.lastUpdateID
}

// PendingLen reports how many stream events are buffered waiting for the
// snapshot. Once the book is ready it stays zero.
func (ob *OrderBook) PendingLen() int {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.pending.Len()
}

// TopOfBook returns the best maxDepth levels per side. A zero maxDepth
// returns both sides whole.
func (ob *OrderBook) TopOfBook(maxDepth int) (bids, asks []PriceLevel) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	bids = make([]PriceLevel, len(ob.bids))
	asks = make([]PriceLevel, len(ob.asks))
	copy(bids, ob.bids)
	copy(asks, ob.asks)

	return limitDepth(bids, maxDepth), limitDepth(asks, maxDepth)
}

// TakeSnapshot serializes the current book state back to wire form so it
// can be served instead of another round trip to the provider. The whole
// snapshot is built in one critical section: the levels always belong to
// the revision named by LastUpdateId.
func (ob *OrderBook) TakeSnapshot(maxDepth int) *OrderBookSnapshot {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	return &OrderBookSnapshot{
		Source:       OrderBookSource_LocalOrderBook,
		LastUpdateId: ob.lastUpdateID,
		Bids:         SerializePriceLevels(limitDepth(ob.bids, maxDepth)),
		Asks:         SerializePriceLevels(limitDepth(ob.asks, maxDepth)),
	}
}

func limitDepth(levels []PriceLevel, maxDepth int) []PriceLevel {
	if maxDepth > 0 && len(levels) > maxDepth {
		return levels[:maxDepth]
	}
	return levels
}

// applySideChanges merges delta levels into one book side. Levels not
// mentioned by the update are untouched; a zero quantity deletes the
// level, anything else upserts it. The side stays sorted best-first.
func applySideChanges(side []PriceLevel, changes [][]string, isAsks bool) []PriceLevel {
	for _, change := range changes {
		level, err := parsePriceLevel(change)
		if err != nil {
			logger.WithError(err).Warnf("skipping malformed price level %v", change)
			continue
		}

		if level.Quantity.IsZero() {
			for i := range side {
				if side[i].Price.Equal(level.Price) {
					side = append(side[:i], side[i+1:]...)
					break
				}
			}
			continue
		}

		updated := false
		for i := range side {
			if side[i].Price.Equal(level.Price) {
				side[i].Quantity = level.Quantity
				updated = true
				break
			}
		}
		if !updated {
			side = append(side, level)
		}
	}

	sort.Slice(side, func(i, j int) bool {
		if isAsks {
			return side[i].Price.LessThan(side[j].Price)
		}
		return side[i].Price.GreaterThan(side[j].Price)
	})

	return side
}

func parsePriceLevel(level []string) (PriceLevel, error) {
	if len(level) < 2 {
		return PriceLevel{}, fmt.Errorf("price level must have price and quantity, got %d elements", len(level))
	}

	price, err := decimal.NewFromString(level[0])
	if err != nil {
		return PriceLevel{}, fmt.Errorf("invalid price %q: %w", level[0], err)
	}
	quantity, err := decimal.NewFromString(level[1])
	if err != nil {
		return PriceLevel{}, fmt.Errorf("invalid quantity %q: %w", level[1], err)
	}

	return PriceLevel{Price: price, Quantity: quantity}, nil
}

// ParsePriceLevels decodes wire levels, keeping only price and quantity.
func ParsePriceLevels(levels [][]string) ([]PriceLevel, error) {
	result := make([]PriceLevel, 0, len(levels))
	for _, level := range levels {
		parsed, err := parsePriceLevel(level)
		if err != nil {
			return nil, err
		}
		result = append(result, parsed)
	}

	return result, nil
}

func SerializePriceLevels(levels []PriceLevel) [][]string {
	result := make([][]string, len(levels))
	for i, level := range levels {
		result[i] = []string{level.Price.String(), level.Quantity.String()}
	}

	return result
}
