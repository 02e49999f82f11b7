package domain

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSymbol(t *testing.T) *MarketSymbol {
	t.Helper()
	symbol, err := NewMarketSymbol("BTC", "USDT")
	require.NoError(t, err)
	return symbol
}

func TestOrderBook_BuffersEventsUntilSnapshot(t *testing.T) {
	ob := NewOrderBook(mustSymbol(t))

	update := NewOrderBookUpdate(ob.Symbol, 95, 95,
		[][]string{{"10000", "1"}}, nil)
	ob.Update(update)

	assert.False(t, ob.Ready(), "book must not be ready before the snapshot")
	assert.Equal(t, 1, ob.PendingLen(), "event must be queued, not dropped")

	bids, asks := ob.TopOfBook(0)
	assert.Empty(t, bids, "bids must stay empty before the snapshot")
	assert.Empty(t, asks, "asks must stay empty before the snapshot")
}

func TestOrderBook_SetInitialDataDrainsPendingQueue(t *testing.T) {
	ob := NewOrderBook(mustSymbol(t))

	// Both events race ahead of the snapshot: the first one is already
	// covered by the snapshot revision, the second one supersedes it.
	ob.Update(NewOrderBookUpdate(ob.Symbol, 94, 95,
		[][]string{{"10.0", "7"}}, nil))
	ob.Update(NewOrderBookUpdate(ob.Symbol, 101, 101,
		[][]string{{"10.0", "0"}}, nil))

	err := ob.SetInitialData(&OrderBookSnapshot{
		LastUpdateId: 100,
		Bids:         [][]string{{"10.0", "5"}},
		Asks:         [][]string{{"11.0", "3"}},
	})
	require.NoError(t, err)

	assert.True(t, ob.Ready())
	assert.Equal(t, 0, ob.PendingLen(), "queue must be drained exactly once")
	assert.Equal(t, int64(101), ob.LastUpdateID())

	bids, asks := ob.TopOfBook(0)
	assert.Empty(t, bids, "the u=101 event removed the only bid level")
	require.Len(t, asks, 1)
	assert.Equal(t, "11", asks[0].Price.String())
	assert.Equal(t, "3", asks[0].Quantity.String())
}

func TestOrderBook_SetInitialDataAppliedOnce(t *testing.T) {
	ob := NewOrderBook(mustSymbol(t))

	snapshot := &OrderBookSnapshot{
		LastUpdateId: 100,
		Bids:         [][]string{{"10.0", "5"}},
		Asks:         [][]string{{"11.0", "3"}},
	}
	require.NoError(t, ob.SetInitialData(snapshot))
	assert.ErrorIs(t, ob.SetInitialData(snapshot), ErrSnapshotAlreadyApplied)
}

func TestOrderBook_StaleUpdateIsDiscarded(t *testing.T) {
	ob := NewOrderBook(mustSymbol(t))
	require.NoError(t, ob.SetInitialData(&OrderBookSnapshot{
		LastUpdateId: 100,
		Bids:         [][]string{{"10000", "1"}},
		Asks:         [][]string{{"10100", "2"}},
	}))

	ob.Update(NewOrderBookUpdate(ob.Symbol, 99, 100,
		[][]string{{"10000", "9"}}, nil))

	assert.Equal(t, int64(100), ob.LastUpdateID())
	bids, _ := ob.TopOfBook(0)
	require.Len(t, bids, 1)
	assert.Equal(t, "1", bids[0].Quantity.String(), "stale update must have zero effect")
}

func TestOrderBook_ApplyingSameUpdateTwiceIsNoOp(t *testing.T) {
	ob := NewOrderBook(mustSymbol(t))
	require.NoError(t, ob.SetInitialData(&OrderBookSnapshot{
		LastUpdateId: 100,
		Bids:         [][]string{{"10000", "1"}},
		Asks:         [][]string{{"10100", "2"}},
	}))

	update := NewOrderBookUpdate(ob.Symbol, 101, 101,
		[][]string{{"9900", "4"}}, [][]string{{"10100", "0"}})
	ob.Update(update)

	bidsOnce, asksOnce := ob.TopOfBook(0)
	idOnce := ob.LastUpdateID()

	ob.Update(update)

	bidsTwice, asksTwice := ob.TopOfBook(0)
	assert.Equal(t, bidsOnce, bidsTwice)
	assert.Equal(t, asksOnce, asksTwice)
	assert.Equal(t, idOnce, ob.LastUpdateID())
}

func TestOrderBook_LastUpdateIDIsMonotonic(t *testing.T) {
	ob := NewOrderBook(mustSymbol(t))
	require.NoError(t, ob.SetInitialData(&OrderBookSnapshot{
		LastUpdateId: 100,
		Bids:         [][]string{{"10000", "1"}},
		Asks:         [][]string{{"10100", "2"}},
	}))

	previous := ob.LastUpdateID()
	for _, finalID := range []int64{105, 103, 110, 90, 110, 111} {
		ob.Update(NewOrderBookUpdate(ob.Symbol, finalID, finalID, nil, nil))
		assert.GreaterOrEqual(t, ob.LastUpdateID(), previous)
		previous = ob.LastUpdateID()
	}
	assert.Equal(t, int64(111), ob.LastUpdateID())
}

func TestOrderBook_ZeroQuantityRemovesLevel(t *testing.T) {
	ob := NewOrderBook(mustSymbol(t))
	require.NoError(t, ob.SetInitialData(&OrderBookSnapshot{
		LastUpdateId: 100,
		Bids:         [][]string{{"10000", "1"}, {"9900", "2"}},
		Asks:         [][]string{{"10100", "2"}},
	}))

	ob.Update(NewOrderBookUpdate(ob.Symbol, 101, 101,
		[][]string{{"10000", "0"}}, nil))

	bids, _ := ob.TopOfBook(0)
	require.Len(t, bids, 1)
	assert.Equal(t, "9900", bids[0].Price.String())
}

func TestOrderBook_SidesStaySortedBestFirst(t *testing.T) {
	ob := NewOrderBook(mustSymbol(t))
	require.NoError(t, ob.SetInitialData(&OrderBookSnapshot{
		LastUpdateId: 100,
		Bids:         [][]string{{"9900", "2"}, {"10000", "1"}},
		Asks:         [][]string{{"10200", "1"}, {"10100", "2"}},
	}))

	ob.Update(NewOrderBookUpdate(ob.Symbol, 101, 101,
		[][]string{{"9950", "3"}}, [][]string{{"10150", "4"}}))

	bids, asks := ob.TopOfBook(0)
	require.Len(t, bids, 3)
	assert.Equal(t, "10000", bids[0].Price.String(), "best bid first")
	assert.Equal(t, "9950", bids[1].Price.String())
	assert.Equal(t, "9900", bids[2].Price.String())

	require.Len(t, asks, 3)
	assert.Equal(t, "10100", asks[0].Price.String(), "best ask first")
	assert.Equal(t, "10150", asks[1].Price.String())
	assert.Equal(t, "10200", asks[2].Price.String())
}

func TestOrderBook_UpdateUpsertsQuantity(t *testing.T) {
	ob := NewOrderBook(mustSymbol(t))
	require.NoError(t, ob.SetInitialData(&OrderBookSnapshot{
		LastUpdateId: 100,
		Bids:         [][]string{{"10000", "1"}},
		Asks:         [][]string{{"10100", "2"}},
	}))

	// One mentioned level changes, the untouched side keeps its levels.
	ob.Update(NewOrderBookUpdate(ob.Symbol, 101, 101,
		[][]string{{"10000", "5"}}, nil))

	bids, asks := ob.TopOfBook(0)
	require.Len(t, bids, 1)
	assert.Equal(t, "5", bids[0].Quantity.String())
	require.Len(t, asks, 1)
	assert.Equal(t, "2", asks[0].Quantity.String())
}

func TestOrderBook_TopOfBookLimitsDepth(t *testing.T) {
	ob := NewOrderBook(mustSymbol(t))
	require.NoError(t, ob.SetInitialData(&OrderBookSnapshot{
		LastUpdateId: 100,
		Bids:         [][]string{{"10000", "1"}, {"9900", "2"}, {"9800", "3"}},
		Asks:         [][]string{{"10100", "1"}, {"10200", "2"}},
	}))

	bids, asks := ob.TopOfBook(2)
	assert.Len(t, bids, 2)
	assert.Len(t, asks, 2)

	bids, asks = ob.TopOfBook(0)
	assert.Len(t, bids, 3, "zero depth returns the whole side")
	assert.Len(t, asks, 2)
}

func TestOrderBook_TakeSnapshotRoundTrip(t *testing.T) {
	ob := NewOrderBook(mustSymbol(t))
	require.NoError(t, ob.SetInitialData(&OrderBookSnapshot{
		LastUpdateId: 123,
		Bids:         [][]string{{"10000", "1"}, {"9900", "2"}},
		Asks:         [][]string{{"10100", "1.5"}, {"10200", "2.5"}},
	}))

	snapshot := ob.TakeSnapshot(0)
	assert.Equal(t, OrderBookSource_LocalOrderBook, snapshot.Source)
	assert.Equal(t, int64(123), snapshot.LastUpdateId)
	assert.Equal(t, [][]string{{"10000", "1"}, {"9900", "2"}}, snapshot.Bids)
	assert.Equal(t, [][]string{{"10100", "1.5"}, {"10200", "2.5"}}, snapshot.Asks)
}

func TestOrderBook_SnapshotLevelsMatchItsRevision(t *testing.T) {
	ob := NewOrderBook(mustSymbol(t))
	require.NoError(t, ob.SetInitialData(&OrderBookSnapshot{
		LastUpdateId: 100,
		Bids:         [][]string{{"10000", "100"}},
		Asks:         [][]string{{"10100", "1"}},
	}))

	// Every update sets the bid quantity to its own revision, so a
	// snapshot torn between levels and id would expose a mismatch.
	updatesDone := make(chan struct{})
	go func() {
		defer close(updatesDone)
		for id := int64(101); id <= 500; id++ {
			ob.Update(NewOrderBookUpdate(ob.Symbol, id, id,
				[][]string{{"10000", strconv.FormatInt(id, 10)}}, nil))
		}
	}()

	for i := 0; i < 200; i++ {
		snapshot := ob.TakeSnapshot(0)
		require.Len(t, snapshot.Bids, 1)
		assert.Equal(t, strconv.FormatInt(snapshot.LastUpdateId, 10), snapshot.Bids[0][1],
			"snapshot levels must belong to the revision it names")
	}
	<-updatesDone
}

func TestParsePriceLevels(t *testing.T) {
	levels, err := ParsePriceLevels([][]string{{"10000", "1"}, {"9900.5", "2"}})
	require.NoError(t, err)
	require.Len(t, levels, 2)
	assert.Equal(t, "10000", levels[0].Price.String())
	assert.Equal(t, "9900.5", levels[1].Price.String())

	_, err = ParsePriceLevels([][]string{{"not-a-number", "1"}})
	assert.Error(t, err)

	_, err = ParsePriceLevels([][]string{{"10000"}})
	assert.Error(t, err)
}
