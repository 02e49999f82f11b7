package binance

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// APIError is the error envelope returned by the exchange on failed
// requests, e.g. {"code": -1121, "msg": "Invalid symbol."}.
type APIError struct {
	Code    int64  `json:"code"`
	Message string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance: api error %d: %s", e.Code, e.Message)
}

// DepthResponse is the raw depth endpoint payload. Levels come back as
// arrays whose first two elements are price and quantity strings; some
// API versions append extra elements, which are ignored.
type DepthResponse struct {
	LastUpdateID int64           `json:"lastUpdateId"`
	Bids         [][]interface{} `json:"bids"`
	Asks         [][]interface{} `json:"asks"`
}

// toStringLevels keeps the price and quantity columns of raw depth
// levels and drops the rest.
func toStringLevels(levels [][]interface{}) ([][]string, error) {
	result := make([][]string, 0, len(levels))
	for _, level := range levels {
		if len(level) < 2 {
			return nil, fmt.Errorf("binance: depth level must have price and quantity, got %v", level)
		}

		price, ok := level[0].(string)
		if !ok {
			return nil, fmt.Errorf("binance: depth level price is not a string: %v", level[0])
		}
		quantity, ok := level[1].(string)
		if !ok {
			return nil, fmt.Errorf("binance: depth level quantity is not a string: %v", level[1])
		}

		result = append(result, []string{price, quantity})
	}

	return result, nil
}

// Kline is one bar of the klines endpoint. The endpoint returns tuples:
//
//	[0] open time, [1] open, [2] high, [3] low, [4] close, [5] volume,
//	[6] close time, ... (quote volume, trade count and taker volumes
//	follow and are not used here).
type Kline struct {
	OpenTime  int64
	CloseTime int64
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// UnmarshalJSON decodes the positional kline tuple. Numbers arrive as
// float64 and prices as strings.
func (k *Kline) UnmarshalJSON(data []byte) error {
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) < 7 {
		return fmt.Errorf("binance: kline tuple has %d elements, want at least 7", len(raw))
	}

	openTime, ok := raw[0].(float64)
	if !ok {
		return fmt.Errorf("binance: kline open time is not a number: %v", raw[0])
	}
	k.OpenTime = int64(openTime)

	closeTime, ok := raw[6].(float64)
	if !ok {
		return fmt.Errorf("binance: kline close time is not a number: %v", raw[6])
	}
	k.CloseTime = int64(closeTime)

	fields := []struct {
		index int
		dst   *decimal.Decimal
		name  string
	}{
		{1, &k.Open, "open"},
		{2, &k.High, "high"},
		{3, &k.Low, "low"},
		{4, &k.Close, "close"},
		{5, &k.Volume, "volume"},
	}
	for _, f := range fields {
		s, ok := raw[f.index].(string)
		if !ok {
			return fmt.Errorf("binance: kline %s is not a string: %v", f.name, raw[f.index])
		}
		value, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("binance: kline %s: %w", f.name, err)
		}
		*f.dst = value
	}

	return nil
}

// Ticker is one entry of the allPrices endpoint.
type Ticker struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// Ticker24h is the rolling 24 hour statistics payload of one symbol.
type Ticker24h struct {
	Symbol             string          `json:"symbol"`
	PriceChange        decimal.Decimal `json:"priceChange"`
	PriceChangePercent decimal.Decimal `json:"priceChangePercent"`
	WeightedAvgPrice   decimal.Decimal `json:"weightedAvgPrice"`
	LastPrice          decimal.Decimal `json:"lastPrice"`
	BidPrice           decimal.Decimal `json:"bidPrice"`
	AskPrice           decimal.Decimal `json:"askPrice"`
	OpenPrice          decimal.Decimal `json:"openPrice"`
	HighPrice          decimal.Decimal `json:"highPrice"`
	LowPrice           decimal.Decimal `json:"lowPrice"`
	Volume             decimal.Decimal `json:"volume"`
	QuoteVolume        decimal.Decimal `json:"quoteVolume"`
	OpenTime           int64           `json:"openTime"`
	CloseTime          int64           `json:"closeTime"`
	TradeCount         int64           `json:"count"`
}

// BookTicker is one entry of the allBookTickers endpoint.
type BookTicker struct {
	Symbol   string          `json:"symbol"`
	BidPrice decimal.Decimal `json:"bidPrice"`
	BidQty   decimal.Decimal `json:"bidQty"`
	AskPrice decimal.Decimal `json:"askPrice"`
	AskQty   decimal.Decimal `json:"askQty"`
}

type Balance struct {
	Asset  string          `json:"asset"`
	Free   decimal.Decimal `json:"free"`
	Locked decimal.Decimal `json:"locked"`
}

type Account struct {
	MakerCommission  int64     `json:"makerCommission"`
	TakerCommission  int64     `json:"takerCommission"`
	BuyerCommission  int64     `json:"buyerCommission"`
	SellerCommission int64     `json:"sellerCommission"`
	CanTrade         bool      `json:"canTrade"`
	CanWithdraw      bool      `json:"canWithdraw"`
	CanDeposit       bool      `json:"canDeposit"`
	Balances         []Balance `json:"balances"`
}

// Balance returns the balance of one asset, or false if the account does
// not hold it.
func (a *Account) Balance(asset string) (Balance, bool) {
	for _, b := range a.Balances {
		if b.Asset == asset {
			return b, true
		}
	}
	return Balance{}, false
}

type Trade struct {
	ID              int64           `json:"id"`
	OrderID         int64           `json:"orderId"`
	Price           decimal.Decimal `json:"price"`
	Quantity        decimal.Decimal `json:"qty"`
	Commission      decimal.Decimal `json:"commission"`
	CommissionAsset string          `json:"commissionAsset"`
	Time            int64           `json:"time"`
	IsBuyer         bool            `json:"isBuyer"`
	IsMaker         bool            `json:"isMaker"`
	IsBestMatch     bool            `json:"isBestMatch"`
}

type Order struct {
	Symbol        string          `json:"symbol"`
	OrderID       int64           `json:"orderId"`
	ClientOrderID string          `json:"clientOrderId"`
	Price         decimal.Decimal `json:"price"`
	OrigQty       decimal.Decimal `json:"origQty"`
	ExecutedQty   decimal.Decimal `json:"executedQty"`
	Status        OrderStatus     `json:"status"`
	TimeInForce   TimeInForce     `json:"timeInForce"`
	Type          OrderType       `json:"type"`
	Side          OrderSide       `json:"side"`
	StopPrice     decimal.Decimal `json:"stopPrice"`
	Time          int64           `json:"time"`
}

type Deposit struct {
	Asset      string          `json:"asset"`
	Amount     decimal.Decimal `json:"amount"`
	InsertTime int64           `json:"insertTime"`
	TxID       string          `json:"txId"`
	Status     int             `json:"status"`
}

type Withdraw struct {
	Asset     string          `json:"asset"`
	Amount    decimal.Decimal `json:"amount"`
	Address   string          `json:"address"`
	ApplyTime int64           `json:"applyTime"`
	TxID      string          `json:"txId"`
	Status    int             `json:"status"`
}

// wapi endpoints wrap their payload in a success flag instead of using
// HTTP status codes.
type withdrawResponse struct {
	Success bool   `json:"success"`
	Message string `json:"msg"`
	ID      string `json:"id"`
}

type withdrawHistoryResponse struct {
	Success      bool       `json:"success"`
	WithdrawList []Withdraw `json:"withdrawList"`
}

type depositHistoryResponse struct {
	Success     bool      `json:"success"`
	DepositList []Deposit `json:"depositList"`
}

// Message is the multiplexed stream envelope of /stream connections.
type Message[T any] struct {
	Stream string `json:"stream"`
	Data   T      `json:"data"`
}

// DepthUpdateData is the payload of a @depth stream event.
type DepthUpdateData struct {
	Event         string     `json:"e"`
	EventTime     int64      `json:"E"`
	Symbol        string     `json:"s"`
	FirstUpdateId int64      `json:"U"`
	FinalUpdateId int64      `json:"u"`
	Bids          [][]string `json:"b"`
	Asks          [][]string `json:"a"`
}

// KlineStreamData is the payload of a @kline_<interval> stream event.
type KlineStreamData struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime  int64  `json:"t"`
		CloseTime int64  `json:"T"`
		Symbol    string `json:"s"`
		Interval  string `json:"i"`
		Open      string `json:"o"`
		Close     string `json:"c"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Volume    string `json:"v"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}
