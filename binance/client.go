package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/spooky-finn/go-binance-client/domain"
	"github.com/spooky-finn/go-binance-client/helpers"
)

var logger = logrus.WithField("module", "binance")

const (
	defaultRestEndpoint = "https://api.binance.com"

	// Every signed request carries a receive window: the server rejects
	// it when it arrives more than this many milliseconds after the
	// embedded timestamp.
	defaultRecvWindow = 6000 * time.Millisecond

	apiKeyHeader = "X-MBX-APIKEY"
)

const (
	endpointPing            = "api/v1/ping"
	endpointServerTime      = "api/v1/time"
	endpointAccountInfo     = "api/v3/account"
	endpointMyTrades        = "api/v3/myTrades"
	endpointOrder           = "api/v3/order"
	endpointAllOrders       = "api/v3/allOrders"
	endpointOpenOrders      = "api/v3/openOrders"
	endpointTickerAll       = "api/v1/ticker/allPrices"
	endpointBookTickers     = "api/v1/ticker/allBookTickers"
	endpointTicker24h       = "api/v1/ticker/24hr"
	endpointDepth           = "api/v1/depth"
	endpointKlines          = "api/v1/klines"
	endpointWithdraw        = "wapi/v1/withdraw.html"
	endpointWithdrawHistory = "wapi/v1/getWithdrawHistory.html"
	endpointDepositHistory  = "wapi/v1/getDepositHistory.html"
)

var (
	ErrInvalidSymbol      = errors.New("binance: invalid symbol")
	ErrMissingCredentials = errors.New("binance: api key and secret are required")
)

// Client is the REST side of the exchange API. Public market data
// endpoints work without credentials; account and trading endpoints sign
// every request with the api secret.
type Client struct {
	apiKey     string
	apiSecret  string
	endpoint   string
	httpClient *http.Client
}

type ClientOption func(*Client)

// WithEndpoint overrides the REST base URL, e.g. for a test server.
func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) { c.endpoint = endpoint }
}

func NewClient(apiKey, apiSecret string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, ErrMissingCredentials
	}

	c := &Client{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		endpoint:   defaultRestEndpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Ping checks connectivity to the REST endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.doPublic(ctx, http.MethodGet, endpointPing, nil, &struct{}{})
}

// ServerTime returns the exchange clock in epoch milliseconds.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	var response struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := c.doPublic(ctx, http.MethodGet, endpointServerTime, nil, &response); err != nil {
		return 0, err
	}

	return response.ServerTime, nil
}

// Tickers returns the latest price of every listed symbol.
func (c *Client) Tickers(ctx context.Context) ([]Ticker, error) {
	var tickers []Ticker
	if err := c.doPublic(ctx, http.MethodGet, endpointTickerAll, nil, &tickers); err != nil {
		return nil, err
	}

	return tickers, nil
}

// Ticker returns the latest price of one symbol. An unlisted symbol
// fails fast with ErrInvalidSymbol naming the offender, before any
// further request is attempted.
func (c *Client) Ticker(ctx context.Context, symbol *domain.MarketSymbol) (decimal.Decimal, error) {
	tickers, err := c.Tickers(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	for _, ticker := range tickers {
		if ticker.Symbol == symbol.Upper() {
			return ticker.Price, nil
		}
	}

	return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidSymbol, symbol.Upper())
}

// Ticker24h returns the rolling 24 hour statistics of one symbol.
func (c *Client) Ticker24h(ctx context.Context, symbol *domain.MarketSymbol) (*Ticker24h, error) {
	params := url.Values{}
	params.Set("symbol", symbol.Upper())

	var stats Ticker24h
	if err := c.doPublic(ctx, http.MethodGet, endpointTicker24h, params, &stats); err != nil {
		return nil, err
	}

	return &stats, nil
}

// BookTickers returns the best bid/ask of every listed symbol.
func (c *Client) BookTickers(ctx context.Context) ([]BookTicker, error) {
	var tickers []BookTicker
	if err := c.doPublic(ctx, http.MethodGet, endpointBookTickers, nil, &tickers); err != nil {
		return nil, err
	}

	return tickers, nil
}

// Depth fetches a full orderbook snapshot. A non-positive limit leaves
// the depth up to the server default.
func (c *Client) Depth(ctx context.Context, symbol *domain.MarketSymbol, limit int) (*domain.OrderBookSnapshot, error) {
	params := url.Values{}
	params.Set("symbol", symbol.Upper())
	if limit > 0 {
		params.Set("limit", helpers.IntToString(int64(limit)))
	}

	var response DepthResponse
	if err := c.doPublic(ctx, http.MethodGet, endpointDepth, params, &response); err != nil {
		return nil, err
	}

	bids, err := toStringLevels(response.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := toStringLevels(response.Asks)
	if err != nil {
		return nil, err
	}

	return &domain.OrderBookSnapshot{
		Source:       domain.OrderBookSource_Provider,
		LastUpdateId: response.LastUpdateID,
		Bids:         bids,
		Asks:         asks,
	}, nil
}

// KlinesRequest narrows a bar history query. Zero fields are omitted
// from the request.
type KlinesRequest struct {
	Limit     int
	StartTime int64
	EndTime   int64
}

// Klines fetches historical bars for a symbol and interval, oldest
// first.
func (c *Client) Klines(ctx context.Context, symbol *domain.MarketSymbol, interval string, req KlinesRequest) ([]Kline, error) {
	params := url.Values{}
	params.Set("symbol", symbol.Upper())
	params.Set("interval", interval)
	if req.Limit > 0 {
		params.Set("limit", helpers.IntToString(int64(req.Limit)))
	}
	if req.StartTime > 0 {
		params.Set("startTime", helpers.IntToString(req.StartTime))
	}
	if req.EndTime > 0 {
		params.Set("endTime", helpers.IntToString(req.EndTime))
	}

	var klines []Kline
	if err := c.doPublic(ctx, http.MethodGet, endpointKlines, params, &klines); err != nil {
		return nil, err
	}

	return klines, nil
}

// AccountInfo returns commissions, permissions and asset balances.
func (c *Client) AccountInfo(ctx context.Context) (*Account, error) {
	var account Account
	if err := c.doSigned(ctx, http.MethodGet, endpointAccountInfo, nil, &account); err != nil {
		return nil, err
	}

	return &account, nil
}

// MyTrades returns the account's trade history for one symbol.
func (c *Client) MyTrades(ctx context.Context, symbol *domain.MarketSymbol) ([]Trade, error) {
	params := url.Values{}
	params.Set("symbol", symbol.Upper())

	var trades []Trade
	if err := c.doSigned(ctx, http.MethodGet, endpointMyTrades, params, &trades); err != nil {
		return nil, err
	}

	return trades, nil
}

func (c *Client) OpenOrders(ctx context.Context, symbol *domain.MarketSymbol) ([]Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol.Upper())

	var orders []Order
	if err := c.doSigned(ctx, http.MethodGet, endpointOpenOrders, params, &orders); err != nil {
		return nil, err
	}

	return orders, nil
}

func (c *Client) AllOrders(ctx context.Context, symbol *domain.MarketSymbol) ([]Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol.Upper())

	var orders []Order
	if err := c.doSigned(ctx, http.MethodGet, endpointAllOrders, params, &orders); err != nil {
		return nil, err
	}

	return orders, nil
}

func (c *Client) OrderStatus(ctx context.Context, symbol *domain.MarketSymbol, orderID int64) (*Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol.Upper())
	params.Set("orderId", helpers.IntToString(orderID))

	var order Order
	if err := c.doSigned(ctx, http.MethodGet, endpointOrder, params, &order); err != nil {
		return nil, err
	}

	return &order, nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol *domain.MarketSymbol, orderID int64) error {
	params := url.Values{}
	params.Set("symbol", symbol.Upper())
	params.Set("orderId", helpers.IntToString(orderID))

	return c.doSigned(ctx, http.MethodDelete, endpointOrder, params, &struct{}{})
}

// PlaceMarketOrder submits a market order for the given quantity of the
// base asset.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol *domain.MarketSymbol, side OrderSide, quantity decimal.Decimal) (*Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol.Upper())
	params.Set("side", string(side))
	params.Set("type", string(OrderType_Market))
	params.Set("quantity", quantity.String())

	var order Order
	if err := c.doSigned(ctx, http.MethodPost, endpointOrder, params, &order); err != nil {
		return nil, err
	}

	return &order, nil
}

// LimitOrderRequest carries the optional fields of a limit order.
type LimitOrderRequest struct {
	TimeInForce TimeInForce
	StopPrice   decimal.Decimal
}

// PlaceLimitOrder submits a limit order. Time in force defaults to GTC.
func (c *Client) PlaceLimitOrder(ctx context.Context, symbol *domain.MarketSymbol, side OrderSide, quantity, price decimal.Decimal, req LimitOrderRequest) (*Order, error) {
	tif := req.TimeInForce
	if tif == "" {
		tif = TimeInForce_GTC
	}

	params := url.Values{}
	params.Set("symbol", symbol.Upper())
	params.Set("side", string(side))
	params.Set("type", string(OrderType_Limit))
	params.Set("timeInForce", string(tif))
	params.Set("quantity", quantity.String())
	params.Set("price", price.String())
	if !req.StopPrice.IsZero() {
		params.Set("stopPrice", req.StopPrice.String())
	}

	var order Order
	if err := c.doSigned(ctx, http.MethodPost, endpointOrder, params, &order); err != nil {
		return nil, err
	}

	return &order, nil
}

// WithdrawFunds requests a withdrawal of an asset to an external
// address and returns the withdrawal id.
func (c *Client) WithdrawFunds(ctx context.Context, asset string, amount decimal.Decimal, address string) (string, error) {
	params := url.Values{}
	params.Set("asset", asset)
	params.Set("amount", amount.String())
	params.Set("address", address)

	var response withdrawResponse
	if err := c.doSigned(ctx, http.MethodPost, endpointWithdraw, params, &response); err != nil {
		return "", err
	}
	if !response.Success {
		return "", fmt.Errorf("binance: withdraw rejected: %s", response.Message)
	}

	return response.ID, nil
}

// WithdrawHistory lists past withdrawals, optionally filtered by asset.
func (c *Client) WithdrawHistory(ctx context.Context, asset string) ([]Withdraw, error) {
	params := url.Values{}
	if asset != "" {
		params.Set("asset", asset)
	}

	var response withdrawHistoryResponse
	if err := c.doSigned(ctx, http.MethodPost, endpointWithdrawHistory, params, &response); err != nil {
		return nil, err
	}
	if !response.Success {
		return nil, fmt.Errorf("binance: withdraw history request failed")
	}

	return response.WithdrawList, nil
}

// DepositHistory lists past deposits, optionally filtered by asset. The
// asset filter is applied client-side as well since the server does not
// enforce the parameter.
func (c *Client) DepositHistory(ctx context.Context, asset string) ([]Deposit, error) {
	params := url.Values{}
	if asset != "" {
		params.Set("asset", asset)
	}

	var response depositHistoryResponse
	if err := c.doSigned(ctx, http.MethodPost, endpointDepositHistory, params, &response); err != nil {
		return nil, err
	}
	if !response.Success {
		return nil, fmt.Errorf("binance: deposit history request failed")
	}

	if asset == "" {
		return response.DepositList, nil
	}

	deposits := make([]Deposit, 0, len(response.DepositList))
	for _, deposit := range response.DepositList {
		if deposit.Asset == asset {
			deposits = append(deposits, deposit)
		}
	}

	return deposits, nil
}

func (c *Client) doPublic(ctx context.Context, method, path string, params url.Values, result interface{}) error {
	fullURL := fmt.Sprintf("%s/%s", c.endpoint, path)
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	return c.do(ctx, method, fullURL, result)
}

// doSigned sends an authenticated request. The canonical query string is
// the parameters sorted lexicographically by key (url.Values.Encode
// sorts), with timestamp and recvWindow injected; its hex HMAC-SHA256
// keyed by the api secret is appended as the signature parameter.
func (c *Client) doSigned(ctx context.Context, method, path string, params url.Values, result interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	if params.Get("recvWindow") == "" {
		params.Set("recvWindow", helpers.IntToString(defaultRecvWindow.Milliseconds()))
	}
	params.Set("timestamp", helpers.IntToString(time.Now().UnixMilli()))

	queryString := params.Encode()
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(queryString))
	signature := hex.EncodeToString(mac.Sum(nil))

	fullURL := fmt.Sprintf("%s/%s?%s&signature=%s", c.endpoint, path, queryString, signature)

	return c.do(ctx, method, fullURL, result)
}

func (c *Client) do(ctx context.Context, method, fullURL string, result interface{}) error {
	logger.Debugf("%s %s", method, fullURL)

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("binance: failed to read response body: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		var apiErr APIError
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
			return &apiErr
		}
		return fmt.Errorf("binance: unexpected status %s", res.Status)
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("binance: failed to unmarshal response body: %w", err)
	}

	return nil
}
