package binance

type OrderSide string

const (
	OrderSide_Buy  OrderSide = "BUY"
	OrderSide_Sell OrderSide = "SELL"
)

type OrderType string

const (
	OrderType_Market OrderType = "MARKET"
	OrderType_Limit  OrderType = "LIMIT"
)

type OrderStatus string

const (
	OrderStatus_New             OrderStatus = "NEW"
	OrderStatus_Canceled        OrderStatus = "CANCELED"
	OrderStatus_PartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatus_Filled          OrderStatus = "FILLED"
	OrderStatus_PendingCancel   OrderStatus = "PENDING_CANCEL"
	OrderStatus_Rejected        OrderStatus = "REJECTED"
	OrderStatus_Expired         OrderStatus = "EXPIRED"
)

type TimeInForce string

const (
	TimeInForce_GTC TimeInForce = "GTC"
	TimeInForce_IOC TimeInForce = "IOC"
)

// Candlestick intervals supported by the klines endpoint and the kline
// stream topics.
const (
	Interval_1m  = "1m"
	Interval_3m  = "3m"
	Interval_5m  = "5m"
	Interval_15m = "15m"
	Interval_30m = "30m"
	Interval_1h  = "1h"
	Interval_2h  = "2h"
	Interval_4h  = "4h"
	Interval_6h  = "6h"
	Interval_8h  = "8h"
	Interval_12h = "12h"
	Interval_1d  = "1d"
	Interval_3d  = "3d"
	Interval_1w  = "1w"
	Interval_1M  = "1M"
)
