package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/spooky-finn/go-binance-client/binance"
	"github.com/spooky-finn/go-binance-client/config"
	"github.com/spooky-finn/go-binance-client/domain"
	promclient "github.com/spooky-finn/go-binance-client/infrastructure/prometheus"
	"github.com/spooky-finn/go-binance-client/usecase"
)

// Watches the orderbook and the 1m candlesticks of a symbol and prints
// the top of the book every few seconds.
func main() {
	market := flag.String("market", "btc_usdt", "market symbol to watch, base_quote")
	depth := flag.Int("depth", 10, "book levels to print per side")
	flag.Parse()

	conf := config.Load()

	symbol, err := domain.NewMarketSymbolFromString(*market)
	if err != nil {
		logrus.Fatalf("invalid market: %s", err)
	}

	client, err := binance.NewClient(conf.APIKey, conf.APISecret, binance.WithEndpoint(conf.RestEndpoint))
	if err != nil {
		logrus.Fatalf("failed to create rest client: %s", err)
	}

	streamClient := binance.NewStreamClient(binance.WithStreamEndpoint(conf.StreamEndpoint))
	if err := streamClient.Connect(); err != nil {
		logrus.Fatalf("failed to connect to stream endpoint: %s", err)
	}
	defer streamClient.Close()

	go func() {
		if err := promclient.StartPromClientServer(conf.MetricsAddr); err != nil {
			logrus.WithError(err).Error("metrics server stopped")
		}
	}()

	streamAPI := binance.NewStreamAPI(streamClient, client)
	marketData := usecase.NewMarketDataUseCase(streamAPI, streamAPI)
	defer marketData.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	orderbook, err := marketData.OrderBook(ctx, symbol, 0)
	if err != nil {
		cancel()
		logrus.Fatalf("failed to create orderbook replica: %s", err)
	}

	series, err := marketData.CandlestickSeries(ctx, symbol, binance.Interval_1m, 500)
	cancel()
	if err != nil {
		logrus.Fatalf("failed to create candlestick replica: %s", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			printTopOfBook(orderbook, *depth)
			if bar, ok := series.Latest(); ok {
				fmt.Printf("last 1m bar  o=%s h=%s l=%s c=%s v=%s\n\n",
					bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
			}
		}
	}
}

func printTopOfBook(orderbook *domain.OrderBook, maxDepth int) {
	bids, asks := orderbook.TopOfBook(maxDepth)

	fmt.Printf("%s  lastUpdateId=%d\n", orderbook.Symbol, orderbook.LastUpdateID())
	fmt.Println("Bids")
	for _, level := range bids {
		fmt.Printf("  %12s : %12s\n", level.Price, level.Quantity)
	}
	fmt.Println("Asks")
	for _, level := range asks {
		fmt.Printf("  %12s : %12s\n", level.Price, level.Quantity)
	}
	fmt.Println()
}
