package promclient

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("module", "promclient")

var OpenOrderBookGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "open_order_book_replicas",
		Help: "number of live local orderbook replicas",
	},
)

var OpenCandlestickSeriesGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "open_candlestick_series_replicas",
		Help: "number of live local candlestick series replicas",
	},
)

// StartPromClientServer serves the /metrics endpoint on addr. Blocks.
func StartPromClientServer(addr string) error {
	reg := prometheus.NewRegistry()
	promHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	reg.MustRegister(OpenOrderBookGauge)
	reg.MustRegister(OpenCandlestickSeriesGauge)
	reg.MustRegister(collectors.NewGoCollector())

	http.Handle("/metrics", promHandler)
	logger.Infof("prometheus server listening at %s", addr)

	return http.ListenAndServe(addr, nil)
}
