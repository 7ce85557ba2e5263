package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otc_orders_created_total",
		Help: "Number of sell orders created",
	})

	OrdersCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otc_orders_cancelled_total",
		Help: "Number of sell orders cancelled by their seller",
	})

	TradesOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otc_trades_opened_total",
		Help: "Number of trades opened by taking an order",
	})

	TradesReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otc_trades_released_total",
		Help: "Number of trades settled in the seller's favor",
	})

	TradesRefunded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otc_trades_refunded_total",
		Help: "Number of disputed trades refunded to the buyer",
	})

	TradesDisputed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otc_trades_disputed_total",
		Help: "Number of trades moved into dispute by a buyer rejection",
	})
)
