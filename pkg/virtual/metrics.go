package virtual

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Broker metrics, served via promhttp by cmd/virtualcan.
var (
	brokerRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "virtualcan_rx_frames_total",
		Help: "Total CAN frames received from clients.",
	})
	brokerTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "virtualcan_tx_frames_total",
		Help: "Total CAN frames fanned out to clients.",
	})
	brokerDroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "virtualcan_dropped_frames_total",
		Help: "Total CAN frames dropped due to slow clients.",
	})
	brokerMalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "virtualcan_malformed_frames_total",
		Help: "Total rejected malformed frames (invalid length, truncated).",
	})
	brokerActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "virtualcan_active_clients",
		Help: "Current number of connected clients.",
	})
)
