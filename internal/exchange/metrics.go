package exchange

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "exchange"

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of invocations, labelled by entrypoint and result code.
	Invocations metrics.Counter
	// Duration of invocations in seconds, labelled by entrypoint.
	InvocationSeconds metrics.Histogram
	// Number of listings created.
	ListingsAdded metrics.Counter
	// Tokens moved by transfer and transfer_cis2, labelled by entrypoint.
	TokensTraded metrics.Counter
	// Micro-CCD paid out to sellers.
	PayoutsSettled metrics.Counter
	// Payouts left escrowed after a failed currency transfer.
	PayoutsEscrowed metrics.Counter
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
func PrometheusMetrics(namespace string) *Metrics {
	return &Metrics{
		Invocations: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "invocations",
			Help:      "Number of entry point invocations.",
		}, []string{"entrypoint", "code"}),
		InvocationSeconds: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "invocation_seconds",
			Help:      "Duration of entry point invocations.",
			Buckets:   stdprometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"entrypoint"}),
		ListingsAdded: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "listings_added",
			Help:      "Number of listings created.",
		}, []string{}),
		TokensTraded: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "tokens_traded",
			Help:      "Token units moved by purchases and liquidations.",
		}, []string{"entrypoint"}),
		PayoutsSettled: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "payouts_settled_micro_ccd",
			Help:      "Micro-CCD paid out to sellers.",
		}, []string{}),
		PayoutsEscrowed: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "payouts_escrowed",
			Help:      "Liquidations whose payout failed after the tokens were escrowed.",
		}, []string{}),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Invocations:       discard.NewCounter(),
		InvocationSeconds: discard.NewHistogram(),
		ListingsAdded:     discard.NewCounter(),
		TokensTraded:      discard.NewCounter(),
		PayoutsSettled:    discard.NewCounter(),
		PayoutsEscrowed:   discard.NewCounter(),
	}
}
