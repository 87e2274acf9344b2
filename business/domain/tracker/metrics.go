package tracker

import (
	"fmt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	newTransactionsCounter      prometheus.Counter
	deliveryErrorsCounter       prometheus.Counter
	fetchErrorsCounter          prometheus.Counter
	subscriptionFailuresCounter prometheus.Counter
	cyclesCounter               prometheus.Counter
	watermarkGauge              prometheus.Gauge
	seenTransactionsGauge       prometheus.Gauge
	modeGauge                   prometheus.Gauge
	errorsGauge                 prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	m := Metrics{
		// detection
		newTransactionsCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_new_transactions_total", namespace),
			Help: "The number of newly detected transactions",
		}),
		cyclesCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_cycles_total", namespace),
			Help: "The number of completed fetch and reconcile cycles",
		}),
		watermarkGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_watermark_lt", namespace),
			Help: "The highest processed logical time",
		}),
		seenTransactionsGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_seen_transactions", namespace),
			Help: "The number of hashes kept for deduplication",
		}),
		modeGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_mode", namespace),
			Help: "The detector mode (0 seeding, 1 event, 2 poll)",
		}),
		// failures
		deliveryErrorsCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_delivery_errors_total", namespace),
			Help: "The number of failed sink deliveries",
		}),
		fetchErrorsCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_fetch_errors_total", namespace),
			Help: "The number of failed history fetches",
		}),
		subscriptionFailuresCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_subscription_failures_total", namespace),
			Help: "The number of failed or lost notification subscriptions",
		}),
		errorsGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_consecutive_errors", namespace),
			Help: "The number of consecutive failed cycles",
		}),
	}
	return &m
}

func (metrics *Metrics) AddNewTransactions(count int) {
	metrics.newTransactionsCounter.Add(float64(count))
}

func (metrics *Metrics) IncCycles() {
	metrics.cyclesCounter.Inc()
}

func (metrics *Metrics) IncDeliveryErrors() {
	metrics.deliveryErrorsCounter.Inc()
}

func (metrics *Metrics) IncFetchErrors() {
	metrics.fetchErrorsCounter.Inc()
}

func (metrics *Metrics) IncSubscriptionFailures() {
	metrics.subscriptionFailuresCounter.Inc()
}

func (metrics *Metrics) SetWatermark(lt uint64, seen int) {
	metrics.watermarkGauge.Set(float64(lt))
	metrics.seenTransactionsGauge.Set(float64(seen))
}

func (metrics *Metrics) SetMode(mode Mode) {
	metrics.modeGauge.Set(float64(mode))
}

func (metrics *Metrics) SetErrors(count uint) {
	metrics.errorsGauge.Set(float64(count))
}
