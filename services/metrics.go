package services

import (
	"desci-meme/market"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bündelt die Prometheus-Metriken der Registry.
type Metrics struct {
	TokensCreated    prometheus.Counter
	TokensRegistered prometheus.Gauge
	Purchases        prometheus.Counter
	UnitsSold        prometheus.Counter
	PriceUpdates     prometheus.Counter
	SaleToggles      prometheus.Counter
	Failures         *prometheus.CounterVec
	Snapshots        prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TokensCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokens_created_total",
			Help: "Total number of research tokens created.",
		}),
		TokensRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tokens_registered",
			Help: "Number of research tokens in the registry, including restored ones.",
		}),
		Purchases: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "token_purchases_total",
			Help: "Total number of successful token purchases.",
		}),
		UnitsSold: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "token_units_sold_total",
			Help: "Total number of whole token units sold.",
		}),
		PriceUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "price_updates_total",
			Help: "Total number of token price updates.",
		}),
		SaleToggles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sale_toggles_total",
			Help: "Total number of sale activations and deactivations.",
		}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "operation_failures_total",
			Help: "Rejected operations by operation and error kind.",
		}, []string{"operation", "kind"}),
		Snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "registry_snapshots_total",
			Help: "Total number of registry snapshots uploaded.",
		}),
	}
	reg.MustRegister(m.TokensCreated, m.TokensRegistered, m.Purchases, m.UnitsSold,
		m.PriceUpdates, m.SaleToggles, m.Failures, m.Snapshots)
	return m
}

func (m *Metrics) observe(ev market.Event) {
	switch ev.Kind {
	case market.EventTokenCreated:
		m.TokensCreated.Inc()
		m.TokensRegistered.Inc()
	case market.EventTokensPurchased:
		m.Purchases.Inc()
		m.UnitsSold.Add(float64(ev.Amount))
	case market.EventPriceUpdated:
		m.PriceUpdates.Inc()
	case market.EventActiveToggled:
		m.SaleToggles.Inc()
	}
}

func (m *Metrics) failed(operation string, err error) {
	m.Failures.WithLabelValues(operation, ErrorKind(err)).Inc()
}

// ErrorKind liefert ein kurzes Label für die Fehlerkategorie.
func ErrorKind(err error) string {
	switch market.KindOf(err) {
	case market.ErrValidation:
		return "validation"
	case market.ErrUnauthorized:
		return "unauthorized"
	case market.ErrPaymentMismatch:
		return "payment_mismatch"
	case market.ErrInactiveSale:
		return "inactive_sale"
	case market.ErrNotFound:
		return "not_found"
	case market.ErrSupplyExhausted:
		return "supply_exhausted"
	case market.ErrInsufficientFunds:
		return "insufficient_funds"
	default:
		return "internal"
	}
}
