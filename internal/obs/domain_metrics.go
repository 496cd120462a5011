package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuoteEstimatesTotal counts computed estimates per product line.
	QuoteEstimatesTotal *prometheus.CounterVec
	// QuoteLeadsTotal counts submitted quotes by product line and outcome.
	QuoteLeadsTotal *prometheus.CounterVec
	// QuoteTotalEUR records the distribution of submitted quote totals.
	QuoteTotalEUR *prometheus.HistogramVec
	// PricingSourceTotal counts where each resolved price list came from.
	PricingSourceTotal *prometheus.CounterVec
	// QuoteEmailTotal tracks sales email delivery outcomes.
	QuoteEmailTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuoteEstimatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_estimates_total",
			Help:      "Count of computed quote estimates.",
		}, []string{"product"})
		QuoteLeadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_leads_total",
			Help:      "Count of quote submissions by outcome.",
		}, []string{"product", "result"})
		QuoteTotalEUR = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_total_eur",
			Help:      "Distribution of submitted quote totals in euro.",
			Buckets:   []float64{10000, 20000, 30000, 50000, 75000, 100000, 200000, 400000},
		}, []string{"product"})
		PricingSourceTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_source_total",
			Help:      "Count of price list resolutions by source.",
		}, []string{"source"})
		QuoteEmailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_email_total",
			Help:      "Count of sales email delivery outcomes.",
		}, []string{"result"})

		QuoteEstimatesTotal = registerOrReuse(reg, QuoteEstimatesTotal)
		QuoteLeadsTotal = registerOrReuse(reg, QuoteLeadsTotal)
		QuoteTotalEUR = registerOrReuse(reg, QuoteTotalEUR)
		PricingSourceTotal = registerOrReuse(reg, PricingSourceTotal)
		QuoteEmailTotal = registerOrReuse(reg, QuoteEmailTotal)
	})
}

// The record helpers are no-ops until MustRegisterDomainMetrics has run, so
// packages can call them from tests without a registry.

// RecordEstimate counts one computed estimate.
func RecordEstimate(product string) {
	if QuoteEstimatesTotal != nil {
		QuoteEstimatesTotal.WithLabelValues(product).Inc()
	}
}

// RecordLead counts one quote submission and observes its total on success.
func RecordLead(product, result string, totalEUR float64) {
	if QuoteLeadsTotal != nil {
		QuoteLeadsTotal.WithLabelValues(product, result).Inc()
	}
	if result == "ok" && QuoteTotalEUR != nil {
		QuoteTotalEUR.WithLabelValues(product).Observe(totalEUR)
	}
}

// RecordPricingSource counts one price list resolution.
func RecordPricingSource(source string) {
	if PricingSourceTotal != nil {
		PricingSourceTotal.WithLabelValues(source).Inc()
	}
}

// RecordQuoteEmail counts one sales email delivery outcome.
func RecordQuoteEmail(result string) {
	if QuoteEmailTotal != nil {
		QuoteEmailTotal.WithLabelValues(result).Inc()
	}
}
