package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

type rpcMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	rpcMetricsOnce sync.Once
	rpcRegistry    *rpcMetrics

	marketMetricsOnce sync.Once
	marketRegistry    *MarketMetrics

	treasuryMetricsOnce sync.Once
	treasuryRegistry    *TreasuryMetrics

	oracleMetricsOnce sync.Once
	oracleRegistry    *OracleMetrics
)

// RPC returns the lazily-initialised metrics registry used to record JSON-RPC
// activity.
func RPC() *rpcMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &rpcMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "prism",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "prism",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and status code.",
			}, []string{"method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "prism",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "prism",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.errors,
			rpcRegistry.latency,
			rpcRegistry.throttles,
		)
	})
	return rpcRegistry
}

// Observe records the outcome of an RPC request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *rpcMetrics) Observe(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied reason.
// Reasons should be stable strings such as "rate_limit" or "quota_exceeded"
// so dashboards and alerts remain consistent.
func (m *rpcMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// MarketMetrics captures metrics for mint and redeem flows.
type MarketMetrics struct {
	operations *prometheus.CounterVec
	errors     *prometheus.CounterVec
	fees       *prometheus.CounterVec
}

// Market returns the singleton metrics registry for market operations.
func Market() *MarketMetrics {
	marketMetricsOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "prism",
				Subsystem: "market",
				Name:      "operations_total",
				Help:      "Count of market operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "prism",
				Subsystem: "market",
				Name:      "errors_total",
				Help:      "Count of market operation failures segmented by operation and reason.",
			}, []string{"operation", "reason"}),
			fees: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "prism",
				Subsystem: "market",
				Name:      "fees_base_total",
				Help:      "Cumulative fees charged, in base token units.",
			}, []string{"operation"}),
		}
		prometheus.MustRegister(
			marketRegistry.operations,
			marketRegistry.errors,
			marketRegistry.fees,
		)
	})
	return marketRegistry
}

// Observe records the execution outcome for a market operation. An empty
// reason marks success; anything else lands in the error family under that
// label, so callers must pass stable tokens rather than raw error text.
func (m *MarketMetrics) Observe(operation, reason string) {
	if m == nil {
		return
	}
	op := labelOperation(operation)
	trimmed := strings.TrimSpace(reason)
	if trimmed == "" {
		m.operations.WithLabelValues(op, "success").Inc()
		return
	}
	m.errors.WithLabelValues(op, trimmed).Inc()
	m.operations.WithLabelValues(op, "error").Inc()
}

// RecordFee adds a charged fee, converted from fixed point to whole base
// token units, to the running total for the operation.
func (m *MarketMetrics) RecordFee(operation string, fee *uint256.Int) {
	if m == nil || fee == nil || fee.IsZero() {
		return
	}
	m.fees.WithLabelValues(labelOperation(operation)).Add(fixedToFloat(fee))
}

// TreasuryMetrics wraps gauges tracking the collateral book.
type TreasuryMetrics struct {
	collateralRatio prometheus.Gauge
	leverage        prometheus.Gauge
	nav             *prometheus.GaugeVec
	supply          *prometheus.GaugeVec
	regime          prometheus.Gauge
}

// Treasury exposes the metrics registry for collateral accounting.
func Treasury() *TreasuryMetrics {
	treasuryMetricsOnce.Do(func() {
		treasuryRegistry = &TreasuryMetrics{
			collateralRatio: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "prism",
				Subsystem: "treasury",
				Name:      "collateral_ratio",
				Help:      "Current collateral ratio of the treasury book.",
			}),
			leverage: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "prism",
				Subsystem: "treasury",
				Name:      "leverage_ema",
				Help:      "Smoothed leverage of the leveraged tranche.",
			}),
			nav: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "prism",
				Subsystem: "treasury",
				Name:      "nav",
				Help:      "Net asset value per token unit.",
			}, []string{"token"}),
			supply: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "prism",
				Subsystem: "treasury",
				Name:      "supply",
				Help:      "Outstanding supply per token in whole units.",
			}, []string{"token"}),
			regime: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "prism",
				Subsystem: "treasury",
				Name:      "regime",
				Help:      "Current protocol regime ordinal, from healthy (0) to recap (4).",
			}),
		}
		prometheus.MustRegister(
			treasuryRegistry.collateralRatio,
			treasuryRegistry.leverage,
			treasuryRegistry.nav,
			treasuryRegistry.supply,
			treasuryRegistry.regime,
		)
	})
	return treasuryRegistry
}

// SetCollateralRatio updates the collateral ratio gauge.
func (m *TreasuryMetrics) SetCollateralRatio(ratio *uint256.Int) {
	if m == nil {
		return
	}
	m.collateralRatio.Set(fixedToFloat(ratio))
}

// SetLeverage updates the smoothed leverage gauge.
func (m *TreasuryMetrics) SetLeverage(leverage *uint256.Int) {
	if m == nil {
		return
	}
	m.leverage.Set(fixedToFloat(leverage))
}

// SetNav records the per-unit value for a token.
func (m *TreasuryMetrics) SetNav(token string, nav *uint256.Int) {
	if m == nil {
		return
	}
	m.nav.WithLabelValues(labelToken(token)).Set(fixedToFloat(nav))
}

// SetSupply records the outstanding supply for a token.
func (m *TreasuryMetrics) SetSupply(token string, supply *uint256.Int) {
	if m == nil {
		return
	}
	m.supply.WithLabelValues(labelToken(token)).Set(fixedToFloat(supply))
}

// SetRegime updates the regime gauge with the supplied ordinal.
func (m *TreasuryMetrics) SetRegime(ordinal uint8) {
	if m == nil {
		return
	}
	m.regime.Set(float64(ordinal))
}

// OracleMetrics bundles collectors for price feed health.
type OracleMetrics struct {
	accepted   *prometheus.CounterVec
	rejections *prometheus.CounterVec
	price      prometheus.Gauge
	freshness  *prometheus.GaugeVec
}

// Oracle returns the metrics registry for price feed tracking.
func Oracle() *OracleMetrics {
	oracleMetricsOnce.Do(func() {
		oracleRegistry = &OracleMetrics{
			accepted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "prism",
				Subsystem: "oracle",
				Name:      "quotes_accepted_total",
				Help:      "Count of price quotes accepted per feed.",
			}, []string{"feed"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "prism",
				Subsystem: "oracle",
				Name:      "quotes_rejected_total",
				Help:      "Count of price quotes rejected, segmented by feed and reason.",
			}, []string{"feed", "reason"}),
			price: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "prism",
				Subsystem: "oracle",
				Name:      "price",
				Help:      "Last accepted collateral price.",
			}),
			freshness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "prism",
				Subsystem: "oracle",
				Name:      "quote_age_seconds",
				Help:      "Age in seconds of the newest quote per feed at acceptance time.",
			}, []string{"feed"}),
		}
		prometheus.MustRegister(
			oracleRegistry.accepted,
			oracleRegistry.rejections,
			oracleRegistry.price,
			oracleRegistry.freshness,
		)
	})
	return oracleRegistry
}

// RecordAccepted notes an accepted quote along with its price and age.
func (m *OracleMetrics) RecordAccepted(feed string, price *uint256.Int, age time.Duration) {
	if m == nil {
		return
	}
	label := labelFeed(feed)
	m.accepted.WithLabelValues(label).Inc()
	m.price.Set(fixedToFloat(price))
	seconds := age.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.freshness.WithLabelValues(label).Set(seconds)
}

// RecordRejection increments the rejection counter for the supplied reason.
func (m *OracleMetrics) RecordRejection(feed, reason string) {
	if m == nil {
		return
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unspecified"
	}
	m.rejections.WithLabelValues(labelFeed(feed), reason).Inc()
}

func labelOperation(operation string) string {
	trimmed := strings.TrimSpace(operation)
	if trimmed == "" {
		return "unknown"
	}
	return strings.ToLower(trimmed)
}

func labelToken(token string) string {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(trimmed)
}

func labelFeed(feed string) string {
	trimmed := strings.TrimSpace(feed)
	if trimmed == "" {
		return "unknown"
	}
	return strings.ToLower(trimmed)
}

func fixedToFloat(value *uint256.Int) float64 {
	if value == nil {
		return 0
	}
	scaled := new(big.Float).SetInt(value.ToBig())
	scaled.Quo(scaled, big.NewFloat(1e18))
	floatVal, _ := scaled.Float64()
	if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
		return 0
	}
	return floatVal
}
