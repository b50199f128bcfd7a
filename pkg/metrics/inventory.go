package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// InventoryMetrics records stock-related counters for the API and worker.
type InventoryMetrics struct {
	lowStockPublished *prometheus.CounterVec
	stockConflicts    *prometheus.CounterVec
	cartMutation      *prometheus.HistogramVec
}

// NewInventoryMetrics registers the inventory metrics on the provided registerer.
func NewInventoryMetrics(reg prometheus.Registerer) *InventoryMetrics {
	if reg == nil {
		return &InventoryMetrics{}
	}
	lowStockPublished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "low_stock_alerts_published",
		Help: "Low-stock alerts published to the notification topic.",
	}, []string{"item_code"})
	stockConflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_conflicts",
		Help: "Cart mutations rejected because stock was insufficient.",
	}, []string{"operation"})
	cartMutation := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cart_mutation_duration_seconds",
		Help:    "Duration of cart mutations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	reg.MustRegister(lowStockPublished, stockConflicts, cartMutation)
	return &InventoryMetrics{
		lowStockPublished: lowStockPublished,
		stockConflicts:    stockConflicts,
		cartMutation:      cartMutation,
	}
}

// IncLowStockPublished increments the published alert counter for the item code.
func (m *InventoryMetrics) IncLowStockPublished(itemCode string) {
	if m == nil || m.lowStockPublished == nil {
		return
	}
	m.lowStockPublished.WithLabelValues(normalizeLabel(itemCode)).Inc()
}

// IncStockConflict increments the conflict counter for the named operation.
func (m *InventoryMetrics) IncStockConflict(operation string) {
	if m == nil || m.stockConflicts == nil {
		return
	}
	m.stockConflicts.WithLabelValues(normalizeLabel(operation)).Inc()
}

// ObserveCartMutation records the duration of the named cart operation.
func (m *InventoryMetrics) ObserveCartMutation(operation string, duration time.Duration) {
	if m == nil || m.cartMutation == nil {
		return
	}
	m.cartMutation.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
