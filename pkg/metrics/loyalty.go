package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LoyaltyMetrics records ledger, allocator and fan-out activity.
type LoyaltyMetrics struct {
	transactions     *prometheus.CounterVec
	postingDuration  *prometheus.HistogramVec
	allocatorRetries prometheus.Counter
	pushSent         prometheus.Counter
	pushFailed       prometheus.Counter
	pushPruned       prometheus.Counter
}

// NewLoyaltyMetrics registers the loyalty metrics on the provided registerer.
func NewLoyaltyMetrics(reg prometheus.Registerer) *LoyaltyMetrics {
	if reg == nil {
		return &LoyaltyMetrics{}
	}
	transactions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_transactions_total",
		Help: "Committed ledger entries by type.",
	}, []string{"type"})
	postingDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_posting_duration_seconds",
		Help:    "Duration of ledger postings in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})
	allocatorRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "member_code_allocator_retries_total",
		Help: "Member code draws that collided and were retried.",
	})
	pushSent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "push_notifications_sent_total",
		Help: "Push notifications delivered successfully.",
	})
	pushFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "push_notifications_failed_total",
		Help: "Push notification deliveries that failed.",
	})
	pushPruned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "push_subscriptions_pruned_total",
		Help: "Push subscriptions cleared after the provider reported them gone.",
	})
	reg.MustRegister(transactions, postingDuration, allocatorRetries, pushSent, pushFailed, pushPruned)
	return &LoyaltyMetrics{
		transactions:     transactions,
		postingDuration:  postingDuration,
		allocatorRetries: allocatorRetries,
		pushSent:         pushSent,
		pushFailed:       pushFailed,
		pushPruned:       pushPruned,
	}
}

// IncTransaction counts a committed ledger entry of the given type.
func (m *LoyaltyMetrics) IncTransaction(txType string) {
	if m == nil || m.transactions == nil {
		return
	}
	m.transactions.WithLabelValues(txType).Inc()
}

// ObservePosting records the duration of a ledger posting.
func (m *LoyaltyMetrics) ObservePosting(txType string, duration time.Duration) {
	if m == nil || m.postingDuration == nil {
		return
	}
	m.postingDuration.WithLabelValues(txType).Observe(duration.Seconds())
}

// IncAllocatorRetry counts a collided member-code draw.
func (m *LoyaltyMetrics) IncAllocatorRetry() {
	if m == nil || m.allocatorRetries == nil {
		return
	}
	m.allocatorRetries.Inc()
}

// IncPushSent counts a successful push delivery.
func (m *LoyaltyMetrics) IncPushSent() {
	if m == nil || m.pushSent == nil {
		return
	}
	m.pushSent.Inc()
}

// IncPushFailed counts a failed push delivery.
func (m *LoyaltyMetrics) IncPushFailed() {
	if m == nil || m.pushFailed == nil {
		return
	}
	m.pushFailed.Inc()
}

// IncPushPruned counts a cleared push subscription.
func (m *LoyaltyMetrics) IncPushPruned() {
	if m == nil || m.pushPruned == nil {
		return
	}
	m.pushPruned.Inc()
}
