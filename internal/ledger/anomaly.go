package ledger

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Guardefi/landing1.2-sub002/internal/metrics"
	"github.com/Guardefi/landing1.2-sub002/internal/models"
)

// elevatedRisk is added to the risk score of events from a flagged actor.
const elevatedRisk = 25

type counterKey struct {
	actor     string
	eventType string
}

// AnomalyDetector keeps sliding-window counters per (actor, event type) and
// flags actors that exceed the configured threshold inside the window.
// Counters are transient and non-authoritative: already committed blocks are
// never touched, only subsequent events carry the elevated risk.
type AnomalyDetector struct {
	mu        sync.Mutex
	window    time.Duration
	threshold int

	counters map[counterKey][]time.Time
	flagged  map[string]time.Time // actor -> flagged until

	now func() time.Time
}

// NewAnomalyDetector builds a detector with the given window and threshold.
func NewAnomalyDetector(window time.Duration, threshold int) *AnomalyDetector {
	if window <= 0 {
		window = time.Hour
	}
	if threshold <= 0 {
		threshold = 10
	}
	return &AnomalyDetector{
		window:    window,
		threshold: threshold,
		counters:  make(map[counterKey][]time.Time),
		flagged:   make(map[string]time.Time),
		now:       time.Now,
	}
}

// Record counts a committed event and raises a side-channel alert when the
// actor crosses the threshold for that event type.
func (d *AnomalyDetector) Record(e models.AuditEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	key := counterKey{actor: e.Actor, eventType: e.EventType}
	times := evictOld(d.counters[key], now.Add(-d.window))
	times = append(times, now)
	d.counters[key] = times

	if len(times) > d.threshold {
		until := now.Add(d.window)
		if prev, ok := d.flagged[e.Actor]; !ok || until.After(prev) {
			d.flagged[e.Actor] = until
		}
		metrics.IncAnomalyAlerts()
		slog.Warn("anomalous activity detected",
			"actor", e.Actor,
			"event_type", e.EventType,
			"count", len(times),
			"threshold", d.threshold,
			"window", d.window.String())
	}
}

// RiskAdjustment returns the extra risk to apply to the next event from
// actor, zero when the actor is not flagged.
func (d *AnomalyDetector) RiskAdjustment(actor string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	until, ok := d.flagged[actor]
	if !ok {
		return 0
	}
	if d.now().After(until) {
		delete(d.flagged, actor)
		return 0
	}
	return elevatedRisk
}

// Sweep evicts expired counters and flags to bound memory. Call it
// periodically; the per-event paths already evict the keys they touch.
func (d *AnomalyDetector) Sweep() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	cutoff := now.Add(-d.window)
	for key, times := range d.counters {
		kept := evictOld(times, cutoff)
		if len(kept) == 0 {
			delete(d.counters, key)
			continue
		}
		d.counters[key] = kept
	}
	for actor, until := range d.flagged {
		if now.After(until) {
			delete(d.flagged, actor)
		}
	}
}

func evictOld(times []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(times) && !times[idx].After(cutoff) {
		idx++
	}
	return times[idx:]
}
