package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Guardefi/landing1.2-sub002/internal/models"
)

// fakeClock drives the detector's notion of time.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func anomalyEvent(actor, eventType string) models.AuditEvent {
	return models.AuditEvent{Actor: actor, EventType: eventType, Action: "read"}
}

func TestAnomalyUnflaggedActor(t *testing.T) {
	d := NewAnomalyDetector(time.Hour, 3)
	assert.Equal(t, 0, d.RiskAdjustment("nobody"))
}

func TestAnomalyThresholdFlagsActor(t *testing.T) {
	d := NewAnomalyDetector(time.Hour, 3)
	clock := newFakeClock()
	d.now = clock.now

	for i := 0; i < 3; i++ {
		d.Record(anomalyEvent("alice", "secret_read"))
	}
	// At the threshold, not over it.
	assert.Equal(t, 0, d.RiskAdjustment("alice"))

	d.Record(anomalyEvent("alice", "secret_read"))
	assert.Equal(t, elevatedRisk, d.RiskAdjustment("alice"))
	assert.Equal(t, 0, d.RiskAdjustment("bob"))
}

func TestAnomalyCountsPerEventType(t *testing.T) {
	d := NewAnomalyDetector(time.Hour, 3)
	clock := newFakeClock()
	d.now = clock.now

	// Spread across event types, no single counter crosses the threshold.
	d.Record(anomalyEvent("alice", "secret_read"))
	d.Record(anomalyEvent("alice", "key_rotated"))
	d.Record(anomalyEvent("alice", "login"))
	d.Record(anomalyEvent("alice", "logout"))
	assert.Equal(t, 0, d.RiskAdjustment("alice"))
}

func TestAnomalyFlagExpires(t *testing.T) {
	d := NewAnomalyDetector(time.Hour, 2)
	clock := newFakeClock()
	d.now = clock.now

	for i := 0; i < 3; i++ {
		d.Record(anomalyEvent("alice", "secret_read"))
	}
	assert.Equal(t, elevatedRisk, d.RiskAdjustment("alice"))

	clock.advance(2 * time.Hour)
	assert.Equal(t, 0, d.RiskAdjustment("alice"))
}

func TestAnomalyWindowEviction(t *testing.T) {
	d := NewAnomalyDetector(time.Hour, 2)
	clock := newFakeClock()
	d.now = clock.now

	d.Record(anomalyEvent("alice", "secret_read"))
	d.Record(anomalyEvent("alice", "secret_read"))

	// Old observations age out of the window, so the next one starts a
	// fresh count instead of crossing the threshold.
	clock.advance(2 * time.Hour)
	d.Record(anomalyEvent("alice", "secret_read"))
	assert.Equal(t, 0, d.RiskAdjustment("alice"))
}

func TestAnomalySweepEvicts(t *testing.T) {
	d := NewAnomalyDetector(time.Hour, 2)
	clock := newFakeClock()
	d.now = clock.now

	for i := 0; i < 3; i++ {
		d.Record(anomalyEvent("alice", "secret_read"))
	}
	d.Record(anomalyEvent("bob", "login"))

	clock.advance(2 * time.Hour)
	d.Sweep()

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Empty(t, d.counters)
	assert.Empty(t, d.flagged)
}
