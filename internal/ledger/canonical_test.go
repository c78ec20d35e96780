package ledger

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guardefi/landing1.2-sub002/internal/models"
)

func TestCanonicalEncodeDeterministic(t *testing.T) {
	e := sampleEvent(1)
	e.Details = models.Details{"path": "/etc/shadow", "bytes": float64(1024)}

	first, err := CanonicalEncode(e)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := CanonicalEncode(e)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCanonicalEncodeDetailOrderIndependent(t *testing.T) {
	a := sampleEvent(1)
	a.Details = models.Details{}
	a.Details["zone"] = "eu-west"
	a.Details["attempt"] = float64(3)
	a.Details["nested"] = map[string]interface{}{"b": "2", "a": "1"}

	b := sampleEvent(1)
	b.Details = models.Details{
		"nested":  map[string]interface{}{"a": "1", "b": "2"},
		"attempt": float64(3),
		"zone":    "eu-west",
	}

	encA, err := CanonicalEncode(a)
	require.NoError(t, err)
	encB, err := CanonicalEncode(b)
	require.NoError(t, err)
	assert.Equal(t, encA, encB)
}

func TestCanonicalEncodeVersionEnvelope(t *testing.T) {
	enc, err := CanonicalEncode(sampleEvent(1))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(enc), `["v1",`), "encoding %q lacks version envelope", enc)
	assert.False(t, strings.HasSuffix(string(enc), "\n"))
}

func TestCanonicalEncodeFieldSensitivity(t *testing.T) {
	base := sampleEvent(1)
	baseEnc, err := CanonicalEncode(base)
	require.NoError(t, err)

	changed := base
	changed.Actor = "someone-else"
	enc, err := CanonicalEncode(changed)
	require.NoError(t, err)
	assert.NotEqual(t, baseEnc, enc)

	changed = base
	changed.Details = models.Details{"extra": true}
	enc, err = CanonicalEncode(changed)
	require.NoError(t, err)
	assert.NotEqual(t, baseEnc, enc)

	changed = base
	changed.RiskScore = 75
	enc, err = CanonicalEncode(changed)
	require.NoError(t, err)
	assert.NotEqual(t, baseEnc, enc)
}

func TestCanonicalEncodeTimezoneInsensitive(t *testing.T) {
	instant := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	est := time.FixedZone("EST", -5*3600)

	a := sampleEvent(1)
	a.Timestamp = instant
	b := sampleEvent(1)
	b.Timestamp = instant.In(est)

	encA, err := CanonicalEncode(a)
	require.NoError(t, err)
	encB, err := CanonicalEncode(b)
	require.NoError(t, err)
	assert.Equal(t, encA, encB)
}

func TestCanonicalEncodeArrayOrderPreserved(t *testing.T) {
	a := sampleEvent(1)
	a.Details = models.Details{"tags": []interface{}{"x", "y"}}
	b := sampleEvent(1)
	b.Details = models.Details{"tags": []interface{}{"y", "x"}}

	encA, err := CanonicalEncode(a)
	require.NoError(t, err)
	encB, err := CanonicalEncode(b)
	require.NoError(t, err)
	assert.NotEqual(t, encA, encB)
}

func TestCanonicalEncodeNoHTMLEscaping(t *testing.T) {
	e := sampleEvent(1)
	e.Details = models.Details{"query": "a<b && c>d"}
	enc, err := CanonicalEncode(e)
	require.NoError(t, err)
	assert.Contains(t, string(enc), "a<b && c>d")
}
