package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Guardefi/landing1.2-sub002/internal/models"
)

// EncodingVersion is embedded in every canonical encoding so future field
// additions cannot silently change the hash of historical blocks.
const EncodingVersion = "v1"

// CanonicalEncode serializes the logical fields of an audit event into a
// byte string that depends only on the field values. Maps are flattened to
// sorted key/value arrays, so two events built in different order encode
// byte-identically. The output feeds both hashing and signing.
func CanonicalEncode(e models.AuditEvent) ([]byte, error) {
	fields := map[string]interface{}{
		"event_id":      e.EventID,
		"timestamp":     e.Timestamp.UTC().Format(time.RFC3339Nano),
		"event_type":    e.EventType,
		"actor":         e.Actor,
		"org_id":        e.OrgID,
		"resource_type": e.ResourceType,
		"resource_id":   e.ResourceID,
		"action":        e.Action,
		"source_addr":   e.SourceAddr,
		"client_agent":  e.ClientAgent,
		"details":       map[string]interface{}(e.Details),
		"success":       e.Success,
		"risk_score":    e.RiskScore,
	}
	stable, err := normalize(fields)
	if err != nil {
		return nil, fmt.Errorf("canonical encode: %w", err)
	}
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode([]interface{}{EncodingVersion, stable}); err != nil {
		return nil, fmt.Errorf("canonical encode: %w", err)
	}
	return bytes.TrimSpace(buf.Bytes()), nil
}

// normalize rewrites maps as flat [k1, v1, k2, v2, ...] arrays with keys in
// lexicographic order. Arrays keep their element order; scalars pass through.
func normalize(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]interface{}, 0, len(keys)*2)
		for _, k := range keys {
			nv, err := normalize(val[k])
			if err != nil {
				return nil, err
			}
			out = append(out, k, nv)
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, 0, len(val))
		for _, item := range val {
			nv, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out = append(out, nv)
		}
		return out, nil
	case json.Number:
		return val.String(), nil
	case string, float64, bool, int, int64, nil:
		return val, nil
	default:
		// Round-trip anything else through JSON so the encoding never
		// depends on Go-side struct layout.
		b, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("normalize: %w", err)
		}
		var decoded interface{}
		if err := json.Unmarshal(b, &decoded); err != nil {
			return nil, fmt.Errorf("normalize: %w", err)
		}
		return normalize(decoded)
	}
}
