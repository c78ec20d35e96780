package models

import (
	"fmt"
	"time"
)

// Details is the free-form structured payload attached to an audit event.
// Values are restricted to the JSON primitive set (string, bool, float64,
// nil) plus nested arrays and string-keyed maps of the same, so the
// canonical encoding stays well-defined.
type Details map[string]interface{}

// Validate rejects detail values outside the allowed closed set.
func (d Details) Validate() error {
	for k, v := range d {
		if err := validateDetailValue(v); err != nil {
			return fmt.Errorf("details[%q]: %w", k, err)
		}
	}
	return nil
}

func validateDetailValue(v interface{}) error {
	switch val := v.(type) {
	case nil, string, bool, float64, int, int64:
		return nil
	case []interface{}:
		for _, item := range val {
			if err := validateDetailValue(item); err != nil {
				return err
			}
		}
		return nil
	case map[string]interface{}:
		for k, item := range val {
			if err := validateDetailValue(item); err != nil {
				return fmt.Errorf("%q: %w", k, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
}

// AuditEvent is a caller-supplied security event. Once committed its fields
// live on inside a Block and are never mutated again.
type AuditEvent struct {
	EventID      string    `json:"event_id"`
	Timestamp    time.Time `json:"timestamp"`
	EventType    string    `json:"event_type"`
	Actor        string    `json:"actor"`
	OrgID        string    `json:"org_id"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Action       string    `json:"action"`
	SourceAddr   string    `json:"source_addr,omitempty"`
	ClientAgent  string    `json:"client_agent,omitempty"`
	Details      Details   `json:"details,omitempty"`
	Success      bool      `json:"success"`
	RiskScore    int       `json:"risk_score"`
}

// Validate checks required fields and the details payload. It returns a map
// of field name to problem for each invalid field, or nil when the event is
// acceptable.
func (e *AuditEvent) Validate() map[string]string {
	fields := make(map[string]string)
	if e.EventType == "" {
		fields["event_type"] = "required"
	}
	if e.Actor == "" {
		fields["actor"] = "required"
	}
	if e.Action == "" {
		fields["action"] = "required"
	}
	if e.RiskScore < 0 || e.RiskScore > 100 {
		fields["risk_score"] = "must be between 0 and 100"
	}
	if err := e.Details.Validate(); err != nil {
		fields["details"] = err.Error()
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// Normalize fills defaults and pins the timestamp to UTC microsecond
// precision, which is what Postgres timestamptz round-trips. Without the
// truncation a recomputed canonical encoding would not match the stored one.
func (e *AuditEvent) Normalize(now time.Time) {
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	e.Timestamp = e.Timestamp.UTC().Truncate(time.Microsecond)
}
