package record

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Well-known field names inspected by the engine and the entity families.
const (
	FieldAmount   = "amount"
	FieldCategory = "category"
	FieldNote     = "note"
	FieldLimit    = "limit"
	FieldMonth    = "month"
	FieldName     = "name"
	FieldTarget   = "target"
	FieldSaved    = "saved"
	FieldKind     = "kind"
	FieldMessage  = "message"
	FieldSourceID = "source_id"
	FieldPeriod   = "period"
	FieldRead     = "read"
)

// Amount reads a decimal field. Values are stored as json.Number so the exact
// decimal text survives the cache codec; strings are accepted for values that
// predate the numeric encoding.
func (r Record) Amount(key string) (decimal.Decimal, bool) {
	v, ok := r.Fields[key]
	if !ok {
		return decimal.Zero, false
	}
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	default:
		return decimal.Zero, false
	}
}

// SetAmount stores a decimal field as json.Number.
func (r Record) SetAmount(key string, d decimal.Decimal) {
	r.Fields[key] = json.Number(d.String())
}

// Str reads a string field. Missing or non-string values read as "".
func (r Record) Str(key string) string {
	s, _ := r.Fields[key].(string)
	return s
}

// SetStr stores a string field.
func (r Record) SetStr(key, value string) {
	r.Fields[key] = value
}

// Flag reads a boolean field. Missing or non-bool values read as false.
func (r Record) Flag(key string) bool {
	b, _ := r.Fields[key].(bool)
	return b
}

// SetFlag stores a boolean field.
func (r Record) SetFlag(key string, value bool) {
	r.Fields[key] = value
}

// TimeField reads an RFC 3339 timestamp field.
func (r Record) TimeField(key string) (time.Time, bool) {
	s, ok := r.Fields[key].(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SetTimeField stores a timestamp field as RFC 3339 text.
func (r Record) SetTimeField(key string, t time.Time) {
	r.Fields[key] = t.UTC().Format(time.RFC3339Nano)
}
