package record

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLocalID_Prefix(t *testing.T) {
	id := NewLocalID()
	assert.True(t, IsLocalID(id), "local ids must carry the local prefix")
	assert.False(t, IsLocalID("b2a9c7e0-0000-7000-8000-000000000001"))
}

func TestClone_Independent(t *testing.T) {
	r := New(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	r.SetStr(FieldCategory, "groceries")

	c := r.Clone()
	c.SetStr(FieldCategory, "rent")

	assert.Equal(t, "groceries", r.Str(FieldCategory), "clone must not alias the field map")
	assert.Equal(t, "rent", c.Str(FieldCategory))
}

func TestAmount_RoundTrip(t *testing.T) {
	r := New(time.Now())
	d := decimal.RequireFromString("-12.50")
	r.SetAmount(FieldAmount, d)

	got, ok := r.Amount(FieldAmount)
	require.True(t, ok)
	assert.True(t, d.Equal(got))

	// json.Number preserves the exact decimal text.
	assert.Equal(t, json.Number("-12.5"), r.Fields[FieldAmount])
}

func TestAmount_LargeValuePrecision(t *testing.T) {
	// Values beyond float64's 2^53 integer range must survive exactly.
	r := New(time.Now())
	d := decimal.RequireFromString("9007199254740993.01")
	r.SetAmount(FieldAmount, d)

	got, ok := r.Amount(FieldAmount)
	require.True(t, ok)
	assert.Equal(t, "9007199254740993.01", got.String())
}

func TestAmount_Missing(t *testing.T) {
	r := New(time.Now())
	_, ok := r.Amount(FieldAmount)
	assert.False(t, ok)
}

func TestTimeField_RoundTrip(t *testing.T) {
	r := New(time.Now())
	ts := time.Date(2026, 8, 31, 14, 30, 0, 123456789, time.UTC)
	r.SetTimeField(FieldPeriod, ts)

	got, ok := r.TimeField(FieldPeriod)
	require.True(t, ok)
	assert.True(t, ts.Equal(got))
}

func TestSortStable_TimestampThenID(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	items := []Record{
		{ID: "c", Timestamp: t2},
		{ID: "b", Timestamp: t1},
		{ID: "a", Timestamp: t1},
	}
	SortStable(items)

	require.Len(t, items, 3)
	assert.Equal(t, "a", items[0].ID)
	assert.Equal(t, "b", items[1].ID)
	assert.Equal(t, "c", items[2].ID)
}

func TestSortStable_Deterministic(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := []Record{{ID: "x", Timestamp: t1}, {ID: "y", Timestamp: t1}}
	b := []Record{{ID: "y", Timestamp: t1}, {ID: "x", Timestamp: t1}}

	SortStable(a)
	SortStable(b)

	assert.Equal(t, a[0].ID, b[0].ID, "same records must sort identically regardless of input order")
}

func TestPartitioners(t *testing.T) {
	r := Record{Timestamp: time.Date(2026, 8, 31, 23, 59, 0, 0, time.UTC)}

	assert.Equal(t, "2026-08-31", ByDay(r))
	assert.Equal(t, "2026-08", ByMonth(r))
	assert.Equal(t, "all", Single("all")(r))
}

func TestByDay_UTCNormalized(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	r := Record{Timestamp: time.Date(2026, 9, 1, 5, 0, 0, 0, loc)}

	// 2026-09-01 05:00 +10 is 2026-08-31 19:00 UTC.
	assert.Equal(t, "2026-08-31", ByDay(r))
}
