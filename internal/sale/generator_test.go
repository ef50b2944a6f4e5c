package sale

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext_SalesAmountIsRoundedSumOfItems(t *testing.T) {
	g := NewGenerator(Options{})
	for i := 0; i < 500; i++ {
		rec := g.Next()

		sum := decimal.Zero
		for _, it := range rec.Order {
			sum = sum.Add(decimal.NewFromFloat(it.SalesAmount))
		}
		assert.True(t, sum.Round(2).Equal(decimal.NewFromFloat(rec.SalesAmount)),
			"salesAmount %v != sum %v", rec.SalesAmount, sum)
	}
}

func TestNext_ItemCountWithinBounds(t *testing.T) {
	g := NewGenerator(Options{})
	seen := map[int]bool{}
	for i := 0; i < 500; i++ {
		n := len(g.Next().Order)
		require.GreaterOrEqual(t, n, 1)
		require.LessOrEqual(t, n, MaxItems)
		seen[n] = true
	}
	assert.Len(t, seen, MaxItems, "every order size should eventually show up")
}

func TestNext_HistoricDatesStayInWindow(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	g := NewGenerator(Options{Historic: true})
	g.now = func() time.Time { return now }

	for i := 0; i < 1000; i++ {
		d := g.Next().Date.Time()
		assert.False(t, d.After(now), "date %s is in the future", d)
		assert.True(t, now.Sub(d) < HistoricWindow, "date %s is older than the window", d)
	}
}

func TestNext_CurrentDateWhenNotHistoric(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	g := NewGenerator(Options{})
	g.now = func() time.Time { return now }
	assert.Equal(t, now, g.Next().Date.Time())
}

func TestNext_StaticBlock(t *testing.T) {
	plain := NewGenerator(Options{}).Next()
	assert.Empty(t, plain.Region)
	assert.Empty(t, plain.Terminal)

	rec := NewGenerator(Options{Static: true}).Next()
	assert.Contains(t, regions, rec.Region)
	assert.Contains(t, channels, rec.Channel)
	assert.Equal(t, "USD", rec.Currency)
	assert.Regexp(t, `^T\d{2}$`, rec.Terminal)
}

func TestRecordJSONShape(t *testing.T) {
	g := NewGenerator(Options{})
	g.now = func() time.Time { return time.Date(2023, 7, 9, 8, 5, 3, 999, time.FixedZone("X", 3600)) }
	rec := g.Next()

	b, err := rec.Marshal()
	require.NoError(t, err)
	assert.False(t, bytes.ContainsAny(b, "\r\n"), "payload must be a single line")

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "2023-07-09 07:05:03", m["date"])
	assert.Equal(t, shopName, m["shop"])
	assert.NotEmpty(t, m["recordId"])
	assert.NotContains(t, m, "region")
	assert.IsType(t, float64(0), m["salesAmount"])
	assert.IsType(t, []interface{}{}, m["order"])

	var back Record
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, rec.Date.Time().UTC().Truncate(time.Second), back.Date.Time())
	assert.Equal(t, rec.Order, back.Order)
}
