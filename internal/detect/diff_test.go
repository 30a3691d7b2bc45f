package detect

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rivaleye/rivaleye/internal/monitor"
)

func TestDiffPricesUpdatedReduced(t *testing.T) {
	t.Parallel()

	prev := []monitor.PriceItem{{Item: "Burger", Price: "$10"}}
	cur := []monitor.PriceItem{{Item: "Burger", Price: "$9"}}

	deltas := diffPrices(prev, cur)
	require.Len(t, deltas, 1)
	require.Equal(t, monitor.PriceDelta{
		Item:     "Burger",
		OldPrice: "$10",
		NewPrice: "$9",
		Reduced:  true,
		Change:   "updated",
	}, deltas[0])
}

func TestDiffPricesIncreaseNotReduced(t *testing.T) {
	t.Parallel()

	deltas := diffPrices(
		[]monitor.PriceItem{{Item: "Burger", Price: "$10"}},
		[]monitor.PriceItem{{Item: "Burger", Price: "$11.50"}},
	)
	require.Len(t, deltas, 1)
	require.False(t, deltas[0].Reduced)
}

func TestDiffPricesCaseInsensitiveKeys(t *testing.T) {
	t.Parallel()

	deltas := diffPrices(
		[]monitor.PriceItem{{Item: "BURGER", Price: "$10"}},
		[]monitor.PriceItem{{Item: "burger", Price: "$10"}},
	)
	require.Empty(t, deltas)
}

func TestDiffPricesAddedAndRemoved(t *testing.T) {
	t.Parallel()

	deltas := diffPrices(
		[]monitor.PriceItem{{Item: "Fries", Price: "$4"}},
		[]monitor.PriceItem{{Item: "Shake", Price: "$5"}},
	)
	require.Len(t, deltas, 2)
	require.Equal(t, "added", deltas[0].Change)
	require.Equal(t, "Shake", deltas[0].Item)
	require.Equal(t, "removed", deltas[1].Change)
	require.Equal(t, "Fries", deltas[1].Item)
}

func TestDiffPromotionsSnippetMatch(t *testing.T) {
	t.Parallel()

	prev := []monitor.Promotion{{
		Title:       "Summer Sale!",
		Description: "Get 20% off all appetizers during the month of July",
	}}
	cur := []monitor.Promotion{{
		Title:       "SUMMER SALE",
		Description: "Get 20% off all appetizers during the month of July only",
	}}

	// Title differs only by punctuation; the description snippet matches, so
	// this is the same promotion, not an ended plus an added one.
	require.Empty(t, diffPromotions(prev, cur))
}

func TestDiffPromotionsAddedAndEnded(t *testing.T) {
	t.Parallel()

	prev := []monitor.Promotion{{Title: "Old deal"}}
	cur := []monitor.Promotion{{Title: "New deal"}}

	deltas := diffPromotions(prev, cur)
	require.Len(t, deltas, 2)
	require.Equal(t, "added", deltas[0].Change)
	require.Equal(t, "New deal", deltas[0].Title)
	require.Equal(t, "ended", deltas[1].Change)
	require.Equal(t, "Old deal", deltas[1].Title)
}

func TestDiffMenuItemsAddRemoveOnly(t *testing.T) {
	t.Parallel()

	prev := []monitor.MenuItem{
		{Name: "Burger", Price: "$10"},
		{Name: "Fries", Price: "$4"},
	}
	cur := []monitor.MenuItem{
		{Name: "Burger", Price: "$12"}, // price moves do not count as menu changes
		{Name: "Shake"},
	}

	deltas := diffMenuItems(prev, cur)
	require.Len(t, deltas, 2)
	require.Equal(t, monitor.MenuDelta{Name: "Shake", Change: "added"}, deltas[0])
	require.Equal(t, monitor.MenuDelta{Name: "Fries", Change: "removed"}, deltas[1])
}

func TestDiffIdenticalRecords(t *testing.T) {
	t.Parallel()

	data := monitor.ExtractedData{
		Prices:     []monitor.PriceItem{{Item: "Burger", Price: "$10"}},
		Promotions: []monitor.Promotion{{Title: "BOGO"}},
		MenuItems:  []monitor.MenuItem{{Name: "Burger"}},
	}
	require.True(t, changesEmpty(Diff(data, data)))
}

func TestParsePrice(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"$10", 10, true},
		{"$1,234.56", 1234.56, true},
		{"9.99", 9.99, true},
		{"market price", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := parsePrice(tc.in)
		require.Equal(t, tc.ok, ok, tc.in)
		if ok {
			require.InDelta(t, tc.want, got, 0.001, tc.in)
		}
	}
}
