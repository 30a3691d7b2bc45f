package detect

import (
	"strconv"
	"strings"

	"github.com/rivaleye/rivaleye/internal/monitor"
)

// Change kinds recorded in deltas.
const (
	changeAdded   = "added"
	changeUpdated = "updated"
	changeRemoved = "removed"
	changeEnded   = "ended"
)

// descriptionSnippetLen bounds the description prefix used to match
// promotions whose titles drift between crawls.
const descriptionSnippetLen = 40

// Diff compares two structured records and returns every difference.
func Diff(previous, current monitor.ExtractedData) monitor.ChangeSet {
	return monitor.ChangeSet{
		Prices:     diffPrices(previous.Prices, current.Prices),
		Promotions: diffPromotions(previous.Promotions, current.Promotions),
		MenuItems:  diffMenuItems(previous.MenuItems, current.MenuItems),
	}
}

// diffPrices keys by item name, case insensitive. New keys are added, key
// matches with a different price string are updated, keys missing from the
// current record are removed.
func diffPrices(previous, current []monitor.PriceItem) []monitor.PriceDelta {
	prevByKey := make(map[string]monitor.PriceItem, len(previous))
	for _, p := range previous {
		prevByKey[recordKey(p.Item)] = p
	}

	var deltas []monitor.PriceDelta
	seen := make(map[string]bool, len(current))
	for _, cur := range current {
		key := recordKey(cur.Item)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		prev, existed := prevByKey[key]
		if !existed {
			deltas = append(deltas, monitor.PriceDelta{
				Item:     cur.Item,
				NewPrice: cur.Price,
				Change:   changeAdded,
			})
			continue
		}
		if prev.Price == cur.Price {
			continue
		}
		deltas = append(deltas, monitor.PriceDelta{
			Item:     cur.Item,
			OldPrice: prev.Price,
			NewPrice: cur.Price,
			Reduced:  priceReduced(prev.Price, cur.Price),
			Change:   changeUpdated,
		})
	}

	for _, prev := range previous {
		key := recordKey(prev.Item)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		deltas = append(deltas, monitor.PriceDelta{
			Item:     prev.Item,
			OldPrice: prev.Price,
			Change:   changeRemoved,
		})
	}
	return deltas
}

// diffPromotions matches by title or by a description snippet prefix, so a
// promotion whose headline was lightly reworded does not read as both ended
// and new.
func diffPromotions(previous, current []monitor.Promotion) []monitor.PromotionDelta {
	var deltas []monitor.PromotionDelta

	matchedPrev := make([]bool, len(previous))
	for _, cur := range current {
		if matchPromotion(previous, matchedPrev, cur) {
			continue
		}
		deltas = append(deltas, monitor.PromotionDelta{
			Title:       cur.Title,
			Description: cur.Description,
			Change:      changeAdded,
		})
	}
	for i, prev := range previous {
		if matchedPrev[i] {
			continue
		}
		if promotionInList(current, prev) {
			continue
		}
		deltas = append(deltas, monitor.PromotionDelta{
			Title:       prev.Title,
			Description: prev.Description,
			Change:      changeEnded,
		})
	}
	return deltas
}

func diffMenuItems(previous, current []monitor.MenuItem) []monitor.MenuDelta {
	prevKeys := make(map[string]bool, len(previous))
	for _, m := range previous {
		prevKeys[recordKey(m.Name)] = true
	}
	curKeys := make(map[string]bool, len(current))

	var deltas []monitor.MenuDelta
	for _, cur := range current {
		key := recordKey(cur.Name)
		if key == "" || curKeys[key] {
			continue
		}
		curKeys[key] = true
		if !prevKeys[key] {
			deltas = append(deltas, monitor.MenuDelta{Name: cur.Name, Change: changeAdded})
		}
	}
	for _, prev := range previous {
		key := recordKey(prev.Name)
		if key == "" || !prevKeys[key] {
			continue
		}
		if !curKeys[key] {
			deltas = append(deltas, monitor.MenuDelta{Name: prev.Name, Change: changeRemoved})
			prevKeys[key] = false
		}
	}
	return deltas
}

// matchPromotion marks and reports the first unmatched previous promotion
// equivalent to cur.
func matchPromotion(previous []monitor.Promotion, matched []bool, cur monitor.Promotion) bool {
	for i, prev := range previous {
		if matched[i] {
			continue
		}
		if promotionsEqual(prev, cur) {
			matched[i] = true
			return true
		}
	}
	return false
}

func promotionInList(list []monitor.Promotion, p monitor.Promotion) bool {
	for _, other := range list {
		if promotionsEqual(other, p) {
			return true
		}
	}
	return false
}

func promotionsEqual(a, b monitor.Promotion) bool {
	if ta, tb := recordKey(a.Title), recordKey(b.Title); ta != "" && ta == tb {
		return true
	}
	sa, sb := descriptionSnippet(a.Description), descriptionSnippet(b.Description)
	return sa != "" && sa == sb
}

func descriptionSnippet(desc string) string {
	s := recordKey(desc)
	if len(s) > descriptionSnippetLen {
		s = s[:descriptionSnippetLen]
	}
	return s
}

func recordKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// priceReduced reports whether the numeric value strictly decreased. Strings
// that do not parse as prices compare as not reduced.
func priceReduced(oldPrice, newPrice string) bool {
	oldVal, okOld := parsePrice(oldPrice)
	newVal, okNew := parsePrice(newPrice)
	return okOld && okNew && newVal < oldVal
}

func parsePrice(s string) (float64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == '.' {
			return r
		}
		return -1
	}, s)
	if cleaned == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
