package extract

import (
	"regexp"
	"strings"

	"github.com/rivaleye/rivaleye/internal/monitor"
)

var (
	// Captures "Classic Burger ... $12.99" shaped runs in stripped page text.
	priceLine = regexp.MustCompile(`(?i)([A-Za-z][A-Za-z0-9'&/() .-]{2,60}?)\s*[:\-]?\s*\$\s?(\d{1,5}(?:\.\d{1,2})?)`)

	promoLine = regexp.MustCompile(`(?i)([^.\n]{0,80}\b(?:\d{1,2}%\s*off|sale|discount|limited time|free (?:shipping|delivery)|buy one get one|bogo|special offer|promo(?:tion)?)\b[^.\n]{0,80})`)
)

const maxFallbackRecords = 50

// FallbackExtract produces a lower fidelity structured record from page
// markup without any model call. It only identifies labelled dollar prices
// and promotion phrases; menu items are beyond what pattern matching
// can attribute reliably, so that list stays empty.
func FallbackExtract(rawHTML string) monitor.ExtractedData {
	text := Normalize(rawHTML)
	data := monitor.ExtractedData{}

	seenPrices := make(map[string]bool)
	for _, m := range priceLine.FindAllStringSubmatch(text, -1) {
		item := cleanLabel(m[1])
		if item == "" || seenPrices[item] {
			continue
		}
		seenPrices[item] = true
		data.Prices = append(data.Prices, monitor.PriceItem{
			Item:  item,
			Price: "$" + m[2],
		})
		if len(data.Prices) >= maxFallbackRecords {
			break
		}
	}

	seenPromos := make(map[string]bool)
	for _, m := range promoLine.FindAllStringSubmatch(text, -1) {
		title := strings.TrimSpace(m[1])
		if title == "" || seenPromos[title] {
			continue
		}
		seenPromos[title] = true
		data.Promotions = append(data.Promotions, monitor.Promotion{Title: title})
		if len(data.Promotions) >= maxFallbackRecords {
			break
		}
	}

	data.Canonicalize()
	return data
}

func cleanLabel(s string) string {
	s = strings.Trim(s, " .-:/")
	// Discard labels that are all digits or too short to name a product.
	if len(s) < 3 {
		return ""
	}
	hasLetter := false
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' {
			hasLetter = true
			break
		}
	}
	if !hasLetter {
		return ""
	}
	return s
}
