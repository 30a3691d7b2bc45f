package extract

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	stripPolicy = bluemonday.StrictPolicy()
	spaceRun    = regexp.MustCompile(`[\s\p{Zs}]+`)
)

// Normalize reduces page markup to a whitespace and case insensitive text
// form. Two fetches of the same page that differ only in markup noise,
// entity encoding or spacing normalize to the same string, so their hashes
// collide on purpose.
func Normalize(rawHTML string) string {
	text := stripPolicy.Sanitize(rawHTML)
	text = html.UnescapeString(text)
	text = spaceRun.ReplaceAllString(text, " ")
	return strings.ToLower(strings.TrimSpace(text))
}
