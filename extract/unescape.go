package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// MaxMarkupBytes caps how much of a page is scanned. Pages beyond it are
// truncated rather than rejected.
const MaxMarkupBytes = 4 << 20

// maxEscapeLevels is how many layers of JS-string escaping are peeled.
const maxEscapeLevels = 2

// An object key written inside a JS string literal at any depth: \"key\":
// or \\\"key\\\":
var escapedKeyRegex = regexp.MustCompile(`\\+"[A-Za-z_]{1,64}\\+"\s*:`)

// stringLevel removes one layer of JS-string escaping. \\ is listed first so
// an escaped backslash is consumed before the quote that follows it, which
// leaves \" inside values as a JSON escape.
var stringLevel = strings.NewReplacer(
	`\\`, `\`,
	`\"`, `"`,
	`\/`, `/`,
)

var entityUnescaper = strings.NewReplacer(
	`&quot;`, `"`,
	`\u0026`, `&`,
	`\u003c`, `<`,
	`\u003e`, `>`,
)

// Unescape normalizes a page to literal JSON quoting so a single set of
// patterns can match RSC payloads whether they arrive as literal JSON or as
// JSON embedded in a JS string (\"key\":\"value\"), sometimes escaped twice.
// Literal payloads are left untouched, so escaped quotes inside their values
// survive.
func Unescape(markup string) string {
	if len(markup) > MaxMarkupBytes {
		markup = markup[:MaxMarkupBytes]
	}
	for i := 0; i < maxEscapeLevels && escapedKeyRegex.MatchString(markup); i++ {
		markup = stringLevel.Replace(markup)
	}
	return entityUnescaper.Replace(markup)
}

// cleanValue decodes JSON escapes (\u00e9, \", \n) in a captured string.
func cleanValue(raw string) string {
	s := raw
	if strings.Contains(s, `\`) {
		if unquoted, err := strconv.Unquote(`"` + s + `"`); err == nil {
			s = unquoted
		}
	}
	return strings.TrimSpace(s)
}
