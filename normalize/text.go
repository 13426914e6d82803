package normalize

import (
	"regexp"
	"strings"
)

var (
	multiSpaceRegex = regexp.MustCompile(`\s+`)
	weekdayRegex    = regexp.MustCompile(`^[A-Za-z]+,\s*`)
	meridiemRegex   = regexp.MustCompile(`(\d)\s+([AaPp][Mm])\b`)

	// Bullet and separator glyphs seen between date and time, including the
	// UTF-8 bullet read back as Windows-1252.
	separatorReplacer = strings.NewReplacer(
		"â€¢", " ",
		"Â·", " ",
		"•", " ",
		"·", " ",
		"|", " ",
	)
)

// CollapseSpace trims s and folds runs of whitespace into one space.
func CollapseSpace(s string) string {
	return strings.TrimSpace(multiSpaceRegex.ReplaceAllString(s, " "))
}

// cleanDisplayDate reduces "Fri, February 20 • 10 PM" to "February 20 10PM".
func cleanDisplayDate(text string) string {
	s := strings.TrimSpace(text)
	s = weekdayRegex.ReplaceAllString(s, "")
	s = separatorReplacer.Replace(s)
	s = CollapseSpace(s)
	return meridiemRegex.ReplaceAllString(s, "$1$2")
}
