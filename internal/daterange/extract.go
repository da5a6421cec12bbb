package daterange

import "regexp"

var (
	rangePattern     = regexp.MustCompile(`(?i)(?:from|del|desde)\s+(\S+)\s+(?:to|al|hasta)\s+(\S+)`)
	todayPattern     = regexp.MustCompile(`(?i)(?:from|de|en|el|detectados?)\s+(?:today|hoy)`)
	yesterdayPattern = regexp.MustCompile(`(?i)(?:from|de|en|el|detectados?)\s+(?:yesterday|ayer)`)
	datePattern      = regexp.MustCompile(`(?i)(?:from|de|en|el|detectados?)\s+(\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}[/-]\d{1,2}[/-]\d{1,2})`)
)

// Extract scans text for a date reference. It is a lexical scan: phrasing it
// does not recognize yields no reference rather than a guess.
func Extract(text string) (Reference, bool) {
	if match := rangePattern.FindStringSubmatch(text); match != nil {
		return Reference{Start: match[1], End: match[2]}, true
	}
	if todayPattern.MatchString(text) {
		return Reference{Start: "today"}, true
	}
	if yesterdayPattern.MatchString(text) {
		return Reference{Start: "yesterday"}, true
	}
	if match := datePattern.FindStringSubmatch(text); match != nil {
		return Reference{Start: match[1]}, true
	}
	return Reference{}, false
}
