package extract

import (
	"fmt"
	"regexp"

	"crowdvolt_tracker/models"
	"crowdvolt_tracker/normalize"
)

// MaxRecordWindow bounds the top-level text of one ticket-type object,
// nested objects excluded. Larger objects are not considered records.
const MaxRecordWindow = 512

const (
	StrategyPerCategory = "per_category"
	StrategySummary     = "summary"
)

var (
	nameFieldRegex = stringField("name", 200)
	askFieldRegex  = regexp.MustCompile(`"lowest_ask_price"\s*:\s*(null|-?\d+(?:\.\d+)?)`)
	bidFieldRegex  = regexp.MustCompile(`"highest_bid_price"\s*:\s*(null|-?\d+(?:\.\d+)?)`)

	minAskRegex     = regexp.MustCompile(`"min_ask"\s*:\s*(null|-?\d+(?:\.\d+)?)`)
	maxBidRegex     = regexp.MustCompile(`"max_bid"\s*:\s*(null|-?\d+(?:\.\d+)?)`)
	minAskTypeRegex = stringField("min_ask_type", 200)

	eventNameRegex = stringField("event_name", 300)
	venueNameRegex = stringField("venue_name", 300)
)

type strategy struct {
	name string
	run  func(text string, result *models.ExtractionResult)
}

// Order matters: the first strategy that yields a quote wins.
var strategies = []strategy{
	{name: StrategyPerCategory, run: scanCategories},
	{name: StrategySummary, run: scanSummary},
}

// Prices extracts ticket-type quotes from raw page markup. It never fails;
// a page with no recognizable pricing yields an empty result.
func Prices(markup string) *models.ExtractionResult {
	text := Unescape(markup)
	result := &models.ExtractionResult{}

	for _, s := range strategies {
		s.run(text, result)
		if !result.Empty() {
			result.Strategy = s.name
			break
		}
	}

	result.Name = firstSubmatch(eventNameRegex, text)
	result.Venue = firstSubmatch(venueNameRegex, text)
	return result
}

// scanCategories reads every object carrying a name, an ask and a bid at its
// own level. Fields are matched independently inside the object, so key order
// and nested values have no effect on the output.
func scanCategories(text string, result *models.ExtractionResult) {
	for _, rec := range objectRecords(text) {
		name := nameFieldRegex.FindStringSubmatch(rec.text)
		ask := askFieldRegex.FindStringSubmatch(rec.text)
		bid := bidFieldRegex.FindStringSubmatch(rec.text)
		if name == nil || ask == nil || bid == nil {
			continue
		}

		ticketType := cleanValue(name[1])
		if ticketType == "" {
			continue
		}
		result.Add(models.PriceQuote{
			TicketType: ticketType,
			LowestAsk:  normalize.Price(ask[1]),
			HighestBid: normalize.Price(bid[1]),
		})
	}
}

// scanSummary falls back to the page-level min_ask / max_bid pair.
func scanSummary(text string, result *models.ExtractionResult) {
	ask := normalize.Price(firstSubmatch(minAskRegex, text))
	bid := normalize.Price(firstSubmatch(maxBidRegex, text))
	if ask == nil && bid == nil {
		return
	}

	ticketType := firstSubmatch(minAskTypeRegex, text)
	if ticketType == "" {
		ticketType = models.DefaultTicketType
	}
	result.Add(models.PriceQuote{
		TicketType: ticketType,
		LowestAsk:  ask,
		HighestBid: bid,
	})
}

// stringField matches a JSON string field and captures its raw body, escapes
// included, for cleanValue to decode.
func stringField(key string, maxLen int) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`"%s"\s*:\s*"((?:[^"\\]|\\.){1,%d})"`, regexp.QuoteMeta(key), maxLen))
}

func firstSubmatch(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return cleanValue(m[1])
}
