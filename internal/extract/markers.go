package extract

import (
	"regexp"
	"strings"
)

// Marker and keyword tables for the deterministic extractors. Channel ads are
// encoding-fragile (flag emoji are regional-indicator pairs), so every literal
// lives here and nowhere inside the extraction logic.

// countryFlags are the flag glyphs advertisers use to tag city lines in the
// legacy single-line format.
var countryFlags = []string{
	"\U0001F1F7\U0001F1FA", // RU
	"\U0001F1FA\U0001F1FF", // UZ
	"\U0001F1E7\U0001F1FE", // BY
	"\U0001F1F0\U0001F1FF", // KZ
	"\U0001F1F9\U0001F1EF", // TJ
}

// originMarkers anchor "from" city runs in the sectioned multi-lot format.
var originMarkers = []string{
	"\U0001F1FA\U0001F1FF", // UZ
	"\U0001F1F9\U0001F1EF", // TJ
	"\U0001F4CD",           // 📍
}

// destinationMarkers anchor "to" city runs.
var destinationMarkers = []string{
	"\U0001F1F7\U0001F1FA", // RU
	"\U0001F1E7\U0001F1FE", // BY
	"\U0001F1F0\U0001F1FF", // KZ
	"\U0001F3C1",           // 🏁
}

// routeSeparators split a one-line "A -> B" route, tried in order.
var routeSeparators = []string{"➝", "➡", "→", "\U0001F51C", "-", "—", "->"}

// separatorCutset trims stray route glyphs left on either side of a split.
// ">" covers the tail of "->" when the split happened on the bare dash.
const separatorCutset = " ->➝➡→—\U0001F51C"

// Keyword tables. Matching is case-insensitive; ads mix Uzbek-in-Cyrillic
// ("ЮК", "НАХТ") with Russian ("ГРУЗ", "НАЛ").
var (
	cargoKeywords   = []string{"ЮК", "ГРУЗ"}
	truckKeywords   = []string{"ТЕНТ", "РЕФ", "ИЗОТЕРМА", "ФУРА"}
	paymentKeywords = []string{"НАХТ", "НАЛ", "ОПЛАТА"}

	// Fixed labels emitted by the legacy single-pair path.
	legacyTruckLabel   = "ТЕНТ"
	legacyPaymentLabel = "НАХТ"
)

// keywordPatterns compiles one case-insensitive matcher per keyword. The
// section extractor matches on the original text, never an uppercased copy,
// so byte offsets stay valid even around runes whose case mapping changes
// their UTF-8 length.
func keywordPatterns(words []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(words))
	for i, w := range words {
		out[i] = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(w))
	}
	return out
}

var (
	cargoPatterns   = keywordPatterns(cargoKeywords)
	truckPatterns   = keywordPatterns(truckKeywords)
	paymentPatterns = keywordPatterns(paymentKeywords)
)

// paymentTerminators end a payment-type run inside a section.
var paymentTerminators = []string{"$", "₽", "₸"}

// ruleLine matches a divider between lots: a line of 3+ rule characters.
var ruleLine = regexp.MustCompile(`(?m)^[\x{2500}\x{2501}\x{2550}\x{2014}=_~*-]{3,}\s*$`)

func hasAnyFlag(line string) bool {
	for _, f := range countryFlags {
		if strings.Contains(line, f) {
			return true
		}
	}
	return false
}

func stripFlags(line string) string {
	for _, f := range countryFlags {
		line = strings.ReplaceAll(line, f, "")
	}
	return strings.TrimSpace(line)
}
