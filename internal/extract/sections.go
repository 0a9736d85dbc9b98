package extract

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"yuk-monitor-go/internal/types"
)

// SectionExtractor handles the multi-lot ad format: one message carries several
// shipment offers separated by rule lines, each lot tagging its cities with
// origin/destination flag markers. One draft is emitted per origin×destination
// pair of a lot, all pairs sharing the lot's cargo/truck/payment and the
// message-wide phone.
type SectionExtractor struct{}

func (SectionExtractor) Name() string { return "sections" }

func (SectionExtractor) TryExtract(_ context.Context, text string) ([]types.ShipmentDraft, error) {
	return ExtractSections(text), nil
}

// ExtractSections is a pure function: same text in, same drafts out, no error.
// An empty result means the message has no recognizable lot structure; the
// dispatcher then falls back to the single-pair parser.
func ExtractSections(text string) []types.ShipmentDraft {
	phone := findPhone(text, phonePattern)

	var drafts []types.ShipmentDraft
	for _, chunk := range ruleLine.Split(text, -1) {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		drafts = append(drafts, extractLot(chunk, phone)...)
	}
	return drafts
}

func extractLot(section, phone string) []types.ShipmentDraft {
	stops := captureStops(section)
	origins := capturesAfter(section, originMarkers, stops, types.MaxOriginLen)
	dests := capturesAfter(section, destinationMarkers, stops, types.MaxDestinationLen)

	base := types.ShipmentDraft{
		CargoType:   sectionCargo(section),
		TruckType:   sectionTruck(section),
		PaymentType: sectionPayment(section),
		Phone:       phone,
	}

	var out []types.ShipmentDraft
	switch {
	case len(origins) > 0 && len(dests) > 0:
		// Full cross product, origin-major. A lot listing cities on both
		// sides is read as "any of these to any of those".
		for _, o := range origins {
			for _, d := range dests {
				draft := base
				draft.Origin = o
				draft.Destination = d
				out = append(out, draft)
			}
		}
	case len(origins) > 0:
		draft := base
		draft.Origin = origins[0]
		out = append(out, draft)
	case len(dests) > 0:
		draft := base
		draft.Destination = dests[0]
		out = append(out, draft)
	}
	return out
}

type markerSpan struct {
	start, end int
}

func markerSpans(s string, markers []string) []markerSpan {
	var spans []markerSpan
	for _, m := range markers {
		off := 0
		for {
			i := strings.Index(s[off:], m)
			if i < 0 {
				break
			}
			spans = append(spans, markerSpan{off + i, off + i + len(m)})
			off += i + len(m)
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	return spans
}

// captureStops collects every position a city capture must not run past:
// any marker, any keyword, any phone-like token. End-of-section is implicit.
func captureStops(s string) []int {
	var stops []int
	for _, sp := range markerSpans(s, originMarkers) {
		stops = append(stops, sp.start)
	}
	for _, sp := range markerSpans(s, destinationMarkers) {
		stops = append(stops, sp.start)
	}

	for _, pats := range [][]*regexp.Regexp{cargoPatterns, truckPatterns, paymentPatterns} {
		for _, p := range pats {
			for _, loc := range p.FindAllStringIndex(s, -1) {
				stops = append(stops, loc[0])
			}
		}
	}

	for _, loc := range phonePattern.FindAllStringIndex(s, -1) {
		stops = append(stops, loc[0])
	}
	return stops
}

func capturesAfter(s string, markers []string, stops []int, max int) []string {
	var out []string
	for _, sp := range markerSpans(s, markers) {
		end := len(s)
		for _, b := range stops {
			if b >= sp.end && b < end {
				end = b
			}
		}
		if city := cleanCapture(s[sp.end:end]); city != "" {
			// duplicates stay: repeated cities are repeated offers
			out = append(out, truncate(city, max))
		}
	}
	return out
}

func cleanCapture(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, separatorCutset+":;,.")
}

// sectionCargo returns the text after the first cargo keyword, cut at line end
// or at the next recognized keyword.
func sectionCargo(section string) string {
	for _, line := range strings.Split(section, "\n") {
		for _, p := range cargoPatterns {
			loc := p.FindStringIndex(line)
			if loc == nil {
				continue
			}
			rest := line[loc[1]:]
			cut := len(rest)
			for _, other := range append(append([]*regexp.Regexp{}, truckPatterns...), paymentPatterns...) {
				if j := other.FindStringIndex(rest); j != nil && j[0] < cut {
					cut = j[0]
				}
			}
			if val := strings.Trim(strings.TrimSpace(rest[:cut]), ":—-, "); val != "" {
				return truncate(val, types.MaxCargoTypeLen)
			}
		}
	}
	return ""
}

// sectionTruck joins every transport-class keyword present, in tested order.
func sectionTruck(section string) string {
	var found []string
	for i, p := range truckPatterns {
		if p.MatchString(section) {
			found = append(found, truckKeywords[i])
		}
	}
	return truncate(strings.Join(found, ", "), types.MaxTruckTypeLen)
}

// sectionPayment returns the text after the first payment keyword, cut at line
// end or a currency glyph. A bare keyword with no trailing text stands for
// itself.
func sectionPayment(section string) string {
	for _, line := range strings.Split(section, "\n") {
		for i, p := range paymentPatterns {
			loc := p.FindStringIndex(line)
			if loc == nil {
				continue
			}
			rest := line[loc[1]:]
			cut := len(rest)
			for _, t := range paymentTerminators {
				if j := strings.Index(rest, t); j >= 0 && j < cut {
					cut = j
				}
			}
			val := strings.Trim(strings.TrimSpace(rest[:cut]), ":—-, ")
			if val == "" {
				val = paymentKeywords[i]
			}
			return truncate(val, types.MaxPaymentTypeLen)
		}
	}
	return ""
}
