package extract

import (
	"context"
	"strings"

	"yuk-monitor-go/internal/types"
)

// SinglePairExtractor is the original flat-message parser, kept as the last
// strategy in the chain: flag-tagged city lines, at most one explicit A→B
// route, line-prefix keyword tests. It always produces exactly one draft for
// non-empty input, even if every field stays empty.
type SinglePairExtractor struct{}

func (SinglePairExtractor) Name() string { return "single-pair" }

func (SinglePairExtractor) TryExtract(_ context.Context, text string) ([]types.ShipmentDraft, error) {
	return []types.ShipmentDraft{ExtractSinglePair(text)}, nil
}

// ExtractSinglePair parses a message as one shipment offer. Pure, never fails.
func ExtractSinglePair(text string) types.ShipmentDraft {
	var draft types.ShipmentDraft

	var lines []string
	for _, ln := range strings.Split(text, "\n") {
		if ln = strings.TrimSpace(ln); ln != "" {
			lines = append(lines, ln)
		}
	}

	var cityLines []string
	var routeFound bool
	for _, ln := range lines {
		if !hasAnyFlag(ln) {
			continue
		}
		cleaned := stripFlags(ln)
		if cleaned == "" {
			continue
		}

		// A one-line route beats bare city lines: "САМАРКАНД 🔜 КРАСНОДАР",
		// "Азалкент-Зеленоград" and the like.
		if !routeFound {
			for _, sep := range routeSeparators {
				i := strings.Index(cleaned, sep)
				if i < 0 {
					continue
				}
				left := strings.Trim(cleaned[:i], separatorCutset)
				right := strings.Trim(cleaned[i+len(sep):], separatorCutset)
				if left != "" && right != "" {
					draft.Origin = truncate(left, types.MaxOriginLen)
					draft.Destination = truncate(right, types.MaxDestinationLen)
					routeFound = true
					break
				}
			}
		}
		if !routeFound {
			cityLines = append(cityLines, cleaned)
		}
	}

	if !routeFound {
		if len(cityLines) >= 1 {
			draft.Origin = truncate(cityLines[0], types.MaxOriginLen)
		}
		if len(cityLines) >= 2 {
			draft.Destination = truncate(cityLines[1], types.MaxDestinationLen)
		}
	}

	for _, ln := range lines {
		up := strings.ToUpper(ln)
		if draft.CargoType == "" {
			for _, kw := range cargoKeywords {
				if strings.HasPrefix(up, kw) {
					draft.CargoType = truncate(ln, types.MaxCargoTypeLen)
					break
				}
			}
		}
		// the historical parser knows exactly one transport class and one
		// payment keyword; the sectioned extractor covers the wider sets
		if draft.TruckType == "" && strings.HasPrefix(up, legacyTruckLabel) {
			draft.TruckType = legacyTruckLabel
		}
		if draft.PaymentType == "" && strings.Contains(up, legacyPaymentLabel) {
			draft.PaymentType = legacyPaymentLabel
		}
	}

	draft.Phone = findPhone(text, legacyPhonePattern)
	return draft
}
