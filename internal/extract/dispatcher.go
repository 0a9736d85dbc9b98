package extract

import (
	"context"
	"strings"

	"yuk-monitor-go/internal/logger"
	"yuk-monitor-go/internal/types"
)

// Strategy is one extraction attempt. Returning an error or an empty list
// hands the text to the next strategy in the chain.
type Strategy interface {
	Name() string
	TryExtract(ctx context.Context, text string) ([]types.ShipmentDraft, error)
}

// Dispatcher runs an ordered strategy chain and never fails: the chain ends in
// the single-pair extractor, which always yields a draft for non-empty input.
// A Dispatcher holds no mutable state and is safe for concurrent use.
type Dispatcher struct {
	strategies []Strategy
	log        *logger.Logger
}

func NewDispatcher(strategies ...Strategy) *Dispatcher {
	return &Dispatcher{strategies: strategies, log: logger.New()}
}

// NewDefaultDispatcher wires the production chain. svc may be nil (no
// credential configured); the AI strategy is then left out entirely instead of
// failing on every call.
func NewDefaultDispatcher(svc TextCompletionService) *Dispatcher {
	var chain []Strategy
	if svc != nil {
		chain = append(chain, NewLLMExtractor(svc))
	}
	chain = append(chain, SectionExtractor{}, SinglePairExtractor{})
	return NewDispatcher(chain...)
}

// Extract returns the drafts of the first strategy that produced any.
// Empty or whitespace-only input returns an empty list without invoking any
// strategy. For any other input the result is non-empty, possibly a single
// all-null draft ("seen but not understood").
func (d *Dispatcher) Extract(ctx context.Context, text string) []types.ShipmentDraft {
	if strings.TrimSpace(text) == "" {
		return []types.ShipmentDraft{}
	}

	for _, s := range d.strategies {
		drafts, err := s.TryExtract(ctx, text)
		if err != nil {
			d.log.WithField("component", "dispatcher").
				WithField("strategy", s.Name()).
				WithError(err).Warn("strategy failed, falling through")
			continue
		}
		if len(drafts) > 0 {
			return drafts
		}
	}

	// Only reachable with a custom chain that excludes the single-pair
	// fallback; still honor the "always return something" contract.
	return []types.ShipmentDraft{{}}
}
