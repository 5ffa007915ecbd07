package core

import "strings"

const (
	DefaultContextWindow  = 200_000
	ExtendedContextWindow = 1_000_000
)

// ContextWindow returns the context window of a model id in tokens.
// Variants tagged with a 1M context suffix get the extended window.
func ContextWindow(model string) int {
	lower := strings.ToLower(strings.TrimSpace(model))
	if strings.Contains(lower, "[1m]") || strings.HasSuffix(lower, "-1m") {
		return ExtendedContextWindow
	}
	return DefaultContextWindow
}

type Pricing struct {
	InputPerMillion       float64
	OutputPerMillion      float64
	CacheReadPerMillion   float64
	CacheCreatePerMillion float64
}

var modelPricing = map[string]Pricing{
	"opus": {
		InputPerMillion:       15.0,
		OutputPerMillion:      75.0,
		CacheReadPerMillion:   1.50,
		CacheCreatePerMillion: 18.75,
	},
	"sonnet": {
		InputPerMillion:       3.0,
		OutputPerMillion:      15.0,
		CacheReadPerMillion:   0.30,
		CacheCreatePerMillion: 3.75,
	},
	"haiku": {
		InputPerMillion:       0.80,
		OutputPerMillion:      4.0,
		CacheReadPerMillion:   0.08,
		CacheCreatePerMillion: 1.0,
	},
}

// FindPricing matches a model id to a family price sheet, sonnet if unknown.
func FindPricing(model string) Pricing {
	lower := strings.ToLower(model)
	for _, family := range []string{"opus", "haiku", "sonnet"} {
		if strings.Contains(lower, family) {
			return modelPricing[family]
		}
	}
	return modelPricing["sonnet"]
}

// EstimateCost returns the API-equivalent USD cost of a token breakdown.
func EstimateCost(model string, c TokenCounts) float64 {
	p := FindPricing(model)
	cost := float64(c.Input) * p.InputPerMillion / 1_000_000
	cost += float64(c.Output) * p.OutputPerMillion / 1_000_000
	cost += float64(c.CacheRead) * p.CacheReadPerMillion / 1_000_000
	cost += float64(c.CacheWrite) * p.CacheCreatePerMillion / 1_000_000
	return cost
}
