package domain

// Strategy selects how full article content is recovered for a source.
// The set is closed on purpose: extraction dispatch is a switch over this
// tag, and fallback behavior is explicit at the call site.
type Strategy string

const (
	// StrategyStructuredJSON extracts from an inline JSON payload embedded
	// in the article page (Next.js-style __NEXT_DATA__ blob)
	StrategyStructuredJSON Strategy = "structured-json"

	// StrategyGenericHTML extracts from the rendered article HTML
	StrategyGenericHTML Strategy = "generic-html"
)

// Valid reports whether the strategy tag is a known one
func (s Strategy) Valid() bool {
	return s == StrategyStructuredJSON || s == StrategyGenericHTML
}

// FeedSource describes one configured feed. Immutable, supplied by config.
type FeedSource struct {
	Name       string   `yaml:"name"`
	URL        string   `yaml:"url"`
	Strategy   Strategy `yaml:"strategy"`
	Category   string   `yaml:"category"`
	Simplified bool     `yaml:"simplified"` // source publishes Simplified script, convert to Traditional
	Referer    string   `yaml:"referer"`    // sent with image requests, some hosts reject hotlinks without it
}
