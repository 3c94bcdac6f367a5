package domain

// SourceTally counts per-source outcomes of one pipeline pass
type SourceTally struct {
	Source    string
	Unchanged bool // conditional fetch short-circuited, nothing below applies
	Items     int  // items listed by the feed document
	Extracted int  // full content recovered
	Fallback  int  // summary fallback after extraction failure
	Cached    int  // already fresh in cache, skipped
	Failed    bool // feed-level failure (fetch or parse)
	Err       string
}

// Report aggregates tallies for a whole run. The run reaches Done even on
// partial failure; the report is how failures surface.
type Report struct {
	Tallies []SourceTally
}

// Failed counts sources that failed at feed level
func (r *Report) Failed() int {
	n := 0
	for _, t := range r.Tallies {
		if t.Failed {
			n++
		}
	}
	return n
}

// Fallbacks counts items across all sources that degraded to feed summary
func (r *Report) Fallbacks() int {
	n := 0
	for _, t := range r.Tallies {
		n += t.Fallback
	}
	return n
}
