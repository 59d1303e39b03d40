package trace

// TraceSummary aggregates statistics from an ExchangeTrace.
type TraceSummary struct {
	TotalExchanges int
	NewDeliveries  int
	Duplicates     int
	FeedbackMerges int
	Cancelled      int
	// DuplicateRatio is Duplicates / TotalExchanges, 0 for an empty trace.
	DuplicateRatio float64
	UniqueSenders  int
	// SenderDistribution maps a node to the number of messages it sent.
	SenderDistribution map[int]int
	SkippedSelections  map[string]int
}

// Summarize computes aggregate statistics from an ExchangeTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(et *ExchangeTrace) *TraceSummary {
	summary := &TraceSummary{
		SenderDistribution: make(map[int]int),
		SkippedSelections:  make(map[string]int),
	}
	if et == nil {
		return summary
	}

	summary.TotalExchanges = len(et.Exchanges)
	for _, e := range et.Exchanges {
		summary.SenderDistribution[e.Sender]++
		if e.Duplicate {
			summary.Duplicates++
		} else {
			summary.NewDeliveries++
		}
		if e.Feedback {
			summary.FeedbackMerges++
		}
		summary.Cancelled += e.Cancelled
	}
	if summary.TotalExchanges > 0 {
		summary.DuplicateRatio = float64(summary.Duplicates) / float64(summary.TotalExchanges)
	}
	for _, s := range et.Selections {
		summary.SkippedSelections[s.Reason]++
	}

	summary.UniqueSenders = len(summary.SenderDistribution)

	return summary
}
