package trace

// TraceLevel controls the verbosity of exchange tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelExchanges captures every message exchange.
	TraceLevelExchanges TraceLevel = "exchanges"
	// TraceLevelSelections also captures failed peer selections.
	TraceLevelSelections TraceLevel = "selections"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:       true,
	TraceLevelExchanges:  true,
	TraceLevelSelections: true,
	"":                   true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// ExchangeTrace collects exchange records during one run. A nil trace
// records nothing.
type ExchangeTrace struct {
	Level      TraceLevel
	Exchanges  []ExchangeRecord
	Selections []SelectionRecord
}

// NewExchangeTrace returns nil for TraceLevelNone so callers can skip
// recording with a nil check.
func NewExchangeTrace(level TraceLevel) *ExchangeTrace {
	if level == TraceLevelNone || level == "" {
		return nil
	}
	return &ExchangeTrace{
		Level:      level,
		Exchanges:  make([]ExchangeRecord, 0),
		Selections: make([]SelectionRecord, 0),
	}
}

// RecordExchange appends an exchange record.
func (et *ExchangeTrace) RecordExchange(record ExchangeRecord) {
	if et == nil {
		return
	}
	et.Exchanges = append(et.Exchanges, record)
}

// RecordSelection appends a selection record when the level includes them.
func (et *ExchangeTrace) RecordSelection(record SelectionRecord) {
	if et == nil || et.Level != TraceLevelSelections {
		return
	}
	et.Selections = append(et.Selections, record)
}
