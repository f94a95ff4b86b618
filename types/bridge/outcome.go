package bridge

// Outcome is the result of handling a single event
type Outcome int

const (
	// OutcomeDispatched means the action was handed to the sink
	OutcomeDispatched Outcome = iota

	// OutcomeSkippedWrongChain means the event targets another destination chain
	OutcomeSkippedWrongChain

	// OutcomeSkippedDuplicate means the event was already dispatched in this process
	OutcomeSkippedDuplicate

	// OutcomeFailed means handling raised an error; the batch continues
	OutcomeFailed
)

// Outcomes lists every outcome in declaration order
var Outcomes = []Outcome{
	OutcomeDispatched,
	OutcomeSkippedWrongChain,
	OutcomeSkippedDuplicate,
	OutcomeFailed,
}

func (o Outcome) String() string {
	switch o {
	case OutcomeDispatched:
		return "dispatched"
	case OutcomeSkippedWrongChain:
		return "skipped_wrong_chain"
	case OutcomeSkippedDuplicate:
		return "skipped_duplicate"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}
