package listener

// State is the listener loop's current phase
type State int32

const (
	StateSeeding State = iota
	StatePolling
	StateSleeping
	StateFetchingChunk
	StateDispatching
	StateCheckpointing
	StateShuttingDown
	StateStopped
)

// States lists every state in declaration order
var States = []State{
	StateSeeding,
	StatePolling,
	StateSleeping,
	StateFetchingChunk,
	StateDispatching,
	StateCheckpointing,
	StateShuttingDown,
	StateStopped,
}

func (s State) String() string {
	switch s {
	case StateSeeding:
		return "seeding"
	case StatePolling:
		return "polling"
	case StateSleeping:
		return "sleeping"
	case StateFetchingChunk:
		return "fetching_chunk"
	case StateDispatching:
		return "dispatching"
	case StateCheckpointing:
		return "checkpointing"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
