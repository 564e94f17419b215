package status

// Status is the lifecycle state of a chunk job.
type Status = int32

const (
	Fresh Status = iota
	Resuming
	Done
	Abandoned
)

// String returns a human readable name for s.
func String(s Status) string {
	switch s {
	case Fresh:
		return "fresh"
	case Resuming:
		return "resuming"
	case Done:
		return "done"
	case Abandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is a final state.
func IsTerminal(s Status) bool {
	return s == Done || s == Abandoned
}
