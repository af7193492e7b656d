package supervise

// State is the supervised worker's lifecycle state.
type State int

const (
	Stopped State = iota
	Starting
	Running
	Crashed
	Restarting
	Failed
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "STOPPED"
	case Starting:
		return "STARTING"
	case Running:
		return "RUNNING"
	case Crashed:
		return "CRASHED"
	case Restarting:
		return "RESTARTING"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText makes states render as their names in JSON status
// payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
