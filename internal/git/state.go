package git

// State is a step of the release state machine.
type State int

const (
	Uninitialized State = iota
	Fetched
	TagSelected
	Tagged
	Pushed
	Finalized
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Fetched:
		return "fetched"
	case TagSelected:
		return "tag-selected"
	case Tagged:
		return "tagged"
	case Pushed:
		return "pushed"
	case Finalized:
		return "finalized"
	}
	return "unknown"
}
