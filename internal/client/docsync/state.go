package docsync

// State of a document session.
//
//	Uninitialized -> Loading -> Ready -> (Editing | ReceivingRemote) -> Ready
//	any -> Closed
type State int

const (
	Uninitialized State = iota
	Loading
	Ready
	// Editing means a local change is waiting for its debounced write.
	Editing
	// ReceivingRemote means a remote overwrite was applied within the guard window.
	ReceivingRemote
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Editing:
		return "editing"
	case ReceivingRemote:
		return "receiving_remote"
	case Closed:
		return "closed"
	}
	return "unknown"
}
