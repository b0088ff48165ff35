package module

// State is a module's position in its lifecycle.
type State int

const (
	Unresolved State = iota
	Resolved
	Starting
	Started
	StartFailed
	Loading
	Loaded
	LoadFailed
	Unloading
	Unloaded
	UnloadFailed
)

var stateNames = [...]string{
	Unresolved:   "unresolved",
	Resolved:     "resolved",
	Starting:     "starting",
	Started:      "started",
	StartFailed:  "start_failed",
	Loading:      "loading",
	Loaded:       "loaded",
	LoadFailed:   "load_failed",
	Unloading:    "unloading",
	Unloaded:     "unloaded",
	UnloadFailed: "unload_failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Failed reports whether s is one of the terminal failure states.
func (s State) Failed() bool {
	return s == StartFailed || s == LoadFailed || s == UnloadFailed
}

// Stage names a lifecycle operation.
type Stage string

const (
	StageStart  Stage = "start"
	StageLoad   Stage = "load"
	StageUnload Stage = "unload"
)

// Phase tells subscribers whether a state change precedes or follows a hook.
type Phase string

const (
	PhaseBefore Phase = "before"
	PhaseAfter  Phase = "after"
	PhaseError  Phase = "error"
)

// StateChange is published on events.TopicModuleStateChange before and after every
// lifecycle stage of a module, and with PhaseError when the stage failed.
type StateChange struct {
	ID    string
	Name  string
	Stage Stage
	Phase Phase
	From  State
	To    State
	Err   error
}
