package keyboard

// State is the connection state of the keyboard.
type State uint8

const (
	StateInit State = iota
	StateDirectAdvert
	StateFastAdvertising
	StateSlowAdvertising
	StatePasskeyInput
	StateConnected
	StateDisconnecting
	StateIdle
	numStates
)

var stateNames = [numStates]string{
	StateInit:            "init",
	StateDirectAdvert:    "direct advert",
	StateFastAdvertising: "fast advertising",
	StateSlowAdvertising: "slow advertising",
	StatePasskeyInput:    "passkey input",
	StateConnected:       "connected",
	StateDisconnecting:   "disconnecting",
	StateIdle:            "idle",
}

func (s State) String() string {
	if s < numStates {
		return stateNames[s]
	}
	return "unknown"
}

// Advertising reports whether s is one of the advertising states.
func (s State) Advertising() bool {
	return s == StateDirectAdvert || s == StateFastAdvertising || s == StateSlowAdvertising
}

// Linked reports whether a connection exists and is usable in s.
func (s State) Linked() bool {
	return s == StateConnected || s == StatePasskeyInput
}

// stateSet is a set of states.
type stateSet uint16

func states(list ...State) stateSet {
	var set stateSet
	for _, s := range list {
		set |= 1 << s
	}
	return set
}

var anyState = stateSet(1<<numStates - 1)

func (set stateSet) has(s State) bool { return set&(1<<s) != 0 }
