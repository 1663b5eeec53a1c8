package gateway

// State is the lifecycle position of a connection.
type State int

const (
	StateInit State = iota
	StateAuthenticating
	StateAuthorizing
	StateAdmissionCheck
	StateOriginCheck
	StateSubscribed
	StateActive
	StateRejected
	StateClosed
)

var stateNames = map[State]string{
	StateInit:           "init",
	StateAuthenticating: "authenticating",
	StateAuthorizing:    "authorizing",
	StateAdmissionCheck: "admission_check",
	StateOriginCheck:    "origin_check",
	StateSubscribed:     "subscribed",
	StateActive:         "active",
	StateRejected:       "rejected",
	StateClosed:         "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}
