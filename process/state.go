package process

// State is the lifecycle state of a process.
type State string

// The states of a process.
const (
	New        State = "New"
	Ready      State = "Ready"
	Running    State = "Running"
	Waiting    State = "Waiting"
	Terminated State = "Terminated"
)

// States lists all the states in lifecycle order.
var States = []State{New, Ready, Running, Waiting, Terminated}

var validTransitions = map[State][]State{
	New:        {Ready},
	Ready:      {Running},
	Running:    {Ready, Waiting, Terminated},
	Waiting:    {Ready},
	Terminated: {},
}

// CanTransition tells if the lifecycle allows moving from one state to
// another.
func CanTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}

	return false
}

// Operation is a named transition.
type Operation int

// The operations that move a process through its lifecycle.
const (
	OpAdmit Operation = iota
	OpAssignCPU
	OpPreempt
	OpRequestIO
	OpIOComplete
	OpTerminate
)

var operationEdges = map[Operation][2]State{
	OpAdmit:      {New, Ready},
	OpAssignCPU:  {Ready, Running},
	OpPreempt:    {Running, Ready},
	OpRequestIO:  {Running, Waiting},
	OpIOComplete: {Waiting, Ready},
	OpTerminate:  {Running, Terminated},
}

var operationNames = map[Operation]string{
	OpAdmit:      "admit",
	OpAssignCPU:  "assign-cpu",
	OpPreempt:    "preempt",
	OpRequestIO:  "request-io",
	OpIOComplete: "io-complete",
	OpTerminate:  "terminate",
}

// Edge returns the source and target state of the operation.
func (o Operation) Edge() (from, to State) {
	e := operationEdges[o]
	return e[0], e[1]
}

func (o Operation) String() string {
	if name, ok := operationNames[o]; ok {
		return name
	}

	return "unknown"
}

// ParseOperation finds an operation by its name.
func ParseOperation(name string) (Operation, bool) {
	for op, n := range operationNames {
		if n == name {
			return op, true
		}
	}

	return 0, false
}
