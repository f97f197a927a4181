package datarecording

import (
	"os"
	"strings"
	"time"
)

// ExecInfo is one property of a program run.
type ExecInfo struct {
	Property string
	Value    string
}

// ExecTableName is the table that ExecRecorder writes.
const ExecTableName = "exec_info"

// An ExecRecorder records how and when the simulator ran, together with any
// property the caller adds.
type ExecRecorder struct {
	recorder DataRecorder
	entries  []ExecInfo
	now      func() time.Time
}

// NewExecRecorder creates the exec_info table in the recorder.
func NewExecRecorder(recorder DataRecorder) *ExecRecorder {
	e := &ExecRecorder{
		recorder: recorder,
		now:      time.Now,
	}

	recorder.CreateTable(ExecTableName, ExecInfo{})

	return e
}

// Start notes the start time, the command line and the working directory.
func (e *ExecRecorder) Start() {
	e.Add("Start Time", e.timestamp())
	e.Add("Command", strings.Join(os.Args, " "))

	if cwd, err := os.Getwd(); err == nil {
		e.Add("Working Directory", cwd)
	}
}

// Add notes a property of the run.
func (e *ExecRecorder) Add(property, value string) {
	e.entries = append(e.entries, ExecInfo{property, value})
}

// End writes all properties with the end time and flushes the recorder.
func (e *ExecRecorder) End() {
	e.Add("End Time", e.timestamp())

	for _, entry := range e.entries {
		e.recorder.InsertData(ExecTableName, entry)
	}
	e.entries = nil

	e.recorder.Flush()
}

func (e *ExecRecorder) timestamp() string {
	return e.now().Format("2006-01-02 15:04:05.000000000")
}
