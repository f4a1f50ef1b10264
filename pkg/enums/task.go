package enums

import "fmt"

// TaskKind identifies the background job a task row tracks.
type TaskKind string

const (
	TaskKindImport TaskKind = "import"
	TaskKindExport TaskKind = "export"
)

var validTaskKinds = []TaskKind{
	TaskKindImport,
	TaskKindExport,
}

func (k TaskKind) String() string {
	return string(k)
}

func (k TaskKind) IsValid() bool {
	for _, candidate := range validTaskKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseTaskKind converts raw input into a TaskKind.
func ParseTaskKind(value string) (TaskKind, error) {
	for _, candidate := range validTaskKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid task kind %q", value)
}

// TaskState is the polling-visible state of a task.
type TaskState string

const (
	TaskStatePending TaskState = "PENDING"
	TaskStateStarted TaskState = "STARTED"
	TaskStateSuccess TaskState = "SUCCESS"
	TaskStateFailure TaskState = "FAILURE"
)

var validTaskStates = []TaskState{
	TaskStatePending,
	TaskStateStarted,
	TaskStateSuccess,
	TaskStateFailure,
}

func (s TaskState) String() string {
	return string(s)
}

func (s TaskState) IsValid() bool {
	for _, candidate := range validTaskStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the task will not change state again.
func (s TaskState) IsTerminal() bool {
	return s == TaskStateSuccess || s == TaskStateFailure
}
