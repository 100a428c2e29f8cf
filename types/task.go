package types

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus int

const (
	// TaskNotFound is only ever synthesized for lookups of unknown ids
	TaskNotFound TaskStatus = iota
	// TaskPending means the task waits for the orchestrator
	TaskPending
	// TaskRunning means the evidence pipeline is in progress
	TaskRunning
	// TaskCompleted means the proof transaction was confirmed
	TaskCompleted
	// TaskFailed means the pipeline stopped; the comment holds the reason
	TaskFailed
)

func (s TaskStatus) String() string {
	switch s {
	case TaskNotFound:
		return "NotFound"
	case TaskPending:
		return "Pending"
	case TaskRunning:
		return "Running"
	case TaskCompleted:
		return "Completed"
	case TaskFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Terminal reports whether no further transition is allowed.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// CanTransition reports whether from -> to moves forward.
func CanTransition(from, to TaskStatus) bool {
	switch from {
	case TaskPending:
		return to == TaskRunning
	case TaskRunning:
		return to == TaskRunning || to.Terminal()
	default:
		return false
	}
}

func (s TaskStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *TaskStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	for c := TaskNotFound; c <= TaskFailed; c++ {
		if c.String() == str {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown task status %q", str)
}

// Task is one "investigate this query at this time" unit of work.
type Task struct {
	ID        uuid.UUID  `json:"id"`
	QueryID   string     `json:"queryId"`
	Timestamp uint64     `json:"timestamp"`
	Status    TaskStatus `json:"status"`
	Comment   string     `json:"comment,omitempty"`
}

// NotFoundTask is the synthetic record returned for unknown ids.
func NotFoundTask(id uuid.UUID) Task {
	return Task{ID: id, Status: TaskNotFound}
}

// TaskDescription is the submission payload.
type TaskDescription struct {
	QueryID   string `json:"queryId"`
	Timestamp uint64 `json:"timestamp"`
}
