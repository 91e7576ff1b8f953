package model

import "time"

// TaskStatus is the lifecycle state of a history update task.
type TaskStatus string

const (
	TaskWaiting   TaskStatus = "WAITING"
	TaskCompleted TaskStatus = "COMPLETED"
)

// HistoryUpdateTask asks an external worker to recompute the Steam price
// for a (skin name, wear) pair. At most one WAITING task may exist per
// pair; completed tasks are retained for a bounded window, then purged.
type HistoryUpdateTask struct {
	ID         string     `json:"id"`
	SkinName   string     `json:"skin_name"`
	Wear       Wear       `json:"wear"`
	Status     TaskStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewWaitingTask creates a task in WAITING state.
func NewWaitingTask(id, skinName string, wear Wear, now time.Time) HistoryUpdateTask {
	return HistoryUpdateTask{
		ID:        id,
		SkinName:  skinName,
		Wear:      wear,
		Status:    TaskWaiting,
		CreatedAt: now,
	}
}

// Complete transitions the task to COMPLETED with the given finish time.
func (t *HistoryUpdateTask) Complete(now time.Time) {
	t.Status = TaskCompleted
	t.FinishedAt = &now
}
