package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPermissionsRecompute refreshes stale cached effective documents.
	TaskPermissionsRecompute = "permissions:recompute"
	// TaskHierarchyIntegrity scans the management graph for corruption.
	TaskHierarchyIntegrity = "hierarchy:integrity"
)

// PermissionsRecomputePayload bounds one recompute sweep.
type PermissionsRecomputePayload struct {
	Limit int `json:"limit"`
}

// NewPermissionsRecomputeTask constructs an Asynq task.
func NewPermissionsRecomputeTask(payload PermissionsRecomputePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPermissionsRecompute, data), nil
}

// NewHierarchyIntegrityTask constructs an Asynq task.
func NewHierarchyIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskHierarchyIntegrity, nil)
}
