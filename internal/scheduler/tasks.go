package scheduler

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const TaskSegmentationSync = "segmentation.sync"

type SegmentationSyncPayload struct {
	Trigger     string    `json:"trigger"`
	RequestedBy string    `json:"requestedBy,omitempty"`
	RequestedAt time.Time `json:"requestedAt"`
}

func NewSegmentationSyncTask(payload SegmentationSyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSegmentationSync, data), nil
}

func ParseSegmentationSyncPayload(task *asynq.Task) (SegmentationSyncPayload, error) {
	var payload SegmentationSyncPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SegmentationSyncPayload{}, err
	}
	return payload, nil
}
