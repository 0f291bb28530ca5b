package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeNotifyCampaign = "notify:campaign"
)

// NotifyCampaignPayload 描述一次异步通知活动。
type NotifyCampaignPayload struct {
	Campaign      string `json:"campaign"`
	OrgName       string `json:"org_name"`
	OrgEmail      string `json:"org_email"`
	IDs           []uint `json:"ids,omitempty"`
	CorrelationID string `json:"correlation_id"`
}

// NewNotifyCampaignTask 构造通知任务；一次活动可能持续较久。
func NewNotifyCampaignTask(p NotifyCampaignPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeNotifyCampaign, payload,
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Minute),
	), nil
}
