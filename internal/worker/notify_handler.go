package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"talentCorner/internal/auth"
	"talentCorner/internal/errcode"
	"talentCorner/internal/notify"
	"talentCorner/internal/tasks"
)

// CampaignRunner runs one bulk notification campaign.
type CampaignRunner interface {
	Run(ctx context.Context, campaign string, req notify.Request) (notify.Result, error)
}

// NotifyTaskHandler 负责消费异步通知任务。
type NotifyTaskHandler struct {
	runner    CampaignRunner
	publisher notify.Publisher
	logger    *slog.Logger
}

// NewNotifyTaskHandler 创建任务处理器。
func NewNotifyTaskHandler(runner CampaignRunner, publisher notify.Publisher, logger *slog.Logger) *NotifyTaskHandler {
	if publisher == nil {
		publisher = notify.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NotifyTaskHandler{runner: runner, publisher: publisher, logger: logger}
}

// ProcessTask 实现 asynq.Handler。
func (h *NotifyTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.NotifyCampaignPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}

	orgKey := auth.OrganizationKey(payload.OrgName)
	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.String("campaign", payload.Campaign),
		slog.String("org", orgKey),
	)
	log.Info("starting notification campaign")

	defer func() {
		if retErr == nil || !isTerminal(ctx, retErr) {
			return
		}
		publishFailure(ctx, h.publisher, log, orgKey, payload.Campaign, payload.CorrelationID, retErr)
	}()

	req := notify.Request{
		Org:           notify.Org{Name: payload.OrgName, Email: payload.OrgEmail},
		IDs:           payload.IDs,
		CorrelationID: payload.CorrelationID,
	}
	res, err := h.runner.Run(ctx, payload.Campaign, req)
	if err != nil {
		log.Error("notification campaign failed",
			slog.Int("sent", res.Sent),
			slog.Int("failed", len(res.Failed)),
			slog.Any("error", err),
		)
		// 调用方错误重试也不会成功。
		if code := errcode.CodeOf(err); code >= 4000 && code < 5000 {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}

	log.Info("notification campaign finished",
		slog.Int("total", res.Total),
		slog.Int("sent", res.Sent),
		slog.Int("failed", len(res.Failed)),
	)
	return nil
}

var _ asynq.Handler = (*NotifyTaskHandler)(nil)
