package worker

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"talentCorner/internal/errcode"
	"talentCorner/internal/notify"
)

// publishFailure 在任务最终失败时通知前端（通过 Redis Pub/Sub 转发到 WebSocket）。
func publishFailure(ctx context.Context, pub notify.Publisher, log *slog.Logger, orgKey string, payloadCampaign string, correlationID string, cause error) {
	event := notify.Event{
		Campaign:      payloadCampaign,
		Status:        notify.StatusFailed,
		CorrelationID: correlationID,
		ErrorCode:     errcode.CodeOf(cause),
		ErrorMessage:  strings.TrimSpace(errcode.MessageOf(cause)),
	}
	if err := pub.Publish(ctx, orgKey, event); err != nil {
		log.Error("publish campaign failure failed", slog.Any("error", err))
	}
}

// isFinalAsynqAttempt 判断当前是否为最后一次重试。
func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}

// isTerminal reports whether err ends the task without further retries.
func isTerminal(ctx context.Context, err error) bool {
	return errors.Is(err, asynq.SkipRetry) || isFinalAsynqAttempt(ctx)
}
