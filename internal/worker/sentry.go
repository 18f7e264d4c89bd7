package worker

import (
	"context"
	"strconv"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"

	apperrors "github.com/mojiokoshi/transcriber/internal/errors"
)

// SentryMiddleware wraps asynq job handlers with Sentry error capture.
func SentryMiddleware(h asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		taskID, _ := asynq.GetTaskID(ctx)
		queueName, _ := asynq.GetQueueName(ctx)
		retryCount, _ := asynq.GetRetryCount(ctx)

		hub := sentry.CurrentHub().Clone()
		hub.Scope().SetTag("task_type", t.Type())
		hub.Scope().SetTag("task_id", taskID)
		hub.Scope().SetTag("queue", queueName)
		hub.Scope().SetTag("retry_count", strconv.Itoa(retryCount))

		ctx = sentry.SetHubOnContext(ctx, hub)

		err := h.ProcessTask(ctx, t)
		if err != nil && reportable(err) {
			hub.CaptureException(err)
		}

		return err
	})
}

// reportable skips validation failures, which are caused by the request and
// not by the service.
func reportable(err error) bool {
	return !apperrors.IsType(err, apperrors.ErrorTypeValidation)
}
