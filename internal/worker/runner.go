package worker

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/mojiokoshi/transcriber/internal/services/transcription"
)

// ErrBusy is returned by Runner.Start while a job is in flight.
var ErrBusy = errors.New("a transcription is already running")

// Update is one message from a running job. The last Update on a channel has
// Done set and carries either Result or Err.
type Update struct {
	Stage   transcription.Stage
	Message string
	Done    bool
	Result  *transcription.Result
	Err     error
}

// Runner runs one transcription at a time on a background goroutine and
// reports back over a channel.
type Runner struct {
	transcriber Transcriber
	busy        atomic.Bool
}

func NewRunner(t Transcriber) *Runner {
	return &Runner{transcriber: t}
}

// Busy reports whether a job is in flight.
func (r *Runner) Busy() bool {
	return r.busy.Load()
}

// Start launches req in the background. The returned channel receives
// progress updates followed by exactly one final Update, then is closed.
func (r *Runner) Start(ctx context.Context, req transcription.Request) (<-chan Update, error) {
	if !r.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}

	updates := make(chan Update, 8)
	go func() {
		defer close(updates)

		result, err := r.transcriber.SubmitWithProgress(ctx, req, func(stage transcription.Stage, message string) {
			if stage == transcription.StageCompleted || stage == transcription.StageFailed {
				return
			}
			select {
			case updates <- Update{Stage: stage, Message: message}:
			case <-ctx.Done():
			}
		})

		final := Update{Done: true, Result: result, Err: err}
		if err != nil {
			final.Stage = transcription.StageFailed
		} else {
			final.Stage = transcription.StageCompleted
		}
		final.Message = final.Stage.Message()

		// Free the slot before the final send so a listener can start the
		// next job as soon as it sees the outcome.
		r.busy.Store(false)
		updates <- final
	}()
	return updates, nil
}
