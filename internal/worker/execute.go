package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"

	"github.com/arcflow-dev/powerpool/internal/events"
	"github.com/arcflow-dev/powerpool/internal/metrics"
	"github.com/arcflow-dev/powerpool/internal/work"
)

// execute runs item.Body under the resolved timeout, recovering a panic
// into an error the way the source executor did, but via conc's
// panics.Catcher instead of a hand-rolled recover so a panicking Body
// never takes the worker goroutine down with it.
func (wk *Worker) execute(item *work.Work, timeout work.TimeoutOption) (result any, execErr error, timedOut bool) {
	ctx := context.Background()
	var cancel context.CancelFunc
	if timeout.Duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout.Duration)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	ctx = work.WithControl(ctx, work.NewControl(wk.poolGate, item))

	done := make(chan struct{})
	var catcher panics.Catcher
	go func() {
		defer close(done)
		catcher.Try(func() {
			result, execErr = item.Body(ctx)
		})
	}()

	select {
	case <-done:
	case <-ctx.Done():
		timedOut = true
		if timeout.ForceStop {
			// The body's goroutine is abandoned; there is no way to
			// kill it outright, matching the documented tradeoff of a
			// forced stop under the cooperative-cancellation model.
			return nil, ctx.Err(), true
		}
		item.RequestStop()
		<-done
	}

	if rec := catcher.Recovered(); rec != nil {
		execErr = fmt.Errorf("work panicked: %v", rec.Value)
	}

	return result, execErr, timedOut
}

// finish records the outcome of one execution attempt, deciding between
// a terminal state and a retry, then fires the callback, event, and
// metric side effects.
func (wk *Worker) finish(item *work.Work, result any, execErr error, timedOut bool, log *zerolog.Logger) {
	duration := time.Since(item.StartTime()).Seconds()

	switch {
	case execErr == nil:
		_ = item.Finish(work.StateSucceeded, result, nil)
		metrics.RecordWorkCompletion("succeeded", duration)
		wk.complete(item, events.WorkEnd, nil)
		return

	case timedOut:
		_ = item.Finish(work.StateStopped, nil, execErr)
		metrics.RecordWorkCompletion("stopped", duration)
		wk.complete(item, events.WorkTimeout, nil)
		return

	case (errors.Is(execErr, context.Canceled) || errors.Is(execErr, work.ErrStopRequested)) && item.ShouldStop():
		_ = item.Finish(work.StateStopped, nil, execErr)
		metrics.RecordWorkCompletion("stopped", duration)
		wk.complete(item, events.WorkStop, nil)
		return
	}

	if item.Options.Retry.ShouldRetry(item.ExecuteCount() - 1) {
		wk.retry(item, execErr, log)
		return
	}

	_ = item.Finish(work.StateFailed, result, execErr)
	log.Error().Err(execErr).Str("work_id", item.ID).Msg("work failed")
	metrics.RecordWorkCompletion("failed", duration)
	wk.complete(item, events.WorkEnd, execErr)
}

// complete runs the ordering spec §5 requires for a terminal outcome:
// the work's own callback, then the WorkEnd-family event, then the
// dispatcher's OnWorkDone hook (dependency release, failed-work index,
// timing totals; the work is not removed from the dispatcher's registry
// or group index), and only then the wait gate — so Wait() callers never observe a
// terminal work before its callback and event have been delivered.
func (wk *Worker) complete(item *work.Work, eventType events.Type, eventErr error) {
	if item.Options.Callback != nil {
		item.Options.Callback(item)
	}

	data := map[string]interface{}{"id": item.ID, "worker_id": wk.id}
	if eventErr != nil {
		data["error"] = eventErr.Error()
	}
	wk.bus.Publish(events.New(eventType, data))

	if wk.callbacks.OnWorkDone != nil {
		wk.callbacks.OnWorkDone(item)
	}
	item.Release()
}

// retry re-arms item for another attempt, either immediately on this
// worker or by handing it back to the dispatcher for requeue, per the
// work's RetryOption.Strategy.
func (wk *Worker) retry(item *work.Work, execErr error, log *zerolog.Logger) {
	log.Warn().Err(execErr).Str("work_id", item.ID).Int("attempt", item.ExecuteCount()).Msg("work failed, retrying")
	metrics.RecordRetry()

	backoff := item.Options.Retry.Backoff(item.ExecuteCount())
	if backoff > 0 {
		time.Sleep(backoff)
	}

	if err := item.ResetForRequeue(); err != nil {
		log.Error().Err(err).Str("work_id", item.ID).Msg("cannot requeue failed work")
		return
	}

	if item.Options.Retry.Strategy == work.RetryRequeue && wk.callbacks.OnRequeue != nil {
		wk.callbacks.OnRequeue(item)
		return
	}

	wk.Submit(item)
}
