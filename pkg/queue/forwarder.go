package queue

import (
	"context"

	"github.com/forgeworks/anvil-go/pkg/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for requeue runs.
var (
	requeueRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anvil_requeue_runs_total",
		Help: "Total requeue runs by outcome",
	}, []string{"outcome"}) // "drained", "limit", "cancelled", "no_error_queue"

	requeueMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anvil_requeue_messages_total",
		Help: "Total messages forwarded from error queues back to their origin queue",
	})
)

// RequeueOptions controls a requeue run.
type RequeueOptions struct {
	// Limit caps the number of forwarded messages. 0 means drain fully.
	Limit int
}

// RequeueErrors drains this queue's configured error queue and reposts each
// failed message onto this queue.
//
// The run is a single thread of control: read one message, repost it here,
// delete it from the error queue once the broker confirmed the repost, and
// repeat until the error queue is drained, the limit is reached, or ctx is
// cancelled. Cancellation is cooperative and checked once per iteration,
// before forwarding the message just read; it does not abort an in-flight
// broker call. A message read in the stopping iteration stays undeleted and
// becomes readable again after its visibility timeout (at-least-once).
//
// A message is deleted from the error queue only when its own repost
// returned the broker confirmation. Messages whose repost was accepted
// without confirmation stay in place for a future run.
//
// A transport failure on any call aborts the whole run with no partial
// result. When the queue has no error queue configured, the run returns an
// empty successful result without touching any error queue.
func (q *Queue) RequeueErrors(ctx context.Context, opts RequeueOptions) (*RequeueResult, error) {
	result := &RequeueResult{}

	info, err := q.Info(ctx)
	if err != nil {
		return nil, err
	}

	if info.ErrorQueue == "" {
		q.logger.Debug().Msg("No error queue configured, nothing to requeue")
		result.Message = MsgPutOnQueue
		requeueRunsTotal.WithLabelValues("no_error_queue").Inc()
		return result, nil
	}

	errQueue := New(q.client, info.ErrorQueue)
	count := 0
	outcome := "drained"

	for {
		msg, found, err := errQueue.Read(ctx)
		if err != nil {
			return nil, err
		}
		if !found {
			break
		}

		// Stop-check before forwarding the message just read. The read
		// already consumed the error queue's cursor; leaving the message
		// undeleted hands it back after the visibility timeout.
		if ctx.Err() != nil {
			outcome = "cancelled"
			break
		}
		if opts.Limit > 0 && count >= opts.Limit {
			outcome = "limit"
			break
		}

		post, err := q.PostMessages(ctx, Message{Body: msg.Body})
		if err != nil {
			// No per-message isolation: one bad message stops the batch.
			return nil, err
		}
		result.Append(post.IDs...)

		if post.Msg == MsgPutOnQueue {
			if err := errQueue.Delete(ctx, msg); err != nil && !api.IsNotFound(err) {
				return nil, err
			}
		}

		count++
	}

	result.Message = MsgPutOnQueue

	requeueMessagesTotal.Add(float64(count))
	requeueRunsTotal.WithLabelValues(outcome).Inc()

	q.logger.Info().
		Str("error_queue", info.ErrorQueue).
		Int("forwarded", count).
		Str("outcome", outcome).
		Msg("Requeue run complete")

	return result, nil
}
