// Package queue provides the Anvil queue handle and the failed-message
// requeue operation built on top of the REST transport.
package queue

import (
	"context"
	"fmt"
	"net/url"

	"github.com/forgeworks/anvil-go/pkg/api"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MsgPutOnQueue is the broker's confirmation message for a successful post.
// The protocol's success signal is this exact string in the response body,
// not the HTTP status code.
const MsgPutOnQueue = "Messages put on queue."

// QueueInfo is a point-in-time snapshot of queue metadata.
// It is fetched on demand and never cached beyond one call.
type QueueInfo struct {
	// Name is the queue name.
	Name string `json:"name"`

	// Size is the number of messages currently available.
	Size int `json:"size"`

	// TotalMessages is the lifetime message count.
	TotalMessages int `json:"total_messages"`

	// ErrorQueue is the dead-letter destination for messages that exceeded
	// their delivery attempts. Empty when no error queue is configured.
	ErrorQueue string `json:"error_queue,omitempty"`
}

// Message is one queue message. ID is assigned by the broker on post and
// is the message's identity from then on.
type Message struct {
	ID   string `json:"id,omitempty"`
	Body string `json:"body"`

	// Timeout is how long (seconds) a read message stays reserved before
	// it becomes visible to other readers again.
	Timeout int64 `json:"timeout,omitempty"`

	// Delay postpones first delivery (seconds).
	Delay int64 `json:"delay,omitempty"`

	// ExpiresIn discards the message after this many seconds.
	ExpiresIn int64 `json:"expires_in,omitempty"`
}

// PostResult is the broker's response to a message post.
type PostResult struct {
	IDs []string `json:"ids"`
	Msg string `json:"msg"`
}

// Queue is a single-queue handle over the REST transport.
type Queue struct {
	client *api.Client
	name   string
	logger zerolog.Logger
}

// New creates a handle for the named queue. No network call is made;
// the queue may not exist yet.
func New(client *api.Client, name string) *Queue {
	return &Queue{
		client: client,
		name:   name,
		logger: log.With().Str("component", "queue").Str("queue", name).Logger(),
	}
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// Info fetches queue metadata. Returns an error wrapping api.ErrNotFound
// when the queue does not exist.
func (q *Queue) Info(ctx context.Context) (*QueueInfo, error) {
	var info QueueInfo
	if err := q.client.Get(ctx, q.path(""), &info); err != nil {
		return nil, fmt.Errorf("queue %s info: %w", q.name, err)
	}
	return &info, nil
}

type readResponse struct {
	Messages []Message `json:"messages"`
}

// Read reserves and returns the next available message.
// found is false when the queue is drained; that is not an error.
func (q *Queue) Read(ctx context.Context) (*Message, bool, error) {
	var resp readResponse
	if err := q.client.Get(ctx, q.path("/messages?n=1"), &resp); err != nil {
		return nil, false, fmt.Errorf("queue %s read: %w", q.name, err)
	}

	if len(resp.Messages) == 0 {
		return nil, false, nil
	}

	m := resp.Messages[0]
	q.logger.Debug().Str("message_id", m.ID).Msg("Read message")
	return &m, true, nil
}

type postRequest struct {
	Messages []Message `json:"messages"`
}

// PostMessages enqueues a batch of messages and returns the broker's
// assigned ids together with its confirmation message. A returned id means
// the broker accepted the message; it does not guarantee consumption.
func (q *Queue) PostMessages(ctx context.Context, msgs ...Message) (*PostResult, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("queue %s post: no messages", q.name)
	}

	var res PostResult
	if err := q.client.Post(ctx, q.path("/messages"), postRequest{Messages: msgs}, &res); err != nil {
		return nil, fmt.Errorf("queue %s post: %w", q.name, err)
	}

	q.logger.Debug().
		Int("count", len(msgs)).
		Strs("ids", res.IDs).
		Msg("Posted messages")

	return &res, nil
}

// Post enqueues a single message body and returns the assigned id.
func (q *Queue) Post(ctx context.Context, body string) (string, error) {
	res, err := q.PostMessages(ctx, Message{Body: body})
	if err != nil {
		return "", err
	}
	if len(res.IDs) == 0 {
		return "", fmt.Errorf("queue %s post: broker returned no message id", q.name)
	}
	return res.IDs[0], nil
}

type deleteResponse struct {
	Msg string `json:"msg"`
}

// Delete removes a previously read message by id. Deleting an already-gone
// id fails with an error wrapping api.ErrNotFound; callers that only care
// that the message is gone may ignore that error class.
func (q *Queue) Delete(ctx context.Context, m *Message) error {
	if m == nil || m.ID == "" {
		return fmt.Errorf("queue %s delete: message has no id", q.name)
	}

	var resp deleteResponse
	if err := q.client.Delete(ctx, q.path("/messages/"+url.PathEscape(m.ID)), &resp); err != nil {
		return fmt.Errorf("queue %s delete: %w", q.name, err)
	}

	q.logger.Debug().Str("message_id", m.ID).Msg("Deleted message")
	return nil
}

// path builds the project-relative path for this queue.
func (q *Queue) path(suffix string) string {
	return "/queues/" + url.PathEscape(q.name) + suffix
}
