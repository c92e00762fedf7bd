package queue

// RequeueResult accumulates the outcome of one requeue run: the ids the
// broker assigned to every forwarded message and a human-readable summary.
// It is built incrementally during a run, returned once, and then discarded.
type RequeueResult struct {
	IDs     []string `json:"ids"`
	Message string   `json:"msg"`
}

// Append records broker-assigned ids for a forwarded message.
func (r *RequeueResult) Append(ids ...string) {
	r.IDs = append(r.IDs, ids...)
}

// IsSuccess reports whether the run completed with the broker's
// confirmation message. A run that found no error queue configured is
// vacuously successful with zero ids.
func (r *RequeueResult) IsSuccess() bool {
	return r.Message == MsgPutOnQueue
}

// Count returns the number of forwarded message ids.
func (r *RequeueResult) Count() int {
	return len(r.IDs)
}
