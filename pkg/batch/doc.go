// Package batch provides parallel bulk enqueueing for large message sets.
//
// The broker accepts up to 100 messages per post call. This package splits
// a large set into chunks and posts them through a worker pool, collecting
// the broker-assigned ids.
//
// Example usage:
//
//	config := batch.DefaultConfig()
//	poster := batch.NewPoster(ordersQueue, config)
//	ids, err := poster.PostAll(ctx, messages)
//
// The poster:
//   - Splits the message set into chunks (default 100 messages)
//   - Spawns a worker pool (default 5 workers)
//   - Distributes chunks across workers
//   - Collects ids with progress logging
//   - Handles errors gracefully (returns partial ids)
//
// Only bulk posting is parallel; the requeue loop in pkg/queue stays a
// single thread of control.
package batch
