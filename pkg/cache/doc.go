// Package cache provides the Anvil key-value cache handle.
//
// The handle layers read-through helpers on the raw item operations:
//
//   - Get / GetValue with an explicit miss sentinel (ErrCacheMiss), kept
//     distinct from an item that exists with an empty value
//   - Put / Delete / Clear gated on the broker's confirmation strings
//     ("Stored.", "Deleted.") rather than the HTTP status code
//   - Increment, atomic on the broker, with negative amounts as decrement
//   - GetOrAdd, the cache-aside composition of a read and a conditional
//     write
//
// # Basic Usage
//
//	client, err := api.New(api.DefaultConfig("mq.anvil.dev", projectID, token))
//	if err != nil {
//		return err
//	}
//
//	settings := cache.New(client, "settings")
//
//	var motd string
//	err = settings.GetValue(ctx, "motd", &motd)
//	if err == cache.ErrCacheMiss {
//		// Absent key - not an error
//	}
//
// # Cache-Aside
//
//	var report Report
//	err := settings.GetOrAdd(ctx, "daily-report", &report,
//		func(ctx context.Context) (any, error) {
//			return buildReport(ctx)
//		}, &cache.ItemOptions{ExpiresIn: time.Hour})
//
// GetOrAdd is not atomic: two callers racing on the same
// absent key both invoke the factory and both put, and the last put wins
// server-side. Callers needing exactly-once population must coordinate on
// the broker (e.g. Put with Add: true), not in this client.
//
// # Serialization
//
// Values cross the wire as strings. The Codec contract round-trips typed
// values; the default JSONCodec passes strings through raw and JSON-encodes
// everything else, so numeric string payloads remain incrementable.
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - anvil_cache_hits_total - item reads that found a value
//   - anvil_cache_misses_total - item reads that found nothing
//   - anvil_cache_errors_total{operation} - cache operation errors
package cache
