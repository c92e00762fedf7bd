package cache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/forgeworks/anvil-go/pkg/api"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Broker confirmation messages. Success is signalled by these exact strings
// in the response body, never by the HTTP status code alone.
const (
	MsgStored  = "Stored."
	MsgDeleted = "Deleted."
)

var (
	// ErrCacheMiss indicates the requested key was not found. It is distinct
	// from a key that exists with an empty value.
	ErrCacheMiss = errors.New("cache miss")

	// ErrTypeMismatch indicates a numeric increment against a non-numeric
	// stored value.
	ErrTypeMismatch = errors.New("stored value is not numeric")
)

// Item is a transient client-side copy of one cache entry. The entry's
// lifetime is entirely server-side.
type Item struct {
	Cache string `json:"cache"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ItemOptions control a single write.
type ItemOptions struct {
	// ExpiresIn is the server-side lifetime of the item. Zero means the
	// cache default.
	ExpiresIn time.Duration

	// Replace writes only when the key already exists.
	Replace bool

	// Add writes only when the key is absent.
	Add bool
}

type putRequest struct {
	Value     string `json:"value"`
	ExpiresIn int64  `json:"expires_in,omitempty"`
	Replace   bool   `json:"replace,omitempty"`
	Add       bool   `json:"add,omitempty"`
}

type msgResponse struct {
	Msg string `json:"msg"`
}

type incrementRequest struct {
	Amount int64 `json:"amount"`
}

// IncrementResult is the broker's response to an increment.
type IncrementResult struct {
	Msg   string `json:"msg"`
	Value int64  `json:"value"`
}

// Cache is a single-cache-namespace handle over the REST transport.
type Cache struct {
	client *api.Client
	name   string
	codec  Codec
	logger zerolog.Logger
}

// New creates a handle for the named cache using the default JSON codec.
func New(client *api.Client, name string) *Cache {
	return &Cache{
		client: client,
		name:   name,
		codec:  JSONCodec{},
		logger: log.With().Str("component", "cache").Str("cache", name).Logger(),
	}
}

// WithCodec returns a copy of the handle using the given codec.
func (c *Cache) WithCodec(codec Codec) *Cache {
	clone := *c
	clone.codec = codec
	return &clone
}

// Name returns the cache name.
func (c *Cache) Name() string {
	return c.name
}

// Get retrieves an item by key. Returns ErrCacheMiss when the key is absent.
func (c *Cache) Get(ctx context.Context, key string) (*Item, error) {
	var item Item
	if err := c.client.Get(ctx, c.path("/items/"+url.PathEscape(key)), &item); err != nil {
		if api.IsNotFound(err) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("cache %s get: %w", c.name, err)
	}

	CacheHits.Inc()
	return &item, nil
}

// GetValue retrieves an item and decodes its value into dest.
// Returns ErrCacheMiss when the key is absent.
func (c *Cache) GetValue(ctx context.Context, key string, dest any) error {
	item, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	return c.codec.Decode(item.Value, dest)
}

// Put stores a value under key. The write succeeded only when the broker
// acknowledged with the "Stored." confirmation; any other 2xx response
// yields ok=false without an error so callers can inspect the outcome.
func (c *Cache) Put(ctx context.Context, key string, value any, opts *ItemOptions) (bool, error) {
	encoded, err := c.codec.Encode(value)
	if err != nil {
		return false, fmt.Errorf("cache %s put: encode value: %w", c.name, err)
	}
	return c.putEncoded(ctx, key, encoded, opts)
}

// putEncoded writes an already-encoded value.
func (c *Cache) putEncoded(ctx context.Context, key, encoded string, opts *ItemOptions) (bool, error) {
	req := putRequest{Value: encoded}
	if opts != nil {
		req.ExpiresIn = int64(opts.ExpiresIn / time.Second)
		req.Replace = opts.Replace
		req.Add = opts.Add
	}

	var resp msgResponse
	if err := c.client.Put(ctx, c.path("/items/"+url.PathEscape(key)), req, &resp); err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return false, fmt.Errorf("cache %s put: %w", c.name, err)
	}

	ok := resp.Msg == MsgStored
	if !ok {
		c.logger.Warn().
			Str("key", key).
			Str("msg", resp.Msg).
			Msg("Put not confirmed by broker")
	}
	return ok, nil
}

// Delete removes an item by key. A missing key is treated as already gone.
func (c *Cache) Delete(ctx context.Context, key string) (bool, error) {
	var resp msgResponse
	if err := c.client.Delete(ctx, c.path("/items/"+url.PathEscape(key)), &resp); err != nil {
		if api.IsNotFound(err) {
			return true, nil
		}
		CacheErrors.WithLabelValues("delete").Inc()
		return false, fmt.Errorf("cache %s delete: %w", c.name, err)
	}
	return resp.Msg == MsgDeleted, nil
}

// Clear removes every item in the cache.
func (c *Cache) Clear(ctx context.Context) (bool, error) {
	var resp msgResponse
	if err := c.client.Delete(ctx, c.path("/items"), &resp); err != nil {
		CacheErrors.WithLabelValues("clear").Inc()
		return false, fmt.Errorf("cache %s clear: %w", c.name, err)
	}
	return resp.Msg == MsgDeleted, nil
}

// Increment atomically adds amount to the numeric value stored under key
// and returns the new value. amount may be negative. Returns ErrCacheMiss
// for an absent key and ErrTypeMismatch when the stored value is not
// numeric. Atomicity is the broker's responsibility.
func (c *Cache) Increment(ctx context.Context, key string, amount int64) (int64, error) {
	var res IncrementResult
	req := incrementRequest{Amount: amount}
	if err := c.client.Post(ctx, c.path("/items/"+url.PathEscape(key)+"/increment"), req, &res); err != nil {
		var apiErr *api.APIError
		switch {
		case api.IsNotFound(err):
			return 0, ErrCacheMiss
		case errors.As(err, &apiErr) && apiErr.StatusCode == 400:
			return 0, fmt.Errorf("%w: %s", ErrTypeMismatch, apiErr.Message)
		}
		CacheErrors.WithLabelValues("increment").Inc()
		return 0, fmt.Errorf("cache %s increment: %w", c.name, err)
	}
	return res.Value, nil
}

// GetOrAdd implements cache-aside: read the key, and on a miss invoke the
// value factory, store its result, and decode the stored value into dest.
// On a hit the factory is never invoked.
//
// Not atomic: two concurrent callers racing on the same absent
// key will both invoke the factory and both put; the last put wins
// server-side. This client adds no locking the protocol does not have.
func (c *Cache) GetOrAdd(ctx context.Context, key string, dest any, factory func(ctx context.Context) (any, error), opts *ItemOptions) error {
	err := c.GetValue(ctx, key, dest)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		return err
	}

	value, err := factory(ctx)
	if err != nil {
		return fmt.Errorf("cache %s get-or-add: value factory: %w", c.name, err)
	}

	encoded, err := c.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("cache %s get-or-add: encode value: %w", c.name, err)
	}

	ok, err := c.putEncoded(ctx, key, encoded, opts)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("cache %s get-or-add: put of key %s not confirmed", c.name, key)
	}

	return c.codec.Decode(encoded, dest)
}

// path builds the project-relative path for this cache.
func (c *Cache) path(suffix string) string {
	return "/caches/" + url.PathEscape(c.name) + suffix
}
