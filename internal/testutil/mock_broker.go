// Package testutil provides testing utilities for the Anvil client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// HostPort splits a test server URL into hostname and numeric port for
// building a transport config against the mock.
func HostPort(rawURL string) (string, int) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", 0
	}
	port, _ := strconv.Atoi(u.Port())
	return u.Hostname(), port
}

// brokerMessage is one stored queue message.
type brokerMessage struct {
	ID   string `json:"id"`
	Body string `json:"body"`
}

// mockQueue holds one queue's state. Read moves a message from pending to
// reserved; Delete removes it from reserved; an expired reservation moves
// the message back to pending (visibility timeout).
type mockQueue struct {
	pending    []brokerMessage
	reserved   map[string]reservation
	errorQueue string
	total      int
}

type reservation struct {
	msg      brokerMessage
	deadline time.Time
}

// failSpec makes matching requests fail a fixed number of times.
type failSpec struct {
	status    int
	remaining int
}

// MockBroker is a configurable in-memory Anvil broker for testing. It
// implements the queue and cache endpoints with reservation semantics and
// mutex-guarded atomic increment.
type MockBroker struct {
	server *httptest.Server
	mu     sync.Mutex

	queues map[string]*mockQueue
	caches map[string]map[string]string
	nextID int

	handlers map[string]http.HandlerFunc
	failures map[string]*failSpec

	// ReservationTimeout is how long a read message stays invisible.
	ReservationTimeout time.Duration

	// RateLimitRemaining is reported in the X-RateLimit-Remaining header.
	RateLimitRemaining int

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
}

// NewMockBroker creates a started mock broker.
func NewMockBroker() *MockBroker {
	b := &MockBroker{
		queues:             make(map[string]*mockQueue),
		caches:             make(map[string]map[string]string),
		handlers:           make(map[string]http.HandlerFunc),
		failures:           make(map[string]*failSpec),
		ReservationTimeout: 60 * time.Second,
		RateLimitRemaining: 100,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{version}/projects/{project}/queues/{queue}", b.handleQueueInfo)
	mux.HandleFunc("GET /{version}/projects/{project}/queues/{queue}/messages", b.handleQueueRead)
	mux.HandleFunc("POST /{version}/projects/{project}/queues/{queue}/messages", b.handleQueuePost)
	mux.HandleFunc("DELETE /{version}/projects/{project}/queues/{queue}/messages/{id}", b.handleQueueDelete)
	mux.HandleFunc("GET /{version}/projects/{project}/caches/{cache}/items/{key}", b.handleCacheGet)
	mux.HandleFunc("PUT /{version}/projects/{project}/caches/{cache}/items/{key}", b.handleCachePut)
	mux.HandleFunc("DELETE /{version}/projects/{project}/caches/{cache}/items/{key}", b.handleCacheDelete)
	mux.HandleFunc("DELETE /{version}/projects/{project}/caches/{cache}/items", b.handleCacheClear)
	mux.HandleFunc("POST /{version}/projects/{project}/caches/{cache}/items/{key}/increment", b.handleCacheIncrement)

	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.RequestCount++
		b.LastRequestHeader = r.Header.Clone()

		key := r.Method + " " + r.URL.Path
		if spec, ok := b.failures[key]; ok && spec.remaining > 0 {
			spec.remaining--
			b.mu.Unlock()
			b.writeRateLimitHeaders(w)
			writeJSON(w, spec.status, map[string]string{"msg": "Service unavailable"})
			return
		}

		handler, ok := b.handlers[key]
		b.mu.Unlock()

		if ok {
			handler(w, r)
			return
		}

		b.writeRateLimitHeaders(w)
		mux.ServeHTTP(w, r)
	}))

	return b
}

// URL returns the mock server URL.
func (b *MockBroker) URL() string {
	return b.server.URL
}

// Close shuts down the mock server.
func (b *MockBroker) Close() {
	b.server.Close()
}

// SetHandler overrides the response for an exact method and path,
// e.g. "POST /1/projects/test/queues/orders/messages".
func (b *MockBroker) SetHandler(methodAndPath string, handler http.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[methodAndPath] = handler
}

// FailTimes makes the next times requests for an exact method and path fail
// with the given status before normal handling resumes.
func (b *MockBroker) FailTimes(methodAndPath string, status, times int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[methodAndPath] = &failSpec{status: status, remaining: times}
}

// SeedQueue creates a queue with the given error queue name and pending
// message bodies. An empty errorQueue means none is configured.
func (b *MockBroker) SeedQueue(name, errorQueue string, bodies ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.ensureQueueLocked(name)
	q.errorQueue = errorQueue
	for _, body := range bodies {
		b.nextID++
		q.pending = append(q.pending, brokerMessage{
			ID:   strconv.Itoa(b.nextID),
			Body: body,
		})
		q.total++
	}
	if errorQueue != "" {
		b.ensureQueueLocked(errorQueue)
	}
}

// QueueBodies returns the bodies of all messages still owned by the queue
// (pending plus reserved), in no particular order.
func (b *MockBroker) QueueBodies(name string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[name]
	if !ok {
		return nil
	}

	var bodies []string
	for _, m := range q.pending {
		bodies = append(bodies, m.Body)
	}
	for _, res := range q.reserved {
		bodies = append(bodies, res.msg.Body)
	}
	return bodies
}

// CacheValue returns the stored raw value for a key.
func (b *MockBroker) CacheValue(cache, key string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	items, ok := b.caches[cache]
	if !ok {
		return "", false
	}
	v, ok := items[key]
	return v, ok
}

// SetCacheValue seeds a raw cache value.
func (b *MockBroker) SetCacheValue(cache, key, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.caches[cache] == nil {
		b.caches[cache] = make(map[string]string)
	}
	b.caches[cache][key] = value
}

// Reset clears all state and tracking counters.
func (b *MockBroker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues = make(map[string]*mockQueue)
	b.caches = make(map[string]map[string]string)
	b.handlers = make(map[string]http.HandlerFunc)
	b.failures = make(map[string]*failSpec)
	b.RequestCount = 0
	b.LastRequestHeader = nil
}

// GetRequestCount returns the number of requests made to the server.
func (b *MockBroker) GetRequestCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.RequestCount
}

func (b *MockBroker) ensureQueueLocked(name string) *mockQueue {
	q, ok := b.queues[name]
	if !ok {
		q = &mockQueue{reserved: make(map[string]reservation)}
		b.queues[name] = q
	}
	return q
}

// releaseExpiredLocked moves expired reservations back to pending.
func (q *mockQueue) releaseExpiredLocked(now time.Time) {
	for id, res := range q.reserved {
		if now.After(res.deadline) {
			q.pending = append(q.pending, res.msg)
			delete(q.reserved, id)
		}
	}
}

func (b *MockBroker) writeRateLimitHeaders(w http.ResponseWriter) {
	b.mu.Lock()
	remaining := b.RateLimitRemaining
	b.mu.Unlock()
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", "60")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Queue handlers

func (b *MockBroker) handleQueueInfo(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	name := r.PathValue("queue")
	q, ok := b.queues[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"msg": "Queue not found"})
		return
	}

	q.releaseExpiredLocked(time.Now())
	writeJSON(w, http.StatusOK, map[string]any{
		"name":           name,
		"size":           len(q.pending),
		"total_messages": q.total,
		"error_queue":    q.errorQueue,
	})
}

func (b *MockBroker) handleQueueRead(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	name := r.PathValue("queue")
	q, ok := b.queues[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"msg": "Queue not found"})
		return
	}

	q.releaseExpiredLocked(time.Now())

	if len(q.pending) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"messages": []brokerMessage{}})
		return
	}

	msg := q.pending[0]
	q.pending = q.pending[1:]
	q.reserved[msg.ID] = reservation{
		msg:      msg,
		deadline: time.Now().Add(b.ReservationTimeout),
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": []brokerMessage{msg}})
}

func (b *MockBroker) handleQueuePost(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	name := r.PathValue("queue")
	q := b.ensureQueueLocked(name)

	var req struct {
		Messages []struct {
			Body string `json:"body"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"msg": "Invalid message payload"})
		return
	}

	ids := make([]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		b.nextID++
		id := strconv.Itoa(b.nextID)
		q.pending = append(q.pending, brokerMessage{ID: id, Body: m.Body})
		q.total++
		ids = append(ids, id)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ids": ids,
		"msg": "Messages put on queue.",
	})
}

func (b *MockBroker) handleQueueDelete(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	name := r.PathValue("queue")
	id := r.PathValue("id")
	q, ok := b.queues[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"msg": "Queue not found"})
		return
	}

	if _, ok := q.reserved[id]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"msg": "Message not found"})
		return
	}
	delete(q.reserved, id)

	writeJSON(w, http.StatusOK, map[string]string{"msg": "Deleted."})
}

// Cache handlers

func (b *MockBroker) handleCacheGet(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cache := r.PathValue("cache")
	key := r.PathValue("key")

	value, ok := b.caches[cache][key]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"msg": "Key not found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"cache": cache,
		"key":   key,
		"value": value,
	})
}

func (b *MockBroker) handleCachePut(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cache := r.PathValue("cache")
	key := r.PathValue("key")

	var req struct {
		Value   string `json:"value"`
		Replace bool   `json:"replace"`
		Add     bool   `json:"add"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"msg": "Invalid item payload"})
		return
	}

	if b.caches[cache] == nil {
		b.caches[cache] = make(map[string]string)
	}

	_, exists := b.caches[cache][key]
	if (req.Add && exists) || (req.Replace && !exists) {
		// Conditional write not applicable: 2xx but no "Stored." confirmation
		writeJSON(w, http.StatusOK, map[string]string{"msg": "Not stored."})
		return
	}

	b.caches[cache][key] = req.Value
	writeJSON(w, http.StatusOK, map[string]string{"msg": "Stored."})
}

func (b *MockBroker) handleCacheDelete(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cache := r.PathValue("cache")
	key := r.PathValue("key")

	if _, ok := b.caches[cache][key]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"msg": "Key not found"})
		return
	}
	delete(b.caches[cache], key)

	writeJSON(w, http.StatusOK, map[string]string{"msg": "Deleted."})
}

func (b *MockBroker) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cache := r.PathValue("cache")
	b.caches[cache] = make(map[string]string)

	writeJSON(w, http.StatusOK, map[string]string{"msg": "Deleted."})
}

func (b *MockBroker) handleCacheIncrement(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cache := r.PathValue("cache")
	key := r.PathValue("key")

	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"msg": "Invalid increment payload"})
		return
	}

	value, ok := b.caches[cache][key]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"msg": "Key not found"})
		return
	}

	current, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"msg": "Cannot increment or decrement non-numeric value",
		})
		return
	}

	current += req.Amount
	b.caches[cache][key] = fmt.Sprintf("%d", current)

	writeJSON(w, http.StatusOK, map[string]any{
		"msg":   "Added",
		"value": current,
	})
}
