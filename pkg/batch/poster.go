package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/forgeworks/anvil-go/pkg/queue"
	"github.com/rs/zerolog/log"
)

// Config holds bulk poster configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel post calls.
	MaxConcurrency int
	// ChunkSize is the number of messages per post call (broker max: 100).
	ChunkSize int
	// Timeout per chunk post.
	Timeout time.Duration
}

// DefaultConfig returns safe default configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 5,
		ChunkSize:      100,
		Timeout:        15 * time.Second,
	}
}

// Sender is the posting surface the poster needs; *queue.Queue implements it.
type Sender interface {
	PostMessages(ctx context.Context, msgs ...queue.Message) (*queue.PostResult, error)
}

// chunkResult represents the outcome of posting a single chunk.
type chunkResult struct {
	ChunkNumber int
	IDs         []string
	Error       error
}

// Poster posts large message sets in parallel chunks.
type Poster struct {
	sender Sender
	config Config
}

// NewPoster creates a new bulk poster.
func NewPoster(sender Sender, config Config) *Poster {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 5
	}
	if config.ChunkSize <= 0 || config.ChunkSize > 100 {
		config.ChunkSize = 100
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &Poster{
		sender: sender,
		config: config,
	}
}

// PostAll posts all messages through the worker pool and returns the
// broker-assigned ids in chunk order. On a worker error the ids collected
// so far are returned together with the error.
func (p *Poster) PostAll(ctx context.Context, msgs []queue.Message) ([]string, error) {
	start := time.Now()

	if len(msgs) == 0 {
		return nil, nil
	}

	totalChunks := (len(msgs) + p.config.ChunkSize - 1) / p.config.ChunkSize

	log.Info().
		Int("messages", len(msgs)).
		Int("chunks", totalChunks).
		Msg("Starting parallel bulk post")

	// Single chunk optimization
	if totalChunks == 1 {
		res, err := p.sender.PostMessages(ctx, msgs...)
		if err != nil {
			return nil, fmt.Errorf("failed to post chunk: %w", err)
		}
		log.Info().
			Int("messages", len(msgs)).
			Dur("duration", time.Since(start)).
			Msg("Bulk post complete (single chunk)")
		return res.IDs, nil
	}

	idsByChunk := make(map[int][]string)
	var resultsMutex sync.Mutex

	chunkQueue := make(chan int, totalChunks)
	chunkResults := make(chan chunkResult, totalChunks)
	errs := make(chan error, p.config.MaxConcurrency)

	// Fill chunk queue
	go func() {
		for chunk := 0; chunk < totalChunks; chunk++ {
			chunkQueue <- chunk
		}
		close(chunkQueue)
	}()

	// Start worker pool
	var wg sync.WaitGroup
	for i := 0; i < p.config.MaxConcurrency; i++ {
		wg.Add(1)
		go p.worker(ctx, msgs, chunkQueue, chunkResults, errs, &wg, i)
	}

	// Close results channel when all workers done
	go func() {
		wg.Wait()
		close(chunkResults)
		close(errs)
	}()

	// Collect results
	postedChunks := 0
	for result := range chunkResults {
		if result.Error != nil {
			log.Warn().
				Err(result.Error).
				Int("chunk", result.ChunkNumber).
				Msg("Chunk post failed")
			continue
		}

		resultsMutex.Lock()
		idsByChunk[result.ChunkNumber] = result.IDs
		postedChunks++
		resultsMutex.Unlock()
	}

	// Flatten in chunk order
	var ids []string
	for chunk := 0; chunk < totalChunks; chunk++ {
		ids = append(ids, idsByChunk[chunk]...)
	}

	// Check for errors
	select {
	case err := <-errs:
		if err != nil {
			log.Warn().
				Err(err).
				Int("posted_chunks", postedChunks).
				Int("total_chunks", totalChunks).
				Msg("Worker error - returning partial ids")
			return ids, fmt.Errorf("worker error (partial post: %d/%d chunks): %w", postedChunks, totalChunks, err)
		}
	default:
	}

	log.Info().
		Int("chunks", postedChunks).
		Int("ids", len(ids)).
		Dur("duration", time.Since(start)).
		Msg("Bulk post complete")

	return ids, nil
}

// worker posts chunks from the queue.
func (p *Poster) worker(ctx context.Context, msgs []queue.Message, chunkQueue <-chan int, results chan<- chunkResult, errs chan<- error, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	chunksProcessed := 0

	for chunkNum := range chunkQueue {
		// Check context cancellation
		select {
		case <-ctx.Done():
			log.Debug().
				Int("worker_id", workerID).
				Int("chunks_processed", chunksProcessed).
				Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		lo := chunkNum * p.config.ChunkSize
		hi := lo + p.config.ChunkSize
		if hi > len(msgs) {
			hi = len(msgs)
		}

		// Post chunk with timeout
		chunkCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		res, err := p.sender.PostMessages(chunkCtx, msgs[lo:hi]...)
		cancel()

		if err != nil {
			log.Warn().
				Err(err).
				Int("worker_id", workerID).
				Int("chunk", chunkNum).
				Msg("Chunk post failed")

			// Non-blocking error send
			select {
			case errs <- err:
			default:
			}
			return
		}

		// Send result
		select {
		case results <- chunkResult{
			ChunkNumber: chunkNum,
			IDs:         res.IDs,
		}:
		case <-ctx.Done():
			log.Debug().
				Int("worker_id", workerID).
				Int("chunks_processed", chunksProcessed).
				Msg("Worker stopping (context cancelled after post)")
			return
		}

		chunksProcessed++
	}

	if chunksProcessed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("chunks_processed", chunksProcessed).
			Msg("Worker completed")
	}
}
