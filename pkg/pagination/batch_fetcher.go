package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MaxBatchGetIDs is the largest id list mediaItems:batchGet accepts.
const MaxBatchGetIDs = 50

// Config holds batch fetcher configuration
type Config struct {
	// ChunkSize is the number of ids sent per request
	ChunkSize int
	// MaxConcurrency is the maximum number of chunks in flight.
	// Requests still pass through the client's throttler.
	MaxConcurrency int
	// Timeout per chunk fetch
	Timeout time.Duration
}

// DefaultConfig returns safe default configuration for batchGet
func DefaultConfig() Config {
	return Config{
		ChunkSize:      MaxBatchGetIDs,
		MaxConcurrency: 4,
		Timeout:        30 * time.Second,
	}
}

// ChunkFetcher fetches the records for one chunk of ids. The returned slice
// must be in the same order as ids.
type ChunkFetcher[T any] interface {
	FetchChunk(ctx context.Context, ids []string) ([]T, error)
}

// ChunkFetcherFunc adapts a function to ChunkFetcher.
type ChunkFetcherFunc[T any] func(ctx context.Context, ids []string) ([]T, error)

// FetchChunk implements ChunkFetcher.
func (f ChunkFetcherFunc[T]) FetchChunk(ctx context.Context, ids []string) ([]T, error) {
	return f(ctx, ids)
}

// chunkResult represents the result of fetching a single chunk
type chunkResult[T any] struct {
	index int
	items []T
	err   error
}

// BatchFetcher fans an id list out over fixed-size chunks and reassembles
// the results in input order.
type BatchFetcher[T any] struct {
	fetcher ChunkFetcher[T]
	config  Config
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher[T any](fetcher ChunkFetcher[T], config Config) *BatchFetcher[T] {
	if config.ChunkSize <= 0 || config.ChunkSize > MaxBatchGetIDs {
		config.ChunkSize = MaxBatchGetIDs
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &BatchFetcher[T]{
		fetcher: fetcher,
		config:  config,
	}
}

// Split breaks items into consecutive batches of at most size elements.
// The last batch may be shorter; an empty input yields no batches.
func Split[E any](items []E, size int) [][]E {
	if size <= 0 {
		size = 1
	}

	batches := make([][]E, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end])
	}
	return batches
}

// FetchAll fetches every id using a worker pool over chunks. Results keep
// the order of ids. The first failure cancels outstanding chunks and is
// returned.
func (bf *BatchFetcher[T]) FetchAll(ctx context.Context, ids []string) ([]T, error) {
	start := time.Now()
	chunks := Split(ids, bf.config.ChunkSize)

	if len(chunks) == 0 {
		return nil, nil
	}

	// Single chunk optimization
	if len(chunks) == 1 {
		return bf.fetchChunk(ctx, chunks[0])
	}

	log.Debug().
		Int("ids", len(ids)).
		Int("chunks", len(chunks)).
		Msg("Starting batch fetch")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan int, len(chunks))
	for i := range chunks {
		queue <- i
	}
	close(queue)

	results := make(chan chunkResult[T], len(chunks))

	workers := min(bf.config.MaxConcurrency, len(chunks))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go bf.worker(ctx, chunks, queue, results, &wg, i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([][]T, len(chunks))
	fetched := 0
	var firstErr error
	for result := range results {
		if result.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("fetch chunk %d: %w", result.index, result.err)
				cancel()
			}
			continue
		}
		ordered[result.index] = result.items
		fetched++
	}

	if firstErr == nil && fetched < len(chunks) {
		err := ctx.Err()
		if err == nil {
			err = errors.New("chunks not fetched")
		}
		firstErr = fmt.Errorf("fetch %d of %d chunks: %w", fetched, len(chunks), err)
	}

	if firstErr != nil {
		log.Warn().
			Err(firstErr).
			Int("chunks", len(chunks)).
			Msg("Batch fetch failed")
		return nil, firstErr
	}

	out := make([]T, 0, len(ids))
	for _, items := range ordered {
		out = append(out, items...)
	}

	log.Debug().
		Int("ids", len(ids)).
		Int("items", len(out)).
		Dur("duration", time.Since(start)).
		Msg("Batch fetch complete")

	return out, nil
}

func (bf *BatchFetcher[T]) fetchChunk(ctx context.Context, ids []string) ([]T, error) {
	chunkCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	defer cancel()
	return bf.fetcher.FetchChunk(chunkCtx, ids)
}

// worker processes chunks from the queue
func (bf *BatchFetcher[T]) worker(ctx context.Context, chunks [][]string, queue <-chan int, results chan<- chunkResult[T], wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for index := range queue {
		select {
		case <-ctx.Done():
			log.Debug().
				Int("worker_id", workerID).
				Int("chunks_processed", processed).
				Msg("Worker stopping (context cancelled)")
			results <- chunkResult[T]{index: index, err: ctx.Err()}
			return
		default:
		}

		items, err := bf.fetchChunk(ctx, chunks[index])
		results <- chunkResult[T]{index: index, items: items, err: err}
		if err != nil {
			return
		}
		processed++
	}
}
