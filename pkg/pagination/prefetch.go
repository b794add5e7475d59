package pagination

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// prefetched is one hand-off from the producer to the consumer.
type prefetched[R any] struct {
	items  []R
	cursor PageCursor
	err    error
}

// prefetchSource walks pages on a background goroutine into a channel of
// depth pages. The channel bound blocks the producer once it is depth pages
// ahead; pages and failures reach the consumer in fetch order.
type prefetchSource[R, T any] struct {
	fetcher PageFetcher[R]
	decode  Decoder[R, T]
	depth   int
	name    string
	logger  zerolog.Logger

	start   PageCursor
	cur     PageCursor
	raw     []R
	fetched int

	once   sync.Once
	ch     chan prefetched[R]
	cancel context.CancelFunc
}

func newPrefetchSource[R, T any](fetcher PageFetcher[R], decode Decoder[R, T], start PageCursor, depth int, name string, logger zerolog.Logger) *prefetchSource[R, T] {
	return &prefetchSource[R, T]{
		fetcher: fetcher,
		decode:  decode,
		depth:   depth,
		name:    name,
		logger:  logger,
		start:   start,
		cur:     start,
		cancel:  func() {},
	}
}

// run starts the producer. It keeps the values of ctx but not its deadline,
// so a short per-call timeout on Next does not stop the walk; close does.
func (s *prefetchSource[R, T]) run(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.ch = make(chan prefetched[R], s.depth)

	go func() {
		defer close(s.ch)

		cur := s.start
		for cur.HasMore() {
			page, err := s.fetcher.FetchPage(ctx, cur.Token)
			if err != nil {
				s.send(ctx, prefetched[R]{err: err})
				return
			}

			cur.Advance(page.NextToken)
			pagesFetchedTotal.WithLabelValues(s.name).Inc()

			if !s.send(ctx, prefetched[R]{items: page.Items, cursor: cur}) {
				s.logger.Debug().Msg("Prefetch stopped by consumer")
				return
			}
		}
	}()
}

func (s *prefetchSource[R, T]) send(ctx context.Context, msg prefetched[R]) bool {
	select {
	case s.ch <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *prefetchSource[R, T]) fill(ctx context.Context) (int, error) {
	s.once.Do(func() { s.run(ctx) })

	select {
	case msg, ok := <-s.ch:
		if !ok {
			return 0, ErrDone
		}
		if msg.err != nil {
			return 0, msg.err
		}

		s.cur = msg.cursor
		s.raw = msg.items
		s.fetched++

		s.logger.Debug().
			Int("page", s.fetched).
			Int("items", len(msg.items)).
			Int("buffered", len(s.ch)).
			Msg("Consumed prefetched page")

		return len(msg.items), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (s *prefetchSource[R, T]) item(i int) (T, error) {
	return s.decode(s.raw[i])
}

func (s *prefetchSource[R, T]) cursor() PageCursor {
	return s.cur
}

func (s *prefetchSource[R, T]) pages() int {
	return s.fetched
}

func (s *prefetchSource[R, T]) close() {
	s.cancel()
	s.raw = nil
}
