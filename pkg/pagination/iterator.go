package pagination

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/Sternrassler/gphotos-client/pkg/logging"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for paginated runs.
var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gphotos_pages_fetched_total",
		Help: "Total number of pages fetched by paginated runs",
	}, []string{"name"})

	itemsYieldedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gphotos_items_yielded_total",
		Help: "Total number of decoded items handed to consumers",
	}, []string{"name"})
)

type options struct {
	budget    int
	budgetSet bool
	cursor    *PageCursor
	prefetch  int
	logger    zerolog.Logger
	name      string
}

// Option configures a pagination run.
type Option func(*options)

// WithBudget caps the number of page fetches of one run. n must be positive.
func WithBudget(n int) Option {
	return func(o *options) {
		o.budget = n
		o.budgetSet = true
	}
}

// WithStartToken starts the run at a continuation token instead of the
// first page.
func WithStartToken(token string) Option {
	return func(o *options) {
		o.cursor = &PageCursor{Token: token, Remaining: Unbounded}
	}
}

// WithCursor resumes a run from a saved cursor, including its remaining
// budget. A later WithBudget overrides the saved budget.
func WithCursor(c PageCursor) Option {
	return func(o *options) {
		o.cursor = &c
	}
}

// WithPrefetch walks pages on a background goroutine, keeping at most depth
// fetched pages ahead of the consumer.
func WithPrefetch(depth int) Option {
	return func(o *options) {
		o.prefetch = depth
		if depth <= 0 {
			o.prefetch = -1
		}
	}
}

// WithLogger sets the logger for the run.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithName labels the run in logs and metrics.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// source produces pages of raw records and decodes them on demand.
type source[T any] interface {
	// fill loads the next page and returns its item count.
	// It returns ErrDone when no further page may be fetched.
	fill(ctx context.Context) (int, error)
	item(i int) (T, error)
	cursor() PageCursor
	pages() int
	close()
}

// Iterator is a lazy, single-pass sequence of decoded items. Pages are only
// fetched when the consumer asks for an item beyond the current page.
// An Iterator must not be used from more than one goroutine.
type Iterator[T any] struct {
	src     source[T]
	pos     int
	n       int
	yielded int
	err     error
	name    string
	logger  zerolog.Logger
}

// SearchAll returns an Iterator over every item reachable from fetcher,
// following continuation tokens until they run out or the budget is spent.
// Configuration errors are reported before any page is fetched.
func SearchAll[R, T any](fetcher PageFetcher[R], decode Decoder[R, T], opts ...Option) (*Iterator[T], error) {
	if fetcher == nil {
		return nil, fmt.Errorf("%w: page fetcher is required", ErrInvalidArgument)
	}
	if decode == nil {
		return nil, fmt.Errorf("%w: decoder is required", ErrInvalidArgument)
	}

	o := options{
		budget: Unbounded,
		logger: logging.For(logging.ComponentPagination),
		name:   "search",
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.budgetSet && o.budget <= 0 {
		return nil, fmt.Errorf("%w: invocation budget must be positive (got %d)", ErrInvalidArgument, o.budget)
	}
	if o.prefetch < 0 {
		return nil, fmt.Errorf("%w: prefetch depth must be positive", ErrInvalidArgument)
	}

	start := NewCursor(o.budget)
	if o.cursor != nil {
		if err := o.cursor.Validate(); err != nil {
			return nil, err
		}
		start = *o.cursor
		if o.budgetSet {
			start.Remaining = o.budget
		}
	}

	logger := logging.Run(o.logger, uuid.NewString(), o.name)

	var src source[T]
	if o.prefetch > 0 {
		src = newPrefetchSource(fetcher, decode, start, o.prefetch, o.name, logger)
	} else {
		src = &syncSource[R, T]{
			fetcher: fetcher,
			decode:  decode,
			cur:     start,
			name:    o.name,
			logger:  logger,
		}
	}

	return &Iterator[T]{
		src:    src,
		name:   o.name,
		logger: logger,
	}, nil
}

// Next returns the next item. It returns ErrDone once the sequence has ended,
// and keeps returning ErrDone afterwards without fetching again. A page fetch
// failure is returned unchanged by the call that needed the page; the
// iterator is finished after it. A prefetch run consumed through Next must be
// closed with Close if it is abandoned before ErrDone.
func (it *Iterator[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if it.err != nil {
		return zero, it.err
	}

	for it.pos >= it.n {
		n, err := it.src.fill(ctx)
		if err != nil {
			it.finish(err)
			return zero, err
		}
		it.pos, it.n = 0, n
	}

	v, err := it.src.item(it.pos)
	it.pos++
	if err != nil {
		it.finish(err)
		return zero, err
	}

	it.yielded++
	itemsYieldedTotal.WithLabelValues(it.name).Inc()
	return v, nil
}

// All returns a range-over-func view of the remaining items. It drains the
// same iterator, so ranging twice yields nothing the second time. A failure
// is yielded once as the final element. Breaking out of the loop closes the
// iterator.
func (it *Iterator[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			v, err := it.Next(ctx)
			if errors.Is(err, ErrDone) {
				return
			}
			if err != nil {
				yield(v, err)
				return
			}
			if !yield(v, nil) {
				it.Close()
				return
			}
		}
	}
}

// Collect drains the iterator into a slice. Items delivered before a failure
// are returned together with the error.
func (it *Iterator[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T
	for v, err := range it.All(ctx) {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Cursor returns the position after the last page handed to the consumer.
// Saving it and passing it to WithCursor later resumes the walk at the next
// page; items of the current page that were not consumed yet are not replayed.
func (it *Iterator[T]) Cursor() PageCursor {
	return it.src.cursor()
}

// Pages returns the number of pages fetched so far.
func (it *Iterator[T]) Pages() int {
	return it.src.pages()
}

// Yielded returns the number of items handed to the consumer.
func (it *Iterator[T]) Yielded() int {
	return it.yielded
}

// Close ends the run early and releases any background fetcher.
func (it *Iterator[T]) Close() {
	if it.err == nil {
		it.finish(ErrDone)
	}
}

func (it *Iterator[T]) finish(err error) {
	it.err = err
	it.src.close()

	event := it.logger.Debug()
	if !errors.Is(err, ErrDone) {
		event = it.logger.Warn().Err(err)
	}
	event.
		Int("pages", it.src.pages()).
		Int("items", it.yielded).
		Msg("Pagination finished")
}

// syncSource fetches pages on the consumer's goroutine.
type syncSource[R, T any] struct {
	fetcher PageFetcher[R]
	decode  Decoder[R, T]
	cur     PageCursor
	raw     []R
	fetched int
	name    string
	logger  zerolog.Logger
}

func (s *syncSource[R, T]) fill(ctx context.Context) (int, error) {
	if !s.cur.HasMore() {
		return 0, ErrDone
	}

	page, err := s.fetcher.FetchPage(ctx, s.cur.Token)
	if err != nil {
		return 0, err
	}

	s.cur.Advance(page.NextToken)
	s.raw = page.Items
	s.fetched++
	pagesFetchedTotal.WithLabelValues(s.name).Inc()

	s.logger.Debug().
		Int("page", s.fetched).
		Int("items", len(page.Items)).
		Bool("has_next", page.NextToken != "").
		Int(logging.FieldRemainingBudget, s.cur.Remaining).
		Msg("Fetched page")

	return len(page.Items), nil
}

func (s *syncSource[R, T]) item(i int) (T, error) {
	return s.decode(s.raw[i])
}

func (s *syncSource[R, T]) cursor() PageCursor {
	return s.cur
}

func (s *syncSource[R, T]) pages() int {
	return s.fetched
}

func (s *syncSource[R, T]) close() {
	s.raw = nil
}
