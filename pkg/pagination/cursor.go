package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrDone is returned by Iterator.Next once the sequence is exhausted.
	ErrDone = errors.New("no more items in iterator")

	// ErrInvalidArgument is returned when a run is configured with an unusable
	// setting, such as a non-positive invocation budget.
	ErrInvalidArgument = errors.New("invalid pagination argument")
)

// Unbounded marks a cursor without an invocation budget.
const Unbounded = -1

// Page is the result of a single page fetch.
type Page[R any] struct {
	// Items holds the raw records in the order the server returned them.
	Items []R

	// NextToken is the continuation token for the following page.
	// Empty means there are no further pages.
	NextToken string
}

// PageFetcher performs exactly one page request. An empty token requests the
// first page.
type PageFetcher[R any] interface {
	FetchPage(ctx context.Context, token string) (Page[R], error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc[R any] func(ctx context.Context, token string) (Page[R], error)

// FetchPage implements PageFetcher.
func (f PageFetcherFunc[R]) FetchPage(ctx context.Context, token string) (Page[R], error) {
	return f(ctx, token)
}

// Decoder turns a raw record into the item type handed to the consumer.
type Decoder[R, T any] func(R) (T, error)

// Identity is a Decoder that yields raw records unchanged.
func Identity[R any](r R) (R, error) {
	return r, nil
}

// DecodeJSON returns a Decoder unmarshalling JSON records into T.
func DecodeJSON[T any]() Decoder[json.RawMessage, T] {
	return func(raw json.RawMessage) (T, error) {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return v, fmt.Errorf("decode record: %w", err)
		}
		return v, nil
	}
}

// PageCursor tracks the position of one pagination run.
type PageCursor struct {
	// Token is the continuation token of the next page to fetch.
	Token string `json:"token,omitempty"`

	// Remaining is the number of page fetches still permitted, or Unbounded.
	Remaining int `json:"remaining"`

	// Done is set once a page came back without a continuation token.
	Done bool `json:"done"`
}

// NewCursor returns a cursor positioned before the first page.
func NewCursor(budget int) PageCursor {
	return PageCursor{Remaining: budget}
}

// HasMore reports whether another page fetch is permitted.
func (c PageCursor) HasMore() bool {
	return !c.Done && c.Remaining != 0
}

// Advance consumes one unit of budget and moves to next.
func (c *PageCursor) Advance(next string) {
	if c.Remaining > 0 {
		c.Remaining--
	}
	c.Token = next
	c.Done = next == ""
}

// Validate checks that the cursor can seed a run.
func (c PageCursor) Validate() error {
	if c.Remaining < Unbounded {
		return fmt.Errorf("%w: remaining budget must be >= 0 or Unbounded (got %d)", ErrInvalidArgument, c.Remaining)
	}
	return nil
}
