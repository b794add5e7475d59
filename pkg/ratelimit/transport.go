package ratelimit

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"
)

// Transport is an http.RoundTripper that paces every request through a
// Throttler before handing it to the underlying transport.
type Transport struct {
	base      http.RoundTripper
	throttler *Throttler
}

// NewTransport wraps base (http.DefaultTransport when nil) with t.
func NewTransport(base http.RoundTripper, t *Throttler) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		base:      base,
		throttler: t,
	}
}

// RoundTrip implements http.RoundTripper.
func (tr *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := tr.throttler.Do(req.Context(), func() error {
		var err error
		resp, err = tr.base.RoundTrip(req)
		return err
	})
	return resp, err
}

// maxBurst caps the token bucket burst so short reads do not drain a whole
// second of budget at once.
const maxBurst = 64 * 1024

// BandwidthReader limits the throughput of an upload body.
type BandwidthReader struct {
	ctx     context.Context
	reader  io.Reader
	limiter *rate.Limiter
}

// NewBandwidthReader returns r limited to bytesPerSecond. Zero disables the
// limit and returns r unchanged.
func NewBandwidthReader(ctx context.Context, r io.Reader, bytesPerSecond int) (io.Reader, error) {
	if bytesPerSecond < 0 {
		return nil, fmt.Errorf("%w: bytes per second must be >= 0 (got %d)", ErrInvalidConfiguration, bytesPerSecond)
	}
	if bytesPerSecond == 0 {
		return r, nil
	}

	burst := bytesPerSecond / 10
	if burst > maxBurst {
		burst = maxBurst
	}
	if burst < 1 {
		burst = 1
	}

	return &BandwidthReader{
		ctx:     ctx,
		reader:  r,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
	}, nil
}

// Read implements io.Reader.
func (r *BandwidthReader) Read(p []byte) (int, error) {
	if len(p) > r.limiter.Burst() {
		p = p[:r.limiter.Burst()]
	}

	n, err := r.reader.Read(p)
	if n > 0 {
		if werr := r.limiter.WaitN(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

// Close closes the underlying reader when it is an io.Closer.
func (r *BandwidthReader) Close() error {
	if closer, ok := r.reader.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
