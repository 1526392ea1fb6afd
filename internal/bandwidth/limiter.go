package bandwidth

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/time/rate"

	"github.com/substantialcattle5/stillsuit/util"
)

// Limiter caps read throughput with a token bucket. A nil *Limiter does not limit.
type Limiter struct {
	rateLimiter *rate.Limiter
	limit       string // Original limit string for display purposes
}

// NewLimiter creates a limiter from a bytes-per-second string such as "10M" or "500K".
// An empty string disables limiting and returns nil.
func NewLimiter(limitStr string) (*Limiter, error) {
	if limitStr == "" {
		return nil, nil
	}

	bytesPerSecond, err := util.ParseSize(limitStr)
	if err != nil {
		return nil, fmt.Errorf("invalid read limit '%s': %w", limitStr, err)
	}
	if bytesPerSecond <= 0 {
		return nil, fmt.Errorf("read limit must be positive, got %d bytes/second", bytesPerSecond)
	}

	// Burst of one second of data, at least 1KB
	burst := int(bytesPerSecond)
	if burst < 1024 {
		burst = 1024
	}

	return &Limiter{
		rateLimiter: rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
		limit:       limitStr,
	}, nil
}

// WaitN blocks until n bytes may be transferred. n larger than the burst is split.
func (l *Limiter) WaitN(ctx context.Context, n int) error {
	if l == nil || l.rateLimiter == nil {
		return nil
	}
	burst := l.rateLimiter.Burst()
	for n > 0 {
		step := n
		if step > burst {
			step = burst
		}
		if err := l.rateLimiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}

// Reader wraps r so every read is charged against the limiter.
func (l *Limiter) Reader(ctx context.Context, r io.Reader) io.Reader {
	if l == nil {
		return r
	}
	return &limitedReader{ctx: ctx, r: r, l: l}
}

// Limit returns the original limit string
func (l *Limiter) Limit() string {
	if l == nil {
		return ""
	}
	return l.limit
}

type limitedReader struct {
	ctx context.Context
	r   io.Reader
	l   *Limiter
}

func (lr *limitedReader) Read(p []byte) (int, error) {
	if burst := lr.l.rateLimiter.Burst(); len(p) > burst {
		p = p[:burst]
	}
	n, err := lr.r.Read(p)
	if n > 0 {
		if werr := lr.l.WaitN(lr.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
