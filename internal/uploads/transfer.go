package uploads

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// ProgressFunc receives cumulative uploaded bytes and a smoothed
// bytes-per-second estimate
type ProgressFunc func(uploadedBytes int64, speedBps float64)

const (
	// Smoothing factor of the speed EMA. Raw per-read deltas are far
	// too jittery to show
	speedAlpha = 0.3

	progressEvery = 100 * time.Millisecond
)

// speedMeter keeps an exponential moving average of the transfer rate
type speedMeter struct {
	ema       float64
	lastBytes int64
	lastAt    time.Time
}

func (m *speedMeter) sample(totalBytes int64, now time.Time) float64 {
	if m.lastAt.IsZero() {
		m.lastBytes = totalBytes
		m.lastAt = now
		return 0
	}

	dt := now.Sub(m.lastAt).Seconds()
	if dt <= 0 {
		return m.ema
	}

	instant := float64(totalBytes-m.lastBytes) / dt
	if m.ema == 0 {
		m.ema = instant
	} else {
		m.ema = speedAlpha*instant + (1-speedAlpha)*m.ema
	}

	m.lastBytes = totalBytes
	m.lastAt = now

	return m.ema
}

// progressReader counts bytes flowing through it and reports them,
// throttled so a fast transfer doesn't flood the registry lock
type progressReader struct {
	r     io.Reader
	total int64
	meter speedMeter
	cb    ProgressFunc
	last  time.Time
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.total += int64(n)

		now := time.Now()
		if now.Sub(p.last) >= progressEvery || err == io.EOF {
			p.cb(p.total, p.meter.sample(p.total, now))
			p.last = now
		}
	}

	if err == io.EOF && p.total > 0 {
		p.cb(p.total, p.meter.sample(p.total, time.Now()))
	}

	return n, err
}

// Put streams the body to a presigned URL with the storage service's
// native PUT semantics, reporting incremental progress. The error, if
// any, is always a *TransportError
func Put(ctx context.Context, client *http.Client, url string, body io.Reader, size int64, mimeType string, cb ProgressFunc) error {
	if client == nil {
		client = http.DefaultClient
	}
	if cb == nil {
		cb = func(int64, float64) {}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, &progressReader{r: body, cb: cb})
	if err != nil {
		return &TransportError{Reason: ReasonNetwork, Err: err}
	}

	req.ContentLength = size
	req.Header.Set("Content-Type", mimeType)

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			return &TransportError{Reason: ReasonCanceled, Err: err}
		}

		return &TransportError{Reason: ReasonNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{Reason: ReasonStatus, Status: resp.StatusCode}
	}

	return nil
}
