package signedurl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bitrel/media-api/internal/model"
	"bitrel/media-api/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGateway struct {
	calls    atomic.Int64
	ttl      time.Duration
	issueErr error
}

func (g *countingGateway) IssueUploadCredential(context.Context, string, model.MediaKind, string, string, int64) (*storage.UploadCredential, error) {
	return nil, errors.New("not implemented")
}

func (g *countingGateway) IssueDownloadCredential(_ context.Context, key string) (*storage.DownloadCredential, error) {
	n := g.calls.Add(1)
	if g.issueErr != nil {
		return nil, g.issueErr
	}

	ttl := g.ttl
	if ttl == 0 {
		ttl = time.Hour
	}

	return &storage.DownloadCredential{
		URL:       fmt.Sprintf("https://cdn.example/%s?sig=%d", key, n),
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

func (g *countingGateway) Delete(_ context.Context, keys []string) (deleted, failed []string) {
	return keys, nil
}

func TestResolveCachesWithinValidity(t *testing.T) {
	gw := &countingGateway{}
	c := New(gw, time.Second)
	defer c.Close()

	first, err := c.Resolve(context.Background(), "a/image/1.png")
	require.NoError(t, err)

	second, err := c.Resolve(context.Background(), "a/image/1.png")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), gw.calls.Load())
}

func TestResolveCoalescesConcurrentMisses(t *testing.T) {
	gw := &countingGateway{}
	c := New(gw, time.Second)
	defer c.Close()

	const n = 50
	urls := make([]string, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			url, err := c.Resolve(context.Background(), "a/video/1.mp4")
			require.NoError(t, err)
			urls[i] = url
		}()
	}
	wg.Wait()

	for _, u := range urls {
		assert.Equal(t, urls[0], u)
	}

	// A miss burst collapses to at most one issue per flight
	assert.LessOrEqual(t, gw.calls.Load(), int64(2))
}

func TestResolveDistinctKeysAreIndependent(t *testing.T) {
	gw := &countingGateway{}
	c := New(gw, time.Second)
	defer c.Close()

	a, err := c.Resolve(context.Background(), "key-a")
	require.NoError(t, err)

	b, err := c.Resolve(context.Background(), "key-b")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Equal(t, int64(2), gw.calls.Load())
}

func TestSafetyMarginSkipsCaching(t *testing.T) {
	// Credential expires in 10s but the margin is 30s, so it's usable
	// once and never cached
	gw := &countingGateway{ttl: 10 * time.Second}
	c := New(gw, 30*time.Second)
	defer c.Close()

	_, err := c.Resolve(context.Background(), "k")
	require.NoError(t, err)

	_, err = c.Resolve(context.Background(), "k")
	require.NoError(t, err)

	assert.Equal(t, int64(2), gw.calls.Load())
}

func TestForceRefreshReplacesEntry(t *testing.T) {
	gw := &countingGateway{}
	c := New(gw, time.Second)
	defer c.Close()

	old, err := c.Resolve(context.Background(), "k")
	require.NoError(t, err)

	fresh, err := c.ForceRefresh(context.Background(), "k")
	require.NoError(t, err)
	assert.NotEqual(t, old, fresh)

	// The fresh URL is now the cached one
	got, err := c.Resolve(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, fresh, got)
	assert.Equal(t, int64(2), gw.calls.Load())
}

// gatedGateway parks its first credential request until the gate opens
// so a refresh can overtake it
type gatedGateway struct {
	countingGateway
	first   atomic.Bool
	started chan struct{}
	gate    chan struct{}
}

func (g *gatedGateway) IssueDownloadCredential(ctx context.Context, key string) (*storage.DownloadCredential, error) {
	if g.first.CompareAndSwap(false, true) {
		close(g.started)
		<-g.gate
	}
	return g.countingGateway.IssueDownloadCredential(ctx, key)
}

func TestForceRefreshWinsOverResolveInFlight(t *testing.T) {
	gw := &gatedGateway{started: make(chan struct{}), gate: make(chan struct{})}
	c := New(gw, time.Second)
	defer c.Close()

	stale := make(chan string, 1)
	go func() {
		url, err := c.Resolve(context.Background(), "k")
		assert.NoError(t, err)
		stale <- url
	}()
	<-gw.started

	fresh, err := c.ForceRefresh(context.Background(), "k")
	require.NoError(t, err)

	close(gw.gate)
	overtaken := <-stale
	assert.NotEqual(t, fresh, overtaken)

	// The overtaken resolve must not have replaced the refreshed entry
	got, err := c.Resolve(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, fresh, got)
}

func TestResolveBatchSkipsFailures(t *testing.T) {
	gw := &countingGateway{}
	c := New(gw, time.Second)
	defer c.Close()

	_, err := c.Resolve(context.Background(), "good")
	require.NoError(t, err)

	gw.issueErr = errors.New("bucket down")

	got := c.ResolveBatch(context.Background(), []string{"good", "bad"})
	require.Len(t, got, 1)
	assert.Contains(t, got, "good")
}

func TestPurgeDropsEverything(t *testing.T) {
	gw := &countingGateway{}
	c := New(gw, time.Second)
	defer c.Close()

	_, err := c.Resolve(context.Background(), "k")
	require.NoError(t, err)

	c.Purge()

	_, err = c.Resolve(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, int64(2), gw.calls.Load())
}
