package uploads

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutStreamsBodyAndReportsProgress(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 256<<10)

	var received []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "video/mp4", r.Header.Get("Content-Type"))

		var err error
		received, err = io.ReadAll(r.Body)
		require.NoError(t, err)
	}))
	defer srv.Close()

	var last atomic.Int64
	err := Put(context.Background(), srv.Client(), srv.URL, bytes.NewReader(payload), int64(len(payload)), "video/mp4", func(n int64, _ float64) {
		last.Store(n)
	})
	require.NoError(t, err)

	assert.Equal(t, payload, received)
	assert.Equal(t, int64(len(payload)), last.Load())
}

func TestPutRejectingStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := Put(context.Background(), srv.Client(), srv.URL, strings.NewReader("data"), 4, "text/plain", nil)

	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, ReasonStatus, tErr.Reason)
	assert.Equal(t, http.StatusForbidden, tErr.Status)
}

func TestPutCanceled(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Put(ctx, srv.Client(), srv.URL, strings.NewReader("data"), 4, "text/plain", nil)

	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, ReasonCanceled, tErr.Reason)
}

func TestPutNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	err := Put(context.Background(), http.DefaultClient, srv.URL, strings.NewReader("data"), 4, "text/plain", nil)

	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, ReasonNetwork, tErr.Reason)
	assert.False(t, errors.Is(err, context.Canceled))
}
