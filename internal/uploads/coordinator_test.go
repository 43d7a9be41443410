package uploads

import (
	"testing"
	"time"

	"bitrel/media-api/internal/media"
	"bitrel/media-api/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()

	c := NewCoordinator(50 * time.Millisecond)
	t.Cleanup(c.Close)
	return c
}

func validSpec() TaskSpec {
	return TaskSpec{
		AggregateID: "agg-1",
		UserID:      "user-1",
		FileName:    "clip.mp4",
		Kind:        model.KindVideo,
		MimeType:    "video/mp4",
		Size:        1 << 20,
	}
}

func TestAddRejectsInvalidSpecs(t *testing.T) {
	c := newTestCoordinator(t)

	tests := []struct {
		name   string
		mutate func(*TaskSpec)
		reason error
	}{
		{"no file name", func(s *TaskSpec) { s.FileName = "" }, media.ErrNoFile},
		{"empty file", func(s *TaskSpec) { s.Size = 0 }, media.ErrNoFile},
		{"over size cap", func(s *TaskSpec) { s.Size = 2 << 30 }, media.ErrFileTooLarge},
		{"wrong mime for kind", func(s *TaskSpec) { s.MimeType = "image/png" }, media.ErrFileTypeUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec()
			tt.mutate(&spec)

			_, err := c.Add(spec)
			require.ErrorIs(t, err, tt.reason)
		})
	}

	assert.Empty(t, c.ListForOwner("agg-1"))
}

func TestStatusTransitions(t *testing.T) {
	c := newTestCoordinator(t)

	id, err := c.Add(validSpec())
	require.NoError(t, err)

	// pending can't jump straight to a terminal state
	require.Error(t, c.MarkStatus(id, StatusSuccess, nil))
	require.Error(t, c.MarkStatus(id, StatusError, nil))

	require.NoError(t, c.MarkStatus(id, StatusUploading, nil))

	// no going back
	require.Error(t, c.MarkStatus(id, StatusPending, nil))

	require.NoError(t, c.MarkStatus(id, StatusError, &TransportError{Reason: ReasonNetwork}))

	// terminal states are final
	require.Error(t, c.MarkStatus(id, StatusUploading, nil))
	require.Error(t, c.MarkStatus(id, StatusSuccess, nil))

	v, err := c.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusError, v.Status)
	assert.NotEmpty(t, v.Error)
}

func TestProgressIsMonotonic(t *testing.T) {
	c := newTestCoordinator(t)

	id, err := c.Add(validSpec())
	require.NoError(t, err)
	require.NoError(t, c.MarkStatus(id, StatusUploading, nil))

	require.NoError(t, c.UpdateProgress(id, 512<<10, 1000))

	v, _ := c.Get(id)
	assert.InDelta(t, 50.0, v.Progress, 0.01)

	// A stale report must not move the bar backwards
	require.NoError(t, c.UpdateProgress(id, 100, 1000))

	v, _ = c.Get(id)
	assert.Equal(t, int64(512<<10), v.UploadedBytes)
	assert.InDelta(t, 50.0, v.Progress, 0.01)
}

func TestProgressCapsAtHundred(t *testing.T) {
	c := newTestCoordinator(t)

	id, err := c.Add(validSpec())
	require.NoError(t, err)
	require.NoError(t, c.MarkStatus(id, StatusUploading, nil))

	// Multipart overhead can push reported bytes past the file size
	require.NoError(t, c.UpdateProgress(id, 2<<20, 1000))

	v, _ := c.Get(id)
	assert.Equal(t, 100.0, v.Progress)
}

func TestSimulatedProgressNeverCompletes(t *testing.T) {
	c := newTestCoordinator(t)

	id, err := c.Add(validSpec())
	require.NoError(t, err)
	require.NoError(t, c.MarkStatus(id, StatusUploading, nil))

	time.Sleep(700 * time.Millisecond)

	v, err := c.Get(id)
	require.NoError(t, err)
	assert.Greater(t, v.Progress, 0.0)
	assert.Less(t, v.Progress, 100.0)
}

func TestRealProgressRetiresSimulation(t *testing.T) {
	c := newTestCoordinator(t)

	id, err := c.Add(validSpec())
	require.NoError(t, err)
	require.NoError(t, c.MarkStatus(id, StatusUploading, nil))

	time.Sleep(700 * time.Millisecond)

	sim, _ := c.Get(id)
	require.Greater(t, sim.Progress, 10.0)

	// Real bytes arrive, and they say we're only at 10%
	require.NoError(t, c.UpdateProgress(id, 104858, 1000))

	v, _ := c.Get(id)
	assert.InDelta(t, 10.0, v.Progress, 0.1)
}

func TestSuccessfulTaskIsAutoRemoved(t *testing.T) {
	c := newTestCoordinator(t)

	id, err := c.Add(validSpec())
	require.NoError(t, err)
	require.NoError(t, c.MarkStatus(id, StatusUploading, nil))
	require.NoError(t, c.MarkStatus(id, StatusSuccess, nil))

	_, err = c.Get(id)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := c.Get(id)
		return err == ErrTaskNotFound
	}, time.Second, 10*time.Millisecond)
}

func TestFailedTaskStaysUntilDismissed(t *testing.T) {
	c := newTestCoordinator(t)

	id, err := c.Add(validSpec())
	require.NoError(t, err)
	require.NoError(t, c.MarkStatus(id, StatusUploading, nil))
	require.NoError(t, c.MarkStatus(id, StatusError, &CredentialError{Err: assert.AnError}))

	time.Sleep(150 * time.Millisecond)

	v, err := c.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusError, v.Status)

	require.NoError(t, c.Dismiss(id))

	_, err = c.Get(id)
	require.ErrorIs(t, err, ErrTaskNotFound)
}

func TestDismissFailsBrowserTaskWithoutCancel(t *testing.T) {
	c := newTestCoordinator(t)

	// Direct-upload tasks never get a server-side cancel bound; the
	// first dismiss must still land them somewhere removable
	id, err := c.Add(validSpec())
	require.NoError(t, err)
	require.NoError(t, c.MarkStatus(id, StatusUploading, nil))

	require.NoError(t, c.Dismiss(id))

	v, err := c.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusError, v.Status)
	assert.Equal(t, "upload canceled", v.Error)

	require.NoError(t, c.Dismiss(id))

	_, err = c.Get(id)
	require.ErrorIs(t, err, ErrTaskNotFound)
}

func TestDismissFailsPendingTaskWithoutCancel(t *testing.T) {
	c := newTestCoordinator(t)

	id, err := c.Add(validSpec())
	require.NoError(t, err)

	require.NoError(t, c.Dismiss(id))

	v, err := c.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusError, v.Status)
	assert.Equal(t, 1, c.SweepTerminal(0))
}

func TestCancelFailsBrowserTaskWithoutCancel(t *testing.T) {
	c := newTestCoordinator(t)

	id, err := c.Add(validSpec())
	require.NoError(t, err)
	require.NoError(t, c.MarkStatus(id, StatusUploading, nil))

	require.NoError(t, c.Cancel(id))

	v, err := c.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusError, v.Status)
	assert.Equal(t, "upload canceled", v.Error)
}

func TestCancelRejectsFinishedTasks(t *testing.T) {
	c := newTestCoordinator(t)

	id, err := c.Add(validSpec())
	require.NoError(t, err)
	require.NoError(t, c.MarkStatus(id, StatusUploading, nil))
	require.NoError(t, c.MarkStatus(id, StatusError, nil))

	require.Error(t, c.Cancel(id))
}

func TestListForOwnerIsOldestFirst(t *testing.T) {
	c := newTestCoordinator(t)

	spec := validSpec()
	var ids []string
	for i := 0; i < 3; i++ {
		id, err := c.Add(spec)
		require.NoError(t, err)
		ids = append(ids, id)
		time.Sleep(5 * time.Millisecond)
	}

	other := validSpec()
	other.AggregateID = "agg-2"
	_, err := c.Add(other)
	require.NoError(t, err)

	got := c.ListForOwner("agg-1")
	require.Len(t, got, 3)
	for i, v := range got {
		assert.Equal(t, ids[i], v.ID)
		assert.Equal(t, "agg-1", v.AggregateID)
	}
}

func TestSweepTerminal(t *testing.T) {
	c := NewCoordinator(time.Hour) // keep the auto-removal timer out of the way
	defer c.Close()

	id, err := c.Add(validSpec())
	require.NoError(t, err)
	require.NoError(t, c.MarkStatus(id, StatusUploading, nil))
	require.NoError(t, c.MarkStatus(id, StatusError, nil))

	running, err := c.Add(validSpec())
	require.NoError(t, err)
	require.NoError(t, c.MarkStatus(running, StatusUploading, nil))

	assert.Equal(t, 1, c.SweepTerminal(0))

	_, err = c.Get(id)
	require.ErrorIs(t, err, ErrTaskNotFound)

	_, err = c.Get(running)
	require.NoError(t, err)
}

func TestClosedCoordinatorRejectsAdds(t *testing.T) {
	c := NewCoordinator(0)
	c.Close()

	_, err := c.Add(validSpec())
	require.ErrorIs(t, err, ErrClosed)
}
