package uploads

import (
	"time"

	"bitrel/media-api/internal/model"
)

// TaskSnapshot is the serializable form of one task, used by the
// optional snapshot/restore pair so a session can survive a reload
type TaskSnapshot struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	UserID        string          `json:"user_id"`
	FileName      string          `json:"file_name"`
	Kind          model.MediaKind `json:"kind"`
	MimeType      string          `json:"mime_type"`
	Size          int64           `json:"size"`
	Status        Status          `json:"status"`
	StorageKey    string          `json:"storage_key,omitempty"`
	UploadedBytes int64           `json:"uploaded_bytes"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     int64           `json:"created_at"`
}

// Snapshot captures every task currently in the registry
func (c *Coordinator) Snapshot() []TaskSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]TaskSnapshot, 0, len(c.tasks))
	for _, t := range c.tasks {
		out = append(out, TaskSnapshot{
			ID:            t.ID,
			AggregateID:   t.AggregateID,
			UserID:        t.UserID,
			FileName:      t.FileName,
			Kind:          t.Kind,
			MimeType:      t.MimeType,
			Size:          t.Size,
			Status:        t.Status,
			StorageKey:    t.StorageKey,
			UploadedBytes: t.UploadedBytes,
			Error:         t.Error,
			CreatedAt:     t.CreatedAt.Unix(),
		})
	}

	return out
}

// Restore loads a snapshot into an empty registry. Tasks that were
// mid-transfer cannot be trusted to resume their byte stream, so every
// non-terminal task comes back as an error instead
func (c *Coordinator) Restore(snaps []TaskSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range snaps {
		status := s.Status
		errMsg := s.Error

		if !status.Terminal() {
			status = StatusError
			errMsg = "upload interrupted by restart"
		}

		t := &task{
			ID:            s.ID,
			AggregateID:   s.AggregateID,
			UserID:        s.UserID,
			FileName:      s.FileName,
			Kind:          s.Kind,
			MimeType:      s.MimeType,
			Size:          s.Size,
			Status:        status,
			StorageKey:    s.StorageKey,
			UploadedBytes: s.UploadedBytes,
			Error:         errMsg,
			CreatedAt:     time.Unix(s.CreatedAt, 0),
		}

		if t.Size > 0 {
			t.RealPercent = float64(t.UploadedBytes) / float64(t.Size) * 100
		}

		if status == StatusSuccess {
			c.scheduleRemovalLocked(s.ID)
		}

		c.tasks[s.ID] = t
	}
}
