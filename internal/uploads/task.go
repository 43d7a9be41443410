// Package uploads holds the session-scoped upload task registry and
// the pipeline that drives each task through its three phases
package uploads

import (
	"context"
	"time"

	"bitrel/media-api/internal/model"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
)

func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// The only legal transitions. Everything else is rejected without
// touching the task
var transitions = map[Status][]Status{
	StatusPending:   {StatusUploading},
	StatusUploading: {StatusSuccess, StatusError},
}

// TaskSpec is what a caller provides when registering an upload
type TaskSpec struct {
	AggregateID string
	UserID      string
	FileName    string
	Kind        model.MediaKind
	MimeType    string
	Size        int64
}

// task is the registry's internal record. All access goes through the
// coordinator's lock
type task struct {
	ID          string
	AggregateID string
	UserID      string
	FileName    string
	Kind        model.MediaKind
	MimeType    string
	Size        int64

	Status     Status
	StorageKey string
	Error      string

	// Real progress, reported by the transfer driver or the browser.
	// UploadedBytes is monotonic
	UploadedBytes int64
	RealPercent   float64
	SpeedBps      float64

	// Cosmetic progress shown before real events arrive. Never allowed
	// to reach 100 on its own and retired once RealPercent moves
	SimPercent float64

	CreatedAt time.Time

	cancel context.CancelFunc
}

// progress merges the two progress sources: never report less than the
// maximum of simulated and real, and never let the simulation run ahead
// once real events have started
func (t *task) progress() float64 {
	if t.Status == StatusSuccess {
		return 100
	}

	if t.UploadedBytes > 0 {
		return t.RealPercent
	}

	if t.SimPercent > t.RealPercent {
		return t.SimPercent
	}
	return t.RealPercent
}

// View is the immutable snapshot handed to the UI layer
type View struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	FileName      string          `json:"file_name"`
	Kind          model.MediaKind `json:"kind"`
	MimeType      string          `json:"mime_type"`
	Size          int64           `json:"size"`
	Status        Status          `json:"status"`
	StorageKey    string          `json:"storage_key,omitempty"`
	Progress      float64         `json:"progress"`
	UploadedBytes int64           `json:"uploaded_bytes"`
	SpeedBps      float64         `json:"speed_bps"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     int64           `json:"created_at"`
}

func (t *task) view() View {
	return View{
		ID:            t.ID,
		AggregateID:   t.AggregateID,
		FileName:      t.FileName,
		Kind:          t.Kind,
		MimeType:      t.MimeType,
		Size:          t.Size,
		Status:        t.Status,
		StorageKey:    t.StorageKey,
		Progress:      t.progress(),
		UploadedBytes: t.UploadedBytes,
		SpeedBps:      t.SpeedBps,
		Error:         t.Error,
		CreatedAt:     t.CreatedAt.Unix(),
	}
}
