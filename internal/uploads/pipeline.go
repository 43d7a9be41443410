package uploads

import (
	"context"
	"net/http"
	"os"
	"time"

	"bitrel/media-api/internal/media"
	"bitrel/media-api/internal/model"
	"bitrel/media-api/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Confirmer persists a confirmed upload as an item of its aggregate.
// Implemented by the library's consistency layer
type Confirmer interface {
	AppendItem(ctx context.Context, aggregateID string, item model.Item) (*model.Aggregate, error)
}

// Pipeline drives a registered task through its three phases:
// credential, transfer, confirmation. Status flows exclusively through
// the coordinator
type Pipeline struct {
	Gateway storage.Gateway
	Library Confirmer
	Coord   *Coordinator
	Extract media.Extractor
	Client  *http.Client
}

func NewPipeline(gw storage.Gateway, lib Confirmer, coord *Coordinator, ex media.Extractor) *Pipeline {
	return &Pipeline{
		Gateway: gw,
		Library: lib,
		Coord:   coord,
		Extract: ex,
		Client:  &http.Client{},
	}
}

// Start kicks off the pipeline for a task whose file has been spooled
// to filePath. It returns immediately; the file is removed once the run
// finishes either way
func (p *Pipeline) Start(ctx context.Context, taskID, filePath string) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.Coord.bindCancel(taskID, cancel)

	go func() {
		defer cancel()
		defer os.Remove(filePath)
		p.run(runCtx, taskID, filePath)
	}()
}

func (p *Pipeline) run(ctx context.Context, taskID, filePath string) {
	t, err := p.Coord.Get(taskID)
	if err != nil {
		zap.L().Error("Pipeline started for unknown task", zap.String("task_id", taskID))
		return
	}

	if err := p.Coord.MarkStatus(taskID, StatusUploading, nil); err != nil {
		zap.L().Error("Failed to start task", zap.String("task_id", taskID), zap.Error(err))
		return
	}

	// Credential phase
	cred, err := p.Gateway.IssueUploadCredential(ctx, t.AggregateID, t.Kind, t.FileName, t.MimeType, t.Size)
	if err != nil {
		p.fail(taskID, &CredentialError{Err: err})
		return
	}

	p.Coord.SetStorageKey(taskID, cred.Key)

	// Transfer phase
	f, err := os.Open(filePath)
	if err != nil {
		p.fail(taskID, &TransportError{Reason: ReasonNetwork, Err: err})
		return
	}

	err = Put(ctx, p.Client, cred.UploadURL, f, t.Size, t.MimeType, func(uploaded int64, speed float64) {
		p.Coord.UpdateProgress(taskID, uploaded, speed)
	})
	f.Close()
	if err != nil {
		p.fail(taskID, err)
		return
	}

	// Metadata extraction is best-effort; the item's kind fields stay
	// empty when it fails
	var meta *media.Metadata
	if p.Extract != nil {
		meta, err = p.Extract.Extract(ctx, t.Kind, filePath)
		if err != nil {
			zap.L().Warn("Metadata extraction failed",
				zap.String("task_id", taskID),
				zap.String("file", t.FileName),
				zap.Error(err))
			meta = nil
		}
	}

	// Confirmation phase
	item := BuildItem(t, cred.Key, meta)

	if _, err := p.Library.AppendItem(ctx, t.AggregateID, item); err != nil {
		// The blob exists but the catalog doesn't know it. Logged with
		// the key so the orphan can be reconciled out-of-band
		confErr := &ConfirmationError{Key: cred.Key, Err: err}

		zap.L().Error("Orphaned storage object: metadata persist failed after upload",
			zap.String("task_id", taskID),
			zap.String("orphan_key", cred.Key),
			zap.String("aggregate_id", t.AggregateID),
			zap.Error(err))

		p.fail(taskID, confErr)
		return
	}

	if err := p.Coord.MarkStatus(taskID, StatusSuccess, nil); err != nil {
		zap.L().Warn("Could not mark task success", zap.String("task_id", taskID), zap.Error(err))
	}
}

func (p *Pipeline) fail(taskID string, cause error) {
	if err := p.Coord.MarkStatus(taskID, StatusError, cause); err != nil {
		zap.L().Warn("Could not mark task error",
			zap.String("task_id", taskID),
			zap.NamedError("cause", cause),
			zap.Error(err))
	}
}

// BuildItem assembles the item for the confirmation phase, filling the
// kind-specific payload from whatever extraction produced
func BuildItem(t View, key string, meta *media.Metadata) model.Item {
	item := model.Item{
		ID:   uuid.NewString(),
		Name: t.FileName,
		Kind: t.Kind,
		Ref: model.StorageRef{
			Key:      key,
			MimeType: t.MimeType,
			Size:     t.Size,
		},
		UploadedAt: time.Now().Unix(),
	}

	switch t.Kind {
	case model.KindImage:
		item.Image = &model.ImageMeta{}
		if meta != nil {
			item.Image.Width = meta.Width
			item.Image.Height = meta.Height
		}
	case model.KindAudio:
		item.Audio = &model.AudioMeta{}
		if meta != nil {
			item.Audio.Duration = meta.Duration
		}
	case model.KindVideo:
		item.Video = &model.VideoMeta{}
		if meta != nil {
			item.Video.Width = meta.Width
			item.Video.Height = meta.Height
			item.Video.Duration = meta.Duration
		}
	case model.KindCode:
		item.Code = &model.CodeMeta{Path: t.FileName, Language: media.LanguageForPath(t.FileName)}
	}

	return item
}
