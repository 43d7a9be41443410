// Package media defines the per-kind upload policies shared by every
// upload path: size caps, accepted MIME types and metadata extraction
package media

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"bitrel/media-api/internal/model"

	"github.com/spf13/viper"
)

var (
	ErrFileTooLarge        = errors.New("file too large")
	ErrFileNameTooLong     = errors.New("file name is too long")
	ErrFileTypeUnsupported = errors.New("unsupported file type")
	ErrNoFile              = errors.New("no file provided")
)

const maxFileNameSize = 245 // Takes into account the thumb_ prefix

// ValidationError is a local, pre-network rejection. It is never
// retried automatically
type ValidationError struct {
	Reason error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Reason.Error()
	}
	return fmt.Sprintf("%s, %s", e.Reason.Error(), e.Detail)
}

func (e *ValidationError) Unwrap() error { return e.Reason }

// Policy describes what one media kind accepts. The three historical
// per-kind upload flows all collapse into this one shape
type Policy struct {
	Kind         model.MediaKind
	MaxSize      int64
	AllowedTypes []string
}

// Defaults, overridable per kind through upload.<kind>.max_size
var defaultPolicies = map[model.MediaKind]Policy{
	model.KindImage: {
		Kind:         model.KindImage,
		MaxSize:      20 << 20,
		AllowedTypes: []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
	},
	model.KindAudio: {
		Kind:         model.KindAudio,
		MaxSize:      100 << 20,
		AllowedTypes: []string{"audio/mpeg", "audio/flac", "audio/ogg", "audio/wav", "audio/x-wav"},
	},
	model.KindVideo: {
		Kind:         model.KindVideo,
		MaxSize:      1 << 30,
		AllowedTypes: []string{"video/mp4", "video/webm"},
	},
	model.KindCode: {
		Kind:         model.KindCode,
		MaxSize:      10 << 20,
		AllowedTypes: []string{"text/plain", "application/octet-stream", "application/zip", "application/gzip"},
	},
}

// PolicyFor returns the policy for a kind, applying any configured
// size override
func PolicyFor(kind model.MediaKind) (Policy, error) {
	p, ok := defaultPolicies[kind]
	if !ok {
		return Policy{}, &ValidationError{Reason: ErrFileTypeUnsupported, Detail: string(kind)}
	}

	if v := viper.GetInt64("upload." + string(kind) + ".max_size"); v > 0 {
		p.MaxSize = v
	}

	return p, nil
}

// Validate checks a candidate file against the policy before any
// network call is made
func (p Policy) Validate(fileName, mimeType string, size int64) error {
	if fileName == "" {
		return &ValidationError{Reason: ErrNoFile}
	}

	if len(fileName) > maxFileNameSize {
		return &ValidationError{Reason: ErrFileNameTooLong, Detail: fileName}
	}

	if size <= 0 {
		return &ValidationError{Reason: ErrNoFile, Detail: "empty file"}
	}

	if size > p.MaxSize {
		return &ValidationError{
			Reason: ErrFileTooLarge,
			Detail: fmt.Sprintf("%d bytes exceeds the %d byte limit for %s", size, p.MaxSize, p.Kind),
		}
	}

	base, _, _ := strings.Cut(mimeType, ";")
	base = strings.TrimSpace(strings.ToLower(base))

	for _, t := range p.AllowedTypes {
		if base == t {
			return nil
		}
	}

	return &ValidationError{Reason: ErrFileTypeUnsupported, Detail: base}
}

// KindForMime maps a MIME type onto the media kind whose policy
// accepts it
func KindForMime(mimeType string) (model.MediaKind, bool) {
	base, _, _ := strings.Cut(mimeType, ";")
	base = strings.TrimSpace(strings.ToLower(base))

	switch {
	case strings.HasPrefix(base, "image/"):
		return model.KindImage, true
	case strings.HasPrefix(base, "audio/"):
		return model.KindAudio, true
	case strings.HasPrefix(base, "video/"):
		return model.KindVideo, true
	case base == "text/plain", base == "application/zip", base == "application/gzip", base == "application/octet-stream":
		return model.KindCode, true
	}

	return "", false
}

// Ext returns a sensible storage key extension for a file name
func Ext(fileName string) string {
	return strings.ToLower(path.Ext(fileName))
}
