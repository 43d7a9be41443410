package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"bitrel/media-api/internal/model"

	"go.uber.org/zap"
)

// Metadata holds whatever kind-specific fields could be extracted from
// a file. Every field is optional, extraction failures never block an
// upload
type Metadata struct {
	Width    int
	Height   int
	Duration float64
	Language string
}

// Extractor parses a local media file before confirmation
type Extractor interface {
	Extract(ctx context.Context, kind model.MediaKind, path string) (*Metadata, error)
}

// ProbeExtractor shells out to ffprobe for durations and reads image
// headers directly
type ProbeExtractor struct{}

func (ProbeExtractor) Extract(ctx context.Context, kind model.MediaKind, p string) (*Metadata, error) {
	switch kind {
	case model.KindImage:
		return imageMeta(p)
	case model.KindAudio, model.KindVideo:
		d, err := probeDuration(ctx, p)
		if err != nil {
			return nil, err
		}
		m := &Metadata{Duration: d}
		if kind == model.KindVideo {
			if w, h, err := probeDimensions(ctx, p); err == nil {
				m.Width, m.Height = w, h
			}
		}
		return m, nil
	case model.KindCode:
		return &Metadata{Language: LanguageForPath(p)}, nil
	}

	return &Metadata{}, nil
}

func imageMeta(p string) (*Metadata, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read image header, %w", err)
	}

	return &Metadata{Width: cfg.Width, Height: cfg.Height}, nil
}

func probeDuration(ctx context.Context, p string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	zap.L().Debug("Running FFprobe to determine media duration")

	cmd := exec.CommandContext(ctx, "ffprobe", "-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", "-i", p)

	var stdOut, stdErr bytes.Buffer
	cmd.Stdout = &stdOut
	cmd.Stderr = &stdErr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe failed, %w (%s)", err, stdErr.String())
	}

	d, err := strconv.ParseFloat(strings.TrimSpace(stdOut.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("malformed duration: %w (%s)", err, stdErr.String())
	}

	return d, nil
}

// probeDimensions reads the first video stream's frame size. Image
// decoding can't help here, containers like mp4 and webm carry no
// decodable image header
func probeDimensions(ctx context.Context, p string) (int, int, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	zap.L().Debug("Running FFprobe to determine video dimensions")

	cmd := exec.CommandContext(ctx, "ffprobe", "-v", "error", "-select_streams", "v:0", "-show_entries", "stream=width,height", "-of", "csv=s=x:p=0", "-i", p)

	var stdOut, stdErr bytes.Buffer
	cmd.Stdout = &stdOut
	cmd.Stderr = &stdErr

	if err := cmd.Run(); err != nil {
		return 0, 0, fmt.Errorf("ffprobe failed, %w (%s)", err, stdErr.String())
	}

	return parseDimensions(stdOut.String())
}

func parseDimensions(s string) (int, int, error) {
	w, h, ok := strings.Cut(strings.TrimSpace(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("malformed dimensions %q", s)
	}

	width, err := strconv.Atoi(w)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed width: %w", err)
	}

	height, err := strconv.Atoi(h)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed height: %w", err)
	}

	return width, height, nil
}

var languagesByExt = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".ts":   "typescript",
	".rs":   "rust",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".java": "java",
	".rb":   "ruby",
	".sh":   "shell",
	".sql":  "sql",
	".css":  "css",
	".html": "html",
	".md":   "markdown",
	".json": "json",
	".yml":  "yaml",
	".yaml": "yaml",
	".toml": "toml",
}

// LanguageForPath guesses a display language for a code file
func LanguageForPath(p string) string {
	if l, ok := languagesByExt[Ext(p)]; ok {
		return l
	}
	return "plain"
}
