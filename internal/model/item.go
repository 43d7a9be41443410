// Package model defines database models
package model

// MediaKind tags the variant payload carried by an Item
type MediaKind string

const (
	KindImage MediaKind = "image"
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
	KindCode  MediaKind = "code"
)

// StorageRef is a logical pointer to one blob in the object store.
// Immutable once the object is written
type StorageRef struct {
	Key      string `json:"key"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

type ImageMeta struct {
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

type AudioMeta struct {
	Duration float64 `json:"duration,omitempty"`
	Bitrate  int     `json:"bitrate,omitempty"`
}

type VideoMeta struct {
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// CodeMeta may embed the file content directly instead of pointing at
// the blob store. Small source files aren't worth a round trip
type CodeMeta struct {
	Path     string `json:"path,omitempty"`
	Language string `json:"language,omitempty"`
	Content  string `json:"content,omitempty"`
}

// Item is one piece of media belonging to an aggregate. Exactly one of
// the kind payloads is set, matching Kind
type Item struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Kind       MediaKind  `json:"kind"`
	Ref        StorageRef `json:"ref"`
	ThumbKey   string     `json:"thumb_key,omitempty"` // Secondary asset, deleted together with Ref.Key
	UploadedAt int64      `json:"uploaded_at"`

	Image *ImageMeta `json:"image,omitempty"`
	Audio *AudioMeta `json:"audio,omitempty"`
	Video *VideoMeta `json:"video,omitempty"`
	Code  *CodeMeta  `json:"code,omitempty"`
}

// StorageKeys returns every blob key owned by the item. Inline code
// items own no blobs
func (i Item) StorageKeys() []string {
	keys := []string{}
	if i.Ref.Key != "" {
		keys = append(keys, i.Ref.Key)
	}
	if i.ThumbKey != "" {
		keys = append(keys, i.ThumbKey)
	}
	return keys
}

// SizeBytes is the item's contribution to the aggregate total. Inline
// code items count their embedded content length
func (i Item) SizeBytes() int64 {
	if i.Ref.Key == "" && i.Code != nil {
		return int64(len(i.Code.Content))
	}
	return i.Ref.Size
}
