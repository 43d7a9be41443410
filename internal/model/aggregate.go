package model

// AggregateKind names the owning container types of the library
type AggregateKind string

const (
	AggGallery    AggregateKind = "gallery"
	AggAlbum      AggregateKind = "album"
	AggCollection AggregateKind = "collection"
	AggRepository AggregateKind = "repository"
)

// Aggregate owns an ordered list of items. ItemCount and TotalSize are
// derived from Items and recomputed on every mutation, never written
// independently
type Aggregate struct {
	ID          string        `gorm:"primaryKey" json:"id"`
	UserID      string        `gorm:"index" json:"-"`
	Kind        AggregateKind `gorm:"index;uniqueIndex:idx_kind_slug" json:"kind"`
	Title       string        `json:"title"`
	Slug        string        `gorm:"uniqueIndex:idx_kind_slug" json:"slug"`
	Description string        `json:"description"`
	Items       ItemList      `gorm:"type:text" json:"items"`
	ItemCount   int           `json:"item_count"`
	TotalSize   int64         `json:"total_size"`
	Public      bool          `json:"public"`
	CoverKey    string        `json:"cover_key,omitempty"`
	CreatedAt   int64         `gorm:"not null" json:"created_at"`
	UpdatedAt   int64         `json:"updated_at"`
}

// Recompute refreshes the derived fields from the current item list
func (a *Aggregate) Recompute() {
	a.ItemCount = len(a.Items)

	var total int64
	for _, it := range a.Items {
		total += it.SizeBytes()
	}
	a.TotalSize = total
}
