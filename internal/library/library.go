// Package library is the consistency layer over the aggregate catalog:
// every item mutation recomputes the aggregate's derived stats in the
// same transaction, and removals cascade into the blob store
package library

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"bitrel/media-api/internal/model"
	"bitrel/media-api/internal/storage"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrAggregateNotFound = errors.New("aggregate not found")
	ErrItemNotFound      = errors.New("item not found")
)

type Library struct {
	DB      *gorm.DB
	Gateway storage.Gateway

	// Serializes read-modify-write per aggregate within the process.
	// One logical owner process is assumed, so this is sufficient to
	// keep the derived fields honest under concurrent appends
	locks sync.Map
}

func New(db *gorm.DB, gw storage.Gateway) *Library {
	return &Library{DB: db, Gateway: gw}
}

func (l *Library) lock(aggregateID string) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(aggregateID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// AppendItem appends to the aggregate's item list and recomputes the
// derived fields from the post-append list, all in one update
func (l *Library) AppendItem(ctx context.Context, aggregateID string, item model.Item) (*model.Aggregate, error) {
	mu := l.lock(aggregateID)
	mu.Lock()
	defer mu.Unlock()

	var agg model.Aggregate

	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := l.fetch(tx, aggregateID, &agg); err != nil {
			return err
		}

		agg.Items = append(agg.Items, item)
		agg.Recompute()

		return tx.Model(&model.Aggregate{}).
			Where("id = ?", aggregateID).
			Updates(map[string]any{
				"items":      agg.Items,
				"item_count": agg.ItemCount,
				"total_size": agg.TotalSize,
			}).
			Error
	})
	if err != nil {
		return nil, err
	}

	if err := l.bumpStats(ctx, agg.UserID, item.SizeBytes(), 1); err != nil {
		zap.L().Error("Failed to update user stats after append",
			zap.String("aggregate_id", aggregateID), zap.Error(err))
	}

	return &agg, nil
}

// RemoveItem removes one item, recomputes the stats and then deletes
// the item's blobs best-effort. A failed storage delete is logged, it
// never blocks the metadata removal
func (l *Library) RemoveItem(ctx context.Context, aggregateID, itemID string) (*model.Aggregate, error) {
	mu := l.lock(aggregateID)
	mu.Lock()
	defer mu.Unlock()

	var agg model.Aggregate
	var removed model.Item

	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := l.fetch(tx, aggregateID, &agg); err != nil {
			return err
		}

		idx := slices.IndexFunc(agg.Items, func(it model.Item) bool { return it.ID == itemID })
		if idx < 0 {
			return ErrItemNotFound
		}

		removed = agg.Items[idx]
		agg.Items = slices.Delete(agg.Items, idx, idx+1)
		agg.Recompute()

		return tx.Model(&model.Aggregate{}).
			Where("id = ?", aggregateID).
			Updates(map[string]any{
				"items":      agg.Items,
				"item_count": agg.ItemCount,
				"total_size": agg.TotalSize,
			}).
			Error
	})
	if err != nil {
		return nil, err
	}

	if keys := removed.StorageKeys(); len(keys) > 0 {
		if _, failed := l.Gateway.Delete(ctx, keys); len(failed) > 0 {
			zap.L().Warn("Some storage objects survived item removal",
				zap.String("aggregate_id", aggregateID),
				zap.String("item_id", itemID),
				zap.Strings("failed_keys", failed))
		}
	}

	if err := l.bumpStats(ctx, agg.UserID, -removed.SizeBytes(), -1); err != nil {
		zap.L().Error("Failed to update user stats after removal",
			zap.String("aggregate_id", aggregateID), zap.Error(err))
	}

	return &agg, nil
}

// DeleteAggregate collects every blob key the aggregate owns, issues a
// single batch delete and removes the record whether or not every key
// went away. A clean catalog beats perfectly consistent storage
func (l *Library) DeleteAggregate(ctx context.Context, aggregateID string) error {
	mu := l.lock(aggregateID)
	mu.Lock()
	defer mu.Unlock()

	var agg model.Aggregate
	if err := l.fetch(l.DB.WithContext(ctx), aggregateID, &agg); err != nil {
		return err
	}

	seen := map[string]bool{}
	keys := []string{}

	for _, it := range agg.Items {
		for _, k := range it.StorageKeys() {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}

	if agg.CoverKey != "" && !seen[agg.CoverKey] {
		keys = append(keys, agg.CoverKey)
	}

	if len(keys) > 0 {
		if _, failed := l.Gateway.Delete(ctx, keys); len(failed) > 0 {
			zap.L().Warn("Some storage objects survived aggregate deletion",
				zap.String("aggregate_id", aggregateID),
				zap.Strings("failed_keys", failed))
		}
	}

	err := l.DB.WithContext(ctx).
		Where("id = ?", aggregateID).
		Delete(&model.Aggregate{}).
		Error
	if err != nil {
		return fmt.Errorf("failed to delete aggregate record, %w", err)
	}

	if err := l.bumpStats(ctx, agg.UserID, -agg.TotalSize, -agg.ItemCount); err != nil {
		zap.L().Error("Failed to update user stats after aggregate deletion",
			zap.String("aggregate_id", aggregateID), zap.Error(err))
	}

	l.locks.Delete(aggregateID)
	return nil
}

// RenameItem changes an item's display name. Metadata only: no stats
// recomputation, no storage side effects
func (l *Library) RenameItem(ctx context.Context, aggregateID, itemID, name string) (*model.Aggregate, error) {
	return l.updateItem(ctx, aggregateID, itemID, func(it *model.Item) {
		it.Name = name
	})
}

// UpdateItemMetadata replaces an item's kind-specific payload
func (l *Library) UpdateItemMetadata(ctx context.Context, aggregateID, itemID string, apply func(*model.Item)) (*model.Aggregate, error) {
	return l.updateItem(ctx, aggregateID, itemID, apply)
}

func (l *Library) updateItem(ctx context.Context, aggregateID, itemID string, apply func(*model.Item)) (*model.Aggregate, error) {
	mu := l.lock(aggregateID)
	mu.Lock()
	defer mu.Unlock()

	var agg model.Aggregate

	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := l.fetch(tx, aggregateID, &agg); err != nil {
			return err
		}

		idx := slices.IndexFunc(agg.Items, func(it model.Item) bool { return it.ID == itemID })
		if idx < 0 {
			return ErrItemNotFound
		}

		apply(&agg.Items[idx])

		return tx.Model(&model.Aggregate{}).
			Where("id = ?", aggregateID).
			Update("items", agg.Items).
			Error
	})
	if err != nil {
		return nil, err
	}

	return &agg, nil
}

func (l *Library) fetch(tx *gorm.DB, aggregateID string, agg *model.Aggregate) error {
	err := tx.Where("id = ?", aggregateID).First(agg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAggregateNotFound
		}
		return err
	}

	return nil
}

func (l *Library) bumpStats(ctx context.Context, userID string, sizeDelta int64, countDelta int) error {
	if userID == "" {
		return nil
	}

	return l.DB.WithContext(ctx).
		Model(&model.Stats{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"used_storage":   gorm.Expr("used_storage + ?", sizeDelta),
			"uploaded_items": gorm.Expr("uploaded_items + ?", countDelta),
		}).
		Error
}
