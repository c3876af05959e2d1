package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/capitalize-ai/persona-chat/internal/model"
)

// GetCached returns the cached value for key.
func (s *Store) GetCached(ctx context.Context, key string) (string, bool, error) {
	var entries []model.CacheEntry
	if err := s.db.WithContext(ctx).Where("cache_key = ?", key).Limit(1).Find(&entries).Error; err != nil {
		return "", false, fmt.Errorf("failed to read cache: %w", err)
	}
	if len(entries) == 0 {
		return "", false, nil
	}
	return entries[0].Value, true, nil
}

// SetCached stores value under key with no expiry.
func (s *Store) SetCached(ctx context.Context, key, value string) error {
	entry := model.CacheEntry{Key: key, Value: value, CreatedAt: time.Now().UTC()}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

// ReplaceEntries swaps every retrieval entry of (namespace, key) for entries.
func (s *Store) ReplaceEntries(ctx context.Context, namespace, key string, entries []model.RAGEntry) error {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	if err := tx.Where("namespace = ? AND doc_key = ?", namespace, key).Delete(&model.RAGEntry{}).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to clear entries: %w", err)
	}
	if len(entries) > 0 {
		if err := tx.Create(&entries).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert entries: %w", err)
		}
	}
	return tx.Commit().Error
}

// ListEntries returns all retrieval entries of a namespace.
func (s *Store) ListEntries(ctx context.Context, namespace string) ([]model.RAGEntry, error) {
	var entries []model.RAGEntry
	if err := s.db.WithContext(ctx).
		Where("namespace = ?", namespace).
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	return entries, nil
}
