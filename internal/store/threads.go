package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/capitalize-ai/persona-chat/internal/apperr"
	"github.com/capitalize-ai/persona-chat/internal/model"
)

// CreateThread stores a new active thread owned by userID.
func (s *Store) CreateThread(ctx context.Context, userID, title string) (*model.Thread, error) {
	now := time.Now().UTC()
	t := &model.Thread{
		ID:        s.ids.next(),
		UserID:    userID,
		Title:     title,
		Status:    model.ThreadActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}
	return t, nil
}

// GetThread returns thread metadata. Ownership checks are the caller's job.
func (s *Store) GetThread(ctx context.Context, threadID string) (*model.Thread, error) {
	var t model.Thread
	if err := s.db.WithContext(ctx).First(&t, "id = ?", threadID).Error; err != nil {
		if isNotFound(err) {
			return nil, apperr.New(apperr.AiThreadNotFound, "thread not found")
		}
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}
	return &t, nil
}

// ListThreadsByUser returns userID's threads newest first.
func (s *Store) ListThreadsByUser(ctx context.Context, userID string, opts model.PaginationOpts) (*model.Page[model.Thread], error) {
	after, err := decodeCursor(opts.Cursor)
	if err != nil {
		return nil, err
	}
	limit := pageSize(opts)

	q := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit + 1)
	if after != "" {
		q = q.Where("id < ?", after)
	}

	var threads []model.Thread
	if err := q.Find(&threads).Error; err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}

	page := &model.Page[model.Thread]{IsDone: len(threads) <= limit, ContinueCursor: opts.Cursor}
	if !page.IsDone {
		threads = threads[:limit]
	}
	if len(threads) > 0 {
		page.ContinueCursor = encodeCursor(threads[len(threads)-1].ID)
	}
	page.Page = threads
	return page, nil
}

// UpdateThreadOwner reassigns a thread to a new owner.
func (s *Store) UpdateThreadOwner(ctx context.Context, threadID, userID string) error {
	res := s.db.WithContext(ctx).Model(&model.Thread{}).
		Where("id = ?", threadID).
		Updates(map[string]any{"user_id": userID, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("failed to update thread owner: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.AiThreadNotFound, "thread not found")
	}
	return nil
}

// UpdateThread renames or archives a thread.
func (s *Store) UpdateThread(ctx context.Context, threadID string, req *model.UpdateThreadRequest) (*model.Thread, error) {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	res := s.db.WithContext(ctx).Model(&model.Thread{}).Where("id = ?", threadID).Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update thread: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.New(apperr.AiThreadNotFound, "thread not found")
	}
	return s.GetThread(ctx, threadID)
}

// DeleteThread removes a thread with its messages and deltas.
func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteThreadTx(tx, threadID)
	})
}

func deleteThreadTx(tx *gorm.DB, threadID string) error {
	if err := tx.Where("thread_id = ?", threadID).Delete(&model.StreamDelta{}).Error; err != nil {
		return fmt.Errorf("failed to delete deltas: %w", err)
	}
	if err := tx.Where("thread_id = ?", threadID).Delete(&model.Message{}).Error; err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	res := tx.Where("id = ?", threadID).Delete(&model.Thread{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete thread: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.AiThreadNotFound, "thread not found")
	}
	return nil
}

// SaveMessage appends a message to a thread, assigning the next order.
func (s *Store) SaveMessage(ctx context.Context, msg *model.Message) error {
	if msg.ID == "" {
		msg.ID = s.ids.next()
	}
	if msg.Status == "" {
		msg.Status = model.MessageSuccess
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxOrder sql.NullInt64
		if err := tx.Model(&model.Message{}).
			Where("thread_id = ?", msg.ThreadID).
			Select("MAX(msg_order)").
			Row().Scan(&maxOrder); err != nil {
			return fmt.Errorf("failed to read message order: %w", err)
		}
		msg.Order = 0
		if maxOrder.Valid {
			msg.Order = int(maxOrder.Int64) + 1
		}
		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("failed to save message: %w", err)
		}
		return tx.Model(&model.Thread{}).Where("id = ?", msg.ThreadID).
			Update("updated_at", time.Now().UTC()).Error
	})
}

// GetMessage returns one message of a thread.
func (s *Store) GetMessage(ctx context.Context, threadID, messageID string) (*model.Message, error) {
	var m model.Message
	err := s.db.WithContext(ctx).First(&m, "id = ? AND thread_id = ?", messageID, threadID).Error
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.New(apperr.ContinueThreadFailed, "prompt message not found")
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &m, nil
}

// ListMessages returns a thread's messages in creation order.
func (s *Store) ListMessages(ctx context.Context, threadID string, opts model.PaginationOpts) (*model.Page[model.Message], error) {
	raw, err := decodeCursor(opts.Cursor)
	if err != nil {
		return nil, err
	}
	limit := pageSize(opts)

	q := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("msg_order ASC").
		Limit(limit + 1)
	if raw != "" {
		after, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor: %w", err)
		}
		q = q.Where("msg_order > ?", after)
	}

	var msgs []model.Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	page := &model.Page[model.Message]{IsDone: len(msgs) <= limit, ContinueCursor: opts.Cursor}
	if !page.IsDone {
		msgs = msgs[:limit]
	}
	if len(msgs) > 0 {
		page.ContinueCursor = encodeCursor(strconv.Itoa(msgs[len(msgs)-1].Order))
	}
	page.Page = msgs
	return page, nil
}

// RecentMessages returns the last n finalized messages of a thread, oldest first.
func (s *Store) RecentMessages(ctx context.Context, threadID string, n int) ([]model.Message, error) {
	var desc []model.Message
	if err := s.db.WithContext(ctx).
		Where("thread_id = ? AND status = ?", threadID, model.MessageSuccess).
		Order("msg_order DESC").
		Limit(n).
		Find(&desc).Error; err != nil {
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}
	asc := make([]model.Message, 0, len(desc))
	for i := len(desc) - 1; i >= 0; i-- {
		asc = append(asc, desc[i])
	}
	return asc, nil
}
