package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/capitalize-ai/persona-chat/internal/apperr"
	"github.com/capitalize-ai/persona-chat/internal/model"
)

// CreateAnonymousUser stores a fresh anonymous identity.
func (s *Store) CreateAnonymousUser(ctx context.Context) (*model.User, error) {
	now := time.Now().UTC()
	u := &model.User{
		ID:          uuid.NewString(),
		IsAnonymous: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, apperr.Wrap(apperr.FailedToCreateUser, "failed to create anonymous user", err)
	}
	return u, nil
}

// GetUser returns a user by internal id.
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return nil, apperr.New(apperr.UserNotFound, "user not found")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// GetUserByExternalID returns the user linked to an identity provider id.
func (s *Store) GetUserByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).First(&u, "external_id = ?", externalID).Error; err != nil {
		if isNotFound(err) {
			return nil, apperr.New(apperr.UserNotFound, "user not found")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// UpsertExternalUser creates or updates the user linked to ext.ExternalID.
func (s *Store) UpsertExternalUser(ctx context.Context, ext model.ExternalUser) (*model.User, bool, error) {
	var (
		out     model.User
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		err := tx.First(&out, "external_id = ?", ext.ExternalID).Error
		switch {
		case isNotFound(err):
			externalID := ext.ExternalID
			out = model.User{
				ID:            uuid.NewString(),
				ExternalID:    &externalID,
				Name:          ext.DisplayName(),
				Email:         ext.Email,
				AvatarURL:     ext.AvatarURL,
				EmailVerified: ext.EmailVerified,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			created = true
			return tx.Create(&out).Error
		case err != nil:
			return err
		}
		out.Name = ext.DisplayName()
		out.Email = ext.Email
		out.AvatarURL = ext.AvatarURL
		out.EmailVerified = ext.EmailVerified
		out.UpdatedAt = now
		return tx.Save(&out).Error
	})
	if err != nil {
		return nil, false, apperr.Wrap(apperr.FailedToCreateUser, "failed to upsert user", err)
	}
	return &out, created, nil
}

// DeleteUserByExternalID removes a user and every thread they own.
func (s *Store) DeleteUserByExternalID(ctx context.Context, externalID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u model.User
		if err := tx.First(&u, "external_id = ?", externalID).Error; err != nil {
			if isNotFound(err) {
				return apperr.New(apperr.UserNotFound, "user not found")
			}
			return err
		}
		var threadIDs []string
		if err := tx.Model(&model.Thread{}).Where("user_id = ?", u.ID).Pluck("id", &threadIDs).Error; err != nil {
			return err
		}
		for _, id := range threadIDs {
			if err := deleteThreadTx(tx, id); err != nil {
				return err
			}
		}
		return tx.Delete(&u).Error
	})
}
