// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Profile
// model, including the pairing-code linking paths.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/finchat/go-finance-bot/internal/domain"
)

// CreateProfile inserts a new profile with the given display name and home
// currency.
func CreateProfile(ctx context.Context, db *gorm.DB, displayName, homeCurrency string) (*domain.Profile, error) {
	p := &domain.Profile{
		ID:           uuid.NewString(),
		DisplayName:  displayName,
		HomeCurrency: homeCurrency,
		CreatedAt:    time.Now().UTC(),
	}
	return p, db.WithContext(ctx).Create(p).Error
}

// GetProfile fetches a profile by id.
func GetProfile(ctx context.Context, db *gorm.DB, id string) (*domain.Profile, error) {
	var p domain.Profile
	err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindProfileBySender returns the profile linked to the given platform
// sender id, or ErrNotFound when the sender is unlinked.
func FindProfileBySender(ctx context.Context, db *gorm.DB, senderID string) (*domain.Profile, error) {
	var p domain.Profile
	err := db.WithContext(ctx).Where("bot_user_id = ?", senderID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindProfileByPairingCode returns the profile holding an unexpired pairing
// code equal to code, or ErrNotFound.
func FindProfileByPairingCode(ctx context.Context, db *gorm.DB, code string, now time.Time) (*domain.Profile, error) {
	var p domain.Profile
	err := db.WithContext(ctx).
		Where("pairing_code = ? AND pairing_code_expires_at > ?", code, now).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// IssuePairingCode stores a fresh single-use code and its expiry on the
// profile, replacing any outstanding code.
func IssuePairingCode(ctx context.Context, db *gorm.DB, profileID, code string, expiresAt time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("id = ?", profileID).
		Updates(map[string]any{
			"pairing_code":            code,
			"pairing_code_expires_at": expiresAt,
		}).Error
}

// LinkProfile records the sender id on the profile and consumes the pairing
// code in one update.
func LinkProfile(ctx context.Context, db *gorm.DB, profileID, senderID string) error {
	return db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("id = ?", profileID).
		Updates(map[string]any{
			"bot_user_id":             senderID,
			"pairing_code":            nil,
			"pairing_code_expires_at": nil,
		}).Error
}

// UnlinkProfile clears the sender id from whichever profile holds it.
func UnlinkProfile(ctx context.Context, db *gorm.DB, senderID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("bot_user_id = ?", senderID).
		Update("bot_user_id", nil)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
